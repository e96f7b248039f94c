package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string used as the primary key of every stored entity.
func NewID() string {
	return ulid.Make().String()
}

package model

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when a payment status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Payment status constants.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

// Sponsorship type constants.
const (
	SponsorshipICO    = "ico"
	SponsorshipBanner = "banner"
)

// validTransitions maps each status to the set of statuses it may transition to.
// A failed or expired charge can still be confirmed when Coinbase resolves it late.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusExpired:   true,
	},
	StatusFailed: {
		StatusCompleted: true,
	},
	StatusExpired: {
		StatusCompleted: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether no further webhook can move a payment out of status.
func IsTerminal(status string) bool {
	return status == StatusCompleted
}

// Payment is the record of a Coinbase charge opened for a sponsorship request.
// Metadata holds the validated sponsorship request as JSON; it is replayed when
// the charge is confirmed.
type Payment struct {
	ID               string     `json:"id" db:"id"`
	CoinbaseChargeID string     `json:"coinbaseChargeId" db:"coinbase_charge_id"`
	SponsorshipType  string     `json:"sponsorshipType" db:"sponsorship_type"`
	Amount           string     `json:"amount" db:"amount"`
	Currency         string     `json:"currency" db:"currency"`
	Status           string     `json:"status" db:"status"`
	SponsorshipID    *string    `json:"sponsorshipId" db:"sponsorship_id"`
	Metadata         string     `json:"metadata,omitempty" db:"metadata"`
	HostedURL        string     `json:"hostedUrl,omitempty" db:"hosted_url"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty" db:"expires_at"`
	CreatedAt        time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at"`
}

// PaymentStats holds aggregate payment figures for the admin dashboard.
type PaymentStats struct {
	Total        int               `json:"total"`
	ByStatus     map[string]int    `json:"byStatus"`
	ByType       map[string]int    `json:"byType"`
	RevenueByCur map[string]string `json:"revenue"`
}

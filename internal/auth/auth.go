// Package auth hashes admin passwords and guards the admin API with HTTP
// basic authentication backed by the users table.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/seantiz/coinpulse/internal/model"
	"github.com/seantiz/coinpulse/internal/store"
)

// MinPasswordLength is the shortest admin password accepted.
const MinPasswordLength = 8

// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
var ErrWeakPassword = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// dummyHash is compared when the username is unknown so both failure paths
// cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("coinpulse-dummy-password"), bcrypt.DefaultCost)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserLookup finds users by name.
type UserLookup interface {
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
}

type ctxKey struct{}

// UserFromContext returns the user authenticated by BasicAuth, if any.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok
}

// BasicAuth rejects requests that do not carry valid credentials for a user
// in users.
func BasicAuth(users UserLookup, realm string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, realm)
				return
			}

			u, err := users.GetUserByUsername(r.Context(), username)
			switch {
			case errors.Is(err, store.ErrNotFound):
				_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
				logger.Warn("admin login rejected", "username", username, "reason", "unknown user")
				unauthorized(w, realm)
				return
			case err != nil:
				logger.Error("failed to look up admin user", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": "Authentication unavailable"})
				return
			}

			if !CheckPassword(u.PasswordHash, password) {
				logger.Warn("admin login rejected", "username", username, "reason", "bad password")
				unauthorized(w, realm)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
		})
	}
}

func unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "Unauthorized"})
}

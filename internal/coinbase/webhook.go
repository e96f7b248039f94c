package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// SignatureHeader carries the hex HMAC of a webhook body.
const SignatureHeader = "X-CC-Webhook-Signature"

// Event types the site acts on.
const (
	EventChargeCreated   = "charge:created"
	EventChargeConfirmed = "charge:confirmed"
	EventChargeFailed    = "charge:failed"
	EventChargeDelayed   = "charge:delayed"
	EventChargePending   = "charge:pending"
	EventChargeResolved  = "charge:resolved"
)

// ErrMalformedEvent is returned when a webhook body lacks the fields needed to
// route it.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Event is a parsed webhook notification.
type Event struct {
	ID         string
	Type       string
	ChargeID   string
	ChargeCode string
}

// Verifier checks webhook signatures against the shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Sign returns the hex signature Coinbase would send for body.
func (v *Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is the signature of body.
func (v *Verifier) VerifySignature(body []byte, header string) bool {
	if len(v.secret) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil || len(got) != sha256.Size {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// ParseEvent extracts the routing fields from a webhook body.
func ParseEvent(body []byte) (Event, error) {
	if !gjson.ValidBytes(body) {
		return Event{}, ErrMalformedEvent
	}
	r := gjson.ParseBytes(body).Get("event")
	ev := Event{
		ID:         r.Get("id").String(),
		Type:       r.Get("type").String(),
		ChargeID:   r.Get("data.id").String(),
		ChargeCode: r.Get("data.code").String(),
	}
	if ev.Type == "" || ev.ChargeID == "" {
		return Event{}, ErrMalformedEvent
	}
	return ev, nil
}

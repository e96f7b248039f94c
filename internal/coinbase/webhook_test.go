package coinbase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const confirmedEvent = `{
  "id": 1,
  "scheduled_for": "2025-03-01T12:05:00Z",
  "event": {
    "id": "24934862-d980-46cb-9402-43c81b0cdba6",
    "type": "charge:confirmed",
    "api_version": "2018-03-22",
    "data": {"id": "charge-1", "code": "66BEOV2A", "metadata": {"type": "ico"}}
  }
}`

func TestVerifySignature(t *testing.T) {
	v := NewVerifier("shh")
	body := []byte(confirmedEvent)
	sig := v.Sign(body)

	assert.True(t, v.VerifySignature(body, sig))
	assert.True(t, v.VerifySignature(body, " "+sig+" "))
	assert.False(t, v.VerifySignature(append(body, ' '), sig), "body tampered")
	assert.False(t, v.VerifySignature(body, NewVerifier("other").Sign(body)), "wrong secret")
	assert.False(t, v.VerifySignature(body, ""))
	assert.False(t, v.VerifySignature(body, "not-hex"))
	assert.False(t, v.VerifySignature(body, "abcd"))
}

func TestVerifySignatureEmptySecret(t *testing.T) {
	v := NewVerifier("")
	body := []byte(`{}`)
	assert.False(t, v.VerifySignature(body, v.Sign(body)))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(confirmedEvent))
	require.NoError(t, err)
	assert.Equal(t, Event{
		ID:         "24934862-d980-46cb-9402-43c81b0cdba6",
		Type:       EventChargeConfirmed,
		ChargeID:   "charge-1",
		ChargeCode: "66BEOV2A",
	}, ev)
}

func TestParseEventMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"event":`},
		{"no event", `{"id":1}`},
		{"no type", `{"event":{"data":{"id":"c"}}}`},
		{"no charge", `{"event":{"type":"charge:failed","data":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body))
			assert.True(t, errors.Is(err, ErrMalformedEvent), "err = %v", err)
		})
	}
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Webhook event types emitted by Creem.
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// Event is a Creem webhook payload. payment.failed events are queued for the
// compensation consumer; payment.completed is acknowledged and ignored.
type Event struct {
	Type       string   `json:"event_type"`
	PaymentRef string   `json:"payment_ref"`
	Metadata   Metadata `json:"metadata"`
}

// Redis key templates. The compensation queue is a durable list: BLPOP gives
// at-least-once delivery, and the refund handler is idempotent, so a
// redelivered event is harmless.
const (
	CompensationQueueKey = "payment:compensation:queue"
	CompensationDLQKey   = "payment:compensation:dlq"
)

// ParseEvent decodes a raw webhook body. Events with no type are rejected so
// garbage bodies never make it onto the compensation queue.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("parse webhook event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("webhook event missing event_type")
	}
	return &ev, nil
}

// VerifySignature checks the creem-signature header: hex-encoded HMAC-SHA256
// of the raw request body under the shared webhook secret.
func VerifySignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}

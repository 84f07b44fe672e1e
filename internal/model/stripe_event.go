package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StripePaymentEvent is a payment/charge webhook event stored verbatim.
// Payment auto-match searches these by amount, customer and time window;
// Stripe itself is never called.
type StripePaymentEvent struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	StripeEventID    string          `db:"stripe_event_id" json:"stripe_event_id"`
	EventType        string          `db:"event_type" json:"event_type"`
	StripeCustomerID string          `db:"stripe_customer_id" json:"stripe_customer_id"`
	AmountCents      int64           `db:"amount_cents" json:"amount_cents"`
	Currency         string          `db:"currency" json:"currency"`
	OccurredAt       time.Time       `db:"occurred_at" json:"occurred_at"`
	Raw              json.RawMessage `db:"raw" json:"raw"`
	MatchedRefillID  *uuid.UUID      `db:"matched_refill_id" json:"matched_refill_id,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type StripeWebhookRequest struct {
	ID      string `json:"id" binding:"required"`
	Type    string `json:"type" binding:"required"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			Customer string `json:"customer"`
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
		} `json:"object"`
	} `json:"data"`
}

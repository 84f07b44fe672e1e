package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
)

func (r *stripeEventRepository) Create(ctx context.Context, event *model.StripePaymentEvent) error {
	query := `
		INSERT INTO stripe_payment_events (
			id, stripe_event_id, event_type, stripe_customer_id, amount_cents,
			currency, occurred_at, raw, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_event_id) DO NOTHING
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.StripeEventID, event.EventType, event.StripeCustomerID,
		event.AmountCents, event.Currency, event.OccurredAt, event.Raw,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create stripe payment event: %w", err)
	}
	return nil
}

// FindMatch picks the oldest unmatched charge for the customer with the
// exact amount inside the window.
func (r *stripeEventRepository) FindMatch(ctx context.Context, customerID string, amountCents int64, since time.Time) (*model.StripePaymentEvent, error) {
	query := `
		SELECT id, stripe_event_id, event_type, stripe_customer_id, amount_cents,
			currency, occurred_at, raw, matched_refill_id, created_at
		FROM stripe_payment_events
		WHERE stripe_customer_id = $1
			AND amount_cents = $2
			AND occurred_at >= $3
			AND matched_refill_id IS NULL
		ORDER BY occurred_at ASC
		LIMIT 1
	`
	var event model.StripePaymentEvent
	if err := r.db.GetContext(ctx, &event, query, customerID, amountCents, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to find matching stripe event: %w", err)
	}
	return &event, nil
}

func (r *stripeEventRepository) MarkMatched(ctx context.Context, id, refillID uuid.UUID) error {
	query := `UPDATE stripe_payment_events SET matched_refill_id = $1
		WHERE id = $2 AND matched_refill_id IS NULL`

	result, err := r.db.ExecContext(ctx, query, refillID, id)
	if err != nil {
		return fmt.Errorf("failed to mark stripe event matched: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRows
	}
	return nil
}

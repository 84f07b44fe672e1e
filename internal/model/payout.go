package model

import (
	"time"

	"github.com/google/uuid"
)

type PayoutStatus string

const (
	PayoutStatusPending   PayoutStatus = "PENDING"
	PayoutStatusCompleted PayoutStatus = "COMPLETED"
	PayoutStatusFailed    PayoutStatus = "FAILED"
	PayoutStatusVoided    PayoutStatus = "VOIDED"
)

// Payout batches eligible commission events for settlement.
type Payout struct {
	Base
	ClinicID    uuid.UUID    `db:"clinic_id" json:"clinic_id"`
	AffiliateID uuid.UUID    `db:"affiliate_id" json:"affiliate_id"`
	TotalCents  int64        `db:"total_cents" json:"total_cents"`
	EventCount  int          `db:"event_count" json:"event_count"`
	Status      PayoutStatus `db:"status" json:"status"`
	SettledAt   *time.Time   `db:"settled_at" json:"settled_at,omitempty"`
	FailureNote *string      `db:"failure_note" json:"failure_note,omitempty"`
}

type CreatePayoutRequest struct {
	AffiliateID uuid.UUID `json:"affiliate_id" binding:"required"`
}

type SettlePayoutRequest struct {
	Status      PayoutStatus `json:"status" binding:"required,oneof=COMPLETED FAILED VOIDED"`
	FailureNote *string      `json:"failure_note"`
}

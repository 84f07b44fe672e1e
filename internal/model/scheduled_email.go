package model

import (
	"time"

	"github.com/google/uuid"
)

type ScheduledEmailStatus string

const (
	ScheduledEmailStatusPending   ScheduledEmailStatus = "PENDING"
	ScheduledEmailStatusSent      ScheduledEmailStatus = "SENT"
	ScheduledEmailStatusFailed    ScheduledEmailStatus = "FAILED"
	ScheduledEmailStatusCancelled ScheduledEmailStatus = "CANCELLED"
)

// ScheduledEmail is a queued outbound email (refill reminders, digests).
// The worker dispatch loop owns the retry counters.
type ScheduledEmail struct {
	Base
	ClinicID   uuid.UUID            `db:"clinic_id" json:"clinic_id"`
	Recipient  string               `db:"recipient" json:"recipient"`
	Subject    string               `db:"subject" json:"subject"`
	Body       string               `db:"body" json:"body"`
	Kind       string               `db:"kind" json:"kind"`
	RefillID   *uuid.UUID           `db:"refill_id" json:"refill_id,omitempty"`
	SendAfter  time.Time            `db:"send_after" json:"send_after"`
	Status     ScheduledEmailStatus `db:"status" json:"status"`
	RetryCount int                  `db:"retry_count" json:"retry_count"`
	MaxRetries int                  `db:"max_retries" json:"max_retries"`
	LastError  *string              `db:"last_error" json:"last_error,omitempty"`
	SentAt     *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
}

const (
	EmailKindRefillReminder  = "refill_reminder"
	EmailKindPaymentReceived = "payment_received"
	EmailKindRefillRejected  = "refill_rejected"
)

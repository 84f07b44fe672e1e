package model

import (
	"time"

	"github.com/google/uuid"
)

// RefillStatus is the refill gate state machine. A refill walks
// SCHEDULED → PENDING_PAYMENT → PENDING_ADMIN → APPROVED → PENDING_PROVIDER
// → PRESCRIBED, with REJECTED, CANCELLED and ON_HOLD reachable from any
// non-terminal state.
type RefillStatus string

const (
	RefillStatusScheduled       RefillStatus = "SCHEDULED"
	RefillStatusPendingPayment  RefillStatus = "PENDING_PAYMENT"
	RefillStatusPendingAdmin    RefillStatus = "PENDING_ADMIN"
	RefillStatusApproved        RefillStatus = "APPROVED"
	RefillStatusPendingProvider RefillStatus = "PENDING_PROVIDER"
	RefillStatusPrescribed      RefillStatus = "PRESCRIBED"
	RefillStatusRejected        RefillStatus = "REJECTED"
	RefillStatusCancelled       RefillStatus = "CANCELLED"
	RefillStatusOnHold          RefillStatus = "ON_HOLD"
)

// IsTerminal reports whether no further gate transitions are allowed.
func (s RefillStatus) IsTerminal() bool {
	switch s {
	case RefillStatusPrescribed, RefillStatusRejected, RefillStatusCancelled:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentMethodStripeAuto        PaymentMethod = "STRIPE_AUTO"
	PaymentMethodExternalReference PaymentMethod = "EXTERNAL_REFERENCE"
	PaymentMethodCash              PaymentMethod = "CASH"
	PaymentMethodComped            PaymentMethod = "COMPED"
)

// DefaultBUDDays bounds a single shipment's supply when the medication
// has no per-row override.
const DefaultBUDDays = 90

// Refill is one scheduled fill for a patient subscription. Large fills are
// split into multiple shipments chained by ParentRefillID (shipment 1 is the
// head of the series and has a nil parent).
type Refill struct {
	Base
	ClinicID       uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	SubscriptionID *uuid.UUID `db:"subscription_id" json:"subscription_id,omitempty"`
	MedicationName string     `db:"medication_name" json:"medication_name"`

	Status RefillStatus `db:"status" json:"status"`

	// Schedule
	NextRefillDate     time.Time  `db:"next_refill_date" json:"next_refill_date"`
	LastRefillDate     *time.Time `db:"last_refill_date" json:"last_refill_date,omitempty"`
	RefillIntervalDays int        `db:"refill_interval_days" json:"refill_interval_days"`
	VialCount          int        `db:"vial_count" json:"vial_count"`

	// Multi-shipment split
	ShipmentNumber int        `db:"shipment_number" json:"shipment_number"`
	TotalShipments int        `db:"total_shipments" json:"total_shipments"`
	ParentRefillID *uuid.UUID `db:"parent_refill_id" json:"parent_refill_id,omitempty"`
	BUDDays        int        `db:"bud_days" json:"bud_days"`
	SupplyDays     int        `db:"supply_days" json:"supply_days"`

	// Gate flags
	PaymentVerified   bool           `db:"payment_verified" json:"payment_verified"`
	PaymentVerifiedAt *time.Time     `db:"payment_verified_at" json:"payment_verified_at,omitempty"`
	PaymentMethod     *PaymentMethod `db:"payment_method" json:"payment_method,omitempty"`
	PaymentReference  *string        `db:"payment_reference" json:"payment_reference,omitempty"`
	AdminApproved     bool           `db:"admin_approved" json:"admin_approved"`
	AdminApprovedAt   *time.Time     `db:"admin_approved_at" json:"admin_approved_at,omitempty"`
	AdminApprovedBy   *uuid.UUID     `db:"admin_approved_by" json:"admin_approved_by,omitempty"`
	ProviderQueuedAt  *time.Time     `db:"provider_queued_at" json:"provider_queued_at,omitempty"`
	PrescribedAt      *time.Time     `db:"prescribed_at" json:"prescribed_at,omitempty"`
	RejectionReason   *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	HoldReason        *string        `db:"hold_reason" json:"hold_reason,omitempty"`

	// Notification bookkeeping; set once per window, never re-triggered
	ReminderSentAt    *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	PatientNotifiedAt *time.Time `db:"patient_notified_at" json:"patient_notified_at,omitempty"`

	// Shipment fulfillment; reminder for shipment k+1 keys off this
	FulfilledAt *time.Time `db:"fulfilled_at" json:"fulfilled_at,omitempty"`

	OrderAmountCents int64 `db:"order_amount_cents" json:"order_amount_cents"`
}

type CreateRefillRequest struct {
	PatientID              uuid.UUID  `json:"patient_id" binding:"required"`
	SubscriptionID         *uuid.UUID `json:"subscription_id"`
	MedicationName         string     `json:"medication_name" binding:"required"`
	NextRefillDate         time.Time  `json:"next_refill_date" binding:"required"`
	RefillIntervalDays     int        `json:"refill_interval_days" binding:"required,gt=0"`
	VialCount              int        `json:"vial_count" binding:"gte=0"`
	PrescribedDurationDays int        `json:"prescribed_duration_days" binding:"required,gt=0"`
	BUDDays                int        `json:"bud_days" binding:"gte=0"`
	OrderAmountCents       int64      `json:"order_amount_cents" binding:"gte=0"`
}

type VerifyPaymentRequest struct {
	AutoMatch        bool          `json:"auto_match"`
	Method           PaymentMethod `json:"method"`
	PaymentReference string        `json:"payment_reference"`
}

// VerifyPaymentResult distinguishes "no Stripe event matched" from a
// processing error; the caller falls back to manual verification.
type VerifyPaymentResult struct {
	AutoMatched bool    `json:"auto_matched"`
	Refill      *Refill `json:"refill,omitempty"`
	MatchedID   *string `json:"matched_event_id,omitempty"`
}

type RejectRefillRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type HoldRefillRequest struct {
	Reason string `json:"reason"`
}

type RefillFilters struct {
	ClinicID  uuid.UUID
	PatientID uuid.UUID
	Status    RefillStatus
	DueBefore time.Time
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type PlanType string

const (
	PlanTypeFlat    PlanType = "FLAT"
	PlanTypePercent PlanType = "PERCENT"
)

// CommissionPlan defines how a conversion pays out. Plans are shared by
// affiliates and sales reps; the owner kind tells them apart.
type CommissionPlan struct {
	Base
	ClinicID  *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	Name      string     `db:"name" json:"name"`
	OwnerKind string     `db:"owner_kind" json:"owner_kind"`

	PlanType        PlanType `db:"plan_type" json:"plan_type"`
	FlatAmountCents int64    `db:"flat_amount_cents" json:"flat_amount_cents"`
	PercentBps      int64    `db:"percent_bps" json:"percent_bps"`

	TierEnabled bool `db:"tier_enabled" json:"tier_enabled"`

	RecurringMonths   int `db:"recurring_months" json:"recurring_months"`
	RecurringDecayPct int `db:"recurring_decay_pct" json:"recurring_decay_pct"`
}

const (
	PlanOwnerAffiliate = "AFFILIATE"
	PlanOwnerSalesRep  = "SALES_REP"
)

// CommissionTier grants a bonus once an affiliate's lifetime conversions
// reach the threshold. The highest qualifying tier wins.
type CommissionTier struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PlanID         uuid.UUID `db:"plan_id" json:"plan_id"`
	MinConversions int       `db:"min_conversions" json:"min_conversions"`
	BonusCents     int64     `db:"bonus_cents" json:"bonus_cents"`
}

// ProductRate overrides the plan rate for a specific product.
type ProductRate struct {
	ID              uuid.UUID `db:"id" json:"id"`
	PlanID          uuid.UUID `db:"plan_id" json:"plan_id"`
	ProductID       string    `db:"product_id" json:"product_id"`
	PlanType        PlanType  `db:"plan_type" json:"plan_type"`
	FlatAmountCents int64     `db:"flat_amount_cents" json:"flat_amount_cents"`
	PercentBps      int64     `db:"percent_bps" json:"percent_bps"`
	AdjustmentCents int64     `db:"adjustment_cents" json:"adjustment_cents"`
}

// Promotion pays a bonus for conversions attributed to a ref code or
// affiliate inside its active window, capped by MaxUses.
type Promotion struct {
	Base
	ClinicID    *uuid.UUID `db:"clinic_id" json:"clinic_id,omitempty"`
	Name        string     `db:"name" json:"name"`
	RefCode     *string    `db:"ref_code" json:"ref_code,omitempty"`
	AffiliateID *uuid.UUID `db:"affiliate_id" json:"affiliate_id,omitempty"`
	BonusCents  int64      `db:"bonus_cents" json:"bonus_cents"`
	StartsAt    time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt      time.Time  `db:"ends_at" json:"ends_at"`
	MaxUses     int        `db:"max_uses" json:"max_uses"`
	UseCount    int        `db:"use_count" json:"use_count"`
}

// Active reports whether the promotion can still pay out at ts.
func (p *Promotion) Active(ts time.Time) bool {
	if ts.Before(p.StartsAt) || ts.After(p.EndsAt) {
		return false
	}
	if p.MaxUses > 0 && p.UseCount >= p.MaxUses {
		return false
	}
	return true
}

type AttributionModel string

const (
	AttributionFirstClick AttributionModel = "FIRST_CLICK"
	AttributionLastClick  AttributionModel = "LAST_CLICK"
	AttributionLinear     AttributionModel = "LINEAR"
)

// Affiliate earns commissions on attributed conversions.
type Affiliate struct {
	Base
	ClinicID             uuid.UUID        `db:"clinic_id" json:"clinic_id"`
	Name                 string           `db:"name" json:"name"`
	Email                string           `db:"email" json:"email"`
	RefCode              string           `db:"ref_code" json:"ref_code"`
	PlanID               uuid.UUID        `db:"plan_id" json:"plan_id"`
	Attribution          AttributionModel `db:"attribution" json:"attribution"`
	LifetimeConversions  int              `db:"lifetime_conversions" json:"lifetime_conversions"`
	LifetimeRevenueCents int64            `db:"lifetime_revenue_cents" json:"lifetime_revenue_cents"`
}

type CommissionEventStatus string

const (
	CommissionStatusPending  CommissionEventStatus = "PENDING"
	CommissionStatusHeld     CommissionEventStatus = "HELD"
	CommissionStatusEligible CommissionEventStatus = "ELIGIBLE"
	CommissionStatusInPayout CommissionEventStatus = "IN_PAYOUT"
	CommissionStatusPaid     CommissionEventStatus = "PAID"
	CommissionStatusVoided   CommissionEventStatus = "VOIDED"
)

// CommissionEvent records one earned commission with an immutable breakdown
// of every component. Recurring plans emit one event per month, each
// independently voidable, linked back to the month-1 event.
type CommissionEvent struct {
	Base
	ClinicID    uuid.UUID  `db:"clinic_id" json:"clinic_id"`
	AffiliateID uuid.UUID  `db:"affiliate_id" json:"affiliate_id"`
	PlanID      uuid.UUID  `db:"plan_id" json:"plan_id"`
	OrderID     string     `db:"order_id" json:"order_id"`
	InvoiceID   *string    `db:"invoice_id" json:"invoice_id,omitempty"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	TouchID     *uuid.UUID `db:"touch_id" json:"touch_id,omitempty"`
	ProductID   *string    `db:"product_id" json:"product_id,omitempty"`

	OrderAmountCents int64 `db:"order_amount_cents" json:"order_amount_cents"`

	// Immutable breakdown
	BaseCents       int64 `db:"base_cents" json:"base_cents"`
	TierBonusCents  int64 `db:"tier_bonus_cents" json:"tier_bonus_cents"`
	PromoBonusCents int64 `db:"promo_bonus_cents" json:"promo_bonus_cents"`
	AdjustmentCents int64 `db:"adjustment_cents" json:"adjustment_cents"`
	TotalCents      int64 `db:"total_cents" json:"total_cents"`

	Status     CommissionEventStatus `db:"status" json:"status"`
	HoldReason *string               `db:"hold_reason" json:"hold_reason,omitempty"`

	IsRecurring     bool       `db:"is_recurring" json:"is_recurring"`
	RecurringMonth  int        `db:"recurring_month" json:"recurring_month"`
	OriginalEventID *uuid.UUID `db:"original_event_id" json:"original_event_id,omitempty"`
	ScheduledFor    *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`

	PayoutID *uuid.UUID `db:"payout_id" json:"payout_id,omitempty"`
}

// AttributionTouch records the click/impression/postback that credited a
// conversion to an affiliate.
type AttributionTouch struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ClinicID    uuid.UUID `db:"clinic_id" json:"clinic_id"`
	AffiliateID uuid.UUID `db:"affiliate_id" json:"affiliate_id"`
	RefCode     string    `db:"ref_code" json:"ref_code"`
	Kind        string    `db:"kind" json:"kind"`
	OccurredAt  time.Time `db:"occurred_at" json:"occurred_at"`
}

type CreateAffiliateRequest struct {
	Name        string           `json:"name" binding:"required"`
	Email       string           `json:"email" binding:"required,email"`
	RefCode     string           `json:"ref_code" binding:"required,refcode"`
	PlanID      uuid.UUID        `json:"plan_id" binding:"required"`
	Attribution AttributionModel `json:"attribution" binding:"omitempty,oneof=FIRST_CLICK LAST_CLICK LINEAR"`
}

type RecordConversionRequest struct {
	AffiliateID      uuid.UUID  `json:"affiliate_id" binding:"required"`
	OrderID          string     `json:"order_id" binding:"required"`
	InvoiceID        *string    `json:"invoice_id"`
	PatientID        *uuid.UUID `json:"patient_id"`
	TouchID          *uuid.UUID `json:"touch_id"`
	ProductID        *string    `json:"product_id"`
	RefCode          string     `json:"ref_code"`
	OrderAmountCents int64      `json:"order_amount_cents" binding:"gte=0"`
	RiskScore        int        `json:"risk_score" binding:"gte=0,lte=100"`
}

type CommissionEventFilters struct {
	ClinicID    uuid.UUID
	AffiliateID uuid.UUID
	Status      CommissionEventStatus
	OrderID     string
}

package model

import (
	"github.com/google/uuid"
)

type ClinicStatus string

const (
	ClinicStatusActive    ClinicStatus = "active"
	ClinicStatusSuspended ClinicStatus = "suspended"
	ClinicStatusClosed    ClinicStatus = "closed"
)

// Clinic is the tenant boundary. Every domain row carries a clinic_id.
type Clinic struct {
	Base
	Name     string       `db:"name" json:"name"`
	Location string       `db:"location" json:"location"`
	Timezone string       `db:"timezone" json:"timezone"`
	Status   ClinicStatus `db:"status" json:"status"`
}

// ClinicConfig holds per-clinic operational settings.
type ClinicConfig struct {
	ClinicID            uuid.UUID `db:"clinic_id" json:"clinic_id"`
	AutoHoldOnHighRisk  bool      `db:"auto_hold_on_high_risk" json:"auto_hold_on_high_risk"`
	RiskScoreThreshold  int       `db:"risk_score_threshold" json:"risk_score_threshold"`
	ReminderLeadDays    int       `db:"reminder_lead_days" json:"reminder_lead_days"`
	DefaultBUDDays      int       `db:"default_bud_days" json:"default_bud_days"`
	StripeMatchWindowHr int       `db:"stripe_match_window_hr" json:"stripe_match_window_hr"`
}

type CreateClinicRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location" binding:"required"`
	Timezone string `json:"timezone"`
}

type UpdateClinicRequest struct {
	Name     *string       `json:"name"`
	Location *string       `json:"location"`
	Timezone *string       `json:"timezone"`
	Status   *ClinicStatus `json:"status"`
}

type UpdateClinicConfigRequest struct {
	AutoHoldOnHighRisk  *bool `json:"auto_hold_on_high_risk"`
	RiskScoreThreshold  *int  `json:"risk_score_threshold"`
	ReminderLeadDays    *int  `json:"reminder_lead_days"`
	DefaultBUDDays      *int  `json:"default_bud_days"`
	StripeMatchWindowHr *int  `json:"stripe_match_window_hr"`
}

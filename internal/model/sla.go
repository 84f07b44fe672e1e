package model

import (
	"time"

	"github.com/google/uuid"
)

// SLAPolicyConfig maps ticket priority/category to response and resolution
// budgets. Category may be empty to match any category; a priority+category
// match beats a priority-only match.
type SLAPolicyConfig struct {
	Base
	ClinicID             *uuid.UUID     `db:"clinic_id" json:"clinic_id,omitempty"`
	Priority             TicketPriority `db:"priority" json:"priority"`
	Category             string         `db:"category" json:"category"`
	FirstResponseMinutes int            `db:"first_response_minutes" json:"first_response_minutes"`
	ResolutionMinutes    int            `db:"resolution_minutes" json:"resolution_minutes"`
	RespectBusinessHours bool           `db:"respect_business_hours" json:"respect_business_hours"`
	WarningThresholdPct  int            `db:"warning_threshold_pct" json:"warning_threshold_pct"`
}

// TicketSLA is the live clock for one ticket. Due timestamps only move via
// pause/resume, and a breach never un-breaches.
type TicketSLA struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	TicketID         uuid.UUID  `db:"ticket_id" json:"ticket_id"`
	PolicyID         uuid.UUID  `db:"policy_id" json:"policy_id"`
	FirstResponseDue time.Time  `db:"first_response_due" json:"first_response_due"`
	ResolutionDue    time.Time  `db:"resolution_due" json:"resolution_due"`
	PausedAt         *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	TotalPausedSecs  int64      `db:"total_paused_secs" json:"total_paused_secs"`
	WarningFiredAt   *time.Time `db:"warning_fired_at" json:"warning_fired_at,omitempty"`
	BreachedAt       *time.Time `db:"breached_at" json:"breached_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Paused reports whether the clock is currently frozen.
func (s *TicketSLA) Paused() bool {
	return s.PausedAt != nil
}

// BusinessHours defines one weekday's open interval for a clinic.
// Minutes are measured from midnight clinic-local time.
type BusinessHours struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	ClinicID  uuid.UUID    `db:"clinic_id" json:"clinic_id"`
	Weekday   time.Weekday `db:"weekday" json:"weekday"`
	OpenMins  int          `db:"open_mins" json:"open_mins"`
	CloseMins int          `db:"close_mins" json:"close_mins"`
}

// Holiday removes an entire calendar day from the business schedule.
type Holiday struct {
	ID       uuid.UUID `db:"id" json:"id"`
	ClinicID uuid.UUID `db:"clinic_id" json:"clinic_id"`
	Date     time.Time `db:"date" json:"date"`
	Name     string    `db:"name" json:"name"`
}

type UpsertSLAPolicyRequest struct {
	Priority             TicketPriority `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Category             string         `json:"category"`
	FirstResponseMinutes int            `json:"first_response_minutes" binding:"required,gt=0"`
	ResolutionMinutes    int            `json:"resolution_minutes" binding:"required,gt=0"`
	RespectBusinessHours bool           `json:"respect_business_hours"`
	WarningThresholdPct  int            `json:"warning_threshold_pct" binding:"gte=0,lte=100"`
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type FraudAlertStatus string

const (
	FraudAlertStatusOpen           FraudAlertStatus = "OPEN"
	FraudAlertStatusConfirmedFraud FraudAlertStatus = "CONFIRMED_FRAUD"
	FraudAlertStatusDismissed      FraudAlertStatus = "DISMISSED"
)

// Holding reports whether the alert blocks payout of the linked event.
func (s FraudAlertStatus) Holding() bool {
	return s == FraudAlertStatusOpen || s == FraudAlertStatusConfirmedFraud
}

// FraudAlert flags a commission event for review. An OPEN or
// CONFIRMED_FRAUD alert holds the event out of payout batches.
type FraudAlert struct {
	Base
	ClinicID          uuid.UUID        `db:"clinic_id" json:"clinic_id"`
	CommissionEventID uuid.UUID        `db:"commission_event_id" json:"commission_event_id"`
	RiskScore         int              `db:"risk_score" json:"risk_score"`
	Reason            string           `db:"reason" json:"reason"`
	Status            FraudAlertStatus `db:"status" json:"status"`
	ResolvedAt        *time.Time       `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy        *uuid.UUID       `db:"resolved_by" json:"resolved_by,omitempty"`
}

type CreateFraudAlertRequest struct {
	CommissionEventID uuid.UUID `json:"commission_event_id" binding:"required"`
	RiskScore         int       `json:"risk_score" binding:"gte=0,lte=100"`
	Reason            string    `json:"reason" binding:"required"`
}

type ResolveFraudAlertRequest struct {
	Status FraudAlertStatus `json:"status" binding:"required,oneof=CONFIRMED_FRAUD DISMISSED"`
}

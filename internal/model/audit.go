package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     uuid.UUID       `json:"user_id" db:"user_id"`
	ClinicID   uuid.UUID       `json:"clinic_id" db:"clinic_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionDelete     = "delete"
	AuditActionTransition = "transition"
	AuditActionLogin      = "login"

	// Entity types
	AuditEntityRefill          = "refill"
	AuditEntityCommissionEvent = "commission_event"
	AuditEntityPayout          = "payout"
	AuditEntityFraudAlert      = "fraud_alert"
	AuditEntityTicket          = "ticket"
	AuditEntityPatient         = "patient"
	AuditEntityClinic          = "clinic"
	AuditEntityUser            = "user"
)

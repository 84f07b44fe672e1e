package model

import (
	"time"

	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketStatusOpen            TicketStatus = "OPEN"
	TicketStatusInProgress      TicketStatus = "IN_PROGRESS"
	TicketStatusPendingCustomer TicketStatus = "PENDING_CUSTOMER"
	TicketStatusResolved        TicketStatus = "RESOLVED"
	TicketStatusClosed          TicketStatus = "CLOSED"
)

// Paused reports whether the status freezes the SLA clock.
func (s TicketStatus) Paused() bool {
	return s == TicketStatusPendingCustomer
}

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

type Ticket struct {
	Base
	ClinicID        uuid.UUID      `db:"clinic_id" json:"clinic_id"`
	Subject         string         `db:"subject" json:"subject"`
	Description     string         `db:"description" json:"description"`
	Status          TicketStatus   `db:"status" json:"status"`
	Priority        TicketPriority `db:"priority" json:"priority"`
	Category        string         `db:"category" json:"category"`
	TeamID          *uuid.UUID     `db:"team_id" json:"team_id,omitempty"`
	AssigneeID      *uuid.UUID     `db:"assignee_id" json:"assignee_id,omitempty"`
	RequesterID     uuid.UUID      `db:"requester_id" json:"requester_id"`
	ParentTicketID  *uuid.UUID     `db:"parent_ticket_id" json:"parent_ticket_id,omitempty"`
	ReopenCount     int            `db:"reopen_count" json:"reopen_count"`
	FirstResponseAt *time.Time     `db:"first_response_at" json:"first_response_at,omitempty"`
	ResolvedAt      *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ClosedAt        *time.Time     `db:"closed_at" json:"closed_at,omitempty"`
}

type TicketActivityKind string

const (
	TicketActivityCreated    TicketActivityKind = "CREATED"
	TicketActivityAssigned   TicketActivityKind = "ASSIGNED"
	TicketActivityEscalated  TicketActivityKind = "ESCALATED"
	TicketActivityCommented  TicketActivityKind = "COMMENTED"
	TicketActivityStatus     TicketActivityKind = "STATUS_CHANGED"
	TicketActivityResolved   TicketActivityKind = "RESOLVED"
	TicketActivityReopened   TicketActivityKind = "REOPENED"
	TicketActivityClosed     TicketActivityKind = "CLOSED"
	TicketActivitySLAWarning TicketActivityKind = "SLA_WARNING"
	TicketActivitySLABreach  TicketActivityKind = "SLA_BREACH"
)

type TicketActivity struct {
	ID        uuid.UUID          `db:"id" json:"id"`
	TicketID  uuid.UUID          `db:"ticket_id" json:"ticket_id"`
	ActorID   *uuid.UUID         `db:"actor_id" json:"actor_id,omitempty"`
	Kind      TicketActivityKind `db:"kind" json:"kind"`
	Note      string             `db:"note" json:"note"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}

type CreateTicketRequest struct {
	Subject        string         `json:"subject" binding:"required"`
	Description    string         `json:"description"`
	Priority       TicketPriority `json:"priority" binding:"required,oneof=LOW MEDIUM HIGH URGENT"`
	Category       string         `json:"category" binding:"required"`
	RequesterID    uuid.UUID      `json:"requester_id" binding:"required"`
	TeamID         *uuid.UUID     `json:"team_id"`
	ParentTicketID *uuid.UUID     `json:"parent_ticket_id"`
}

type AssignTicketRequest struct {
	AssigneeID uuid.UUID  `json:"assignee_id" binding:"required"`
	TeamID     *uuid.UUID `json:"team_id"`
}

type EscalateTicketRequest struct {
	Priority TicketPriority `json:"priority" binding:"required,oneof=MEDIUM HIGH URGENT"`
	Note     string         `json:"note"`
}

type CommentTicketRequest struct {
	Note string `json:"note" binding:"required"`
}

type UpdateTicketStatusRequest struct {
	Status TicketStatus `json:"status" binding:"required,oneof=OPEN IN_PROGRESS PENDING_CUSTOMER RESOLVED CLOSED"`
	Note   string       `json:"note"`
}

type TicketFilters struct {
	ClinicID   uuid.UUID
	Status     TicketStatus
	Priority   TicketPriority
	Category   string
	AssigneeID uuid.UUID
}

package model

import (
	"time"

	"github.com/google/uuid"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	ClinicID         uuid.UUID     `db:"clinic_id" json:"clinic_id"`
	Name             string        `db:"name" json:"name"`
	Email            string        `db:"email" json:"email"`
	Phone            *string       `db:"phone" json:"phone,omitempty"`
	DateOfBirth      *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	StripeCustomerID *string       `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	Status           PatientStatus `db:"status" json:"status"`
}

type CreatePatientRequest struct {
	Name             string     `json:"name" binding:"required"`
	Email            string     `json:"email" binding:"required,email"`
	Phone            *string    `json:"phone"`
	DateOfBirth      *time.Time `json:"date_of_birth"`
	StripeCustomerID *string    `json:"stripe_customer_id"`
}

type UpdatePatientRequest struct {
	Name             *string        `json:"name"`
	Email            *string        `json:"email" binding:"omitempty,email"`
	Phone            *string        `json:"phone"`
	DateOfBirth      *time.Time     `json:"date_of_birth"`
	StripeCustomerID *string        `json:"stripe_customer_id"`
	Status           *PatientStatus `json:"status"`
}

type PatientFilters struct {
	ClinicID   uuid.UUID
	Status     PatientStatus
	SearchTerm string
}

package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/eonpro/ops-api/internal/repository"
)

type refillRepository struct {
	db *sqlx.DB
}

type commissionRepository struct {
	db *sqlx.DB
}

type payoutRepository struct {
	db *sqlx.DB
}

type fraudAlertRepository struct {
	db *sqlx.DB
}

type ticketRepository struct {
	db *sqlx.DB
}

type slaRepository struct {
	db *sqlx.DB
}

type clinicRepository struct {
	db *sqlx.DB
}

type patientRepository struct {
	db *sqlx.DB
}

type userRepository struct {
	db *sqlx.DB
}

type outboxRepository struct {
	db *sqlx.DB
}

type scheduledEmailRepository struct {
	db *sqlx.DB
}

type stripeEventRepository struct {
	db *sqlx.DB
}

type auditRepository struct {
	db *sqlx.DB
}

func NewRefillRepository(db *sqlx.DB) repository.RefillRepository {
	return &refillRepository{db: db}
}

func NewCommissionRepository(db *sqlx.DB) repository.CommissionRepository {
	return &commissionRepository{db: db}
}

func NewPayoutRepository(db *sqlx.DB) repository.PayoutRepository {
	return &payoutRepository{db: db}
}

func NewFraudAlertRepository(db *sqlx.DB) repository.FraudAlertRepository {
	return &fraudAlertRepository{db: db}
}

func NewTicketRepository(db *sqlx.DB) repository.TicketRepository {
	return &ticketRepository{db: db}
}

func NewSLARepository(db *sqlx.DB) repository.SLARepository {
	return &slaRepository{db: db}
}

func NewClinicRepository(db *sqlx.DB) repository.ClinicRepository {
	return &clinicRepository{db: db}
}

func NewPatientRepository(db *sqlx.DB) repository.PatientRepository {
	return &patientRepository{db: db}
}

func NewUserRepository(db *sqlx.DB) repository.UserRepository {
	return &userRepository{db: db}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func NewScheduledEmailRepository(db *sqlx.DB) repository.ScheduledEmailRepository {
	return &scheduledEmailRepository{db: db}
}

func NewStripeEventRepository(db *sqlx.DB) repository.StripeEventRepository {
	return &stripeEventRepository{db: db}
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

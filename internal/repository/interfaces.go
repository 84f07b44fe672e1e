package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eonpro/ops-api/internal/model"
)

// All repository interfaces in one file
type (
	RefillRepository interface {
		Create(ctx context.Context, refill *model.Refill) error
		CreateSeries(ctx context.Context, refills []*model.Refill) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Refill, error)
		GetSeries(ctx context.Context, clinicID, parentID uuid.UUID) ([]*model.Refill, error)
		// Update applies the row only when updated_at still equals
		// expectedUpdatedAt; returns ErrStaleRow otherwise.
		Update(ctx context.Context, refill *model.Refill, expectedUpdatedAt time.Time) error
		List(ctx context.Context, filters *model.RefillFilters) ([]*model.Refill, error)
		// ListDueForReminder returns unreminded refills inside their
		// clinic's reminder lead window, using fallbackLeadDays for
		// clinics without a configured lead.
		ListDueForReminder(ctx context.Context, now time.Time, fallbackLeadDays int) ([]*model.Refill, error)
	}

	CommissionRepository interface {
		CreatePlan(ctx context.Context, plan *model.CommissionPlan) error
		GetPlan(ctx context.Context, id uuid.UUID) (*model.CommissionPlan, error)
		ListTiers(ctx context.Context, planID uuid.UUID) ([]*model.CommissionTier, error)
		CreateTier(ctx context.Context, tier *model.CommissionTier) error
		GetProductRate(ctx context.Context, planID uuid.UUID, productID string) (*model.ProductRate, error)
		ListActivePromotions(ctx context.Context, clinicID uuid.UUID, refCode string, affiliateID uuid.UUID, at time.Time) ([]*model.Promotion, error)
		IncrementPromotionUse(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error
		CreatePromotion(ctx context.Context, promo *model.Promotion) error

		GetAffiliate(ctx context.Context, clinicID, id uuid.UUID) (*model.Affiliate, error)
		CreateAffiliate(ctx context.Context, affiliate *model.Affiliate) error
		IncrementAffiliateStats(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, revenueCents int64) error

		CreateEvent(ctx context.Context, tx *sqlx.Tx, event *model.CommissionEvent) error
		GetEvent(ctx context.Context, clinicID, id uuid.UUID) (*model.CommissionEvent, error)
		GetEventByOrder(ctx context.Context, clinicID uuid.UUID, orderID string) (*model.CommissionEvent, error)
		ListEvents(ctx context.Context, filters *model.CommissionEventFilters) ([]*model.CommissionEvent, error)
		UpdateEventStatus(ctx context.Context, id uuid.UUID, status model.CommissionEventStatus, holdReason *string) error
		ListEligibleForPayout(ctx context.Context, clinicID, affiliateID uuid.UUID) ([]*model.CommissionEvent, error)
		AttachEventsToPayout(ctx context.Context, tx *sqlx.Tx, payoutID uuid.UUID, eventIDs []uuid.UUID) error
		UpdateEventStatusByPayout(ctx context.Context, tx *sqlx.Tx, payoutID uuid.UUID, from, to model.CommissionEventStatus) error
		ListRecurringDue(ctx context.Context, before time.Time) ([]*model.CommissionEvent, error)
		MarkRecurringReleased(ctx context.Context, id uuid.UUID) error

		WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
	}

	PayoutRepository interface {
		Create(ctx context.Context, tx *sqlx.Tx, payout *model.Payout) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Payout, error)
		Settle(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.PayoutStatus, failureNote *string) error
		List(ctx context.Context, clinicID uuid.UUID) ([]*model.Payout, error)
	}

	FraudAlertRepository interface {
		Create(ctx context.Context, alert *model.FraudAlert) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.FraudAlert, error)
		Resolve(ctx context.Context, id uuid.UUID, status model.FraudAlertStatus, resolvedBy uuid.UUID) error
		ListHoldingForEvent(ctx context.Context, eventID uuid.UUID) ([]*model.FraudAlert, error)
		List(ctx context.Context, clinicID uuid.UUID, status model.FraudAlertStatus) ([]*model.FraudAlert, error)
	}

	TicketRepository interface {
		Create(ctx context.Context, ticket *model.Ticket, sla *model.TicketSLA) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Ticket, error)
		// UpdateWithSLA persists ticket and SLA changes in one transaction so
		// the clock is never half-paused.
		UpdateWithSLA(ctx context.Context, ticket *model.Ticket, sla *model.TicketSLA) error
		List(ctx context.Context, filters *model.TicketFilters) ([]*model.Ticket, error)
		AddActivity(ctx context.Context, activity *model.TicketActivity) error
		ListActivities(ctx context.Context, ticketID uuid.UUID) ([]*model.TicketActivity, error)
	}

	SLARepository interface {
		MatchPolicy(ctx context.Context, clinicID uuid.UUID, priority model.TicketPriority, category string) (*model.SLAPolicyConfig, error)
		UpsertPolicy(ctx context.Context, policy *model.SLAPolicyConfig) error
		GetPolicy(ctx context.Context, id uuid.UUID) (*model.SLAPolicyConfig, error)
		ListPolicies(ctx context.Context, clinicID uuid.UUID) ([]*model.SLAPolicyConfig, error)
		GetByTicket(ctx context.Context, ticketID uuid.UUID) (*model.TicketSLA, error)
		UpdateSLA(ctx context.Context, sla *model.TicketSLA) error
		// ListOpenPastDue returns SLAs whose resolution due has passed while
		// the ticket is still open and unbreached.
		ListOpenPastDue(ctx context.Context, now time.Time) ([]*model.TicketSLA, error)
		ListOpenUnwarned(ctx context.Context) ([]*model.TicketSLA, error)
		GetBusinessHours(ctx context.Context, clinicID uuid.UUID) ([]*model.BusinessHours, error)
		ListHolidays(ctx context.Context, clinicID uuid.UUID) ([]*model.Holiday, error)
	}

	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		Update(ctx context.Context, clinic *model.Clinic) error
		List(ctx context.Context) ([]*model.Clinic, error)
		GetConfig(ctx context.Context, clinicID uuid.UUID) (*model.ClinicConfig, error)
		UpdateConfig(ctx context.Context, config *model.ClinicConfig) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, clinicID, id uuid.UUID) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
	}

	ScheduledEmailRepository interface {
		Create(ctx context.Context, email *model.ScheduledEmail) error
		ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledEmail, error)
		MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	}

	StripeEventRepository interface {
		// Create is idempotent on stripe_event_id; replayed webhooks no-op.
		Create(ctx context.Context, event *model.StripePaymentEvent) error
		FindMatch(ctx context.Context, customerID string, amountCents int64, since time.Time) (*model.StripePaymentEvent, error)
		MarkMatched(ctx context.Context, id, refillID uuid.UUID) error
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, clinicID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	}
)

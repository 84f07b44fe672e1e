package commission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/internal/service/audit"
	"github.com/eonpro/ops-api/internal/service/event"
	apperrors "github.com/eonpro/ops-api/pkg/errors"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
)

type Service struct {
	repo       repository.CommissionRepository
	payoutRepo repository.PayoutRepository
	fraudRepo  repository.FraudAlertRepository
	clinicRepo repository.ClinicRepository
	emitter    event.Emitter
	auditor    *audit.Service
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

func NewService(
	repo repository.CommissionRepository,
	payoutRepo repository.PayoutRepository,
	fraudRepo repository.FraudAlertRepository,
	clinicRepo repository.ClinicRepository,
	emitter event.Emitter,
	auditor *audit.Service,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:       repo,
		payoutRepo: payoutRepo,
		fraudRepo:  fraudRepo,
		clinicRepo: clinicRepo,
		emitter:    emitter,
		auditor:    auditor,
		metrics:    m,
		logger:     logger,
	}
}

func (s *Service) CreatePlan(ctx context.Context, plan *model.CommissionPlan) error {
	if plan.PlanType != model.PlanTypeFlat && plan.PlanType != model.PlanTypePercent {
		return apperrors.BadRequest("plan_type must be FLAT or PERCENT", nil)
	}
	return s.repo.CreatePlan(ctx, plan)
}

func (s *Service) CreateTier(ctx context.Context, tier *model.CommissionTier) error {
	return s.repo.CreateTier(ctx, tier)
}

func (s *Service) CreatePromotion(ctx context.Context, promo *model.Promotion) error {
	if !promo.EndsAt.After(promo.StartsAt) {
		return apperrors.BadRequest("promotion window is empty", nil)
	}
	return s.repo.CreatePromotion(ctx, promo)
}

func (s *Service) CreateAffiliate(ctx context.Context, affiliate *model.Affiliate) error {
	if _, err := s.repo.GetPlan(ctx, affiliate.PlanID); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return apperrors.NotFound("commission plan", err)
		}
		return fmt.Errorf("failed to load plan: %w", err)
	}
	if affiliate.Attribution == "" {
		affiliate.Attribution = model.AttributionLastClick
	}
	return s.repo.CreateAffiliate(ctx, affiliate)
}

func (s *Service) GetAffiliate(ctx context.Context, clinicID, id uuid.UUID) (*model.Affiliate, error) {
	affiliate, err := s.repo.GetAffiliate(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("affiliate", err)
		}
		return nil, fmt.Errorf("failed to get affiliate: %w", err)
	}
	return affiliate, nil
}

// RecordConversion credits an affiliate for an order. The event, affiliate
// stats, promotion use counts and the recurring schedule commit in one
// transaction; a replayed order id returns the original event untouched.
func (s *Service) RecordConversion(ctx context.Context, clinicID uuid.UUID, req *model.RecordConversionRequest) (*model.CommissionEvent, error) {
	affiliate, err := s.GetAffiliate(ctx, clinicID, req.AffiliateID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.GetPlan(ctx, affiliate.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	var productRate *model.ProductRate
	if req.ProductID != nil && *req.ProductID != "" {
		rate, rateErr := s.repo.GetProductRate(ctx, plan.ID, *req.ProductID)
		if rateErr != nil && !errors.Is(rateErr, postgres.ErrNoRows) {
			return nil, fmt.Errorf("failed to load product rate: %w", rateErr)
		}
		productRate = rate
	}

	var tiers []*model.CommissionTier
	if plan.TierEnabled {
		tiers, err = s.repo.ListTiers(ctx, plan.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tiers: %w", err)
		}
	}

	now := time.Now()
	promos, err := s.repo.ListActivePromotions(ctx, clinicID, req.RefCode, affiliate.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load promotions: %w", err)
	}

	breakdown := Calculate(CalcInput{
		Plan:        plan,
		ProductRate: productRate,
		Tiers:       tiers,
		Promotions:  promos,
		// The conversion being recorded counts toward its own tier.
		LifetimeConversions: affiliate.LifetimeConversions + 1,
		OrderAmountCents:    req.OrderAmountCents,
		At:                  now,
	})

	status, holdReason := s.initialStatus(ctx, clinicID, req.RiskScore)

	evt := &model.CommissionEvent{
		ClinicID:         clinicID,
		AffiliateID:      affiliate.ID,
		PlanID:           plan.ID,
		OrderID:          req.OrderID,
		InvoiceID:        req.InvoiceID,
		PatientID:        req.PatientID,
		TouchID:          req.TouchID,
		ProductID:        req.ProductID,
		OrderAmountCents: req.OrderAmountCents,
		BaseCents:        breakdown.BaseCents,
		TierBonusCents:   breakdown.TierBonusCents,
		PromoBonusCents:  breakdown.PromoBonusCents,
		AdjustmentCents:  breakdown.AdjustmentCents,
		TotalCents:       breakdown.TotalCents,
		Status:           status,
		HoldReason:       holdReason,
	}

	err = s.repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.repo.CreateEvent(ctx, tx, evt); err != nil {
			return err
		}
		if err := s.repo.IncrementAffiliateStats(ctx, tx, affiliate.ID, req.OrderAmountCents); err != nil {
			return err
		}
		for _, promoID := range breakdown.AppliedPromoIDs {
			if err := s.repo.IncrementPromotionUse(ctx, tx, promoID); err != nil {
				return err
			}
		}
		if err := s.scheduleRecurring(ctx, tx, plan, evt, now); err != nil {
			return err
		}
		return s.emitter.EmitTx(ctx, tx, model.EventCommissionRecorded, evt)
	})
	if err != nil {
		if errors.Is(err, postgres.ErrDuplicateOrder) {
			existing, getErr := s.repo.GetEventByOrder(ctx, clinicID, req.OrderID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load existing event: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	s.metrics.CommissionEvents.WithLabelValues(string(status)).Inc()
	if status == model.CommissionStatusHeld {
		if emitErr := s.emitter.Emit(ctx, model.EventCommissionHeld, evt); emitErr != nil {
			s.logger.Error(emitErr, "failed to emit commission held event", "event_id", evt.ID)
		}
	}
	s.auditor.Log(ctx, uuid.Nil, clinicID, model.AuditActionCreate, model.AuditEntityCommissionEvent, evt.ID, &audit.LogOptions{Changes: evt})
	return evt, nil
}

func (s *Service) initialStatus(ctx context.Context, clinicID uuid.UUID, riskScore int) (model.CommissionEventStatus, *string) {
	cfg, err := s.clinicRepo.GetConfig(ctx, clinicID)
	if err != nil {
		return model.CommissionStatusEligible, nil
	}
	if cfg.AutoHoldOnHighRisk && riskScore >= cfg.RiskScoreThreshold {
		reason := fmt.Sprintf("risk score %d at or above threshold %d", riskScore, cfg.RiskScoreThreshold)
		return model.CommissionStatusHeld, &reason
	}
	return model.CommissionStatusEligible, nil
}

// scheduleRecurring inserts PENDING events for months 2..N with the
// compounding decay applied to the base only; tier and promo bonuses pay
// once, on month 1.
func (s *Service) scheduleRecurring(ctx context.Context, tx *sqlx.Tx, plan *model.CommissionPlan, original *model.CommissionEvent, now time.Time) error {
	if plan.RecurringMonths <= 1 {
		return nil
	}
	for month := 2; month <= plan.RecurringMonths; month++ {
		amount := RecurringAmount(original.BaseCents, plan.RecurringDecayPct, month)
		if amount <= 0 {
			break
		}
		scheduled := now.AddDate(0, month-1, 0)
		recurring := &model.CommissionEvent{
			ClinicID:         original.ClinicID,
			AffiliateID:      original.AffiliateID,
			PlanID:           plan.ID,
			OrderID:          fmt.Sprintf("%s#m%d", original.OrderID, month),
			InvoiceID:        original.InvoiceID,
			PatientID:        original.PatientID,
			ProductID:        original.ProductID,
			OrderAmountCents: original.OrderAmountCents,
			BaseCents:        amount,
			TotalCents:       amount,
			Status:           model.CommissionStatusPending,
			IsRecurring:      true,
			RecurringMonth:   month,
			OriginalEventID:  &original.ID,
			ScheduledFor:     &scheduled,
		}
		if err := s.repo.CreateEvent(ctx, tx, recurring); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) GetEvent(ctx context.Context, clinicID, id uuid.UUID) (*model.CommissionEvent, error) {
	evt, err := s.repo.GetEvent(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("commission event", err)
		}
		return nil, fmt.Errorf("failed to get commission event: %w", err)
	}
	return evt, nil
}

func (s *Service) ListEvents(ctx context.Context, filters *model.CommissionEventFilters) ([]*model.CommissionEvent, error) {
	return s.repo.ListEvents(ctx, filters)
}

// HoldEvent freezes an event out of payout consideration.
func (s *Service) HoldEvent(ctx context.Context, clinicID, id, actorID uuid.UUID, reason string) (*model.CommissionEvent, error) {
	evt, err := s.GetEvent(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	switch evt.Status {
	case model.CommissionStatusPending, model.CommissionStatusEligible:
	default:
		return nil, apperrors.Precondition(fmt.Sprintf("cannot hold event in %s", evt.Status))
	}

	if err := s.repo.UpdateEventStatus(ctx, id, model.CommissionStatusHeld, &reason); err != nil {
		return nil, fmt.Errorf("failed to hold event: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityCommissionEvent, id, nil)
	return s.GetEvent(ctx, clinicID, id)
}

// ReleaseEvent lifts a hold. Blocked while any fraud alert on the event is
// still OPEN or CONFIRMED_FRAUD.
func (s *Service) ReleaseEvent(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.CommissionEvent, error) {
	evt, err := s.GetEvent(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if evt.Status != model.CommissionStatusHeld {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot release event in %s", evt.Status))
	}

	holding, err := s.fraudRepo.ListHoldingForEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check fraud alerts: %w", err)
	}
	if len(holding) > 0 {
		return nil, apperrors.Precondition("event has unresolved fraud alerts")
	}

	if err := s.repo.UpdateEventStatus(ctx, id, model.CommissionStatusEligible, nil); err != nil {
		return nil, fmt.Errorf("failed to release event: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityCommissionEvent, id, nil)
	return s.GetEvent(ctx, clinicID, id)
}

func (s *Service) VoidEvent(ctx context.Context, clinicID, id, actorID uuid.UUID, reason string) (*model.CommissionEvent, error) {
	evt, err := s.GetEvent(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	switch evt.Status {
	case model.CommissionStatusPaid, model.CommissionStatusVoided, model.CommissionStatusInPayout:
		return nil, apperrors.Precondition(fmt.Sprintf("cannot void event in %s", evt.Status))
	}

	var holdReason *string
	if reason != "" {
		holdReason = &reason
	}
	if err := s.repo.UpdateEventStatus(ctx, id, model.CommissionStatusVoided, holdReason); err != nil {
		return nil, fmt.Errorf("failed to void event: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityCommissionEvent, id, nil)
	return s.GetEvent(ctx, clinicID, id)
}

// CreatePayout batches every currently eligible event for the affiliate.
func (s *Service) CreatePayout(ctx context.Context, clinicID, affiliateID, actorID uuid.UUID) (*model.Payout, error) {
	if _, err := s.GetAffiliate(ctx, clinicID, affiliateID); err != nil {
		return nil, err
	}

	events, err := s.repo.ListEligibleForPayout(ctx, clinicID, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible events: %w", err)
	}
	if len(events) == 0 {
		return nil, apperrors.Precondition("no eligible commission events to pay out")
	}

	var total int64
	eventIDs := make([]uuid.UUID, 0, len(events))
	for _, evt := range events {
		total += evt.TotalCents
		eventIDs = append(eventIDs, evt.ID)
	}

	payout := &model.Payout{
		ClinicID:    clinicID,
		AffiliateID: affiliateID,
		TotalCents:  total,
		EventCount:  len(events),
		Status:      model.PayoutStatusPending,
	}

	err = s.repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
			return err
		}
		return s.repo.AttachEventsToPayout(ctx, tx, payout.ID, eventIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionCreate, model.AuditEntityPayout, payout.ID, &audit.LogOptions{Changes: payout})
	return payout, nil
}

// SettlePayout closes a pending batch. COMPLETED pays its events; FAILED
// and VOIDED return them to the eligible pool.
func (s *Service) SettlePayout(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.SettlePayoutRequest) (*model.Payout, error) {
	payout, err := s.payoutRepo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("payout", err)
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	if payout.Status != model.PayoutStatusPending {
		return nil, apperrors.Precondition(fmt.Sprintf("payout is already %s", payout.Status))
	}

	eventStatus := model.CommissionStatusPaid
	if req.Status != model.PayoutStatusCompleted {
		eventStatus = model.CommissionStatusEligible
	}

	// Batch close and event release commit or roll back together.
	err = s.repo.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.payoutRepo.Settle(ctx, tx, id, req.Status, req.FailureNote); err != nil {
			return err
		}
		return s.repo.UpdateEventStatusByPayout(ctx, tx, id, model.CommissionStatusInPayout, eventStatus)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle payout: %w", err)
	}

	if req.Status == model.PayoutStatusCompleted {
		if emitErr := s.emitter.Emit(ctx, model.EventPayoutSettled, payout); emitErr != nil {
			s.logger.Error(emitErr, "failed to emit payout settled event", "payout_id", id)
		}
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityPayout, id, nil)
	return s.payoutRepo.Get(ctx, clinicID, id)
}

func (s *Service) GetPayout(ctx context.Context, clinicID, id uuid.UUID) (*model.Payout, error) {
	payout, err := s.payoutRepo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("payout", err)
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return payout, nil
}

func (s *Service) ListPayouts(ctx context.Context, clinicID uuid.UUID) ([]*model.Payout, error) {
	return s.payoutRepo.List(ctx, clinicID)
}

// CreateFraudAlert opens an alert and holds the linked event.
func (s *Service) CreateFraudAlert(ctx context.Context, clinicID, actorID uuid.UUID, req *model.CreateFraudAlertRequest) (*model.FraudAlert, error) {
	evt, err := s.GetEvent(ctx, clinicID, req.CommissionEventID)
	if err != nil {
		return nil, err
	}

	alert := &model.FraudAlert{
		ClinicID:          clinicID,
		CommissionEventID: evt.ID,
		RiskScore:         req.RiskScore,
		Reason:            req.Reason,
		Status:            model.FraudAlertStatusOpen,
	}
	if err := s.fraudRepo.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to create fraud alert: %w", err)
	}

	switch evt.Status {
	case model.CommissionStatusPending, model.CommissionStatusEligible:
		if err := s.repo.UpdateEventStatus(ctx, evt.ID, model.CommissionStatusHeld, &req.Reason); err != nil {
			s.logger.Error(err, "failed to hold event for fraud alert", "event_id", evt.ID)
		}
	}

	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionCreate, model.AuditEntityFraudAlert, alert.ID, &audit.LogOptions{Changes: alert})
	return alert, nil
}

// ResolveFraudAlert closes an alert. Dismissal releases the event when no
// other alert still holds it; confirmation voids the event.
func (s *Service) ResolveFraudAlert(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.ResolveFraudAlertRequest) (*model.FraudAlert, error) {
	alert, err := s.fraudRepo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("fraud alert", err)
		}
		return nil, fmt.Errorf("failed to get fraud alert: %w", err)
	}
	if alert.Status != model.FraudAlertStatusOpen {
		return nil, apperrors.Precondition(fmt.Sprintf("fraud alert is already %s", alert.Status))
	}

	if err := s.fraudRepo.Resolve(ctx, id, req.Status, actorID); err != nil {
		return nil, fmt.Errorf("failed to resolve fraud alert: %w", err)
	}

	evt, err := s.GetEvent(ctx, clinicID, alert.CommissionEventID)
	if err == nil && evt.Status == model.CommissionStatusHeld {
		switch req.Status {
		case model.FraudAlertStatusConfirmedFraud:
			reason := "confirmed fraud"
			if updErr := s.repo.UpdateEventStatus(ctx, evt.ID, model.CommissionStatusVoided, &reason); updErr != nil {
				s.logger.Error(updErr, "failed to void event for confirmed fraud", "event_id", evt.ID)
			}
		case model.FraudAlertStatusDismissed:
			holding, listErr := s.fraudRepo.ListHoldingForEvent(ctx, evt.ID)
			if listErr == nil && len(holding) == 0 {
				if updErr := s.repo.UpdateEventStatus(ctx, evt.ID, model.CommissionStatusEligible, nil); updErr != nil {
					s.logger.Error(updErr, "failed to release event after dismissal", "event_id", evt.ID)
				}
			}
		}
	}

	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityFraudAlert, id, nil)
	return s.fraudRepo.Get(ctx, clinicID, id)
}

func (s *Service) ListFraudAlerts(ctx context.Context, clinicID uuid.UUID, status model.FraudAlertStatus) ([]*model.FraudAlert, error) {
	return s.fraudRepo.List(ctx, clinicID, status)
}

// ReleaseDueRecurring moves scheduled recurring events whose month has
// arrived into the eligible pool. Called by the worker.
func (s *Service) ReleaseDueRecurring(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListRecurringDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list due recurring events: %w", err)
	}

	released := 0
	for _, evt := range due {
		if err := s.repo.MarkRecurringReleased(ctx, evt.ID); err != nil {
			s.logger.Error(err, "failed to release recurring event", "event_id", evt.ID)
			continue
		}
		released++
	}
	return released, nil
}

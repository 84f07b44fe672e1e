package refill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/internal/service/audit"
	"github.com/eonpro/ops-api/internal/service/event"
	apperrors "github.com/eonpro/ops-api/pkg/errors"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
)

const (
	defaultBUDDays = model.DefaultBUDDays

	// Lead for clinics that have not configured reminder_lead_days.
	defaultReminderLeadDays = 7
)

// allowedTransitions is the refill gate. ON_HOLD can re-enter the pipeline
// at whichever stage its flags already cover.
var allowedTransitions = map[model.RefillStatus][]model.RefillStatus{
	model.RefillStatusScheduled: {
		model.RefillStatusPendingPayment, model.RefillStatusPendingAdmin,
		model.RefillStatusRejected, model.RefillStatusCancelled, model.RefillStatusOnHold,
	},
	model.RefillStatusPendingPayment: {
		model.RefillStatusPendingAdmin,
		model.RefillStatusRejected, model.RefillStatusCancelled, model.RefillStatusOnHold,
	},
	model.RefillStatusPendingAdmin: {
		model.RefillStatusApproved,
		model.RefillStatusRejected, model.RefillStatusCancelled, model.RefillStatusOnHold,
	},
	model.RefillStatusApproved: {
		model.RefillStatusPendingProvider,
		model.RefillStatusRejected, model.RefillStatusCancelled, model.RefillStatusOnHold,
	},
	model.RefillStatusPendingProvider: {
		model.RefillStatusPrescribed,
		model.RefillStatusRejected, model.RefillStatusCancelled, model.RefillStatusOnHold,
	},
	model.RefillStatusOnHold: {
		model.RefillStatusPendingPayment, model.RefillStatusPendingAdmin,
		model.RefillStatusApproved, model.RefillStatusPendingProvider,
		model.RefillStatusRejected, model.RefillStatusCancelled,
	},
}

func canTransition(from, to model.RefillStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	repo        repository.RefillRepository
	patientRepo repository.PatientRepository
	clinicRepo  repository.ClinicRepository
	stripeRepo  repository.StripeEventRepository
	emailRepo   repository.ScheduledEmailRepository
	emitter     event.Emitter
	auditor     *audit.Service
	metrics     *metrics.Metrics
	logger      *logger.Logger
}

func NewService(
	repo repository.RefillRepository,
	patientRepo repository.PatientRepository,
	clinicRepo repository.ClinicRepository,
	stripeRepo repository.StripeEventRepository,
	emailRepo repository.ScheduledEmailRepository,
	emitter event.Emitter,
	auditor *audit.Service,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:        repo,
		patientRepo: patientRepo,
		clinicRepo:  clinicRepo,
		stripeRepo:  stripeRepo,
		emailRepo:   emailRepo,
		emitter:     emitter,
		auditor:     auditor,
		metrics:     m,
		logger:      logger,
	}
}

// Create plans the shipment series for the prescribed duration and inserts
// every shipment up front, chained to shipment 1.
func (s *Service) Create(ctx context.Context, clinicID uuid.UUID, req *model.CreateRefillRequest) ([]*model.Refill, error) {
	if _, err := s.patientRepo.Get(ctx, clinicID, req.PatientID); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}

	budDays := req.BUDDays
	if budDays <= 0 {
		cfg, err := s.clinicRepo.GetConfig(ctx, clinicID)
		if err == nil && cfg.DefaultBUDDays > 0 {
			budDays = cfg.DefaultBUDDays
		} else {
			budDays = defaultBUDDays
		}
	}

	plans := PlanShipments(req.NextRefillDate, req.PrescribedDurationDays, budDays)

	refills := make([]*model.Refill, 0, len(plans))
	parentID := uuid.New()
	for _, plan := range plans {
		r := &model.Refill{
			ClinicID:           clinicID,
			PatientID:          req.PatientID,
			SubscriptionID:     req.SubscriptionID,
			MedicationName:     req.MedicationName,
			Status:             model.RefillStatusScheduled,
			NextRefillDate:     plan.RefillDate,
			RefillIntervalDays: req.RefillIntervalDays,
			VialCount:          req.VialCount,
			ShipmentNumber:     plan.ShipmentNumber,
			TotalShipments:     plan.TotalShipments,
			BUDDays:            plan.BUDDays,
			SupplyDays:         plan.SupplyDays,
			OrderAmountCents:   req.OrderAmountCents,
		}
		if plan.ShipmentNumber == 1 {
			r.ID = parentID
		} else {
			r.ParentRefillID = &parentID
		}
		refills = append(refills, r)
	}

	if err := s.repo.CreateSeries(ctx, refills); err != nil {
		return nil, fmt.Errorf("failed to create refill series: %w", err)
	}

	s.auditor.Log(ctx, uuid.Nil, clinicID, model.AuditActionCreate, model.AuditEntityRefill, parentID, &audit.LogOptions{Changes: req})
	return refills, nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Refill, error) {
	refill, err := s.repo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("refill", err)
		}
		return nil, fmt.Errorf("failed to get refill: %w", err)
	}
	return refill, nil
}

func (s *Service) GetSeries(ctx context.Context, clinicID, id uuid.UUID) ([]*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	parentID := refill.ID
	if refill.ParentRefillID != nil {
		parentID = *refill.ParentRefillID
	}
	return s.repo.GetSeries(ctx, clinicID, parentID)
}

func (s *Service) List(ctx context.Context, filters *model.RefillFilters) ([]*model.Refill, error) {
	return s.repo.List(ctx, filters)
}

// VerifyPayment marks the payment gate. With auto_match it searches stored
// Stripe charges by customer, exact amount and the clinic's match window;
// no match is not an error, the caller falls back to manual entry.
func (s *Service) VerifyPayment(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.VerifyPaymentRequest) (*model.VerifyPaymentResult, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if refill.Status.IsTerminal() {
		return nil, apperrors.Precondition(fmt.Sprintf("refill is %s", refill.Status))
	}
	if refill.PaymentVerified {
		return &model.VerifyPaymentResult{AutoMatched: false, Refill: refill}, nil
	}

	now := time.Now()

	if req.AutoMatch {
		matched, matchErr := s.autoMatch(ctx, clinicID, refill, now)
		if matchErr != nil {
			return nil, matchErr
		}
		if matched == nil {
			s.metrics.StripeAutoMatches.WithLabelValues("miss").Inc()
			return &model.VerifyPaymentResult{AutoMatched: false}, nil
		}
		s.metrics.StripeAutoMatches.WithLabelValues("hit").Inc()

		method := model.PaymentMethodStripeAuto
		refill.PaymentMethod = &method
		refill.PaymentReference = &matched.StripeEventID

		if err := s.completePaymentVerification(ctx, refill, actorID, now); err != nil {
			return nil, err
		}
		return &model.VerifyPaymentResult{AutoMatched: true, Refill: refill, MatchedID: &matched.StripeEventID}, nil
	}

	switch req.Method {
	case model.PaymentMethodExternalReference:
		if req.PaymentReference == "" {
			return nil, apperrors.BadRequest("payment_reference is required for EXTERNAL_REFERENCE", nil)
		}
	case model.PaymentMethodCash, model.PaymentMethodComped:
	default:
		return nil, apperrors.BadRequest("invalid payment method", nil)
	}

	refill.PaymentMethod = &req.Method
	if req.PaymentReference != "" {
		refill.PaymentReference = &req.PaymentReference
	}

	if err := s.completePaymentVerification(ctx, refill, actorID, now); err != nil {
		return nil, err
	}
	return &model.VerifyPaymentResult{AutoMatched: false, Refill: refill}, nil
}

func (s *Service) autoMatch(ctx context.Context, clinicID uuid.UUID, refill *model.Refill, now time.Time) (*model.StripePaymentEvent, error) {
	patient, err := s.patientRepo.Get(ctx, clinicID, refill.PatientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient: %w", err)
	}
	if patient.StripeCustomerID == nil || *patient.StripeCustomerID == "" {
		return nil, nil
	}

	windowHr := 72
	if cfg, err := s.clinicRepo.GetConfig(ctx, clinicID); err == nil && cfg.StripeMatchWindowHr > 0 {
		windowHr = cfg.StripeMatchWindowHr
	}
	since := now.Add(-time.Duration(windowHr) * time.Hour)

	matched, err := s.stripeRepo.FindMatch(ctx, *patient.StripeCustomerID, refill.OrderAmountCents, since)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to search stripe events: %w", err)
	}

	if err := s.stripeRepo.MarkMatched(ctx, matched.ID, refill.ID); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			// Lost the race to another refill; treat as a miss.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim stripe event: %w", err)
	}
	return matched, nil
}

func (s *Service) completePaymentVerification(ctx context.Context, refill *model.Refill, actorID uuid.UUID, now time.Time) error {
	expected := refill.UpdatedAt

	refill.PaymentVerified = true
	refill.PaymentVerifiedAt = &now
	refill.Status = model.RefillStatusPendingAdmin

	if err := s.update(ctx, refill, expected); err != nil {
		return err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusPendingAdmin)).Inc()

	s.schedulePatientEmail(ctx, refill, model.EmailKindPaymentReceived,
		"Payment received",
		fmt.Sprintf("We received your payment for %s. Your refill is moving to review.", refill.MedicationName))

	if err := s.emitter.Emit(ctx, model.EventRefillPaymentVerified, refill); err != nil {
		s.logger.Error(err, "failed to emit payment verified event", "refill_id", refill.ID)
	}
	s.auditor.Log(ctx, actorID, refill.ClinicID, model.AuditActionTransition, model.AuditEntityRefill, refill.ID, &audit.LogOptions{Changes: refill})
	return nil
}

// Approve sets the admin gate. The payment gate must already be closed.
func (s *Service) Approve(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if !refill.PaymentVerified {
		return nil, apperrors.Precondition("payment must be verified before approval")
	}
	if !canTransition(refill.Status, model.RefillStatusApproved) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot approve refill in %s", refill.Status))
	}

	now := time.Now()
	expected := refill.UpdatedAt
	refill.AdminApproved = true
	refill.AdminApprovedAt = &now
	refill.AdminApprovedBy = &actorID
	refill.Status = model.RefillStatusApproved

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusApproved)).Inc()

	if err := s.emitter.Emit(ctx, model.EventRefillApproved, refill); err != nil {
		s.logger.Error(err, "failed to emit refill approved event", "refill_id", refill.ID)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

// QueueProvider hands the refill to the provider queue. Both gates must be
// closed; providerQueuedAt is never set without paymentVerified and
// adminApproved.
func (s *Service) QueueProvider(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if !refill.PaymentVerified || !refill.AdminApproved {
		return nil, apperrors.Precondition("refill must be payment verified and admin approved before provider queueing")
	}
	if !canTransition(refill.Status, model.RefillStatusPendingProvider) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot queue refill in %s", refill.Status))
	}

	now := time.Now()
	expected := refill.UpdatedAt
	refill.ProviderQueuedAt = &now
	refill.Status = model.RefillStatusPendingProvider

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusPendingProvider)).Inc()
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

// Prescribe closes out the shipment and stamps the fill date.
func (s *Service) Prescribe(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(refill.Status, model.RefillStatusPrescribed) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot prescribe refill in %s", refill.Status))
	}

	now := time.Now()
	expected := refill.UpdatedAt
	refill.PrescribedAt = &now
	refill.LastRefillDate = &now
	refill.Status = model.RefillStatusPrescribed

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusPrescribed)).Inc()

	if err := s.emitter.Emit(ctx, model.EventRefillPrescribed, refill); err != nil {
		s.logger.Error(err, "failed to emit refill prescribed event", "refill_id", refill.ID)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

// Reject is idempotent; rejecting an already rejected refill keeps the
// original reason.
func (s *Service) Reject(ctx context.Context, clinicID, id, actorID uuid.UUID, reason string) (*model.Refill, error) {
	if reason == "" {
		return nil, apperrors.BadRequest("rejection reason is required", nil)
	}

	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if refill.Status == model.RefillStatusRejected {
		return refill, nil
	}
	if !canTransition(refill.Status, model.RefillStatusRejected) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot reject refill in %s", refill.Status))
	}

	expected := refill.UpdatedAt
	refill.RejectionReason = &reason
	refill.Status = model.RefillStatusRejected

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusRejected)).Inc()

	s.schedulePatientEmail(ctx, refill, model.EmailKindRefillRejected,
		"Refill update",
		fmt.Sprintf("Your refill for %s could not be processed: %s", refill.MedicationName, reason))

	if err := s.emitter.Emit(ctx, model.EventRefillRejected, refill); err != nil {
		s.logger.Error(err, "failed to emit refill rejected event", "refill_id", refill.ID)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

func (s *Service) Cancel(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if refill.Status == model.RefillStatusCancelled {
		return refill, nil
	}
	if !canTransition(refill.Status, model.RefillStatusCancelled) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot cancel refill in %s", refill.Status))
	}

	expected := refill.UpdatedAt
	refill.Status = model.RefillStatusCancelled

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusCancelled)).Inc()
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

func (s *Service) Hold(ctx context.Context, clinicID, id, actorID uuid.UUID, reason string) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if refill.Status == model.RefillStatusOnHold {
		return refill, nil
	}
	if !canTransition(refill.Status, model.RefillStatusOnHold) {
		return nil, apperrors.Precondition(fmt.Sprintf("cannot hold refill in %s", refill.Status))
	}

	expected := refill.UpdatedAt
	refill.Status = model.RefillStatusOnHold
	if reason != "" {
		refill.HoldReason = &reason
	}

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	s.metrics.RefillTransitions.WithLabelValues(string(model.RefillStatusOnHold)).Inc()
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

// Fulfill stamps shipment delivery and re-anchors the next shipment in the
// series: its refill date becomes fulfillment plus the fulfilled shipment's
// BUD window, so a late delivery pushes the next reminder out with it.
func (s *Service) Fulfill(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error) {
	refill, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if refill.Status != model.RefillStatusPrescribed {
		return nil, apperrors.Precondition("only prescribed refills can be fulfilled")
	}
	if refill.FulfilledAt != nil {
		return refill, nil
	}

	now := time.Now()
	expected := refill.UpdatedAt
	refill.FulfilledAt = &now

	if err := s.update(ctx, refill, expected); err != nil {
		return nil, err
	}
	if err := s.reanchorNextShipment(ctx, refill, now); err != nil {
		s.logger.Error(err, "failed to re-anchor next shipment", "refill_id", refill.ID)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionUpdate, model.AuditEntityRefill, id, &audit.LogOptions{Changes: refill})
	return refill, nil
}

func (s *Service) reanchorNextShipment(ctx context.Context, fulfilled *model.Refill, fulfilledAt time.Time) error {
	if fulfilled.ShipmentNumber >= fulfilled.TotalShipments {
		return nil
	}
	parentID := fulfilled.ID
	if fulfilled.ParentRefillID != nil {
		parentID = *fulfilled.ParentRefillID
	}
	series, err := s.repo.GetSeries(ctx, fulfilled.ClinicID, parentID)
	if err != nil {
		return err
	}
	for _, next := range series {
		if next.ShipmentNumber != fulfilled.ShipmentNumber+1 || next.Status.IsTerminal() {
			continue
		}
		expected := next.UpdatedAt
		next.NextRefillDate = fulfilledAt.AddDate(0, 0, fulfilled.BUDDays)
		return s.update(ctx, next, expected)
	}
	return nil
}

// ProcessDueReminders activates refills inside their clinic's reminder
// window: sends the reminder once and moves SCHEDULED rows into
// PENDING_PAYMENT.
func (s *Service) ProcessDueReminders(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDueForReminder(ctx, now, defaultReminderLeadDays)
	if err != nil {
		return 0, fmt.Errorf("failed to list refills due for reminder: %w", err)
	}

	processed := 0
	for _, refill := range due {
		expected := refill.UpdatedAt
		refill.ReminderSentAt = &now
		if refill.Status == model.RefillStatusScheduled {
			refill.Status = model.RefillStatusPendingPayment
		}

		if err := s.update(ctx, refill, expected); err != nil {
			s.logger.Error(err, "failed to mark reminder sent", "refill_id", refill.ID)
			continue
		}

		s.schedulePatientEmail(ctx, refill, model.EmailKindRefillReminder,
			"Refill reminder",
			fmt.Sprintf("Your refill for %s is due on %s.", refill.MedicationName, refill.NextRefillDate.Format("2006-01-02")))
		processed++
	}
	return processed, nil
}

func (s *Service) update(ctx context.Context, refill *model.Refill, expected time.Time) error {
	if err := s.repo.Update(ctx, refill, expected); err != nil {
		if errors.Is(err, postgres.ErrStaleRow) {
			return apperrors.Conflict("refill was modified concurrently, retry", err)
		}
		return fmt.Errorf("failed to update refill: %w", err)
	}
	return nil
}

func (s *Service) schedulePatientEmail(ctx context.Context, refill *model.Refill, kind, subject, body string) {
	patient, err := s.patientRepo.Get(ctx, refill.ClinicID, refill.PatientID)
	if err != nil || patient.Email == "" {
		return
	}

	email := &model.ScheduledEmail{
		ClinicID:  refill.ClinicID,
		Recipient: patient.Email,
		Subject:   subject,
		Body:      body,
		Kind:      kind,
		RefillID:  &refill.ID,
		SendAfter: time.Now(),
	}
	if err := s.emailRepo.Create(ctx, email); err != nil {
		s.logger.Error(err, "failed to schedule email", "refill_id", refill.ID, "kind", kind)
	}
}

package refill

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/internal/service/audit"
	"github.com/eonpro/ops-api/internal/service/event"
	apperrors "github.com/eonpro/ops-api/pkg/errors"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "refill")

type fakeRefillRepo struct {
	refills     map[uuid.UUID]*model.Refill
	clinicLeads map[uuid.UUID]int
}

func newFakeRefillRepo() *fakeRefillRepo {
	return &fakeRefillRepo{
		refills:     make(map[uuid.UUID]*model.Refill),
		clinicLeads: make(map[uuid.UUID]int),
	}
}

func (f *fakeRefillRepo) Create(_ context.Context, r *model.Refill) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.UpdatedAt = time.Now()
	cp := *r
	f.refills[r.ID] = &cp
	return nil
}

func (f *fakeRefillRepo) CreateSeries(ctx context.Context, rs []*model.Refill) error {
	for _, r := range rs {
		if err := f.Create(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRefillRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.Refill, error) {
	r, ok := f.refills[id]
	if !ok || r.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRefillRepo) GetSeries(_ context.Context, clinicID, parentID uuid.UUID) ([]*model.Refill, error) {
	var out []*model.Refill
	for _, r := range f.refills {
		if r.ClinicID != clinicID {
			continue
		}
		if r.ID == parentID || (r.ParentRefillID != nil && *r.ParentRefillID == parentID) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRefillRepo) Update(_ context.Context, r *model.Refill, expected time.Time) error {
	stored, ok := f.refills[r.ID]
	if !ok || !stored.UpdatedAt.Equal(expected) {
		return postgres.ErrStaleRow
	}
	r.UpdatedAt = time.Now().Add(time.Millisecond)
	cp := *r
	f.refills[r.ID] = &cp
	return nil
}

func (f *fakeRefillRepo) List(_ context.Context, _ *model.RefillFilters) ([]*model.Refill, error) {
	return nil, nil
}

func (f *fakeRefillRepo) ListDueForReminder(_ context.Context, now time.Time, fallbackLeadDays int) ([]*model.Refill, error) {
	var out []*model.Refill
	for _, r := range f.refills {
		lead := fallbackLeadDays
		if d, ok := f.clinicLeads[r.ClinicID]; ok && d > 0 {
			lead = d
		}
		cutoff := now.AddDate(0, 0, lead)
		if r.ReminderSentAt == nil && !r.Status.IsTerminal() && !r.NextRefillDate.After(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (f *fakePatientRepo) Create(_ context.Context, p *model.Patient) error { return nil }
func (f *fakePatientRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.Patient, error) {
	p, ok := f.patients[id]
	if !ok || p.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	return p, nil
}
func (f *fakePatientRepo) Update(_ context.Context, _ *model.Patient) error     { return nil }
func (f *fakePatientRepo) Delete(_ context.Context, _, _ uuid.UUID) error       { return nil }
func (f *fakePatientRepo) List(_ context.Context, _ *model.PatientFilters) ([]*model.Patient, error) {
	return nil, nil
}

type fakeClinicRepo struct {
	config *model.ClinicConfig
}

func (f *fakeClinicRepo) Create(_ context.Context, _ *model.Clinic) error { return nil }
func (f *fakeClinicRepo) Get(_ context.Context, _ uuid.UUID) (*model.Clinic, error) {
	return nil, postgres.ErrNoRows
}
func (f *fakeClinicRepo) Update(_ context.Context, _ *model.Clinic) error { return nil }
func (f *fakeClinicRepo) List(_ context.Context) ([]*model.Clinic, error) { return nil, nil }
func (f *fakeClinicRepo) GetConfig(_ context.Context, _ uuid.UUID) (*model.ClinicConfig, error) {
	if f.config == nil {
		return nil, postgres.ErrNoRows
	}
	return f.config, nil
}
func (f *fakeClinicRepo) UpdateConfig(_ context.Context, _ *model.ClinicConfig) error { return nil }

type fakeStripeRepo struct {
	events []*model.StripePaymentEvent
}

func (f *fakeStripeRepo) Create(_ context.Context, _ *model.StripePaymentEvent) error { return nil }
func (f *fakeStripeRepo) FindMatch(_ context.Context, customerID string, amountCents int64, since time.Time) (*model.StripePaymentEvent, error) {
	for _, e := range f.events {
		if e.StripeCustomerID == customerID && e.AmountCents == amountCents &&
			!e.OccurredAt.Before(since) && e.MatchedRefillID == nil {
			return e, nil
		}
	}
	return nil, postgres.ErrNoRows
}
func (f *fakeStripeRepo) MarkMatched(_ context.Context, id, refillID uuid.UUID) error {
	for _, e := range f.events {
		if e.ID == id && e.MatchedRefillID == nil {
			e.MatchedRefillID = &refillID
			return nil
		}
	}
	return postgres.ErrNoRows
}

type fakeEmailRepo struct {
	created []*model.ScheduledEmail
}

func (f *fakeEmailRepo) Create(_ context.Context, e *model.ScheduledEmail) error {
	f.created = append(f.created, e)
	return nil
}
func (f *fakeEmailRepo) ListDue(_ context.Context, _ time.Time, _ int) ([]*model.ScheduledEmail, error) {
	return nil, nil
}
func (f *fakeEmailRepo) MarkSent(_ context.Context, _ uuid.UUID, _ time.Time) error { return nil }
func (f *fakeEmailRepo) MarkFailed(_ context.Context, _ uuid.UUID, _ string) error  { return nil }

type fakeOutboxRepo struct {
	events []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(_ context.Context, e *model.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeOutboxRepo) CreateTx(_ context.Context, _ *sqlx.Tx, e *model.OutboxEvent) error {
	f.events = append(f.events, e)
	return nil
}
func (f *fakeOutboxRepo) GetPendingEventsWithLock(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutboxRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

type fakeAuditRepo struct{}

func (f *fakeAuditRepo) Create(_ context.Context, _ *model.AuditLog) error { return nil }
func (f *fakeAuditRepo) List(_ context.Context, _ uuid.UUID, _ string, _ uuid.UUID) ([]*model.AuditLog, error) {
	return nil, nil
}

type fixture struct {
	svc      *Service
	repo     *fakeRefillRepo
	patients *fakePatientRepo
	clinics  *fakeClinicRepo
	stripe   *fakeStripeRepo
	emails   *fakeEmailRepo
	outbox   *fakeOutboxRepo
	clinicID uuid.UUID
	patient  *model.Patient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clinicID := uuid.New()
	customerID := "cus_123"
	patient := &model.Patient{
		ClinicID:         clinicID,
		Email:            "pat@example.com",
		StripeCustomerID: &customerID,
	}
	patient.ID = uuid.New()

	f := &fixture{
		repo:     newFakeRefillRepo(),
		patients: &fakePatientRepo{patients: map[uuid.UUID]*model.Patient{patient.ID: patient}},
		clinics:  &fakeClinicRepo{config: &model.ClinicConfig{ClinicID: clinicID, DefaultBUDDays: 90, StripeMatchWindowHr: 72, ReminderLeadDays: 7}},
		stripe:   &fakeStripeRepo{},
		emails:   &fakeEmailRepo{},
		outbox:   &fakeOutboxRepo{},
		clinicID: clinicID,
		patient:  patient,
	}

	f.repo.clinicLeads[clinicID] = f.clinics.config.ReminderLeadDays

	log := logger.NewLogger(nil)
	f.svc = NewService(
		f.repo, f.patients, f.clinics, f.stripe, f.emails,
		event.NewService(f.outbox),
		audit.NewService(&fakeAuditRepo{}, log),
		testMetrics,
		log,
	)
	return f
}

func (f *fixture) seedRefill(t *testing.T, status model.RefillStatus) *model.Refill {
	t.Helper()
	r := &model.Refill{
		ClinicID:         f.clinicID,
		PatientID:        f.patient.ID,
		MedicationName:   "Semaglutide 1mg",
		Status:           status,
		NextRefillDate:   time.Now().AddDate(0, 0, 5),
		ShipmentNumber:   1,
		TotalShipments:   1,
		BUDDays:          90,
		SupplyDays:       90,
		OrderAmountCents: 29900,
	}
	require.NoError(t, f.repo.Create(context.Background(), r))
	return r
}

func TestCreateSplitsSeries(t *testing.T) {
	f := newFixture(t)

	refills, err := f.svc.Create(context.Background(), f.clinicID, &model.CreateRefillRequest{
		PatientID:              f.patient.ID,
		MedicationName:         "Semaglutide 1mg",
		NextRefillDate:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		RefillIntervalDays:     30,
		PrescribedDurationDays: 200,
		BUDDays:                90,
	})
	require.NoError(t, err)
	require.Len(t, refills, 3)

	assert.Nil(t, refills[0].ParentRefillID)
	for _, r := range refills[1:] {
		require.NotNil(t, r.ParentRefillID)
		assert.Equal(t, refills[0].ID, *r.ParentRefillID)
	}
	assert.Equal(t, 20, refills[2].SupplyDays)
}

func TestApproveRequiresPaymentVerified(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingAdmin)

	_, err := f.svc.Approve(context.Background(), f.clinicID, r.ID, uuid.New())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPrecondition, appErr.Code)
}

func TestFullGateFlow(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingPayment)
	ctx := context.Background()
	actor := uuid.New()

	res, err := f.svc.VerifyPayment(ctx, f.clinicID, r.ID, actor, &model.VerifyPaymentRequest{
		Method: model.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.True(t, res.Refill.PaymentVerified)
	assert.Equal(t, model.RefillStatusPendingAdmin, res.Refill.Status)

	approved, err := f.svc.Approve(ctx, f.clinicID, r.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusApproved, approved.Status)
	assert.True(t, approved.AdminApproved)

	queued, err := f.svc.QueueProvider(ctx, f.clinicID, r.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusPendingProvider, queued.Status)
	require.NotNil(t, queued.ProviderQueuedAt)
	assert.True(t, queued.PaymentVerified)
	assert.True(t, queued.AdminApproved)

	prescribed, err := f.svc.Prescribe(ctx, f.clinicID, r.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusPrescribed, prescribed.Status)
	require.NotNil(t, prescribed.PrescribedAt)
}

func TestQueueProviderGuardsGates(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusApproved)

	_, err := f.svc.QueueProvider(context.Background(), f.clinicID, r.ID, uuid.New())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPrecondition, appErr.Code)
}

func TestRejectIsIdempotentFirstReasonWins(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingAdmin)
	ctx := context.Background()
	actor := uuid.New()

	first, err := f.svc.Reject(ctx, f.clinicID, r.ID, actor, "card declined")
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusRejected, first.Status)

	second, err := f.svc.Reject(ctx, f.clinicID, r.ID, actor, "different reason")
	require.NoError(t, err)
	require.NotNil(t, second.RejectionReason)
	assert.Equal(t, "card declined", *second.RejectionReason)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingAdmin)

	_, err := f.svc.Reject(context.Background(), f.clinicID, r.ID, uuid.New(), "")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestTerminalStatesBlockTransitions(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPrescribed)

	_, err := f.svc.Reject(context.Background(), f.clinicID, r.ID, uuid.New(), "too late")
	require.Error(t, err)

	_, err = f.svc.Cancel(context.Background(), f.clinicID, r.ID, uuid.New())
	require.Error(t, err)
}

func TestAutoMatchHit(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingPayment)

	evt := &model.StripePaymentEvent{
		ID:               uuid.New(),
		StripeEventID:    "evt_abc",
		StripeCustomerID: "cus_123",
		AmountCents:      29900,
		OccurredAt:       time.Now().Add(-time.Hour),
	}
	f.stripe.events = append(f.stripe.events, evt)

	res, err := f.svc.VerifyPayment(context.Background(), f.clinicID, r.ID, uuid.New(), &model.VerifyPaymentRequest{AutoMatch: true})
	require.NoError(t, err)
	assert.True(t, res.AutoMatched)
	require.NotNil(t, res.Refill)
	assert.True(t, res.Refill.PaymentVerified)
	require.NotNil(t, res.Refill.PaymentMethod)
	assert.Equal(t, model.PaymentMethodStripeAuto, *res.Refill.PaymentMethod)
	require.NotNil(t, evt.MatchedRefillID)
	assert.Equal(t, r.ID, *evt.MatchedRefillID)
}

func TestAutoMatchMissIsNotAnError(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingPayment)

	res, err := f.svc.VerifyPayment(context.Background(), f.clinicID, r.ID, uuid.New(), &model.VerifyPaymentRequest{AutoMatch: true})
	require.NoError(t, err)
	assert.False(t, res.AutoMatched)

	got, err := f.svc.Get(context.Background(), f.clinicID, r.ID)
	require.NoError(t, err)
	assert.False(t, got.PaymentVerified)
	assert.Equal(t, model.RefillStatusPendingPayment, got.Status)
}

func TestExternalReferenceRequiresReference(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingPayment)

	_, err := f.svc.VerifyPayment(context.Background(), f.clinicID, r.ID, uuid.New(), &model.VerifyPaymentRequest{
		Method: model.PaymentMethodExternalReference,
	})
	require.Error(t, err)
}

func TestProcessDueRemindersSetsOnce(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusScheduled)
	ctx := context.Background()

	n, err := f.svc.ProcessDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, f.clinicID, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ReminderSentAt)
	assert.Equal(t, model.RefillStatusPendingPayment, got.Status)
	require.Len(t, f.emails.created, 1)
	assert.Equal(t, model.EmailKindRefillReminder, f.emails.created[0].Kind)

	// Second sweep finds nothing; the reminder fires once per window.
	n, err = f.svc.ProcessDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReminderWindowFollowsClinicLead(t *testing.T) {
	f := newFixture(t)
	f.clinics.config.ReminderLeadDays = 1
	f.repo.clinicLeads[f.clinicID] = 1
	f.seedRefill(t, model.RefillStatusScheduled)
	ctx := context.Background()

	// Refill date is five days out; a one-day lead keeps it out of the sweep.
	n, err := f.svc.ProcessDueReminders(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.svc.ProcessDueReminders(ctx, time.Now().AddDate(0, 0, 4).Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFulfillReanchorsNextShipment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	refills, err := f.svc.Create(ctx, f.clinicID, &model.CreateRefillRequest{
		PatientID:              f.patient.ID,
		MedicationName:         "Semaglutide 1mg",
		NextRefillDate:         time.Now().AddDate(0, 0, 10),
		PrescribedDurationDays: 180,
		BUDDays:                90,
	})
	require.NoError(t, err)
	require.Len(t, refills, 2)

	f.repo.refills[refills[0].ID].Status = model.RefillStatusPrescribed

	fulfilled, err := f.svc.Fulfill(ctx, f.clinicID, refills[0].ID, actor)
	require.NoError(t, err)
	require.NotNil(t, fulfilled.FulfilledAt)

	// Shipment 2 was planned off the original date; fulfillment today moves
	// it to today plus shipment 1's BUD window.
	next := f.repo.refills[refills[1].ID]
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 90), next.NextRefillDate, 2*time.Second)
}

func TestHoldAndResumeViaApprove(t *testing.T) {
	f := newFixture(t)
	r := f.seedRefill(t, model.RefillStatusPendingPayment)
	ctx := context.Background()
	actor := uuid.New()

	_, err := f.svc.VerifyPayment(ctx, f.clinicID, r.ID, actor, &model.VerifyPaymentRequest{Method: model.PaymentMethodCash})
	require.NoError(t, err)

	held, err := f.svc.Hold(ctx, f.clinicID, r.ID, actor, "pharmacy backorder")
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusOnHold, held.Status)
	require.NotNil(t, held.HoldReason)

	approved, err := f.svc.Approve(ctx, f.clinicID, r.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.RefillStatusApproved, approved.Status)
}

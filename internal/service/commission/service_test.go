package commission

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

var testMetrics = metrics.NewMetrics("test", "commission")

type fakeCommissionRepo struct {
	plans      map[uuid.UUID]*model.CommissionPlan
	tiers      map[uuid.UUID][]*model.CommissionTier
	rates      map[string]*model.ProductRate
	promos     []*model.Promotion
	affiliates map[uuid.UUID]*model.Affiliate
	events     map[uuid.UUID]*model.CommissionEvent
	lastTx     *sqlx.Tx
}

func newFakeCommissionRepo() *fakeCommissionRepo {
	return &fakeCommissionRepo{
		plans:      make(map[uuid.UUID]*model.CommissionPlan),
		tiers:      make(map[uuid.UUID][]*model.CommissionTier),
		rates:      make(map[string]*model.ProductRate),
		affiliates: make(map[uuid.UUID]*model.Affiliate),
		events:     make(map[uuid.UUID]*model.CommissionEvent),
	}
}

func (f *fakeCommissionRepo) CreatePlan(_ context.Context, p *model.CommissionPlan) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.plans[p.ID] = p
	return nil
}

func (f *fakeCommissionRepo) GetPlan(_ context.Context, id uuid.UUID) (*model.CommissionPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, postgres.ErrNoRows
	}
	return p, nil
}

func (f *fakeCommissionRepo) ListTiers(_ context.Context, planID uuid.UUID) ([]*model.CommissionTier, error) {
	return f.tiers[planID], nil
}

func (f *fakeCommissionRepo) CreateTier(_ context.Context, t *model.CommissionTier) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	f.tiers[t.PlanID] = append(f.tiers[t.PlanID], t)
	return nil
}

func (f *fakeCommissionRepo) GetProductRate(_ context.Context, planID uuid.UUID, productID string) (*model.ProductRate, error) {
	r, ok := f.rates[planID.String()+":"+productID]
	if !ok {
		return nil, postgres.ErrNoRows
	}
	return r, nil
}

func (f *fakeCommissionRepo) ListActivePromotions(_ context.Context, clinicID uuid.UUID, refCode string, affiliateID uuid.UUID, at time.Time) ([]*model.Promotion, error) {
	var out []*model.Promotion
	for _, p := range f.promos {
		if !p.Active(at) {
			continue
		}
		if p.RefCode != nil && *p.RefCode != refCode {
			continue
		}
		if p.AffiliateID != nil && *p.AffiliateID != affiliateID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeCommissionRepo) IncrementPromotionUse(_ context.Context, _ *sqlx.Tx, id uuid.UUID) error {
	for _, p := range f.promos {
		if p.ID == id {
			p.UseCount++
			return nil
		}
	}
	return postgres.ErrNoRows
}

func (f *fakeCommissionRepo) CreatePromotion(_ context.Context, p *model.Promotion) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.promos = append(f.promos, p)
	return nil
}

func (f *fakeCommissionRepo) GetAffiliate(_ context.Context, clinicID, id uuid.UUID) (*model.Affiliate, error) {
	a, ok := f.affiliates[id]
	if !ok || a.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	return a, nil
}

func (f *fakeCommissionRepo) CreateAffiliate(_ context.Context, a *model.Affiliate) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.affiliates[a.ID] = a
	return nil
}

func (f *fakeCommissionRepo) IncrementAffiliateStats(_ context.Context, _ *sqlx.Tx, id uuid.UUID, revenueCents int64) error {
	a, ok := f.affiliates[id]
	if !ok {
		return postgres.ErrNoRows
	}
	a.LifetimeConversions++
	a.LifetimeRevenueCents += revenueCents
	return nil
}

func (f *fakeCommissionRepo) CreateEvent(_ context.Context, _ *sqlx.Tx, e *model.CommissionEvent) error {
	for _, existing := range f.events {
		if existing.ClinicID == e.ClinicID && existing.OrderID == e.OrderID {
			return postgres.ErrDuplicateOrder
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	f.events[e.ID] = &cp
	return nil
}

func (f *fakeCommissionRepo) GetEvent(_ context.Context, clinicID, id uuid.UUID) (*model.CommissionEvent, error) {
	e, ok := f.events[id]
	if !ok || e.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f *fakeCommissionRepo) GetEventByOrder(_ context.Context, clinicID uuid.UUID, orderID string) (*model.CommissionEvent, error) {
	for _, e := range f.events {
		if e.ClinicID == clinicID && e.OrderID == orderID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, postgres.ErrNoRows
}

func (f *fakeCommissionRepo) ListEvents(_ context.Context, _ *model.CommissionEventFilters) ([]*model.CommissionEvent, error) {
	return nil, nil
}

func (f *fakeCommissionRepo) UpdateEventStatus(_ context.Context, id uuid.UUID, status model.CommissionEventStatus, holdReason *string) error {
	e, ok := f.events[id]
	if !ok {
		return postgres.ErrNoRows
	}
	e.Status = status
	e.HoldReason = holdReason
	return nil
}

func (f *fakeCommissionRepo) ListEligibleForPayout(_ context.Context, clinicID, affiliateID uuid.UUID) ([]*model.CommissionEvent, error) {
	var out []*model.CommissionEvent
	for _, e := range f.events {
		if e.ClinicID == clinicID && e.AffiliateID == affiliateID &&
			e.Status == model.CommissionStatusEligible && e.PayoutID == nil {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCommissionRepo) AttachEventsToPayout(_ context.Context, _ *sqlx.Tx, payoutID uuid.UUID, eventIDs []uuid.UUID) error {
	for _, id := range eventIDs {
		e, ok := f.events[id]
		if !ok || e.Status != model.CommissionStatusEligible || e.PayoutID != nil {
			return postgres.ErrNoRows
		}
		e.PayoutID = &payoutID
		e.Status = model.CommissionStatusInPayout
	}
	return nil
}

func (f *fakeCommissionRepo) UpdateEventStatusByPayout(_ context.Context, tx *sqlx.Tx, payoutID uuid.UUID, from, to model.CommissionEventStatus) error {
	f.lastTx = tx
	for _, e := range f.events {
		if e.PayoutID != nil && *e.PayoutID == payoutID && e.Status == from {
			e.Status = to
			if to == model.CommissionStatusEligible {
				e.PayoutID = nil
			}
		}
	}
	return nil
}

func (f *fakeCommissionRepo) ListRecurringDue(_ context.Context, before time.Time) ([]*model.CommissionEvent, error) {
	var out []*model.CommissionEvent
	for _, e := range f.events {
		if e.IsRecurring && e.Status == model.CommissionStatusPending &&
			e.ScheduledFor != nil && !e.ScheduledFor.After(before) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCommissionRepo) MarkRecurringReleased(_ context.Context, id uuid.UUID) error {
	e, ok := f.events[id]
	if !ok {
		return postgres.ErrNoRows
	}
	if e.Status == model.CommissionStatusPending {
		e.Status = model.CommissionStatusEligible
	}
	return nil
}

// WithTx hands fn a sentinel so tests can assert the tx reaches every
// repository call made inside the closure.
func (f *fakeCommissionRepo) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(&sqlx.Tx{})
}

type fakePayoutRepo struct {
	payouts map[uuid.UUID]*model.Payout
	lastTx  *sqlx.Tx
}

func (f *fakePayoutRepo) Create(_ context.Context, _ *sqlx.Tx, p *model.Payout) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	f.payouts[p.ID] = &cp
	return nil
}

func (f *fakePayoutRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.Payout, error) {
	p, ok := f.payouts[id]
	if !ok || p.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayoutRepo) Settle(_ context.Context, tx *sqlx.Tx, id uuid.UUID, status model.PayoutStatus, failureNote *string) error {
	f.lastTx = tx
	p, ok := f.payouts[id]
	if !ok {
		return postgres.ErrNoRows
	}
	now := time.Now()
	p.Status = status
	p.SettledAt = &now
	p.FailureNote = failureNote
	return nil
}

func (f *fakePayoutRepo) List(_ context.Context, _ uuid.UUID) ([]*model.Payout, error) {
	return nil, nil
}

type fakeFraudRepo struct {
	alerts map[uuid.UUID]*model.FraudAlert
}

func (f *fakeFraudRepo) Create(_ context.Context, a *model.FraudAlert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	f.alerts[a.ID] = a
	return nil
}

func (f *fakeFraudRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.FraudAlert, error) {
	a, ok := f.alerts[id]
	if !ok || a.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (f *fakeFraudRepo) Resolve(_ context.Context, id uuid.UUID, status model.FraudAlertStatus, resolvedBy uuid.UUID) error {
	a, ok := f.alerts[id]
	if !ok {
		return postgres.ErrNoRows
	}
	now := time.Now()
	a.Status = status
	a.ResolvedAt = &now
	a.ResolvedBy = &resolvedBy
	return nil
}

func (f *fakeFraudRepo) ListHoldingForEvent(_ context.Context, eventID uuid.UUID) ([]*model.FraudAlert, error) {
	var out []*model.FraudAlert
	for _, a := range f.alerts {
		if a.CommissionEventID == eventID && a.Status.Holding() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeFraudRepo) List(_ context.Context, _ uuid.UUID, _ model.FraudAlertStatus) ([]*model.FraudAlert, error) {
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
	svc       *Service
	repo      *fakeCommissionRepo
	payouts   *fakePayoutRepo
	fraud     *fakeFraudRepo
	clinics   *fakeClinicRepo
	outbox    *fakeOutboxRepo
	clinicID  uuid.UUID
	plan      *model.CommissionPlan
	affiliate *model.Affiliate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clinicID := uuid.New()
	f := &fixture{
		repo:     newFakeCommissionRepo(),
		payouts:  &fakePayoutRepo{payouts: make(map[uuid.UUID]*model.Payout)},
		fraud:    &fakeFraudRepo{alerts: make(map[uuid.UUID]*model.FraudAlert)},
		clinics:  &fakeClinicRepo{config: &model.ClinicConfig{ClinicID: clinicID, AutoHoldOnHighRisk: true, RiskScoreThreshold: 75}},
		outbox:   &fakeOutboxRepo{},
		clinicID: clinicID,
	}

	log := logger.NewLogger(nil)
	f.svc = NewService(
		f.repo, f.payouts, f.fraud, f.clinics,
		event.NewService(f.outbox),
		audit.NewService(&fakeAuditRepo{}, log),
		testMetrics,
		log,
	)

	ctx := context.Background()
	f.plan = &model.CommissionPlan{
		ClinicID:  &clinicID,
		Name:      "Standard",
		OwnerKind: model.PlanOwnerAffiliate,
		PlanType:  model.PlanTypePercent,
		// 10%
		PercentBps: 1000,
	}
	require.NoError(t, f.svc.CreatePlan(ctx, f.plan))

	f.affiliate = &model.Affiliate{
		ClinicID: clinicID,
		Name:     "Jordan",
		Email:    "jordan@example.com",
		RefCode:  "JORDAN10",
		PlanID:   f.plan.ID,
	}
	require.NoError(t, f.svc.CreateAffiliate(ctx, f.affiliate))
	return f
}

func (f *fixture) record(t *testing.T, orderID string, amountCents int64, riskScore int) *model.CommissionEvent {
	t.Helper()
	evt, err := f.svc.RecordConversion(context.Background(), f.clinicID, &model.RecordConversionRequest{
		AffiliateID:      f.affiliate.ID,
		OrderID:          orderID,
		RefCode:          f.affiliate.RefCode,
		OrderAmountCents: amountCents,
		RiskScore:        riskScore,
	})
	require.NoError(t, err)
	return evt
}

func TestRecordConversionPercentPlan(t *testing.T) {
	f := newFixture(t)

	evt := f.record(t, "ord_1", 29900, 10)
	assert.Equal(t, int64(2990), evt.BaseCents)
	assert.Equal(t, int64(2990), evt.TotalCents)
	assert.Equal(t, model.CommissionStatusEligible, evt.Status)
	assert.Equal(t, 1, f.affiliate.LifetimeConversions)
	assert.Equal(t, int64(29900), f.affiliate.LifetimeRevenueCents)
	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, model.EventCommissionRecorded, f.outbox.events[0].EventType)
}

func TestRecordConversionDuplicateOrderReplays(t *testing.T) {
	f := newFixture(t)

	first := f.record(t, "ord_dup", 10000, 0)
	second := f.record(t, "ord_dup", 10000, 0)

	assert.Equal(t, first.ID, second.ID)
	// Replay leaves stats untouched.
	assert.Equal(t, 1, f.affiliate.LifetimeConversions)
}

func TestRecordConversionHighRiskAutoHold(t *testing.T) {
	f := newFixture(t)

	evt := f.record(t, "ord_risky", 10000, 90)
	assert.Equal(t, model.CommissionStatusHeld, evt.Status)
	require.NotNil(t, evt.HoldReason)
}

func TestRecordConversionAppliesTierAndPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.plan.TierEnabled = true
	require.NoError(t, f.svc.CreateTier(ctx, &model.CommissionTier{PlanID: f.plan.ID, MinConversions: 1, BonusCents: 500}))
	require.NoError(t, f.svc.CreateTier(ctx, &model.CommissionTier{PlanID: f.plan.ID, MinConversions: 10, BonusCents: 2000}))

	promo := &model.Promotion{
		ClinicID:   &f.clinicID,
		Name:       "Launch",
		RefCode:    &f.affiliate.RefCode,
		BonusCents: 1000,
		StartsAt:   time.Now().Add(-time.Hour),
		EndsAt:     time.Now().Add(time.Hour),
		MaxUses:    1,
	}
	require.NoError(t, f.svc.CreatePromotion(ctx, promo))

	evt := f.record(t, "ord_bonus", 10000, 0)
	assert.Equal(t, int64(1000), evt.BaseCents)
	// First conversion qualifies for the min_conversions=1 tier, not 10.
	assert.Equal(t, int64(500), evt.TierBonusCents)
	assert.Equal(t, int64(1000), evt.PromoBonusCents)
	assert.Equal(t, int64(2500), evt.TotalCents)
	assert.Equal(t, 1, promo.UseCount)

	// Promo exhausted; the next conversion gets no promo bonus.
	next := f.record(t, "ord_after", 10000, 0)
	assert.Equal(t, int64(0), next.PromoBonusCents)
}

func TestRecurringScheduleAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.plan.RecurringMonths = 3
	f.plan.RecurringDecayPct = 50

	evt := f.record(t, "ord_rec", 10000, 0)
	assert.Equal(t, int64(1000), evt.BaseCents)

	due, err := f.repo.ListRecurringDue(ctx, time.Now().AddDate(0, 6, 0))
	require.NoError(t, err)
	require.Len(t, due, 2)
	for _, r := range due {
		assert.True(t, r.IsRecurring)
		assert.Equal(t, model.CommissionStatusPending, r.Status)
		require.NotNil(t, r.OriginalEventID)
		assert.Equal(t, evt.ID, *r.OriginalEventID)
	}

	// Nothing due yet; months 2 and 3 sit a month or more out.
	released, err := f.svc.ReleaseDueRecurring(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	released, err = f.svc.ReleaseDueRecurring(ctx, time.Now().AddDate(0, 6, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, released)
}

func TestHoldReleaseFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	evt := f.record(t, "ord_hold", 10000, 0)

	held, err := f.svc.HoldEvent(ctx, f.clinicID, evt.ID, actor, "manual review")
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusHeld, held.Status)

	released, err := f.svc.ReleaseEvent(ctx, f.clinicID, evt.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusEligible, released.Status)
}

func TestReleaseBlockedByOpenFraudAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	evt := f.record(t, "ord_fraud", 10000, 0)

	alert, err := f.svc.CreateFraudAlert(ctx, f.clinicID, actor, &model.CreateFraudAlertRequest{
		CommissionEventID: evt.ID,
		RiskScore:         80,
		Reason:            "self referral suspected",
	})
	require.NoError(t, err)

	held, err := f.svc.GetEvent(ctx, f.clinicID, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusHeld, held.Status)

	_, err = f.svc.ReleaseEvent(ctx, f.clinicID, evt.ID, actor)
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPrecondition, appErr.Code)

	resolved, err := f.svc.ResolveFraudAlert(ctx, f.clinicID, alert.ID, actor, &model.ResolveFraudAlertRequest{
		Status: model.FraudAlertStatusDismissed,
	})
	require.NoError(t, err)
	assert.Equal(t, model.FraudAlertStatusDismissed, resolved.Status)

	// Dismissal with no other alert holding releases the event.
	after, err := f.svc.GetEvent(ctx, f.clinicID, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusEligible, after.Status)
}

func TestConfirmedFraudVoidsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	evt := f.record(t, "ord_void", 10000, 0)

	alert, err := f.svc.CreateFraudAlert(ctx, f.clinicID, actor, &model.CreateFraudAlertRequest{
		CommissionEventID: evt.ID,
		RiskScore:         95,
		Reason:            "stolen card",
	})
	require.NoError(t, err)

	_, err = f.svc.ResolveFraudAlert(ctx, f.clinicID, alert.ID, actor, &model.ResolveFraudAlertRequest{
		Status: model.FraudAlertStatusConfirmedFraud,
	})
	require.NoError(t, err)

	after, err := f.svc.GetEvent(ctx, f.clinicID, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusVoided, after.Status)
}

func TestPayoutLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	a := f.record(t, "ord_p1", 10000, 0)
	b := f.record(t, "ord_p2", 20000, 0)

	payout, err := f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), payout.TotalCents)
	assert.Equal(t, 2, payout.EventCount)
	assert.Equal(t, model.PayoutStatusPending, payout.Status)

	inPayout, err := f.svc.GetEvent(ctx, f.clinicID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusInPayout, inPayout.Status)

	// Events in a pending batch are out of the eligible pool.
	_, err = f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.Error(t, err)

	settled, err := f.svc.SettlePayout(ctx, f.clinicID, payout.ID, actor, &model.SettlePayoutRequest{
		Status: model.PayoutStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PayoutStatusCompleted, settled.Status)
	require.NotNil(t, settled.SettledAt)

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		evt, err := f.svc.GetEvent(ctx, f.clinicID, id)
		require.NoError(t, err)
		assert.Equal(t, model.CommissionStatusPaid, evt.Status)
	}

	// Settling twice is rejected.
	_, err = f.svc.SettlePayout(ctx, f.clinicID, payout.ID, actor, &model.SettlePayoutRequest{
		Status: model.PayoutStatusCompleted,
	})
	require.Error(t, err)
}

func TestSettlePayoutRunsInsideTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.record(t, "ord_tx", 10000, 0)
	payout, err := f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.NoError(t, err)

	_, err = f.svc.SettlePayout(ctx, f.clinicID, payout.ID, actor, &model.SettlePayoutRequest{
		Status: model.PayoutStatusCompleted,
	})
	require.NoError(t, err)

	// Batch close and event release must share one transaction.
	require.NotNil(t, f.payouts.lastTx)
	assert.Same(t, f.payouts.lastTx, f.repo.lastTx)
}

func TestFailedPayoutReturnsEventsToPool(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	evt := f.record(t, "ord_fail", 10000, 0)

	payout, err := f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.NoError(t, err)

	note := "bank transfer bounced"
	_, err = f.svc.SettlePayout(ctx, f.clinicID, payout.ID, actor, &model.SettlePayoutRequest{
		Status:      model.PayoutStatusFailed,
		FailureNote: &note,
	})
	require.NoError(t, err)

	after, err := f.svc.GetEvent(ctx, f.clinicID, evt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CommissionStatusEligible, after.Status)
	assert.Nil(t, after.PayoutID)

	// The event can join a fresh batch.
	_, err = f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.NoError(t, err)
}

func TestVoidPaidEventRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	evt := f.record(t, "ord_paid", 10000, 0)

	payout, err := f.svc.CreatePayout(ctx, f.clinicID, f.affiliate.ID, actor)
	require.NoError(t, err)
	_, err = f.svc.SettlePayout(ctx, f.clinicID, payout.ID, actor, &model.SettlePayoutRequest{
		Status: model.PayoutStatusCompleted,
	})
	require.NoError(t, err)

	_, err = f.svc.VoidEvent(ctx, f.clinicID, evt.ID, actor, "chargeback")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPrecondition, appErr.Code)
}

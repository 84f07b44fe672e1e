package ticket

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
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("test", "ticket")

type fakeTicketRepo struct {
	tickets    map[uuid.UUID]*model.Ticket
	slas       map[uuid.UUID]*model.TicketSLA
	activities []*model.TicketActivity
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets: make(map[uuid.UUID]*model.Ticket),
		slas:    make(map[uuid.UUID]*model.TicketSLA),
	}
}

func (f *fakeTicketRepo) Create(_ context.Context, t *model.Ticket, sla *model.TicketSLA) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	sla.ID = uuid.New()
	sla.TicketID = t.ID
	sla.CreatedAt = t.CreatedAt
	f.tickets[t.ID] = t
	f.slas[t.ID] = sla
	return nil
}

func (f *fakeTicketRepo) Get(_ context.Context, clinicID, id uuid.UUID) (*model.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok || t.ClinicID != clinicID {
		return nil, postgres.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTicketRepo) UpdateWithSLA(_ context.Context, t *model.Ticket, sla *model.TicketSLA) error {
	if _, ok := f.tickets[t.ID]; !ok {
		return postgres.ErrNoRows
	}
	cp := *t
	f.tickets[t.ID] = &cp
	if sla != nil {
		scp := *sla
		f.slas[t.ID] = &scp
	}
	return nil
}

func (f *fakeTicketRepo) List(_ context.Context, _ *model.TicketFilters) ([]*model.Ticket, error) {
	return nil, nil
}

func (f *fakeTicketRepo) AddActivity(_ context.Context, a *model.TicketActivity) error {
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeTicketRepo) ListActivities(_ context.Context, ticketID uuid.UUID) ([]*model.TicketActivity, error) {
	var out []*model.TicketActivity
	for _, a := range f.activities {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeSLARepo struct {
	tickets  *fakeTicketRepo
	policies map[uuid.UUID]*model.SLAPolicyConfig
	hours    []*model.BusinessHours
	holidays []*model.Holiday
}

func (f *fakeSLARepo) MatchPolicy(_ context.Context, _ uuid.UUID, priority model.TicketPriority, category string) (*model.SLAPolicyConfig, error) {
	var best *model.SLAPolicyConfig
	for _, p := range f.policies {
		if p.Priority != priority {
			continue
		}
		if p.Category != "" && p.Category != category {
			continue
		}
		if best == nil || (best.Category == "" && p.Category != "") {
			best = p
		}
	}
	if best == nil {
		return nil, postgres.ErrNoRows
	}
	return best, nil
}

func (f *fakeSLARepo) UpsertPolicy(_ context.Context, p *model.SLAPolicyConfig) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.policies[p.ID] = p
	return nil
}

func (f *fakeSLARepo) GetPolicy(_ context.Context, id uuid.UUID) (*model.SLAPolicyConfig, error) {
	p, ok := f.policies[id]
	if !ok {
		return nil, postgres.ErrNoRows
	}
	return p, nil
}

func (f *fakeSLARepo) ListPolicies(_ context.Context, _ uuid.UUID) ([]*model.SLAPolicyConfig, error) {
	return nil, nil
}

func (f *fakeSLARepo) GetByTicket(_ context.Context, ticketID uuid.UUID) (*model.TicketSLA, error) {
	sla, ok := f.tickets.slas[ticketID]
	if !ok {
		return nil, postgres.ErrNoRows
	}
	cp := *sla
	return &cp, nil
}

func (f *fakeSLARepo) UpdateSLA(_ context.Context, sla *model.TicketSLA) error {
	cp := *sla
	f.tickets.slas[sla.TicketID] = &cp
	return nil
}

func (f *fakeSLARepo) ListOpenPastDue(_ context.Context, now time.Time) ([]*model.TicketSLA, error) {
	var out []*model.TicketSLA
	for ticketID, sla := range f.tickets.slas {
		t := f.tickets.tickets[ticketID]
		if t.Status == model.TicketStatusResolved || t.Status == model.TicketStatusClosed {
			continue
		}
		if sla.BreachedAt == nil && sla.PausedAt == nil && !sla.ResolutionDue.After(now) {
			cp := *sla
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSLARepo) ListOpenUnwarned(_ context.Context) ([]*model.TicketSLA, error) {
	var out []*model.TicketSLA
	for ticketID, sla := range f.tickets.slas {
		t := f.tickets.tickets[ticketID]
		if t.Status == model.TicketStatusResolved || t.Status == model.TicketStatusClosed {
			continue
		}
		if sla.BreachedAt == nil && sla.WarningFiredAt == nil && sla.PausedAt == nil {
			cp := *sla
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeSLARepo) GetBusinessHours(_ context.Context, _ uuid.UUID) ([]*model.BusinessHours, error) {
	return f.hours, nil
}

func (f *fakeSLARepo) ListHolidays(_ context.Context, _ uuid.UUID) ([]*model.Holiday, error) {
	return f.holidays, nil
}

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
	repo     *fakeTicketRepo
	slaRepo  *fakeSLARepo
	outbox   *fakeOutboxRepo
	clinicID uuid.UUID
	policyID uuid.UUID
}

func newFixture(t *testing.T, policy *model.SLAPolicyConfig) *fixture {
	t.Helper()

	repo := newFakeTicketRepo()
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	slaRepo := &fakeSLARepo{
		tickets:  repo,
		policies: map[uuid.UUID]*model.SLAPolicyConfig{policy.ID: policy},
	}
	outbox := &fakeOutboxRepo{}
	log := logger.NewLogger(nil)

	return &fixture{
		svc: NewService(repo, slaRepo, event.NewService(outbox),
			audit.NewService(&fakeAuditRepo{}, log), testMetrics, log),
		repo:     repo,
		slaRepo:  slaRepo,
		outbox:   outbox,
		clinicID: uuid.New(),
		policyID: policy.ID,
	}
}

func defaultPolicy() *model.SLAPolicyConfig {
	return &model.SLAPolicyConfig{
		Priority:             model.TicketPriorityHigh,
		FirstResponseMinutes: 60,
		ResolutionMinutes:    480,
		WarningThresholdPct:  80,
	}
}

func createReq() *model.CreateTicketRequest {
	return &model.CreateTicketRequest{
		Subject:     "shipment missing",
		Priority:    model.TicketPriorityHigh,
		Category:    "shipping",
		RequesterID: uuid.New(),
	}
}

func TestCreateStartsSLAClock(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	ticket, err := f.svc.Create(context.Background(), f.clinicID, uuid.New(), createReq())
	require.NoError(t, err)

	sla := f.repo.slas[ticket.ID]
	require.NotNil(t, sla)
	assert.Equal(t, f.policyID, sla.PolicyID)
	assert.WithinDuration(t, time.Now().Add(60*time.Minute), sla.FirstResponseDue, 2*time.Second)
	assert.WithinDuration(t, time.Now().Add(480*time.Minute), sla.ResolutionDue, 2*time.Second)
}

func TestCreateFailsWithoutPolicy(t *testing.T) {
	f := newFixture(t, defaultPolicy())

	req := createReq()
	req.Priority = model.TicketPriorityLow
	_, err := f.svc.Create(context.Background(), f.clinicID, uuid.New(), req)
	require.Error(t, err)
}

func TestPauseResumeExtendsDueDates(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	actor := uuid.New()

	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)
	originalDue := f.repo.slas[ticket.ID].ResolutionDue

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{
		Status: model.TicketStatusPendingCustomer,
	})
	require.NoError(t, err)

	paused := f.repo.slas[ticket.ID]
	require.NotNil(t, paused.PausedAt)

	// Simulate two hours waiting on the customer.
	twoHoursAgo := paused.PausedAt.Add(-2 * time.Hour)
	paused.PausedAt = &twoHoursAgo

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{
		Status: model.TicketStatusInProgress,
	})
	require.NoError(t, err)

	resumed := f.repo.slas[ticket.ID]
	assert.Nil(t, resumed.PausedAt)
	assert.InDelta(t, 2*3600, resumed.TotalPausedSecs, 5)
	assert.WithinDuration(t, originalDue.Add(2*time.Hour), resumed.ResolutionDue, 5*time.Second)
}

func TestReopenResetsResolutionAndCounts(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	actor := uuid.New()

	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusResolved})
	require.NoError(t, err)

	reopened, err := f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusOpen})
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.ReopenCount)
	assert.Nil(t, reopened.ResolvedAt)

	sla := f.repo.slas[ticket.ID]
	assert.WithinDuration(t, time.Now().Add(480*time.Minute), sla.ResolutionDue, 2*time.Second)
}

func TestClosedTicketsAreFinal(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	actor := uuid.New()

	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusResolved})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusClosed})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusOpen})
	require.Error(t, err)
}

func TestCheckBreachesIsOneDirectional(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, f.clinicID, uuid.New(), createReq())
	require.NoError(t, err)

	// Force the due date into the past.
	sla := f.repo.slas[ticket.ID]
	sla.ResolutionDue = time.Now().Add(-time.Hour)

	n, err := f.svc.CheckBreaches(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotNil(t, f.repo.slas[ticket.ID].BreachedAt)
	firstBreach := *f.repo.slas[ticket.ID].BreachedAt

	// A second sweep does not re-breach or move the timestamp.
	n, err = f.svc.CheckBreaches(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, firstBreach, *f.repo.slas[ticket.ID].BreachedAt)
}

func TestCheckBreachesSkipsPaused(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	actor := uuid.New()

	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{Status: model.TicketStatusPendingCustomer})
	require.NoError(t, err)

	f.repo.slas[ticket.ID].ResolutionDue = time.Now().Add(-time.Hour)

	n, err := f.svc.CheckBreaches(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCheckWarningsFiresOnceAtThreshold(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()

	ticket, err := f.svc.Create(ctx, f.clinicID, uuid.New(), createReq())
	require.NoError(t, err)

	// Pretend the ticket is 90% through its window.
	sla := f.repo.slas[ticket.ID]
	sla.CreatedAt = time.Now().Add(-432 * time.Minute)
	sla.ResolutionDue = time.Now().Add(48 * time.Minute)

	n, err := f.svc.CheckWarnings(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotNil(t, f.repo.slas[ticket.ID].WarningFiredAt)

	n, err = f.svc.CheckWarnings(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCommentStampsFirstResponse(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	ctx := context.Background()
	req := createReq()

	ticket, err := f.svc.Create(ctx, f.clinicID, req.RequesterID, req)
	require.NoError(t, err)

	// Requester comments never count as first response.
	_, err = f.svc.Comment(ctx, f.clinicID, ticket.ID, req.RequesterID, &model.CommentTicketRequest{Note: "any update?"})
	require.NoError(t, err)
	assert.Nil(t, f.repo.tickets[ticket.ID].FirstResponseAt)

	_, err = f.svc.Comment(ctx, f.clinicID, ticket.ID, uuid.New(), &model.CommentTicketRequest{Note: "on it"})
	require.NoError(t, err)
	assert.NotNil(t, f.repo.tickets[ticket.ID].FirstResponseAt)
}

func TestEscalateRaisesPriorityOnly(t *testing.T) {
	urgent := defaultPolicy()
	urgent.Priority = model.TicketPriorityUrgent
	urgent.ResolutionMinutes = 120
	f := newFixture(t, defaultPolicy())
	require.NoError(t, f.slaRepo.UpsertPolicy(context.Background(), urgent))

	ctx := context.Background()
	actor := uuid.New()
	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)

	_, err = f.svc.Escalate(ctx, f.clinicID, ticket.ID, actor, &model.EscalateTicketRequest{Priority: model.TicketPriorityMedium})
	require.Error(t, err)

	escalated, err := f.svc.Escalate(ctx, f.clinicID, ticket.ID, actor, &model.EscalateTicketRequest{Priority: model.TicketPriorityUrgent})
	require.NoError(t, err)
	assert.Equal(t, model.TicketPriorityUrgent, escalated.Priority)
	assert.WithinDuration(t, time.Now().Add(120*time.Minute), f.repo.slas[ticket.ID].ResolutionDue, 2*time.Second)
}

func TestEscalateWhilePausedBanksPauseOnce(t *testing.T) {
	urgent := defaultPolicy()
	urgent.Priority = model.TicketPriorityUrgent
	urgent.ResolutionMinutes = 120
	f := newFixture(t, defaultPolicy())
	require.NoError(t, f.slaRepo.UpsertPolicy(context.Background(), urgent))

	ctx := context.Background()
	actor := uuid.New()
	ticket, err := f.svc.Create(ctx, f.clinicID, actor, createReq())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{
		Status: model.TicketStatusPendingCustomer,
	})
	require.NoError(t, err)

	// Simulate two hours waiting on the customer before the escalation.
	paused := f.repo.slas[ticket.ID]
	require.NotNil(t, paused.PausedAt)
	twoHoursAgo := paused.PausedAt.Add(-2 * time.Hour)
	paused.PausedAt = &twoHoursAgo

	_, err = f.svc.Escalate(ctx, f.clinicID, ticket.ID, actor, &model.EscalateTicketRequest{Priority: model.TicketPriorityUrgent})
	require.NoError(t, err)

	// Escalation banks the pause so far and re-anchors the pause start.
	escalated := f.repo.slas[ticket.ID]
	require.NotNil(t, escalated.PausedAt)
	assert.WithinDuration(t, time.Now(), *escalated.PausedAt, 2*time.Second)
	assert.InDelta(t, 2*3600, escalated.TotalPausedSecs, 5)

	_, err = f.svc.UpdateStatus(ctx, f.clinicID, ticket.ID, actor, &model.UpdateTicketStatusRequest{
		Status: model.TicketStatusInProgress,
	})
	require.NoError(t, err)

	// Resume credits only the sliver since escalation; the restarted
	// 120-minute budget does not absorb the pre-escalation pause again.
	resumed := f.repo.slas[ticket.ID]
	assert.Nil(t, resumed.PausedAt)
	assert.InDelta(t, 2*3600, resumed.TotalPausedSecs, 5)
	assert.WithinDuration(t, time.Now().Add(120*time.Minute), resumed.ResolutionDue, 5*time.Second)
}

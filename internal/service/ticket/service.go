package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

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
	policyCacheTTL   = 5 * time.Minute
	scheduleCacheTTL = 15 * time.Minute
)

type Service struct {
	repo    repository.TicketRepository
	slaRepo repository.SLARepository
	emitter event.Emitter
	auditor *audit.Service
	metrics *metrics.Metrics
	logger  *logger.Logger
	cache   *gocache.Cache
}

func NewService(
	repo repository.TicketRepository,
	slaRepo repository.SLARepository,
	emitter event.Emitter,
	auditor *audit.Service,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		repo:    repo,
		slaRepo: slaRepo,
		emitter: emitter,
		auditor: auditor,
		metrics: m,
		logger:  logger,
		cache:   gocache.New(policyCacheTTL, 10*time.Minute),
	}
}

func (s *Service) matchPolicy(ctx context.Context, clinicID uuid.UUID, priority model.TicketPriority, category string) (*model.SLAPolicyConfig, error) {
	key := fmt.Sprintf("policy:%s:%s:%s", clinicID, priority, category)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.SLAPolicyConfig), nil
	}

	policy, err := s.slaRepo.MatchPolicy(ctx, clinicID, priority, category)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.Precondition("no SLA policy configured for this priority")
		}
		return nil, fmt.Errorf("failed to match SLA policy: %w", err)
	}
	s.cache.Set(key, policy, policyCacheTTL)
	return policy, nil
}

func (s *Service) schedule(ctx context.Context, clinicID uuid.UUID) *Schedule {
	key := "schedule:" + clinicID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Schedule)
	}

	hours, err := s.slaRepo.GetBusinessHours(ctx, clinicID)
	if err != nil {
		s.logger.Error(err, "failed to load business hours", "clinic_id", clinicID)
		return NewSchedule(nil, nil)
	}
	holidays, err := s.slaRepo.ListHolidays(ctx, clinicID)
	if err != nil {
		s.logger.Error(err, "failed to load holidays", "clinic_id", clinicID)
		holidays = nil
	}

	sched := NewSchedule(hours, holidays)
	s.cache.Set(key, sched, scheduleCacheTTL)
	return sched
}

func (s *Service) dueDates(ctx context.Context, clinicID uuid.UUID, policy *model.SLAPolicyConfig, from time.Time) (firstResponse, resolution time.Time) {
	if policy.RespectBusinessHours {
		sched := s.schedule(ctx, clinicID)
		return sched.AddBusinessMinutes(from, policy.FirstResponseMinutes),
			sched.AddBusinessMinutes(from, policy.ResolutionMinutes)
	}
	return from.Add(time.Duration(policy.FirstResponseMinutes) * time.Minute),
		from.Add(time.Duration(policy.ResolutionMinutes) * time.Minute)
}

// Create opens a ticket and starts its SLA clock in the same transaction.
func (s *Service) Create(ctx context.Context, clinicID, actorID uuid.UUID, req *model.CreateTicketRequest) (*model.Ticket, error) {
	policy, err := s.matchPolicy(ctx, clinicID, req.Priority, req.Category)
	if err != nil {
		return nil, err
	}

	ticket := &model.Ticket{
		ClinicID:       clinicID,
		Subject:        req.Subject,
		Description:    req.Description,
		Status:         model.TicketStatusOpen,
		Priority:       req.Priority,
		Category:       req.Category,
		TeamID:         req.TeamID,
		RequesterID:    req.RequesterID,
		ParentTicketID: req.ParentTicketID,
	}

	now := time.Now()
	frDue, resDue := s.dueDates(ctx, clinicID, policy, now)
	sla := &model.TicketSLA{
		PolicyID:         policy.ID,
		FirstResponseDue: frDue,
		ResolutionDue:    resDue,
	}

	if err := s.repo.Create(ctx, ticket, sla); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	s.addActivity(ctx, ticket.ID, &actorID, model.TicketActivityCreated, "")
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionCreate, model.AuditEntityTicket, ticket.ID, &audit.LogOptions{Changes: ticket})
	return ticket, nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Ticket, error) {
	ticket, err := s.repo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("ticket", err)
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

func (s *Service) GetSLA(ctx context.Context, clinicID, id uuid.UUID) (*model.TicketSLA, error) {
	if _, err := s.Get(ctx, clinicID, id); err != nil {
		return nil, err
	}
	sla, err := s.slaRepo.GetByTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket SLA: %w", err)
	}
	return sla, nil
}

func (s *Service) List(ctx context.Context, filters *model.TicketFilters) ([]*model.Ticket, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) ListActivities(ctx context.Context, clinicID, id uuid.UUID) ([]*model.TicketActivity, error) {
	if _, err := s.Get(ctx, clinicID, id); err != nil {
		return nil, err
	}
	return s.repo.ListActivities(ctx, id)
}

func (s *Service) Assign(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.AssignTicketRequest) (*model.Ticket, error) {
	ticket, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == model.TicketStatusClosed {
		return nil, apperrors.Precondition("cannot assign a closed ticket")
	}

	ticket.AssigneeID = &req.AssigneeID
	if req.TeamID != nil {
		ticket.TeamID = req.TeamID
	}
	if ticket.Status == model.TicketStatusOpen {
		ticket.Status = model.TicketStatusInProgress
	}

	if err := s.repo.UpdateWithSLA(ctx, ticket, nil); err != nil {
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}
	s.addActivity(ctx, id, &actorID, model.TicketActivityAssigned, fmt.Sprintf("assigned to %s", req.AssigneeID))
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionUpdate, model.AuditEntityTicket, id, nil)
	return ticket, nil
}

// Escalate raises priority and restarts the resolution budget under the
// newly matched policy, keeping pause credit already earned.
func (s *Service) Escalate(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.EscalateTicketRequest) (*model.Ticket, error) {
	ticket, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == model.TicketStatusResolved || ticket.Status == model.TicketStatusClosed {
		return nil, apperrors.Precondition("cannot escalate a resolved or closed ticket")
	}
	if !priorityAbove(req.Priority, ticket.Priority) {
		return nil, apperrors.BadRequest("escalation must raise priority", nil)
	}

	policy, err := s.matchPolicy(ctx, clinicID, req.Priority, ticket.Category)
	if err != nil {
		return nil, err
	}

	sla, err := s.slaRepo.GetByTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket SLA: %w", err)
	}

	now := time.Now()
	_, resDue := s.dueDates(ctx, clinicID, policy, now)
	sla.PolicyID = policy.ID
	sla.ResolutionDue = resDue
	if ticket.FirstResponseAt == nil {
		frDue, _ := s.dueDates(ctx, clinicID, policy, now)
		sla.FirstResponseDue = frDue
	}

	// The restarted budget already excludes time paused so far; bank it
	// and re-anchor so resume only credits the pause from here on.
	if sla.Paused() {
		sla.TotalPausedSecs += int64(now.Sub(*sla.PausedAt).Seconds())
		sla.PausedAt = &now
	}

	ticket.Priority = req.Priority
	if err := s.repo.UpdateWithSLA(ctx, ticket, sla); err != nil {
		return nil, fmt.Errorf("failed to escalate ticket: %w", err)
	}
	s.addActivity(ctx, id, &actorID, model.TicketActivityEscalated, req.Note)
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionUpdate, model.AuditEntityTicket, id, nil)
	return ticket, nil
}

// Comment logs a note. The first staff comment stamps first response.
func (s *Service) Comment(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.CommentTicketRequest) (*model.Ticket, error) {
	ticket, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	if ticket.FirstResponseAt == nil && actorID != ticket.RequesterID {
		now := time.Now()
		ticket.FirstResponseAt = &now
		if err := s.repo.UpdateWithSLA(ctx, ticket, nil); err != nil {
			return nil, fmt.Errorf("failed to stamp first response: %w", err)
		}
	}

	s.addActivity(ctx, id, &actorID, model.TicketActivityCommented, req.Note)
	return ticket, nil
}

// UpdateStatus drives the ticket lifecycle. Entering PENDING_CUSTOMER
// freezes the SLA clock; leaving it extends both due dates by the paused
// duration. The status row and the clock always change together.
func (s *Service) UpdateStatus(ctx context.Context, clinicID, id, actorID uuid.UUID, req *model.UpdateTicketStatusRequest) (*model.Ticket, error) {
	ticket, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == req.Status {
		return ticket, nil
	}
	if err := validateStatusChange(ticket.Status, req.Status); err != nil {
		return nil, err
	}

	sla, err := s.slaRepo.GetByTicket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket SLA: %w", err)
	}

	now := time.Now()
	kind := model.TicketActivityStatus

	// Resume before anything else so due dates are correct for whatever
	// state comes next.
	if sla.Paused() && !req.Status.Paused() {
		paused := now.Sub(*sla.PausedAt)
		sla.TotalPausedSecs += int64(paused.Seconds())
		sla.FirstResponseDue = sla.FirstResponseDue.Add(paused)
		sla.ResolutionDue = sla.ResolutionDue.Add(paused)
		sla.PausedAt = nil
	}

	switch req.Status {
	case model.TicketStatusPendingCustomer:
		sla.PausedAt = &now
	case model.TicketStatusResolved:
		ticket.ResolvedAt = &now
		kind = model.TicketActivityResolved
	case model.TicketStatusClosed:
		ticket.ClosedAt = &now
		kind = model.TicketActivityClosed
	case model.TicketStatusOpen:
		if ticket.Status == model.TicketStatusResolved {
			// Reopen: the resolution budget restarts; a past breach stands.
			ticket.ReopenCount++
			ticket.ResolvedAt = nil
			kind = model.TicketActivityReopened

			policy, polErr := s.slaRepo.GetPolicy(ctx, sla.PolicyID)
			if polErr != nil {
				return nil, fmt.Errorf("failed to load SLA policy: %w", polErr)
			}
			_, resDue := s.dueDates(ctx, clinicID, policy, now)
			sla.ResolutionDue = resDue
		}
	}

	ticket.Status = req.Status
	if err := s.repo.UpdateWithSLA(ctx, ticket, sla); err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}

	s.addActivity(ctx, id, &actorID, kind, req.Note)
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionTransition, model.AuditEntityTicket, id, nil)
	return ticket, nil
}

func validateStatusChange(from, to model.TicketStatus) error {
	if from == model.TicketStatusClosed {
		return apperrors.Precondition("closed tickets cannot change status")
	}
	if from == model.TicketStatusResolved && to != model.TicketStatusOpen && to != model.TicketStatusClosed {
		return apperrors.Precondition("resolved tickets can only be reopened or closed")
	}
	return nil
}

var priorityRank = map[model.TicketPriority]int{
	model.TicketPriorityLow:    0,
	model.TicketPriorityMedium: 1,
	model.TicketPriorityHigh:   2,
	model.TicketPriorityUrgent: 3,
}

func priorityAbove(a, b model.TicketPriority) bool {
	return priorityRank[a] > priorityRank[b]
}

func (s *Service) UpsertPolicy(ctx context.Context, clinicID *uuid.UUID, req *model.UpsertSLAPolicyRequest) (*model.SLAPolicyConfig, error) {
	policy := &model.SLAPolicyConfig{
		ClinicID:             clinicID,
		Priority:             req.Priority,
		Category:             req.Category,
		FirstResponseMinutes: req.FirstResponseMinutes,
		ResolutionMinutes:    req.ResolutionMinutes,
		RespectBusinessHours: req.RespectBusinessHours,
		WarningThresholdPct:  req.WarningThresholdPct,
	}
	if err := s.slaRepo.UpsertPolicy(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to upsert SLA policy: %w", err)
	}
	s.cache.Flush()
	return policy, nil
}

func (s *Service) ListPolicies(ctx context.Context, clinicID uuid.UUID) ([]*model.SLAPolicyConfig, error) {
	return s.slaRepo.ListPolicies(ctx, clinicID)
}

// CheckBreaches marks every open past-due SLA breached. Breach is
// one-directional; nothing here ever clears breached_at.
func (s *Service) CheckBreaches(ctx context.Context, now time.Time) (int, error) {
	pastDue, err := s.slaRepo.ListOpenPastDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list past-due SLAs: %w", err)
	}

	breached := 0
	for _, sla := range pastDue {
		sla.BreachedAt = &now
		if err := s.slaRepo.UpdateSLA(ctx, sla); err != nil {
			s.logger.Error(err, "failed to mark SLA breached", "ticket_id", sla.TicketID)
			continue
		}
		s.metrics.SLABreaches.Inc()
		s.addActivity(ctx, sla.TicketID, nil, model.TicketActivitySLABreach, "resolution SLA breached")
		if err := s.emitter.Emit(ctx, model.EventTicketSLABreach, sla); err != nil {
			s.logger.Error(err, "failed to emit SLA breach event", "ticket_id", sla.TicketID)
		}
		breached++
	}
	return breached, nil
}

// CheckWarnings fires the single warning once elapsed time crosses the
// policy's threshold percentage of the resolution window.
func (s *Service) CheckWarnings(ctx context.Context, now time.Time) (int, error) {
	candidates, err := s.slaRepo.ListOpenUnwarned(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unwarned SLAs: %w", err)
	}

	warned := 0
	for _, sla := range candidates {
		policy, err := s.slaRepo.GetPolicy(ctx, sla.PolicyID)
		if err != nil {
			s.logger.Error(err, "failed to load SLA policy", "ticket_id", sla.TicketID)
			continue
		}
		pct := policy.WarningThresholdPct
		if pct <= 0 {
			continue
		}

		window := sla.ResolutionDue.Sub(sla.CreatedAt)
		warnAt := sla.CreatedAt.Add(window * time.Duration(pct) / 100)
		if now.Before(warnAt) {
			continue
		}

		sla.WarningFiredAt = &now
		if err := s.slaRepo.UpdateSLA(ctx, sla); err != nil {
			s.logger.Error(err, "failed to mark SLA warning", "ticket_id", sla.TicketID)
			continue
		}
		s.metrics.SLAWarnings.Inc()
		s.addActivity(ctx, sla.TicketID, nil, model.TicketActivitySLAWarning, "resolution SLA approaching")
		if err := s.emitter.Emit(ctx, model.EventTicketSLAWarning, sla); err != nil {
			s.logger.Error(err, "failed to emit SLA warning event", "ticket_id", sla.TicketID)
		}
		warned++
	}
	return warned, nil
}

func (s *Service) addActivity(ctx context.Context, ticketID uuid.UUID, actorID *uuid.UUID, kind model.TicketActivityKind, note string) {
	activity := &model.TicketActivity{
		TicketID: ticketID,
		ActorID:  actorID,
		Kind:     kind,
		Note:     note,
	}
	if err := s.repo.AddActivity(ctx, activity); err != nil {
		s.logger.Error(err, "failed to add ticket activity", "ticket_id", ticketID)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
)

const slaPolicyColumns = `
	id, clinic_id, priority, category, first_response_minutes,
	resolution_minutes, respect_business_hours, warning_threshold_pct,
	created_at, updated_at, deleted_at`

// MatchPolicy prefers a clinic-scoped priority+category policy, then
// clinic-scoped priority-only, then global defaults in the same order.
func (r *slaRepository) MatchPolicy(ctx context.Context, clinicID uuid.UUID, priority model.TicketPriority, category string) (*model.SLAPolicyConfig, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies
		WHERE (clinic_id = $1 OR clinic_id IS NULL)
		AND priority = $2
		AND (category = $3 OR category = '')
		AND deleted_at IS NULL
		ORDER BY (clinic_id IS NULL) ASC, (category = '') ASC
		LIMIT 1`

	var policy model.SLAPolicyConfig
	if err := r.db.GetContext(ctx, &policy, query, clinicID, priority, category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to match SLA policy: %w", err)
	}
	return &policy, nil
}

func (r *slaRepository) UpsertPolicy(ctx context.Context, policy *model.SLAPolicyConfig) error {
	query := `
		INSERT INTO sla_policies (
			id, clinic_id, priority, category, first_response_minutes,
			resolution_minutes, respect_business_hours, warning_threshold_pct,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (clinic_id, priority, category) DO UPDATE SET
			first_response_minutes = EXCLUDED.first_response_minutes,
			resolution_minutes = EXCLUDED.resolution_minutes,
			respect_business_hours = EXCLUDED.respect_business_hours,
			warning_threshold_pct = EXCLUDED.warning_threshold_pct,
			updated_at = EXCLUDED.updated_at
	`
	if policy.ID == uuid.Nil {
		policy.ID = uuid.New()
	}
	now := time.Now()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		policy.ID, policy.ClinicID, policy.Priority, policy.Category,
		policy.FirstResponseMinutes, policy.ResolutionMinutes,
		policy.RespectBusinessHours, policy.WarningThresholdPct,
		policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert SLA policy: %w", err)
	}
	return nil
}

func (r *slaRepository) GetPolicy(ctx context.Context, id uuid.UUID) (*model.SLAPolicyConfig, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies
		WHERE id = $1 AND deleted_at IS NULL`

	var policy model.SLAPolicyConfig
	if err := r.db.GetContext(ctx, &policy, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get SLA policy: %w", err)
	}
	return &policy, nil
}

func (r *slaRepository) ListPolicies(ctx context.Context, clinicID uuid.UUID) ([]*model.SLAPolicyConfig, error) {
	query := `SELECT ` + slaPolicyColumns + ` FROM sla_policies
		WHERE (clinic_id = $1 OR clinic_id IS NULL) AND deleted_at IS NULL
		ORDER BY priority, category`

	var policies []*model.SLAPolicyConfig
	if err := r.db.SelectContext(ctx, &policies, query, clinicID); err != nil {
		return nil, fmt.Errorf("failed to list SLA policies: %w", err)
	}
	return policies, nil
}

const ticketSLAColumns = `
	id, ticket_id, policy_id, first_response_due, resolution_due,
	paused_at, total_paused_secs, warning_fired_at, breached_at,
	created_at, updated_at`

func (r *slaRepository) GetByTicket(ctx context.Context, ticketID uuid.UUID) (*model.TicketSLA, error) {
	query := `SELECT ` + ticketSLAColumns + ` FROM ticket_slas WHERE ticket_id = $1`

	var sla model.TicketSLA
	if err := r.db.GetContext(ctx, &sla, query, ticketID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get ticket SLA: %w", err)
	}
	return &sla, nil
}

func (r *slaRepository) UpdateSLA(ctx context.Context, sla *model.TicketSLA) error {
	query := `
		UPDATE ticket_slas
		SET first_response_due = $1, resolution_due = $2, paused_at = $3,
			total_paused_secs = $4, warning_fired_at = $5, breached_at = $6,
			updated_at = $7
		WHERE id = $8
	`
	sla.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		sla.FirstResponseDue, sla.ResolutionDue, sla.PausedAt,
		sla.TotalPausedSecs, sla.WarningFiredAt, sla.BreachedAt,
		sla.UpdatedAt, sla.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update ticket SLA: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNoRows
	}
	return nil
}

func (r *slaRepository) ListOpenPastDue(ctx context.Context, now time.Time) ([]*model.TicketSLA, error) {
	query := `SELECT s.id, s.ticket_id, s.policy_id, s.first_response_due,
		s.resolution_due, s.paused_at, s.total_paused_secs, s.warning_fired_at,
		s.breached_at, s.created_at, s.updated_at
		FROM ticket_slas s
		JOIN tickets t ON t.id = s.ticket_id
		WHERE s.breached_at IS NULL
		AND s.paused_at IS NULL
		AND s.resolution_due <= $1
		AND t.status NOT IN ('RESOLVED', 'CLOSED')
		AND t.deleted_at IS NULL`

	var slas []*model.TicketSLA
	if err := r.db.SelectContext(ctx, &slas, query, now); err != nil {
		return nil, fmt.Errorf("failed to list past-due SLAs: %w", err)
	}
	return slas, nil
}

func (r *slaRepository) ListOpenUnwarned(ctx context.Context) ([]*model.TicketSLA, error) {
	query := `SELECT s.id, s.ticket_id, s.policy_id, s.first_response_due,
		s.resolution_due, s.paused_at, s.total_paused_secs, s.warning_fired_at,
		s.breached_at, s.created_at, s.updated_at
		FROM ticket_slas s
		JOIN tickets t ON t.id = s.ticket_id
		WHERE s.breached_at IS NULL
		AND s.warning_fired_at IS NULL
		AND s.paused_at IS NULL
		AND t.status NOT IN ('RESOLVED', 'CLOSED')
		AND t.deleted_at IS NULL`

	var slas []*model.TicketSLA
	if err := r.db.SelectContext(ctx, &slas, query); err != nil {
		return nil, fmt.Errorf("failed to list unwarned SLAs: %w", err)
	}
	return slas, nil
}

func (r *slaRepository) GetBusinessHours(ctx context.Context, clinicID uuid.UUID) ([]*model.BusinessHours, error) {
	query := `SELECT id, clinic_id, weekday, open_mins, close_mins
		FROM business_hours WHERE clinic_id = $1 ORDER BY weekday`

	var hours []*model.BusinessHours
	if err := r.db.SelectContext(ctx, &hours, query, clinicID); err != nil {
		return nil, fmt.Errorf("failed to get business hours: %w", err)
	}
	return hours, nil
}

func (r *slaRepository) ListHolidays(ctx context.Context, clinicID uuid.UUID) ([]*model.Holiday, error) {
	query := `SELECT id, clinic_id, date, name
		FROM holidays WHERE clinic_id = $1 ORDER BY date`

	var holidays []*model.Holiday
	if err := r.db.SelectContext(ctx, &holidays, query, clinicID); err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	return holidays, nil
}

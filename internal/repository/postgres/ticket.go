package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eonpro/ops-api/internal/model"
)

const ticketColumns = `
	id, clinic_id, subject, description, status, priority, category,
	team_id, assignee_id, requester_id, parent_ticket_id, reopen_count,
	first_response_at, resolved_at, closed_at, created_at, updated_at, deleted_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *model.Ticket, sla *model.TicketSLA) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		ticketQuery := `
			INSERT INTO tickets (
				id, clinic_id, subject, description, status, priority, category,
				team_id, assignee_id, requester_id, parent_ticket_id, reopen_count,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13)
		`
		ticket.ID = uuid.New()
		now := time.Now()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now

		_, err := tx.ExecContext(ctx, ticketQuery,
			ticket.ID, ticket.ClinicID, ticket.Subject, ticket.Description,
			ticket.Status, ticket.Priority, ticket.Category, ticket.TeamID,
			ticket.AssigneeID, ticket.RequesterID, ticket.ParentTicketID,
			ticket.CreatedAt, ticket.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}

		slaQuery := `
			INSERT INTO ticket_slas (
				id, ticket_id, policy_id, first_response_due, resolution_due,
				total_paused_secs, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, 0, $6, $7)
		`
		sla.ID = uuid.New()
		sla.TicketID = ticket.ID
		sla.CreatedAt = now
		sla.UpdatedAt = now

		_, err = tx.ExecContext(ctx, slaQuery,
			sla.ID, sla.TicketID, sla.PolicyID, sla.FirstResponseDue,
			sla.ResolutionDue, sla.CreatedAt, sla.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket SLA: %w", err)
		}
		return nil
	})
}

func (r *ticketRepository) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var ticket model.Ticket
	if err := r.db.GetContext(ctx, &ticket, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}

func (r *ticketRepository) UpdateWithSLA(ctx context.Context, ticket *model.Ticket, sla *model.TicketSLA) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		ticketQuery := `
			UPDATE tickets
			SET status = $1, priority = $2, team_id = $3, assignee_id = $4,
				reopen_count = $5, first_response_at = $6, resolved_at = $7,
				closed_at = $8, updated_at = $9
			WHERE id = $10 AND clinic_id = $11
		`
		ticket.UpdatedAt = time.Now()

		result, err := tx.ExecContext(ctx, ticketQuery,
			ticket.Status, ticket.Priority, ticket.TeamID, ticket.AssigneeID,
			ticket.ReopenCount, ticket.FirstResponseAt, ticket.ResolvedAt,
			ticket.ClosedAt, ticket.UpdatedAt, ticket.ID, ticket.ClinicID,
		)
		if err != nil {
			return fmt.Errorf("failed to update ticket: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return ErrNoRows
		}

		if sla == nil {
			return nil
		}

		slaQuery := `
			UPDATE ticket_slas
			SET first_response_due = $1, resolution_due = $2, paused_at = $3,
				total_paused_secs = $4, warning_fired_at = $5, breached_at = $6,
				updated_at = $7
			WHERE id = $8
		`
		sla.UpdatedAt = ticket.UpdatedAt

		_, err = tx.ExecContext(ctx, slaQuery,
			sla.FirstResponseDue, sla.ResolutionDue, sla.PausedAt,
			sla.TotalPausedSecs, sla.WarningFiredAt, sla.BreachedAt,
			sla.UpdatedAt, sla.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update ticket SLA: %w", err)
		}
		return nil
	})
}

func (r *ticketRepository) List(ctx context.Context, filters *model.TicketFilters) ([]*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE clinic_id = $1 AND deleted_at IS NULL`
	args := []interface{}{filters.ClinicID}
	argCount := 2

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	if filters.Priority != "" {
		query += fmt.Sprintf(" AND priority = $%d", argCount)
		args = append(args, filters.Priority)
		argCount++
	}

	if filters.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filters.Category)
		argCount++
	}

	if filters.AssigneeID != uuid.Nil {
		query += fmt.Sprintf(" AND assignee_id = $%d", argCount)
		args = append(args, filters.AssigneeID)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	var tickets []*model.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

func (r *ticketRepository) AddActivity(ctx context.Context, activity *model.TicketActivity) error {
	query := `INSERT INTO ticket_activities (id, ticket_id, actor_id, kind, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	activity.ID = uuid.New()
	activity.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		activity.ID, activity.TicketID, activity.ActorID, activity.Kind,
		activity.Note, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to add ticket activity: %w", err)
	}
	return nil
}

func (r *ticketRepository) ListActivities(ctx context.Context, ticketID uuid.UUID) ([]*model.TicketActivity, error) {
	query := `SELECT id, ticket_id, actor_id, kind, note, created_at
		FROM ticket_activities WHERE ticket_id = $1 ORDER BY created_at ASC`

	var activities []*model.TicketActivity
	if err := r.db.SelectContext(ctx, &activities, query, ticketID); err != nil {
		return nil, fmt.Errorf("failed to list ticket activities: %w", err)
	}
	return activities, nil
}

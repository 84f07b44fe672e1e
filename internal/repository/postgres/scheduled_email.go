package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
)

func (r *scheduledEmailRepository) Create(ctx context.Context, email *model.ScheduledEmail) error {
	query := `
		INSERT INTO scheduled_emails (
			id, clinic_id, recipient, subject, body, kind, refill_id,
			send_after, status, retry_count, max_retries, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11, $12)
	`
	email.ID = uuid.New()
	now := time.Now()
	email.CreatedAt = now
	email.UpdatedAt = now
	if email.Status == "" {
		email.Status = model.ScheduledEmailStatusPending
	}
	if email.MaxRetries == 0 {
		email.MaxRetries = 3
	}

	_, err := r.db.ExecContext(ctx, query,
		email.ID, email.ClinicID, email.Recipient, email.Subject, email.Body,
		email.Kind, email.RefillID, email.SendAfter, email.Status,
		email.MaxRetries, email.CreatedAt, email.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create scheduled email: %w", err)
	}
	return nil
}

func (r *scheduledEmailRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledEmail, error) {
	query := `
		SELECT id, clinic_id, recipient, subject, body, kind, refill_id,
			send_after, status, retry_count, max_retries, last_error, sent_at,
			created_at, updated_at, deleted_at
		FROM scheduled_emails
		WHERE status = 'PENDING' AND send_after <= $1 AND retry_count < max_retries
		ORDER BY send_after ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`
	var emails []*model.ScheduledEmail
	if err := r.db.SelectContext(ctx, &emails, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list due emails: %w", err)
	}
	return emails, nil
}

func (r *scheduledEmailRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE scheduled_emails SET status = 'SENT', sent_at = $1, updated_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	return nil
}

func (r *scheduledEmailRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE scheduled_emails
		SET retry_count = retry_count + 1,
			last_error = $1,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'FAILED' ELSE 'PENDING' END,
			updated_at = $2
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, errMsg, time.Now(), id); err != nil {
		return fmt.Errorf("failed to mark email failed: %w", err)
	}
	return nil
}

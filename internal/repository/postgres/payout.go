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

func (r *payoutRepository) Create(ctx context.Context, tx *sqlx.Tx, payout *model.Payout) error {
	query := `
		INSERT INTO payouts (
			id, clinic_id, affiliate_id, total_cents, event_count, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	payout.ID = uuid.New()
	now := time.Now()
	payout.CreatedAt = now
	payout.UpdatedAt = now

	var ec sqlx.ExtContext = r.db
	if tx != nil {
		ec = tx
	}

	_, err := ec.ExecContext(ctx, query,
		payout.ID, payout.ClinicID, payout.AffiliateID, payout.TotalCents,
		payout.EventCount, payout.Status, payout.CreatedAt, payout.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

func (r *payoutRepository) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Payout, error) {
	query := `SELECT id, clinic_id, affiliate_id, total_cents, event_count, status,
		settled_at, failure_note, created_at, updated_at, deleted_at
		FROM payouts WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var payout model.Payout
	if err := r.db.GetContext(ctx, &payout, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return &payout, nil
}

func (r *payoutRepository) Settle(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.PayoutStatus, failureNote *string) error {
	query := `UPDATE payouts SET status = $1, failure_note = $2, settled_at = $3, updated_at = $3
		WHERE id = $4 AND status = 'PENDING'`

	var ec sqlx.ExtContext = r.db
	if tx != nil {
		ec = tx
	}

	result, err := ec.ExecContext(ctx, query, status, failureNote, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to settle payout: %w", err)
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

func (r *payoutRepository) List(ctx context.Context, clinicID uuid.UUID) ([]*model.Payout, error) {
	query := `SELECT id, clinic_id, affiliate_id, total_cents, event_count, status,
		settled_at, failure_note, created_at, updated_at, deleted_at
		FROM payouts WHERE clinic_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	var payouts []*model.Payout
	if err := r.db.SelectContext(ctx, &payouts, query, clinicID); err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	return payouts, nil
}

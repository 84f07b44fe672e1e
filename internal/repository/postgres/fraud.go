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

func (r *fraudAlertRepository) Create(ctx context.Context, alert *model.FraudAlert) error {
	query := `
		INSERT INTO fraud_alerts (
			id, clinic_id, commission_event_id, risk_score, reason, status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	alert.ID = uuid.New()
	now := time.Now()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.ClinicID, alert.CommissionEventID, alert.RiskScore,
		alert.Reason, alert.Status, alert.CreatedAt, alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fraud alert: %w", err)
	}
	return nil
}

func (r *fraudAlertRepository) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.FraudAlert, error) {
	query := `SELECT id, clinic_id, commission_event_id, risk_score, reason, status,
		resolved_at, resolved_by, created_at, updated_at, deleted_at
		FROM fraud_alerts WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var alert model.FraudAlert
	if err := r.db.GetContext(ctx, &alert, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get fraud alert: %w", err)
	}
	return &alert, nil
}

func (r *fraudAlertRepository) Resolve(ctx context.Context, id uuid.UUID, status model.FraudAlertStatus, resolvedBy uuid.UUID) error {
	query := `UPDATE fraud_alerts
		SET status = $1, resolved_at = $2, resolved_by = $3, updated_at = $2
		WHERE id = $4 AND status = 'OPEN'`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), resolvedBy, id)
	if err != nil {
		return fmt.Errorf("failed to resolve fraud alert: %w", err)
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

func (r *fraudAlertRepository) ListHoldingForEvent(ctx context.Context, eventID uuid.UUID) ([]*model.FraudAlert, error) {
	query := `SELECT id, clinic_id, commission_event_id, risk_score, reason, status,
		resolved_at, resolved_by, created_at, updated_at, deleted_at
		FROM fraud_alerts
		WHERE commission_event_id = $1
		AND status IN ('OPEN', 'CONFIRMED_FRAUD')
		AND deleted_at IS NULL`

	var alerts []*model.FraudAlert
	if err := r.db.SelectContext(ctx, &alerts, query, eventID); err != nil {
		return nil, fmt.Errorf("failed to list holding fraud alerts: %w", err)
	}
	return alerts, nil
}

func (r *fraudAlertRepository) List(ctx context.Context, clinicID uuid.UUID, status model.FraudAlertStatus) ([]*model.FraudAlert, error) {
	query := `SELECT id, clinic_id, commission_event_id, risk_score, reason, status,
		resolved_at, resolved_by, created_at, updated_at, deleted_at
		FROM fraud_alerts WHERE clinic_id = $1 AND deleted_at IS NULL`
	args := []interface{}{clinicID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, status)
	}

	query += " ORDER BY created_at DESC"

	var alerts []*model.FraudAlert
	if err := r.db.SelectContext(ctx, &alerts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list fraud alerts: %w", err)
	}
	return alerts, nil
}

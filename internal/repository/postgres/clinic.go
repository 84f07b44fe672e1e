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

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	query := `
		INSERT INTO clinics (id, name, location, timezone, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	clinic.ID = uuid.New()
	now := time.Now()
	clinic.CreatedAt = now
	clinic.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		clinic.ID, clinic.Name, clinic.Location, clinic.Timezone,
		clinic.Status, clinic.CreatedAt, clinic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create clinic: %w", err)
	}

	// Every clinic starts with default operational settings.
	configQuery := `
		INSERT INTO clinic_configs (
			clinic_id, auto_hold_on_high_risk, risk_score_threshold,
			reminder_lead_days, default_bud_days, stripe_match_window_hr
		) VALUES ($1, true, 75, 7, $2, 72)
	`
	if _, err := r.db.ExecContext(ctx, configQuery, clinic.ID, model.DefaultBUDDays); err != nil {
		return fmt.Errorf("failed to create clinic config: %w", err)
	}
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	query := `SELECT id, name, location, timezone, status, created_at, updated_at, deleted_at
		FROM clinics WHERE id = $1 AND deleted_at IS NULL`

	var clinic model.Clinic
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	return &clinic, nil
}

func (r *clinicRepository) Update(ctx context.Context, clinic *model.Clinic) error {
	query := `UPDATE clinics SET name = $1, location = $2, timezone = $3, status = $4, updated_at = $5
		WHERE id = $6 AND deleted_at IS NULL`
	clinic.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		clinic.Name, clinic.Location, clinic.Timezone, clinic.Status,
		clinic.UpdatedAt, clinic.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update clinic: %w", err)
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

func (r *clinicRepository) List(ctx context.Context) ([]*model.Clinic, error) {
	query := `SELECT id, name, location, timezone, status, created_at, updated_at, deleted_at
		FROM clinics WHERE deleted_at IS NULL ORDER BY name`

	var clinics []*model.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query); err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, nil
}

func (r *clinicRepository) GetConfig(ctx context.Context, clinicID uuid.UUID) (*model.ClinicConfig, error) {
	query := `SELECT clinic_id, auto_hold_on_high_risk, risk_score_threshold,
		reminder_lead_days, default_bud_days, stripe_match_window_hr
		FROM clinic_configs WHERE clinic_id = $1`

	var config model.ClinicConfig
	if err := r.db.GetContext(ctx, &config, query, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get clinic config: %w", err)
	}
	return &config, nil
}

func (r *clinicRepository) UpdateConfig(ctx context.Context, config *model.ClinicConfig) error {
	query := `UPDATE clinic_configs
		SET auto_hold_on_high_risk = $1, risk_score_threshold = $2,
			reminder_lead_days = $3, default_bud_days = $4, stripe_match_window_hr = $5
		WHERE clinic_id = $6`

	result, err := r.db.ExecContext(ctx, query,
		config.AutoHoldOnHighRisk, config.RiskScoreThreshold,
		config.ReminderLeadDays, config.DefaultBUDDays,
		config.StripeMatchWindowHr, config.ClinicID,
	)
	if err != nil {
		return fmt.Errorf("failed to update clinic config: %w", err)
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

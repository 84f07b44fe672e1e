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

const patientColumns = `
	id, clinic_id, name, email, phone, date_of_birth, stripe_customer_id,
	status, created_at, updated_at, deleted_at`

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (
			id, clinic_id, name, email, phone, date_of_birth, stripe_customer_id,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	patient.ID = uuid.New()
	now := time.Now()
	patient.CreatedAt = now
	patient.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		patient.ID, patient.ClinicID, patient.Name, patient.Email,
		patient.Phone, patient.DateOfBirth, patient.StripeCustomerID,
		patient.Status, patient.CreatedAt, patient.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) Update(ctx context.Context, patient *model.Patient) error {
	query := `UPDATE patients
		SET name = $1, email = $2, phone = $3, date_of_birth = $4,
			stripe_customer_id = $5, status = $6, updated_at = $7
		WHERE id = $8 AND clinic_id = $9 AND deleted_at IS NULL`
	patient.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		patient.Name, patient.Email, patient.Phone, patient.DateOfBirth,
		patient.StripeCustomerID, patient.Status, patient.UpdatedAt,
		patient.ID, patient.ClinicID,
	)
	if err != nil {
		return fmt.Errorf("failed to update patient: %w", err)
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

func (r *patientRepository) Delete(ctx context.Context, clinicID, id uuid.UUID) error {
	query := `UPDATE patients SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND clinic_id = $3 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, time.Now(), id, clinicID)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
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

func (r *patientRepository) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients
		WHERE clinic_id = $1 AND deleted_at IS NULL`
	args := []interface{}{filters.ClinicID}
	argCount := 2

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	if filters.SearchTerm != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", argCount, argCount)
		args = append(args, "%"+filters.SearchTerm+"%")
		argCount++
	}

	query += " ORDER BY name"

	var patients []*model.Patient
	if err := r.db.SelectContext(ctx, &patients, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

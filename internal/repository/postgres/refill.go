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

const refillColumns = `
	id, clinic_id, patient_id, subscription_id, medication_name, status,
	next_refill_date, last_refill_date, refill_interval_days, vial_count,
	shipment_number, total_shipments, parent_refill_id, bud_days, supply_days,
	payment_verified, payment_verified_at, payment_method, payment_reference,
	admin_approved, admin_approved_at, admin_approved_by,
	provider_queued_at, prescribed_at, rejection_reason, hold_reason,
	reminder_sent_at, patient_notified_at, fulfilled_at,
	order_amount_cents, created_at, updated_at, deleted_at`

func (r *refillRepository) Create(ctx context.Context, refill *model.Refill) error {
	return r.insert(ctx, r.db, refill)
}

func (r *refillRepository) CreateSeries(ctx context.Context, refills []*model.Refill) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, refill := range refills {
			if err := r.insert(ctx, tx, refill); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *refillRepository) insert(ctx context.Context, ec sqlx.ExtContext, refill *model.Refill) error {
	query := `
		INSERT INTO refills (
			id, clinic_id, patient_id, subscription_id, medication_name, status,
			next_refill_date, refill_interval_days, vial_count,
			shipment_number, total_shipments, parent_refill_id, bud_days, supply_days,
			order_amount_cents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	if refill.ID == uuid.Nil {
		refill.ID = uuid.New()
	}
	now := time.Now()
	refill.CreatedAt = now
	refill.UpdatedAt = now

	_, err := ec.ExecContext(ctx, query,
		refill.ID,
		refill.ClinicID,
		refill.PatientID,
		refill.SubscriptionID,
		refill.MedicationName,
		refill.Status,
		refill.NextRefillDate,
		refill.RefillIntervalDays,
		refill.VialCount,
		refill.ShipmentNumber,
		refill.TotalShipments,
		refill.ParentRefillID,
		refill.BUDDays,
		refill.SupplyDays,
		refill.OrderAmountCents,
		refill.CreatedAt,
		refill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create refill: %w", err)
	}
	return nil
}

func (r *refillRepository) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Refill, error) {
	query := `SELECT ` + refillColumns + ` FROM refills WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var refill model.Refill
	err := r.db.GetContext(ctx, &refill, query, id, clinicID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get refill: %w", err)
	}
	return &refill, nil
}

func (r *refillRepository) GetSeries(ctx context.Context, clinicID, parentID uuid.UUID) ([]*model.Refill, error) {
	query := `SELECT ` + refillColumns + ` FROM refills
		WHERE clinic_id = $1 AND (id = $2 OR parent_refill_id = $2) AND deleted_at IS NULL
		ORDER BY shipment_number ASC`

	var refills []*model.Refill
	if err := r.db.SelectContext(ctx, &refills, query, clinicID, parentID); err != nil {
		return nil, fmt.Errorf("failed to get refill series: %w", err)
	}
	return refills, nil
}

func (r *refillRepository) Update(ctx context.Context, refill *model.Refill, expectedUpdatedAt time.Time) error {
	query := `
		UPDATE refills
		SET status = $1, payment_verified = $2, payment_verified_at = $3,
			payment_method = $4, payment_reference = $5,
			admin_approved = $6, admin_approved_at = $7, admin_approved_by = $8,
			provider_queued_at = $9, prescribed_at = $10, rejection_reason = $11,
			hold_reason = $12, reminder_sent_at = $13, patient_notified_at = $14,
			fulfilled_at = $15, next_refill_date = $16, last_refill_date = $17,
			updated_at = $18
		WHERE id = $19 AND clinic_id = $20 AND updated_at = $21
	`
	refill.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		refill.Status,
		refill.PaymentVerified,
		refill.PaymentVerifiedAt,
		refill.PaymentMethod,
		refill.PaymentReference,
		refill.AdminApproved,
		refill.AdminApprovedAt,
		refill.AdminApprovedBy,
		refill.ProviderQueuedAt,
		refill.PrescribedAt,
		refill.RejectionReason,
		refill.HoldReason,
		refill.ReminderSentAt,
		refill.PatientNotifiedAt,
		refill.FulfilledAt,
		refill.NextRefillDate,
		refill.LastRefillDate,
		refill.UpdatedAt,
		refill.ID,
		refill.ClinicID,
		expectedUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update refill: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrStaleRow
	}
	return nil
}

func (r *refillRepository) List(ctx context.Context, filters *model.RefillFilters) ([]*model.Refill, error) {
	query := `SELECT ` + refillColumns + ` FROM refills WHERE clinic_id = $1 AND deleted_at IS NULL`
	args := []interface{}{filters.ClinicID}
	argCount := 2

	if filters.PatientID != uuid.Nil {
		query += fmt.Sprintf(" AND patient_id = $%d", argCount)
		args = append(args, filters.PatientID)
		argCount++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	if !filters.DueBefore.IsZero() {
		query += fmt.Sprintf(" AND next_refill_date <= $%d", argCount)
		args = append(args, filters.DueBefore)
		argCount++
	}

	query += " ORDER BY next_refill_date ASC"

	var refills []*model.Refill
	if err := r.db.SelectContext(ctx, &refills, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list refills: %w", err)
	}
	return refills, nil
}

func (r *refillRepository) ListDueForReminder(ctx context.Context, now time.Time, fallbackLeadDays int) ([]*model.Refill, error) {
	// Each clinic's reminder_lead_days widens or narrows its own window;
	// $2 covers clinics with no config row or a zero lead.
	query := `SELECT ` + refillColumns + ` FROM refills
		WHERE deleted_at IS NULL
		AND status NOT IN ('PRESCRIBED', 'REJECTED', 'CANCELLED')
		AND reminder_sent_at IS NULL
		AND next_refill_date <= $1 + (COALESCE(
			(SELECT NULLIF(cc.reminder_lead_days, 0) FROM clinic_configs cc WHERE cc.clinic_id = refills.clinic_id),
			$2) || ' days')::interval
		ORDER BY next_refill_date ASC`

	var refills []*model.Refill
	if err := r.db.SelectContext(ctx, &refills, query, now, fallbackLeadDays); err != nil {
		return nil, fmt.Errorf("failed to list refills due for reminder: %w", err)
	}
	return refills, nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eonpro/ops-api/internal/model"
)

// ErrDuplicateOrder signals the unique order_id constraint fired; retried
// webhook deliveries must not double-credit.
var ErrDuplicateOrder = errors.New("commission event already recorded for order")

func (r *commissionRepository) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return withTx(ctx, r.db, fn)
}

func (r *commissionRepository) CreatePlan(ctx context.Context, plan *model.CommissionPlan) error {
	query := `
		INSERT INTO commission_plans (
			id, clinic_id, name, owner_kind, plan_type, flat_amount_cents,
			percent_bps, tier_enabled, recurring_months, recurring_decay_pct,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	plan.ID = uuid.New()
	now := time.Now()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		plan.ID, plan.ClinicID, plan.Name, plan.OwnerKind, plan.PlanType,
		plan.FlatAmountCents, plan.PercentBps, plan.TierEnabled,
		plan.RecurringMonths, plan.RecurringDecayPct, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create commission plan: %w", err)
	}
	return nil
}

func (r *commissionRepository) GetPlan(ctx context.Context, id uuid.UUID) (*model.CommissionPlan, error) {
	query := `SELECT id, clinic_id, name, owner_kind, plan_type, flat_amount_cents,
		percent_bps, tier_enabled, recurring_months, recurring_decay_pct,
		created_at, updated_at, deleted_at
		FROM commission_plans WHERE id = $1 AND deleted_at IS NULL`

	var plan model.CommissionPlan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get commission plan: %w", err)
	}
	return &plan, nil
}

func (r *commissionRepository) CreateTier(ctx context.Context, tier *model.CommissionTier) error {
	tier.ID = uuid.New()
	query := `INSERT INTO commission_tiers (id, plan_id, min_conversions, bonus_cents)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, tier.ID, tier.PlanID, tier.MinConversions, tier.BonusCents); err != nil {
		return fmt.Errorf("failed to create commission tier: %w", err)
	}
	return nil
}

func (r *commissionRepository) ListTiers(ctx context.Context, planID uuid.UUID) ([]*model.CommissionTier, error) {
	query := `SELECT id, plan_id, min_conversions, bonus_cents
		FROM commission_tiers WHERE plan_id = $1 ORDER BY min_conversions ASC`

	var tiers []*model.CommissionTier
	if err := r.db.SelectContext(ctx, &tiers, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list commission tiers: %w", err)
	}
	return tiers, nil
}

func (r *commissionRepository) GetProductRate(ctx context.Context, planID uuid.UUID, productID string) (*model.ProductRate, error) {
	query := `SELECT id, plan_id, product_id, plan_type, flat_amount_cents, percent_bps, adjustment_cents
		FROM commission_product_rates WHERE plan_id = $1 AND product_id = $2`

	var rate model.ProductRate
	if err := r.db.GetContext(ctx, &rate, query, planID, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get product rate: %w", err)
	}
	return &rate, nil
}

func (r *commissionRepository) CreatePromotion(ctx context.Context, promo *model.Promotion) error {
	query := `
		INSERT INTO promotions (
			id, clinic_id, name, ref_code, affiliate_id, bonus_cents,
			starts_at, ends_at, max_uses, use_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
	`
	promo.ID = uuid.New()
	now := time.Now()
	promo.CreatedAt = now
	promo.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		promo.ID, promo.ClinicID, promo.Name, promo.RefCode, promo.AffiliateID,
		promo.BonusCents, promo.StartsAt, promo.EndsAt, promo.MaxUses,
		promo.CreatedAt, promo.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create promotion: %w", err)
	}
	return nil
}

func (r *commissionRepository) ListActivePromotions(ctx context.Context, clinicID uuid.UUID, refCode string, affiliateID uuid.UUID, at time.Time) ([]*model.Promotion, error) {
	query := `SELECT id, clinic_id, name, ref_code, affiliate_id, bonus_cents,
		starts_at, ends_at, max_uses, use_count, created_at, updated_at, deleted_at
		FROM promotions
		WHERE (clinic_id = $1 OR clinic_id IS NULL)
		AND deleted_at IS NULL
		AND starts_at <= $2 AND ends_at >= $2
		AND (max_uses = 0 OR use_count < max_uses)
		AND (ref_code = $3 OR affiliate_id = $4)`

	var promos []*model.Promotion
	if err := r.db.SelectContext(ctx, &promos, query, clinicID, at, refCode, affiliateID); err != nil {
		return nil, fmt.Errorf("failed to list active promotions: %w", err)
	}
	return promos, nil
}

func (r *commissionRepository) IncrementPromotionUse(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	query := `UPDATE promotions SET use_count = use_count + 1, updated_at = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to increment promotion use: %w", err)
	}
	return nil
}

func (r *commissionRepository) CreateAffiliate(ctx context.Context, affiliate *model.Affiliate) error {
	query := `
		INSERT INTO affiliates (
			id, clinic_id, name, email, ref_code, plan_id, attribution,
			lifetime_conversions, lifetime_revenue_cents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $9)
	`
	affiliate.ID = uuid.New()
	now := time.Now()
	affiliate.CreatedAt = now
	affiliate.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		affiliate.ID, affiliate.ClinicID, affiliate.Name, affiliate.Email,
		affiliate.RefCode, affiliate.PlanID, affiliate.Attribution,
		affiliate.CreatedAt, affiliate.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create affiliate: %w", err)
	}
	return nil
}

func (r *commissionRepository) GetAffiliate(ctx context.Context, clinicID, id uuid.UUID) (*model.Affiliate, error) {
	query := `SELECT id, clinic_id, name, email, ref_code, plan_id, attribution,
		lifetime_conversions, lifetime_revenue_cents, created_at, updated_at, deleted_at
		FROM affiliates WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var affiliate model.Affiliate
	if err := r.db.GetContext(ctx, &affiliate, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get affiliate: %w", err)
	}
	return &affiliate, nil
}

func (r *commissionRepository) IncrementAffiliateStats(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, revenueCents int64) error {
	query := `UPDATE affiliates
		SET lifetime_conversions = lifetime_conversions + 1,
			lifetime_revenue_cents = lifetime_revenue_cents + $1,
			updated_at = $2
		WHERE id = $3`
	if _, err := tx.ExecContext(ctx, query, revenueCents, time.Now(), id); err != nil {
		return fmt.Errorf("failed to increment affiliate stats: %w", err)
	}
	return nil
}

const commissionEventColumns = `
	id, clinic_id, affiliate_id, plan_id, order_id, invoice_id, patient_id,
	touch_id, product_id, order_amount_cents, base_cents, tier_bonus_cents,
	promo_bonus_cents, adjustment_cents, total_cents, status, hold_reason,
	is_recurring, recurring_month, original_event_id, scheduled_for,
	payout_id, created_at, updated_at, deleted_at`

func (r *commissionRepository) CreateEvent(ctx context.Context, tx *sqlx.Tx, event *model.CommissionEvent) error {
	query := `
		INSERT INTO commission_events (
			id, clinic_id, affiliate_id, plan_id, order_id, invoice_id, patient_id,
			touch_id, product_id, order_amount_cents, base_cents, tier_bonus_cents,
			promo_bonus_cents, adjustment_cents, total_cents, status, hold_reason,
			is_recurring, recurring_month, original_event_id, scheduled_for,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	var ec sqlx.ExtContext = r.db
	if tx != nil {
		ec = tx
	}

	_, err := ec.ExecContext(ctx, query,
		event.ID, event.ClinicID, event.AffiliateID, event.PlanID, event.OrderID,
		event.InvoiceID, event.PatientID, event.TouchID, event.ProductID,
		event.OrderAmountCents, event.BaseCents, event.TierBonusCents,
		event.PromoBonusCents, event.AdjustmentCents, event.TotalCents,
		event.Status, event.HoldReason, event.IsRecurring, event.RecurringMonth,
		event.OriginalEventID, event.ScheduledFor, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("failed to create commission event: %w", err)
	}
	return nil
}

func (r *commissionRepository) GetEvent(ctx context.Context, clinicID, id uuid.UUID) (*model.CommissionEvent, error) {
	query := `SELECT ` + commissionEventColumns + ` FROM commission_events
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL`

	var event model.CommissionEvent
	if err := r.db.GetContext(ctx, &event, query, id, clinicID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get commission event: %w", err)
	}
	return &event, nil
}

func (r *commissionRepository) GetEventByOrder(ctx context.Context, clinicID uuid.UUID, orderID string) (*model.CommissionEvent, error) {
	query := `SELECT ` + commissionEventColumns + ` FROM commission_events
		WHERE clinic_id = $1 AND order_id = $2 AND is_recurring = false AND deleted_at IS NULL`

	var event model.CommissionEvent
	if err := r.db.GetContext(ctx, &event, query, clinicID, orderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("failed to get commission event by order: %w", err)
	}
	return &event, nil
}

func (r *commissionRepository) ListEvents(ctx context.Context, filters *model.CommissionEventFilters) ([]*model.CommissionEvent, error) {
	query := `SELECT ` + commissionEventColumns + ` FROM commission_events
		WHERE clinic_id = $1 AND deleted_at IS NULL`
	args := []interface{}{filters.ClinicID}
	argCount := 2

	if filters.AffiliateID != uuid.Nil {
		query += fmt.Sprintf(" AND affiliate_id = $%d", argCount)
		args = append(args, filters.AffiliateID)
		argCount++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filters.Status)
		argCount++
	}

	if filters.OrderID != "" {
		query += fmt.Sprintf(" AND order_id = $%d", argCount)
		args = append(args, filters.OrderID)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	var events []*model.CommissionEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list commission events: %w", err)
	}
	return events, nil
}

func (r *commissionRepository) UpdateEventStatus(ctx context.Context, id uuid.UUID, status model.CommissionEventStatus, holdReason *string) error {
	query := `UPDATE commission_events SET status = $1, hold_reason = $2, updated_at = $3 WHERE id = $4`
	result, err := r.db.ExecContext(ctx, query, status, holdReason, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update commission event status: %w", err)
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

func (r *commissionRepository) ListEligibleForPayout(ctx context.Context, clinicID, affiliateID uuid.UUID) ([]*model.CommissionEvent, error) {
	query := `SELECT ` + commissionEventColumns + ` FROM commission_events
		WHERE clinic_id = $1 AND affiliate_id = $2 AND status = 'ELIGIBLE'
		AND payout_id IS NULL AND deleted_at IS NULL
		ORDER BY created_at ASC`

	var events []*model.CommissionEvent
	if err := r.db.SelectContext(ctx, &events, query, clinicID, affiliateID); err != nil {
		return nil, fmt.Errorf("failed to list eligible commission events: %w", err)
	}
	return events, nil
}

func (r *commissionRepository) AttachEventsToPayout(ctx context.Context, tx *sqlx.Tx, payoutID uuid.UUID, eventIDs []uuid.UUID) error {
	query := `UPDATE commission_events
		SET payout_id = $1, status = 'IN_PAYOUT', updated_at = $2
		WHERE id = ANY($3) AND status = 'ELIGIBLE' AND payout_id IS NULL`

	result, err := tx.ExecContext(ctx, query, payoutID, time.Now(), pq.Array(eventIDs))
	if err != nil {
		return fmt.Errorf("failed to attach events to payout: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if int(rows) != len(eventIDs) {
		return fmt.Errorf("expected to attach %d events, attached %d", len(eventIDs), rows)
	}
	return nil
}

func (r *commissionRepository) UpdateEventStatusByPayout(ctx context.Context, tx *sqlx.Tx, payoutID uuid.UUID, from, to model.CommissionEventStatus) error {
	query := `UPDATE commission_events SET status = $1, updated_at = $2
		WHERE payout_id = $3 AND status = $4`
	if to == model.CommissionStatusEligible {
		// Back to the pool means detached from the batch, otherwise the
		// payout_id filter would keep the event out of future payouts.
		query = `UPDATE commission_events SET status = $1, updated_at = $2, payout_id = NULL
			WHERE payout_id = $3 AND status = $4`
	}

	var ec sqlx.ExtContext = r.db
	if tx != nil {
		ec = tx
	}
	if _, err := ec.ExecContext(ctx, query, to, time.Now(), payoutID, from); err != nil {
		return fmt.Errorf("failed to update events for payout: %w", err)
	}
	return nil
}

func (r *commissionRepository) ListRecurringDue(ctx context.Context, before time.Time) ([]*model.CommissionEvent, error) {
	query := `SELECT ` + commissionEventColumns + ` FROM commission_events
		WHERE is_recurring = true AND status = 'PENDING'
		AND scheduled_for IS NOT NULL AND scheduled_for <= $1
		AND deleted_at IS NULL
		ORDER BY scheduled_for ASC`

	var events []*model.CommissionEvent
	if err := r.db.SelectContext(ctx, &events, query, before); err != nil {
		return nil, fmt.Errorf("failed to list due recurring events: %w", err)
	}
	return events, nil
}

func (r *commissionRepository) MarkRecurringReleased(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE commission_events SET status = 'ELIGIBLE', updated_at = $1
		WHERE id = $2 AND status = 'PENDING'`
	if _, err := r.db.ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to release recurring event: %w", err)
	}
	return nil
}

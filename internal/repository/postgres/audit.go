package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
)

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, user_id, clinic_id, action, entity_type, entity_id, changes, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	log.ID = uuid.New()
	log.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		log.ID, log.UserID, log.ClinicID, log.Action, log.EntityType,
		log.EntityID, log.Changes, log.IPAddress, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, clinicID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	query := `
		SELECT id, user_id, clinic_id, action, entity_type, entity_id, changes, ip_address, created_at
		FROM audit_logs
		WHERE clinic_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
	`
	var logs []*model.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, clinicID, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/pkg/logger"
)

type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
}

func NewService(repo repository.AuditRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

type LogOptions struct {
	Changes   interface{}
	IPAddress string
}

// Log records an audit entry. Failures are logged and swallowed; auditing
// never fails the operation it describes.
func (s *Service) Log(ctx context.Context, userID, clinicID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	var changes json.RawMessage
	ipAddress := ""

	if opts != nil {
		if opts.Changes != nil {
			b, err := json.Marshal(opts.Changes)
			if err != nil {
				s.logger.Error(err, "failed to marshal audit changes")
				return
			}
			changes = b
		}
		ipAddress = opts.IPAddress
	}

	entry := &model.AuditLog{
		UserID:     userID,
		ClinicID:   clinicID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		IPAddress:  ipAddress,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Error(err, "failed to write audit log")
	}
}

func (s *Service) List(ctx context.Context, clinicID uuid.UUID, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, clinicID, entityType, entityID)
}

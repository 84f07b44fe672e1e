package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/internal/service/audit"
	apperrors "github.com/eonpro/ops-api/pkg/errors"
)

type Service struct {
	repo    repository.ClinicRepository
	auditor *audit.Service
}

func NewService(repo repository.ClinicRepository, auditor *audit.Service) *Service {
	return &Service{repo: repo, auditor: auditor}
}

func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req *model.CreateClinicRequest) (*model.Clinic, error) {
	clinic := &model.Clinic{
		Name:     req.Name,
		Location: req.Location,
		Timezone: req.Timezone,
		Status:   model.ClinicStatusActive,
	}
	if clinic.Timezone == "" {
		clinic.Timezone = "UTC"
	}

	if err := s.repo.Create(ctx, clinic); err != nil {
		return nil, fmt.Errorf("failed to create clinic: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinic.ID, model.AuditActionCreate, model.AuditEntityClinic, clinic.ID, &audit.LogOptions{Changes: clinic})
	return clinic, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	clinic, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("clinic", err)
		}
		return nil, fmt.Errorf("failed to get clinic: %w", err)
	}
	return clinic, nil
}

func (s *Service) List(ctx context.Context) ([]*model.Clinic, error) {
	return s.repo.List(ctx)
}

func (s *Service) GetConfig(ctx context.Context, clinicID uuid.UUID) (*model.ClinicConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, clinicID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("clinic config", err)
		}
		return nil, fmt.Errorf("failed to get clinic config: %w", err)
	}
	return cfg, nil
}

func (s *Service) UpdateConfig(ctx context.Context, actorID uuid.UUID, cfg *model.ClinicConfig) (*model.ClinicConfig, error) {
	if cfg.RiskScoreThreshold < 0 || cfg.RiskScoreThreshold > 100 {
		return nil, apperrors.BadRequest("risk_score_threshold must be 0-100", nil)
	}
	if err := s.repo.UpdateConfig(ctx, cfg); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("clinic config", err)
		}
		return nil, fmt.Errorf("failed to update clinic config: %w", err)
	}
	s.auditor.Log(ctx, actorID, cfg.ClinicID, model.AuditActionUpdate, model.AuditEntityClinic, cfg.ClinicID, &audit.LogOptions{Changes: cfg})
	return s.GetConfig(ctx, cfg.ClinicID)
}

package patient

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
	repo    repository.PatientRepository
	auditor *audit.Service
}

func NewService(repo repository.PatientRepository, auditor *audit.Service) *Service {
	return &Service{repo: repo, auditor: auditor}
}

func (s *Service) Create(ctx context.Context, actorID, clinicID uuid.UUID, req *model.CreatePatientRequest) (*model.Patient, error) {
	patient := &model.Patient{
		ClinicID:         clinicID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		DateOfBirth:      req.DateOfBirth,
		StripeCustomerID: req.StripeCustomerID,
		Status:           model.PatientStatusActive,
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionCreate, model.AuditEntityPatient, patient.ID, &audit.LogOptions{Changes: patient})
	return patient, nil
}

func (s *Service) Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, clinicID, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

func (s *Service) Update(ctx context.Context, actorID, clinicID, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	patient, err := s.Get(ctx, clinicID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		patient.Name = *req.Name
	}
	if req.Email != nil {
		patient.Email = *req.Email
	}
	if req.Phone != nil {
		patient.Phone = req.Phone
	}
	if req.DateOfBirth != nil {
		patient.DateOfBirth = req.DateOfBirth
	}
	if req.StripeCustomerID != nil {
		patient.StripeCustomerID = req.StripeCustomerID
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}

	if err := s.repo.Update(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionUpdate, model.AuditEntityPatient, patient.ID, &audit.LogOptions{Changes: req})
	return patient, nil
}

func (s *Service) Delete(ctx context.Context, actorID, clinicID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, clinicID, id); err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return apperrors.NotFound("patient", err)
		}
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	s.auditor.Log(ctx, actorID, clinicID, model.AuditActionDelete, model.AuditEntityPatient, id, nil)
	return nil
}

func (s *Service) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	patients, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

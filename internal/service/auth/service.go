package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/pkg/auth"
	apperrors "github.com/eonpro/ops-api/pkg/errors"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/security"
)

type Service struct {
	users  repository.UserRepository
	jwt    auth.JWTService
	hasher security.PasswordHasher
	logger *logger.Logger
}

func NewService(users repository.UserRepository, jwt auth.JWTService, hasher security.PasswordHasher, logger *logger.Logger) *Service {
	return &Service{users: users, jwt: jwt, hasher: hasher, logger: logger}
}

// Login verifies credentials and issues a token pair. Lookup misses and
// password mismatches return the same unauthorized error.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*model.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.Unauthorized(errors.New("invalid credentials"))
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.Status != model.UserStatusActive {
		return nil, apperrors.Forbidden("account is not active")
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized(errors.New("invalid credentials"))
	}

	pair, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		s.logger.Error(err, "failed to record last login", "user_id", user.ID)
	}

	s.logger.Info("user logged in", "user_id", user.ID, "clinic_id", user.ClinicID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The user row is
// re-checked so a deactivated account cannot keep rotating tokens.
func (s *Service) Refresh(ctx context.Context, req *model.RefreshRequest) (*model.TokenPair, error) {
	userID, err := s.jwt.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err)
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNoRows) {
			return nil, apperrors.Unauthorized(errors.New("user no longer exists"))
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user.Status != model.UserStatusActive {
		return nil, apperrors.Forbidden("account is not active")
	}

	return s.issueTokens(user)
}

func (s *Service) CreateUser(ctx context.Context, clinicID uuid.UUID, req *model.CreateUserRequest) (*model.User, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.BadRequest("invalid password", err)
	}

	user := &model.User{
		ClinicID:     clinicID,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: hash,
		Role:         req.Role,
		Status:       model.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", "user_id", user.ID, "clinic_id", clinicID, "role", user.Role)
	return user, nil
}

func (s *Service) issueTokens(user *model.User) (*model.TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(user.ID, user.ClinicID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, err := s.jwt.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

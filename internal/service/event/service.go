package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/jmoiron/sqlx"
)

type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
	EmitTx(ctx context.Context, tx *sqlx.Tx, eventType string, payload interface{}) error
}

type Service struct {
	outboxRepo repository.OutboxRepository
}

func NewService(outboxRepo repository.OutboxRepository) *Service {
	return &Service{outboxRepo: outboxRepo}
}

// Emit writes a domain event to the outbox; the worker publishes it later.
func (s *Service) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	evt := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.Create(ctx, evt); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// EmitTx writes the event inside the caller's transaction so the event and
// the state change commit or roll back together.
func (s *Service) EmitTx(ctx context.Context, tx *sqlx.Tx, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	evt := &model.OutboxEvent{
		EventType: eventType,
		Payload:   payloadJSON,
	}
	if err := s.outboxRepo.CreateTx(ctx, tx, evt); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

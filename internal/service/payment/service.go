package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/pkg/logger"
)

// Event types we persist; everything else Stripe sends is acknowledged and
// dropped.
var storedEventTypes = map[string]bool{
	"charge.succeeded":         true,
	"payment_intent.succeeded": true,
	"invoice.paid":             true,
}

type Service struct {
	repo   repository.StripeEventRepository
	logger *logger.Logger
}

func NewService(repo repository.StripeEventRepository, logger *logger.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// HandleWebhook stores a payment event for later auto-matching. Stripe is
// never called back; the stored row is the whole integration. Replays of
// the same event id are absorbed by the idempotent insert.
func (s *Service) HandleWebhook(ctx context.Context, req *model.StripeWebhookRequest, raw json.RawMessage) (bool, error) {
	if !storedEventTypes[req.Type] {
		return false, nil
	}

	occurred := time.Unix(req.Created, 0)
	if req.Created == 0 {
		occurred = time.Now()
	}

	evt := &model.StripePaymentEvent{
		StripeEventID:    req.ID,
		EventType:        req.Type,
		StripeCustomerID: req.Data.Object.Customer,
		AmountCents:      req.Data.Object.Amount,
		Currency:         req.Data.Object.Currency,
		OccurredAt:       occurred,
		Raw:              raw,
	}
	if err := s.repo.Create(ctx, evt); err != nil {
		return false, fmt.Errorf("failed to store stripe event: %w", err)
	}

	s.logger.Info("stored stripe payment event",
		"event_id", req.ID, "type", req.Type, "amount_cents", evt.AmountCents)
	return true, nil
}

package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eonpro/ops-api/internal/model"
	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/messaging"
	"github.com/eonpro/ops-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	Channel      string
}

// OutboxProcessor drains pending outbox rows to the message broker.
// Rows are locked with SKIP LOCKED so multiple workers can run.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor", "channel", p.config.Channel)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("shutting down outbox processor")
			return
		case <-ticker.C:
			if err := p.processEvents(ctx); err != nil {
				p.logger.Error(err, "failed to process outbox batch")
			}
		}
	}
}

func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
	if err != nil {
		return err
	}

	for _, evt := range events {
		msg := messaging.Message{
			Type:    evt.EventType,
			Payload: json.RawMessage(evt.Payload),
		}

		if err := p.broker.Publish(ctx, p.config.Channel, msg); err != nil {
			p.metrics.OutboxEventsFailed.Inc()
			errMsg := err.Error()
			if uerr := p.repo.UpdateStatus(ctx, evt.ID, model.OutboxStatusFailed, &errMsg); uerr != nil {
				p.logger.Error(uerr, "failed to mark outbox event failed", "event_id", evt.ID)
			}
			continue
		}

		if err := p.repo.UpdateStatus(ctx, evt.ID, model.OutboxStatusProcessed, nil); err != nil {
			p.logger.Error(err, "failed to mark outbox event processed", "event_id", evt.ID)
			continue
		}
		p.metrics.OutboxEventsProcessed.Inc()
	}
	return nil
}

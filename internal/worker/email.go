package worker

import (
	"context"
	"time"

	"github.com/eonpro/ops-api/internal/repository"
	"github.com/eonpro/ops-api/internal/service/notification"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
)

type EmailDispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// EmailDispatcher sends due scheduled emails. Failures are retried until
// the row's max_retries is exhausted; the repository owns that counter.
type EmailDispatcher struct {
	repo    repository.ScheduledEmailRepository
	sender  notification.Sender
	config  EmailDispatcherConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewEmailDispatcher(
	repo repository.ScheduledEmailRepository,
	sender notification.Sender,
	config EmailDispatcherConfig,
	logger *logger.Logger,
	m *metrics.Metrics,
) *EmailDispatcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	return &EmailDispatcher{
		repo:    repo,
		sender:  sender,
		config:  config,
		logger:  logger,
		metrics: m,
	}
}

func (d *EmailDispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("starting email dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down email dispatcher")
			return
		case <-ticker.C:
			if err := d.dispatch(ctx); err != nil {
				d.logger.Error(err, "failed to dispatch email batch")
			}
		}
	}
}

func (d *EmailDispatcher) dispatch(ctx context.Context) error {
	due, err := d.repo.ListDue(ctx, time.Now(), d.config.BatchSize)
	if err != nil {
		return err
	}

	for _, email := range due {
		if err := d.sender.Send(email.Recipient, email.Subject, email.Body); err != nil {
			d.metrics.EmailsDispatched.WithLabelValues("failed").Inc()
			d.logger.Error(err, "failed to send email", "email_id", email.ID, "kind", email.Kind)
			if merr := d.repo.MarkFailed(ctx, email.ID, err.Error()); merr != nil {
				d.logger.Error(merr, "failed to record email failure", "email_id", email.ID)
			}
			continue
		}

		if err := d.repo.MarkSent(ctx, email.ID, time.Now()); err != nil {
			d.logger.Error(err, "failed to mark email sent", "email_id", email.ID)
			continue
		}
		d.metrics.EmailsDispatched.WithLabelValues("sent").Inc()
	}
	return nil
}

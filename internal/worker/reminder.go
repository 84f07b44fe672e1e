package worker

import (
	"context"
	"time"

	"github.com/eonpro/ops-api/internal/service/refill"
	"github.com/eonpro/ops-api/pkg/logger"
)

// ReminderSweeper activates refills whose reminder window has opened.
type ReminderSweeper struct {
	service  *refill.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewReminderSweeper(service *refill.Service, interval time.Duration, logger *logger.Logger) *ReminderSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderSweeper{service: service, interval: interval, logger: logger}
}

func (s *ReminderSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("starting refill reminder sweeper", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down refill reminder sweeper")
			return
		case <-ticker.C:
			processed, err := s.service.ProcessDueReminders(ctx, time.Now())
			if err != nil {
				s.logger.Error(err, "reminder sweep failed")
			} else if processed > 0 {
				s.logger.Info("refill reminders sent", "count", processed)
			}
		}
	}
}

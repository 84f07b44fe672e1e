package worker

import (
	"context"
	"time"

	"github.com/eonpro/ops-api/internal/service/commission"
	"github.com/eonpro/ops-api/pkg/logger"
)

// RecurringReleaser flips scheduled recurring commission events to
// ELIGIBLE once their month arrives.
type RecurringReleaser struct {
	service  *commission.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewRecurringReleaser(service *commission.Service, interval time.Duration, logger *logger.Logger) *RecurringReleaser {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RecurringReleaser{service: service, interval: interval, logger: logger}
}

func (r *RecurringReleaser) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("starting recurring commission releaser", "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("shutting down recurring commission releaser")
			return
		case <-ticker.C:
			released, err := r.service.ReleaseDueRecurring(ctx, time.Now())
			if err != nil {
				r.logger.Error(err, "recurring release sweep failed")
			} else if released > 0 {
				r.logger.Info("recurring commissions released", "count", released)
			}
		}
	}
}

package worker

import (
	"context"
	"time"

	"github.com/eonpro/ops-api/internal/service/ticket"
	"github.com/eonpro/ops-api/pkg/logger"
)

// SLAMonitor periodically sweeps ticket SLAs for warnings and breaches.
type SLAMonitor struct {
	service  *ticket.Service
	interval time.Duration
	logger   *logger.Logger
}

func NewSLAMonitor(service *ticket.Service, interval time.Duration, logger *logger.Logger) *SLAMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SLAMonitor{service: service, interval: interval, logger: logger}
}

func (m *SLAMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("starting sla monitor", "interval", m.interval.String())

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutting down sla monitor")
			return
		case <-ticker.C:
			now := time.Now()

			warned, err := m.service.CheckWarnings(ctx, now)
			if err != nil {
				m.logger.Error(err, "sla warning sweep failed")
			} else if warned > 0 {
				m.logger.Info("sla warnings fired", "count", warned)
			}

			breached, err := m.service.CheckBreaches(ctx, now)
			if err != nil {
				m.logger.Error(err, "sla breach sweep failed")
			} else if breached > 0 {
				m.logger.Warn("sla breaches recorded", "count", breached)
			}
		}
	}
}

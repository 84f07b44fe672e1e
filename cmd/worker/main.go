package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eonpro/ops-api/internal/config"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	auditService "github.com/eonpro/ops-api/internal/service/audit"
	commissionService "github.com/eonpro/ops-api/internal/service/commission"
	eventService "github.com/eonpro/ops-api/internal/service/event"
	"github.com/eonpro/ops-api/internal/service/notification"
	refillService "github.com/eonpro/ops-api/internal/service/refill"
	ticketService "github.com/eonpro/ops-api/internal/service/ticket"
	"github.com/eonpro/ops-api/internal/worker"
	"github.com/eonpro/ops-api/pkg/logger"
	redisbroker "github.com/eonpro/ops-api/pkg/messaging/redis"
	"github.com/eonpro/ops-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Pretty:     cfg.Logger.Pretty,
		Output:     os.Stdout,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	zl := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          redisURL(cfg.Redis),
		MaxRetries:   3,
		RetryBackoff: 100 * time.Millisecond,
		PoolSize:     10,
		MinIdleConns: 2,
	}, &zl)
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("eonpro", "worker")

	// Repositories
	refillRepo := postgres.NewRefillRepository(db)
	commissionRepo := postgres.NewCommissionRepository(db)
	payoutRepo := postgres.NewPayoutRepository(db)
	fraudRepo := postgres.NewFraudAlertRepository(db)
	ticketRepo := postgres.NewTicketRepository(db)
	slaRepo := postgres.NewSLARepository(db)
	clinicRepo := postgres.NewClinicRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	emailRepo := postgres.NewScheduledEmailRepository(db)
	stripeRepo := postgres.NewStripeEventRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Services
	auditor := auditService.NewService(auditRepo, log)
	emitter := eventService.NewService(outboxRepo)
	refillSvc := refillService.NewService(refillRepo, patientRepo, clinicRepo, stripeRepo, emailRepo, emitter, auditor, m, log)
	commissionSvc := commissionService.NewService(commissionRepo, payoutRepo, fraudRepo, clinicRepo, emitter, auditor, m, log)
	ticketSvc := ticketService.NewService(ticketRepo, slaRepo, emitter, auditor, m, log)
	sender := notification.NewSMTPSender(cfg.SMTP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	start := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	start(worker.NewOutboxProcessor(outboxRepo, broker, worker.OutboxProcessorConfig{
		BatchSize:    cfg.Outbox.BatchSize,
		PollInterval: cfg.Outbox.PollInterval,
		Channel:      cfg.Redis.Stream,
	}, log, m).Start)

	start(worker.NewEmailDispatcher(emailRepo, sender, worker.EmailDispatcherConfig{
		BatchSize:    cfg.Worker.EmailBatchSize,
		PollInterval: cfg.Worker.EmailDispatchInterval,
	}, log, m).Start)

	start(worker.NewSLAMonitor(ticketSvc, cfg.Worker.SLACheckInterval, log).Start)
	start(worker.NewRecurringReleaser(commissionSvc, cfg.Worker.RecurringCheckInterval, log).Start)
	start(worker.NewReminderSweeper(refillSvc, cfg.Worker.ReminderCheckInterval, log).Start)

	log.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down workers")

	cancel()
	wg.Wait()
	log.Info("workers exited")
}

func redisURL(cfg config.RedisConfig) string {
	if cfg.Password != "" {
		return fmt.Sprintf("redis://:%s@%s/%d", cfg.Password, cfg.Addr, cfg.DB)
	}
	return fmt.Sprintf("redis://%s/%d", cfg.Addr, cfg.DB)
}

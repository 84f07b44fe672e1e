package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eonpro/ops-api/internal/config"
	"github.com/eonpro/ops-api/internal/handler"
	authHandler "github.com/eonpro/ops-api/internal/handler/auth"
	clinicHandler "github.com/eonpro/ops-api/internal/handler/clinic"
	commissionHandler "github.com/eonpro/ops-api/internal/handler/commission"
	patientHandler "github.com/eonpro/ops-api/internal/handler/patient"
	refillHandler "github.com/eonpro/ops-api/internal/handler/refill"
	ticketHandler "github.com/eonpro/ops-api/internal/handler/ticket"
	webhookHandler "github.com/eonpro/ops-api/internal/handler/webhook"
	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/repository/postgres"
	"github.com/eonpro/ops-api/internal/router"
	auditService "github.com/eonpro/ops-api/internal/service/audit"
	authService "github.com/eonpro/ops-api/internal/service/auth"
	clinicService "github.com/eonpro/ops-api/internal/service/clinic"
	commissionService "github.com/eonpro/ops-api/internal/service/commission"
	eventService "github.com/eonpro/ops-api/internal/service/event"
	patientService "github.com/eonpro/ops-api/internal/service/patient"
	paymentService "github.com/eonpro/ops-api/internal/service/payment"
	refillService "github.com/eonpro/ops-api/internal/service/refill"
	ticketService "github.com/eonpro/ops-api/internal/service/ticket"
	"github.com/eonpro/ops-api/pkg/auth"
	"github.com/eonpro/ops-api/pkg/logger"
	"github.com/eonpro/ops-api/pkg/metrics"
	"github.com/eonpro/ops-api/pkg/security"
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

	m := metrics.NewMetrics("eonpro", "api")

	// Repositories
	refillRepo := postgres.NewRefillRepository(db)
	commissionRepo := postgres.NewCommissionRepository(db)
	payoutRepo := postgres.NewPayoutRepository(db)
	fraudRepo := postgres.NewFraudAlertRepository(db)
	ticketRepo := postgres.NewTicketRepository(db)
	slaRepo := postgres.NewSLARepository(db)
	clinicRepo := postgres.NewClinicRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	userRepo := postgres.NewUserRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)
	emailRepo := postgres.NewScheduledEmailRepository(db)
	stripeRepo := postgres.NewStripeEventRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Services
	auditor := auditService.NewService(auditRepo, log)
	emitter := eventService.NewService(outboxRepo)
	jwtSvc := auth.NewJWTService(auth.Config{
		Secret:             cfg.JWT.Secret,
		RefreshSecret:      cfg.JWT.RefreshSecret,
		ExpiryHours:        cfg.JWT.ExpiryHours,
		RefreshExpiryHours: cfg.JWT.RefreshExpiryHours,
	})
	hasher := security.NewBcryptHasher(0)

	authSvc := authService.NewService(userRepo, jwtSvc, hasher, log)
	clinicSvc := clinicService.NewService(clinicRepo, auditor)
	patientSvc := patientService.NewService(patientRepo, auditor)
	refillSvc := refillService.NewService(refillRepo, patientRepo, clinicRepo, stripeRepo, emailRepo, emitter, auditor, m, log)
	commissionSvc := commissionService.NewService(commissionRepo, payoutRepo, fraudRepo, clinicRepo, emitter, auditor, m, log)
	ticketSvc := ticketService.NewService(ticketRepo, slaRepo, emitter, auditor, m, log)
	paymentSvc := paymentService.NewService(stripeRepo, log)

	// Handlers
	h := handler.NewHandler(db)
	authH := authHandler.NewHandler(authSvc)
	webhookH := webhookHandler.NewHandler(paymentSvc)

	authMiddleware := middleware.NewAuthMiddleware(jwtSvc)

	r := router.NewRouter(
		authMiddleware,
		authH,
		webhookH,
		h,
		log,
		router.Config{
			TimeoutSeconds: cfg.Server.TimeoutSeconds,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
			CORSConfig:     middleware.DefaultCORSConfig(),
			MetricsPrefix:  "eonpro",
		},
		refillHandler.NewHandler(refillSvc),
		commissionHandler.NewHandler(commissionSvc),
		ticketHandler.NewHandler(ticketSvc),
		clinicHandler.NewHandler(clinicSvc),
		patientHandler.NewHandler(patientSvc),
	)
	r.Setup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info("starting api server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}

	log.Info("server exited")
}

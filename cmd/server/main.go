package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mantlz/mantlz/internal"
	"github.com/mantlz/mantlz/internal/billing"
	"github.com/mantlz/mantlz/internal/domain"
	"github.com/mantlz/mantlz/internal/email"
	"github.com/mantlz/mantlz/internal/handler"
	"github.com/mantlz/mantlz/internal/jobs"
	"github.com/mantlz/mantlz/internal/metrics"
	"github.com/mantlz/mantlz/internal/middleware"
	"github.com/mantlz/mantlz/internal/repository"
	"github.com/mantlz/mantlz/internal/service"
	"github.com/mantlz/mantlz/internal/storage"
	"github.com/mantlz/mantlz/internal/worker"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := internal.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)
	clock := domain.SystemClock

	// ==========================================================================
	// Email, storage and billing
	// ==========================================================================

	sender := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, logger)
	linkSigner := email.NewLinkSigner(cfg.TrackingSecret)
	mailer, err := email.NewMailer(sender, cfg.BaseURL, linkSigner, logger)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	exportStorage, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	var billingService billing.Service
	if cfg.BillingEnabled() {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			StandardPriceIDs: cfg.StripeStandardPriceIDs,
			ProPriceIDs:      cfg.StripeProPriceIDs,
		})
	} else {
		logger.Warn("Stripe webhook secret not set; plan changes from billing are ignored")
	}

	// ==========================================================================
	// Services and jobs
	// ==========================================================================

	userService := service.NewUserService(store, logger)
	quotaService := service.NewQuotaService(store, clock, logger)
	formService := service.NewFormService(store, clock, logger)
	submissionService := service.NewSubmissionService(store, clock, logger)
	campaignService := service.NewCampaignService(store, clock, logger)
	apiKeyService := service.NewAPIKeyService(store, clock, logger)
	trackingService := service.NewTrackingService(store, quotaService, clock, logger)

	exporter := jobs.NewExporter(store, exportStorage, clock, logger)
	resetJob := jobs.NewResetJob(store, exporter, mailer, clock, logger)
	warningJob := jobs.NewWarningJob(store, mailer, cfg.EmailSendInterval, clock, logger)
	dispatchJob := jobs.NewDispatchJob(store, mailer, quotaService, cfg.EmailSendInterval, clock, logger)

	// ==========================================================================
	// Background worker
	// ==========================================================================

	var bgWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		bgWorker, err = worker.New(store, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		bgWorker.Register(jobs.NewNotificationHandler(store, mailer, quotaService, logger))
	}

	// ==========================================================================
	// Middleware
	// ==========================================================================

	verifier, err := middleware.NewJWKSVerifier(cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthJWKSURL)
	if err != nil {
		return fmt.Errorf("token verifier initialization failed: %w", err)
	}
	authMw := middleware.NewAuthMiddleware(verifier, userService, apiKeyService, logger)
	cronMw := middleware.NewCronAuthMiddleware(cfg.CronSecret, logger)
	metricsMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimit, cfg.APIRateWindow)
	defer apiLimiter.Stop()
	rateLimitMw := middleware.NewRateLimitMiddleware(apiLimiter, logger)

	// ==========================================================================
	// Handlers and routes
	// ==========================================================================

	validate := handler.NewValidator()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			handler.WriteJSONError(w, http.StatusServiceUnavailable, domain.EINTERNAL, "database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", metricsMw.Handler(promhttp.Handler()))

	handler.NewAPIHandler(formService, submissionService, validate, clock, logger).
		RegisterRoutes(mux, middleware.Stack(authMw.RequireAPIKey, rateLimitMw.Limit))
	handler.NewDashboardHandler(quotaService, formService, campaignService, apiKeyService, validate, logger).
		RegisterRoutes(mux, authMw.RequireUser)
	handler.NewCronHandler(resetJob, warningJob, dispatchJob, logger).
		RegisterRoutes(mux, cronMw.Handler)
	handler.NewTrackingHandler(trackingService, linkSigner, logger).RegisterRoutes(mux)
	handler.NewWebhookHandler(billingService, userService, logger).RegisterRoutes(mux)

	// Local exports are only browsable in development.
	if cfg.StorageProvider == storage.ProviderLocal && cfg.IsDevelopment() {
		files := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", files))
	}

	root := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(!cfg.IsDevelopment()).Handler,
		middleware.NewCORS(cfg.CORSAllowedOrigins),
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if bgWorker != nil {
		bgWorker.Start(workerCtx)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if bgWorker != nil {
		bgWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage picks the export backend configured by STORAGE_PROVIDER.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == storage.ProviderR2 {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			Endpoint:        cfg.R2Endpoint,
			Region:          "auto",
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

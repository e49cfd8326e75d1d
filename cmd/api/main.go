package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/hotel-concierge-ai/internal/api/router"
	"github.com/wolfman30/hotel-concierge-ai/internal/app/bootstrap"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/email"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/webchat"
	"github.com/wolfman30/hotel-concierge-ai/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hotel-concierge-ai/internal/http/middleware"
	"github.com/wolfman30/hotel-concierge-ai/internal/leads"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

const (
	shutdownTimeout   = 30 * time.Second
	limiterSweepEvery = time.Minute
	limiterIdleAfter  = 10 * time.Minute
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting hotel concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, registry := setupMetrics()
	svc, err := bootstrap.BuildServices(ctx, cfg, registry, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	worker := setupInlineWorker(ctx, cfg, svc, logger)
	widgetLimiter, webhookLimiter := setupLimiters(ctx, cfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(cfg, svc, metricsHandler, widgetLimiter, webhookLimiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Stop consuming only after in-flight requests have been queued.
	cancel()
	bootstrap.WaitForWorker(worker, shutdownTimeout, logger)

	logger.Info("server stopped")
}

// setupMetrics returns the /metrics handler over a private registry that
// also carries the Go runtime collectors.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}), registry
}

// setupInlineWorker consumes the in-process queue. With SQS the queue is
// drained by cmd/conversation-worker instead and nil is returned.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, svc *bootstrap.Services, logger *logging.Logger) *conversation.Worker {
	if !cfg.UseMemoryQueue {
		logger.Info("inline worker disabled; queue is consumed by the conversation worker")
		return nil
	}
	worker := svc.NewWorker(cfg, logger)
	worker.Start(ctx)
	logger.Info("inline conversation worker started", "workers", cfg.WorkerCount)
	return worker
}

// setupLimiters builds the per-client limiters. A non-positive rate disables
// the matching limiter.
func setupLimiters(ctx context.Context, cfg *appconfig.Config) (widget, webhook *httpmiddleware.RateLimiter) {
	if cfg.WidgetRateLimit > 0 {
		widget = httpmiddleware.NewRateLimiter(cfg.WidgetRateLimit, cfg.WidgetRateBurst)
		go widget.RunEviction(ctx, limiterSweepEvery, limiterIdleAfter)
	}
	if cfg.WebhookRateLimit > 0 {
		webhook = httpmiddleware.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst)
		go webhook.RunEviction(ctx, limiterSweepEvery, limiterIdleAfter)
	}
	return widget, webhook
}

func buildRouter(cfg *appconfig.Config, svc *bootstrap.Services, metricsHandler http.Handler, widget, webhook *httpmiddleware.RateLimiter, logger *logging.Logger) http.Handler {
	publicURL := ""
	if cfg.PublicBaseURL != "" {
		publicURL = cfg.PublicBaseURL + "/webhooks/whatsapp"
	}

	routerCfg := &router.Config{
		Logger:  logger,
		Health:  handlers.NewHealthHandler(svc.Ping(), logger),
		WebChat: webchat.NewHandler(svc.Orchestrator, svc.Store, logger),
		WhatsApp: whatsapp.NewHandler(whatsapp.Config{
			VerifyToken: cfg.WhatsAppVerifyToken,
			AuthToken:   cfg.TwilioAuthToken,
			PublicURL:   publicURL,
		}, svc.Properties, svc.Publisher, logger, whatsapp.WithRecorder(svc.Metrics.Messaging), whatsapp.WithDeduper(svc.Processed)),
		Email:              email.NewHandler(svc.Properties, svc.Publisher, logger, email.WithRecorder(svc.Metrics.Messaging)),
		Leads:              leads.NewHandler(svc.Leads, logger),
		AdminBreakers:      handlers.NewAdminBreakersHandler(svc.Breakers, logger),
		AdminKnowledge:     handlers.NewAdminKnowledgeHandler(svc.Knowledge.Ingestor, svc.Properties, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WidgetLimiter:      widget,
		WebhookLimiter:     webhook,
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin routes are disabled")
	}
	return router.New(routerCfg)
}

// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/auth"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/cache"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/config"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/database"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/handler"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/logging"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/payment"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/queue"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/ratelimit"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/service"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("connected to postgres", "host", cfg.Database.Host, "db", cfg.Database.Name)

	// ── 2. Optional infrastructure ────────────────────────────────────────
	rdb := cache.NewRedisClient(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	var pub service.Publisher
	if p, err := queue.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange); err != nil {
		log.Warn("rabbitmq unavailable, domain events disabled", "error", err)
	} else {
		defer p.Close()
		pub = p
	}

	images, err := storage.NewQRImageStore(ctx, cfg.S3.Region, cfg.S3.Bucket)
	if err != nil {
		return fmt.Errorf("s3: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.New("campus_events", reg)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	regRepo := repository.NewRegistrationRepository(pool)
	qrRepo := repository.NewQRTokenRepository(pool)

	stripeProvider := payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.SuccessURL, cfg.Stripe.CancelURL, cfg.Stripe.Currency)
	verifier := payment.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	issuer := service.NewQRIssuer(qrRepo, images, log)
	eventSvc := service.NewEventService(eventRepo, regRepo, issuer, log)
	checkoutSvc := service.NewCheckoutService(eventRepo, stripeProvider, rec, log)
	webhookSvc := service.NewWebhookProcessor(verifier, regRepo, stripeProvider, cache.NewLedger(rdb, cfg.Redis.LedgerTTL), pub, rec, log)
	attendanceSvc := service.NewAttendanceService(qrRepo, eventRepo, regRepo, pub, rec, log)

	router := handler.NewRouter(handler.Routes{
		Events:     handler.NewEventHandler(eventSvc, log),
		Payments:   handler.NewPaymentHandler(checkoutSvc, webhookSvc, log),
		Attendance: handler.NewAttendanceHandler(attendanceSvc, log),
		Tokens:     auth.NewSigner(cfg.JWTSecret),
		Limit:      ratelimit.Middleware(ratelimit.New(cfg.RateLimit, rdb), handler.Subject, log),
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Log:        log,
	})

	// ── 4. Start server and consumer with graceful shutdown ───────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	if pub != nil {
		consumer := queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, queue.LogNotifier{Log: log}, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return g.Wait()
}

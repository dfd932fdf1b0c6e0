package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/djbooking/funnel/internal/config"
	"github.com/djbooking/funnel/internal/event"
	handler "github.com/djbooking/funnel/internal/handler/http"
	"github.com/djbooking/funnel/internal/lead"
	"github.com/djbooking/funnel/internal/service"
	"github.com/djbooking/funnel/pkg/health"
	"github.com/djbooking/funnel/pkg/httpclient"
	pkgkafka "github.com/djbooking/funnel/pkg/kafka"
	"github.com/djbooking/funnel/pkg/middleware"
	"github.com/djbooking/funnel/pkg/tracing"
)

const serviceName = "booking-funnel"

// App wires together all dependencies and runs the booking funnel service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	storage        *storage
	producer       *pkgkafka.Producer
	service        *service.BookingStepService
	health         *health.Handler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       true,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Progress storage.
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Optional Kafka producer.
	var (
		producer *pkgkafka.Producer
		events   service.EventPublisher
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		events = event.NewProducer(producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("KAFKA_BROKERS not set, funnel events disabled")
	}

	// Optional lead webhook behind a circuit breaker.
	var leads service.LeadForwarder
	if cfg.LeadWebhookURL != "" {
		cbCfg := cfg.LeadCircuitBreaker()
		cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()), cbCfg, logger)
		leads = lead.NewForwarder(cbClient, cfg.LeadWebhookURL, logger)
		logger.Info("lead forwarding enabled",
			slog.String("breaker", cbCfg.Name),
			slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
			slog.Int("timeout_seconds", cfg.CBTimeout),
		)
	}

	bookingService := service.NewBookingStepService(store.repo, events, leads, logger)

	healthHandler := newHealthHandler(store, producer)

	router := handler.NewRouter(bookingService, healthHandler, handler.RouterConfig{
		CORS:               corsConfig(cfg),
		Support:            supportInfo(cfg),
		SupportCacheMaxAge: cfg.SupportCacheMaxAgeSec,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		storage:        store,
		producer:       producer,
		service:        bookingService,
		health:         healthHandler,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newHealthHandler(store *storage, producer *pkgkafka.Producer) *health.Handler {
	h := health.NewHandler()
	h.SetInfo("storage_backend", store.repo.Backend())
	h.SetInfo("durable", strconv.FormatBool(store.repo.Durable()))

	if store.pool != nil {
		h.Register("postgres", func(ctx context.Context) error {
			return store.pool.Ping(ctx)
		})
	}
	if store.rdb != nil {
		h.RegisterOptional("redis", func(ctx context.Context) error {
			return store.rdb.Ping(ctx).Err()
		})
	}
	if producer != nil {
		h.RegisterOptional("kafka", producer.Ping)
	}
	return h
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	c.AllowedOrigins = cfg.CORSAllowedOrigins
	c.Environment = cfg.Environment
	return c
}

func supportInfo(cfg *config.Config) handler.SupportInfo {
	return handler.SupportInfo{
		Phone:    cfg.SupportPhone,
		Email:    cfg.SupportEmail,
		WhatsApp: cfg.SupportWhatsApp,
		Hours:    cfg.SupportHours,
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("storage_backend", a.service.StorageBackend()),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("http server failed", slog.String("error", err.Error()))
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Pending lead deliveries
// 3. Tracer (flush spans of drained requests)
// 4. Kafka producer
// 5. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if !waitTimeout(a.service.Wait, 5*time.Second) {
		a.logger.Warn("lead deliveries still pending at shutdown")
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.storage.close(); err != nil {
		a.logger.Error("storage close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// waitTimeout runs wait and reports whether it returned within d.
func waitTimeout(wait func(), d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/djbooking/funnel/internal/service"
	"github.com/djbooking/funnel/pkg/health"
	"github.com/djbooking/funnel/pkg/middleware"
)

const (
	serviceName  = "booking-funnel"
	maxBodyBytes = 64 << 10
)

// RouterConfig carries the settings the router needs beyond its handlers.
type RouterConfig struct {
	CORS               middleware.CORSConfig
	Support            SupportInfo
	SupportCacheMaxAge int
}

// NewRouter creates a chi router with all funnel routes registered.
func NewRouter(
	bookingService *service.BookingStepService,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	bookingHandler := NewBookingStepHandler(bookingService, logger)
	supportHandler := NewSupportHandler(cfg.Support)

	r.Route("/booking-steps", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Get("/", bookingHandler.ListSteps)
		r.With(middleware.MaxBodyBytes(maxBodyBytes)).Post("/validate", bookingHandler.ValidateStep)
		r.Get("/{flowId}/progress", bookingHandler.GetFlowProgress)
	})

	r.With(middleware.CacheControl(cfg.SupportCacheMaxAge)).Get("/support-info", supportHandler.GetSupportInfo)

	return r
}

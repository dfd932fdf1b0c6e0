package middleware

import (
	"log/slog"
	"net/http"

	"github.com/djbooking/funnel/pkg/logger"
)

// FlowIDHeader lets the booking front end tag every request with the
// booking session it belongs to.
const FlowIDHeader = "X-Flow-ID"

// RequestLogger builds a request-scoped logger enriched with correlation_id,
// flow_id, trace_id and span_id and stores it in the request context.
// Handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if flowID := r.Header.Get(FlowIDHeader); flowID != "" && len(flowID) <= 128 {
				ctx = logger.WithFlowID(ctx, flowID)
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

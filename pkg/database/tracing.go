package database

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/djbooking/funnel/pkg/database"

// Query describes one SQL statement issued by a repository.
type Query struct {
	// Name identifies the statement, e.g. "UpsertStepProgress". Spans are
	// named "db.<Name>".
	Name      string
	Table     string
	Statement string
	// FlowID is the booking flow the statement touches, if any.
	FlowID string
}

func (q Query) spanAttributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", q.Name),
		attribute.String("db.sql.table", q.Table),
		attribute.String("db.statement", q.Statement),
	}
	if q.FlowID != "" {
		attrs = append(attrs, attribute.String("booking.flow_id", q.FlowID))
	}
	return attrs
}

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "db_query_duration_seconds",
	Help:    "Duration of SQL statements by operation and table.",
	Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
}, []string{"operation", "table"})

type slowQueryLog struct {
	threshold time.Duration
	logger    *slog.Logger
}

var slowQueries atomic.Pointer[slowQueryLog]

// SetSlowQueryLogging logs statements that take at least threshold as
// warnings. A zero threshold or nil logger turns it off.
func SetSlowQueryLogging(threshold time.Duration, logger *slog.Logger) {
	if threshold <= 0 || logger == nil {
		slowQueries.Store(nil)
		return
	}
	slowQueries.Store(&slowQueryLog{threshold: threshold, logger: logger})
}

// TraceQuery starts a client span for q and returns the function that ends
// it. The end function records err on the span, observes the statement
// duration and logs the statement when it was slow.
//
//	ctx, end := database.TraceQuery(ctx, database.Query{Name: "ListStepProgress", Table: "booking_step_progress", FlowID: flowID})
//	rows, err := db.Query(ctx, ...)
//	end(err)
func TraceQuery(ctx context.Context, q Query) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "db."+q.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(q.spanAttributes()...),
	)

	return ctx, func(err error) {
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		queryDuration.WithLabelValues(q.Name, q.Table).Observe(elapsed.Seconds())

		cfg := slowQueries.Load()
		if cfg == nil || elapsed < cfg.threshold {
			return
		}
		attrs := []any{
			slog.String("operation", q.Name),
			slog.String("table", q.Table),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		}
		if q.FlowID != "" {
			attrs = append(attrs, slog.String("flow_id", q.FlowID))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		cfg.logger.WarnContext(ctx, "slow query detected", attrs...)
	}
}

package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/djbooking/funnel/internal/domain"
	pkgkafka "github.com/djbooking/funnel/pkg/kafka"
	"github.com/djbooking/funnel/pkg/logger"
)

// Kafka topics for booking funnel events.
var (
	TopicStepCompleted = pkgkafka.Topic("step", "completed")
	TopicFlowCompleted = pkgkafka.Topic("flow", "completed")
)

// AggregateTypeFlow is the aggregate type of every funnel event; the
// aggregate id is the flow id.
const AggregateTypeFlow = "booking_flow"

// SourceFunnelService identifies events originating from this service.
const SourceFunnelService = "booking-funnel"

// StepCompletedData is the payload for a booking.step.completed event.
type StepCompletedData struct {
	FlowID     string    `json:"flow_id"`
	StepID     string    `json:"step_id"`
	IsComplete bool      `json:"is_complete"`
	Persisted  bool      `json:"persisted"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// FlowCompletedData is the payload for a booking.flow.completed event.
type FlowCompletedData struct {
	FlowID      string            `json:"flow_id"`
	Steps       []StepSummaryData `json:"steps"`
	CompletedAt time.Time         `json:"completed_at"`
}

// StepSummaryData is one step of a completed flow.
type StepSummaryData struct {
	StepID    string         `json:"step_id"`
	Payload   domain.Payload `json:"payload"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Publisher is the part of pkg/kafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes booking funnel domain events to Kafka.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the funnel service.
func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishStepCompleted publishes a booking.step.completed event.
func (p *Producer) PublishStepCompleted(ctx context.Context, rec *domain.StepProgress, persisted bool) error {
	data := StepCompletedData{
		FlowID:     rec.FlowID,
		StepID:     rec.StepID,
		IsComplete: rec.IsComplete,
		Persisted:  persisted,
		UpdatedAt:  rec.UpdatedAt,
	}

	return p.publish(ctx, TopicStepCompleted, rec.FlowID, data)
}

// PublishFlowCompleted publishes a booking.flow.completed event carrying the
// flow's full progress.
func (p *Producer) PublishFlowCompleted(ctx context.Context, flowID string, progress []domain.StepProgress) error {
	steps := make([]StepSummaryData, len(progress))
	completedAt := time.Time{}
	for i, rec := range progress {
		steps[i] = StepSummaryData{
			StepID:    rec.StepID,
			Payload:   rec.Payload,
			UpdatedAt: rec.UpdatedAt,
		}
		if rec.UpdatedAt.After(completedAt) {
			completedAt = rec.UpdatedAt
		}
	}

	data := FlowCompletedData{
		FlowID:      flowID,
		Steps:       steps,
		CompletedAt: completedAt,
	}

	return p.publish(ctx, TopicFlowCompleted, flowID, data)
}

func (p *Producer) publish(ctx context.Context, topic, flowID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, flowID, AggregateTypeFlow, SourceFunnelService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "funnel event published",
		slog.String("topic", topic),
		slog.String("flow_id", flowID),
		slog.String("event_id", evt.EventID),
	)
	return nil
}

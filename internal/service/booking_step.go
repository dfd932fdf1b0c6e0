package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/internal/lead"
	"github.com/djbooking/funnel/internal/repository"
	"github.com/djbooking/funnel/internal/steps"
)

// ErrInvalidProgressKey is returned by Persist when the flow or step id is
// blank. Handlers reject blank ids earlier, so reaching it is an internal
// contract violation.
var ErrInvalidProgressKey = errors.New("flow id and step id are required")

const leadForwardTimeout = 30 * time.Second

// EventPublisher publishes funnel domain events.
type EventPublisher interface {
	PublishStepCompleted(ctx context.Context, rec *domain.StepProgress, persisted bool) error
	PublishFlowCompleted(ctx context.Context, flowID string, progress []domain.StepProgress) error
}

// LeadForwarder delivers a completed flow to the CRM.
type LeadForwarder interface {
	Forward(ctx context.Context, l lead.Lead) error
}

// PersistResult is the outcome of a progress write.
type PersistResult struct {
	Persisted bool
	Record    domain.StepProgress
}

// SubmitResult is the outcome of validating and persisting one step. When
// Validation is not valid nothing was written and the other fields are zero.
type SubmitResult struct {
	Validation domain.ValidationResult
	Persisted  bool
	Record     *domain.StepProgress
	Progress   []domain.StepProgress
}

// StepInfo describes a funnel step for clients.
type StepInfo struct {
	StepID         string   `json:"stepId"`
	RequiredFields []string `json:"requiredFields"`
}

type persistOptions struct {
	isComplete bool
}

// PersistOption customizes a Persist call.
type PersistOption func(*persistOptions)

// WithIsComplete sets the stored completion flag. Progress is complete by
// default.
func WithIsComplete(complete bool) PersistOption {
	return func(o *persistOptions) { o.isComplete = complete }
}

// BookingStepService validates booking steps and records flow progress.
type BookingStepService struct {
	repo   repository.ProgressRepository
	events EventPublisher
	leads  LeadForwarder
	logger *slog.Logger
	now    func() time.Time

	wg sync.WaitGroup
}

// NewBookingStepService creates a new booking step service. events and leads
// may be nil to disable publishing and lead forwarding.
func NewBookingStepService(repo repository.ProgressRepository, events EventPublisher, leads LeadForwarder, logger *slog.Logger) *BookingStepService {
	return &BookingStepService{
		repo:   repo,
		events: events,
		leads:  leads,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks a step payload against the step's rules.
func (s *BookingStepService) Validate(stepID string, payload any) domain.ValidationResult {
	res := steps.Validate(stepID, payload)

	label := stepID
	if _, ok := steps.Lookup(stepID); !ok {
		label = "unknown"
	}
	result := "valid"
	if !res.Valid {
		result = "invalid"
	}
	stepValidations.WithLabelValues(label, result).Inc()

	return res
}

// Persist upserts the progress of one step of a flow.
func (s *BookingStepService) Persist(ctx context.Context, flowID, stepID string, payload domain.Payload, opts ...PersistOption) (*PersistResult, error) {
	flowID = domain.NormalizeID(flowID)
	stepID = domain.NormalizeID(stepID)
	if flowID == "" || stepID == "" {
		return nil, fmt.Errorf("persist step progress: %w", ErrInvalidProgressKey)
	}

	o := persistOptions{isComplete: true}
	for _, opt := range opts {
		opt(&o)
	}
	if payload == nil {
		payload = domain.Payload{}
	}

	rec, err := s.repo.Upsert(ctx, domain.StepProgress{
		FlowID:     flowID,
		StepID:     stepID,
		IsComplete: o.isComplete,
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("persist step progress: %w", err)
	}

	stepPersists.WithLabelValues(s.repo.Backend()).Inc()
	return &PersistResult{Persisted: s.repo.Durable(), Record: *rec}, nil
}

// GetFlowProgress returns the flow's steps, oldest update first. A blank flow
// id yields an empty list without touching storage.
func (s *BookingStepService) GetFlowProgress(ctx context.Context, flowID string) ([]domain.StepProgress, error) {
	flowID = domain.NormalizeID(flowID)
	if flowID == "" {
		return []domain.StepProgress{}, nil
	}

	progress, err := s.repo.ListByFlow(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("get flow progress: %w", err)
	}
	if progress == nil {
		progress = []domain.StepProgress{}
	}
	return progress, nil
}

// ResetInMemoryStore clears the volatile fallback store. It does nothing when
// a durable backend is configured.
func (s *BookingStepService) ResetInMemoryStore() {
	if s.repo.Durable() {
		return
	}
	if r, ok := s.repo.(repository.Resetter); ok {
		r.Reset()
	}
}

// StorageBackend names the configured progress backend.
func (s *BookingStepService) StorageBackend() string {
	return s.repo.Backend()
}

// StepCatalogue lists the funnel steps in order with their required fields.
func (s *BookingStepService) StepCatalogue() []StepInfo {
	defs := steps.Definitions()
	out := make([]StepInfo, len(defs))
	for i, d := range defs {
		out[i] = StepInfo{StepID: d.ID, RequiredFields: d.RequiredFields()}
	}
	return out
}

// Submit validates a step payload and, when valid, persists it and returns
// the flow's accumulated progress. Completing the review step also announces
// the finished flow and forwards it as a lead.
func (s *BookingStepService) Submit(ctx context.Context, flowID, stepID string, payload any) (*SubmitResult, error) {
	flowID = domain.NormalizeID(flowID)
	stepID = domain.NormalizeID(stepID)

	validation := s.Validate(stepID, payload)
	if !validation.Valid {
		s.logger.DebugContext(ctx, "step validation failed",
			slog.String("flow_id", flowID),
			slog.String("step_id", stepID),
			slog.Int("errors", len(validation.Errors)),
		)
		return &SubmitResult{Validation: validation}, nil
	}

	persisted, err := s.Persist(ctx, flowID, stepID, validation.NormalizedPayload)
	if err != nil {
		return nil, err
	}

	progress, err := s.GetFlowProgress(ctx, flowID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "booking step saved",
		slog.String("flow_id", flowID),
		slog.String("step_id", stepID),
		slog.Bool("persisted", persisted.Persisted),
	)

	s.publishStepCompleted(ctx, &persisted.Record, persisted.Persisted)
	if stepID == domain.StepReview {
		s.publishFlowCompleted(ctx, flowID, progress)
		s.forwardLead(ctx, flowID, progress)
	}

	return &SubmitResult{
		Validation: validation,
		Persisted:  persisted.Persisted,
		Record:     &persisted.Record,
		Progress:   progress,
	}, nil
}

// Wait blocks until background lead deliveries have finished.
func (s *BookingStepService) Wait() {
	s.wg.Wait()
}

func (s *BookingStepService) publishStepCompleted(ctx context.Context, rec *domain.StepProgress, persisted bool) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStepCompleted(ctx, rec, persisted); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish step completed event",
			slog.String("flow_id", rec.FlowID),
			slog.String("step_id", rec.StepID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BookingStepService) publishFlowCompleted(ctx context.Context, flowID string, progress []domain.StepProgress) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishFlowCompleted(ctx, flowID, progress); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish flow completed event",
			slog.String("flow_id", flowID),
			slog.String("error", err.Error()),
		)
	}
}

// forwardLead delivers the lead in the background. Wait blocks on pending
// deliveries.
func (s *BookingStepService) forwardLead(ctx context.Context, flowID string, progress []domain.StepProgress) {
	if s.leads == nil {
		return
	}

	l := lead.Build(flowID, progress, s.now())
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leadForwardTimeout)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		err := s.leads.Forward(fctx, l)
		switch {
		case err == nil:
		case errors.Is(err, lead.ErrRejected):
			leadForwards.WithLabelValues("rejected").Inc()
			s.logger.WarnContext(fctx, "lead rejected, not resending",
				slog.String("flow_id", flowID),
				slog.String("error", err.Error()),
			)
			return
		default:
			leadForwards.WithLabelValues("error").Inc()
			s.logger.ErrorContext(fctx, "failed to forward lead",
				slog.String("flow_id", flowID),
				slog.String("error", err.Error()),
			)
			return
		}
		leadForwards.WithLabelValues("ok").Inc()
	}()
}

package repository

import (
	"context"

	"github.com/djbooking/funnel/internal/domain"
)

// ProgressRepository defines persistence of per-step booking progress.
type ProgressRepository interface {
	// Upsert inserts or replaces the progress of (FlowID, StepID) atomically.
	// CreatedAt is kept from the first write; UpdatedAt is stamped on every
	// write. The stored record is returned.
	Upsert(ctx context.Context, p domain.StepProgress) (*domain.StepProgress, error)

	// ListByFlow returns every step recorded for the flow, oldest update first.
	ListByFlow(ctx context.Context, flowID string) ([]domain.StepProgress, error)

	// Durable reports whether writes survive a process restart.
	Durable() bool

	// Backend names the storage backend for logs, metrics and health info.
	Backend() string
}

// Resetter is implemented by volatile stores that can be cleared between tests.
type Resetter interface {
	Reset()
}

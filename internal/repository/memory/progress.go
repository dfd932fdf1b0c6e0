// Package memory is the volatile progress store used when no database is
// configured. Everything it holds is lost when the process exits.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/djbooking/funnel/internal/domain"
)

// ProgressStore implements repository.ProgressRepository with a map keyed by
// "<flowId>:<stepId>".
type ProgressStore struct {
	mu      sync.RWMutex
	records map[string]domain.StepProgress
	now     func() time.Time
}

// Option configures a ProgressStore.
type Option func(*ProgressStore)

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *ProgressStore) { s.now = now }
}

// NewProgressStore creates an empty in-memory progress store.
func NewProgressStore(opts ...Option) *ProgressStore {
	s := &ProgressStore{
		records: make(map[string]domain.StepProgress),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert implements repository.ProgressRepository. The payload is copied, so
// neither the argument nor the returned record aliases stored state.
func (s *ProgressStore) Upsert(_ context.Context, p domain.StepProgress) (*domain.StepProgress, error) {
	p.Payload = domain.ClonePayload(p.Payload)
	if p.Payload == nil {
		p.Payload = domain.Payload{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := p.Key()
	p.CreatedAt = now
	if existing, ok := s.records[key]; ok {
		p.CreatedAt = existing.CreatedAt
	}
	p.UpdatedAt = now
	s.records[key] = p

	out := p
	out.Payload = domain.ClonePayload(p.Payload)
	return &out, nil
}

// ListByFlow implements repository.ProgressRepository. Map iteration order is
// random, so the result is sorted by UpdatedAt with CreatedAt and StepID as
// tie-breakers.
func (s *ProgressStore) ListByFlow(_ context.Context, flowID string) ([]domain.StepProgress, error) {
	s.mu.RLock()
	progress := make([]domain.StepProgress, 0)
	for _, rec := range s.records {
		if rec.FlowID == flowID {
			rec.Payload = domain.ClonePayload(rec.Payload)
			progress = append(progress, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(progress, func(i, j int) bool {
		a, b := progress[i], progress[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.StepID < b.StepID
	})

	return progress, nil
}

// Reset drops every stored record.
func (s *ProgressStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.StepProgress)
}

// Len returns the number of stored (flow, step) records.
func (s *ProgressStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Durable implements repository.ProgressRepository.
func (s *ProgressStore) Durable() bool { return false }

// Backend implements repository.ProgressRepository.
func (s *ProgressStore) Backend() string { return "memory" }

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/internal/repository"
)

var _ repository.ProgressRepository = (*ProgressStore)(nil)
var _ repository.Resetter = (*ProgressStore)(nil)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestUpsert_RoundTrip(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	_, err := store.Upsert(ctx, domain.StepProgress{
		FlowID: "f1", StepID: "package-selection", IsComplete: true,
		Payload: domain.Payload{"packageId": "gold"},
	})
	require.NoError(t, err)

	progress, err := store.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "package-selection", progress[0].StepID)
	assert.True(t, progress[0].IsComplete)
	assert.Equal(t, "gold", progress[0].Payload["packageId"])
	assert.Equal(t, progress[0].CreatedAt, progress[0].UpdatedAt)
}

func TestUpsert_PreservesCreatedAt(t *testing.T) {
	clock := newFakeClock()
	store := NewProgressStore(WithClock(clock.Now))
	ctx := context.Background()

	first, err := store.Upsert(ctx, domain.StepProgress{
		FlowID: "f1", StepID: "package-selection", IsComplete: true,
		Payload: domain.Payload{"packageId": "gold"},
	})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := store.Upsert(ctx, domain.StepProgress{
		FlowID: "f1", StepID: "package-selection", IsComplete: true,
		Payload: domain.Payload{"packageId": "platinum"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
	assert.Equal(t, 1, store.Len())

	progress, err := store.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "platinum", progress[0].Payload["packageId"])
}

func TestListByFlow_OrderedByUpdatedAt(t *testing.T) {
	clock := newFakeClock()
	store := NewProgressStore(WithClock(clock.Now))
	ctx := context.Background()

	for _, step := range []string{"event-details", "package-selection", "contact-details"} {
		_, err := store.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: step, IsComplete: true})
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	// Re-submitting the first step moves it to the end.
	_, err := store.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "event-details", IsComplete: true})
	require.NoError(t, err)

	progress, err := store.ListByFlow(ctx, "f1")
	require.NoError(t, err)

	ids := make([]string, len(progress))
	for i, p := range progress {
		ids[i] = p.StepID
	}
	assert.Equal(t, []string{"package-selection", "contact-details", "event-details"}, ids)
}

func TestListByFlow_TieBreaksOnStepID(t *testing.T) {
	clock := newFakeClock()
	store := NewProgressStore(WithClock(clock.Now))
	ctx := context.Background()

	for _, step := range []string{"review", "contact-details"} {
		_, err := store.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: step})
		require.NoError(t, err)
	}

	progress, err := store.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 2)
	assert.Equal(t, "contact-details", progress[0].StepID)
	assert.Equal(t, "review", progress[1].StepID)
}

func TestListByFlow_FiltersByFlow(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	_, _ = store.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "review"})
	_, _ = store.Upsert(ctx, domain.StepProgress{FlowID: "f2", StepID: "review"})

	progress, err := store.ListByFlow(ctx, "f2")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "f2", progress[0].FlowID)

	unknown, err := store.ListByFlow(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, unknown)
	assert.Empty(t, unknown)
}

func TestReset(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	_, _ = store.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "review"})
	require.Equal(t, 1, store.Len())

	store.Reset()

	assert.Equal(t, 0, store.Len())
	progress, err := store.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, progress)
}

func TestUpsert_ConcurrentWritersKeepOneRecordPerKey(t *testing.T) {
	store := NewProgressStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = store.Upsert(ctx, domain.StepProgress{
				FlowID:  "f1",
				StepID:  fmt.Sprintf("step-%d", i%5),
				Payload: domain.Payload{"n": float64(i)},
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, store.Len())
}

func TestProgressStore_NotDurable(t *testing.T) {
	store := NewProgressStore()
	assert.False(t, store.Durable())
	assert.Equal(t, "memory", store.Backend())
}

func TestProgressStore_PayloadIsNotShared(t *testing.T) {
	s := NewProgressStore()
	ctx := context.Background()

	in := domain.Payload{"packageId": "gold", "extras": map[string]any{"lights": true}}
	rec, err := s.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "package-selection", Payload: in})
	require.NoError(t, err)

	in["packageId"] = "silver"
	rec.Payload["packageId"] = "bronze"

	listed, err := s.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Payload["extras"].(map[string]any)["lights"] = false

	again, err := s.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "gold", again[0].Payload["packageId"])
	assert.Equal(t, true, again[0].Payload["extras"].(map[string]any)["lights"])
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djbooking/funnel/internal/domain"
	"github.com/djbooking/funnel/internal/repository/memory"
)

// countingRepo wraps the in-memory store and counts backend reads. afterList
// runs once the backend has answered, before the result is returned.
type countingRepo struct {
	*memory.ProgressStore
	lists     int
	listErr   error
	afterList func()
}

func (c *countingRepo) ListByFlow(ctx context.Context, flowID string) ([]domain.StepProgress, error) {
	c.lists++
	if c.listErr != nil {
		return nil, c.listErr
	}
	progress, err := c.ProgressStore.ListByFlow(ctx, flowID)
	if c.afterList != nil {
		c.afterList()
	}
	return progress, err
}

func setupCache(t *testing.T) (*CachedProgressRepository, *countingRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backend := &countingRepo{ProgressStore: memory.NewProgressStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCachedProgressRepository(backend, client, 5*time.Minute, logger), backend, mr
}

func TestListByFlow_MissPopulatesCache(t *testing.T) {
	repo, backend, mr := setupCache(t)
	ctx := context.Background()

	_, err := backend.Upsert(ctx, domain.StepProgress{
		FlowID: "f1", StepID: "package-selection", IsComplete: true,
		Payload: domain.Payload{"packageId": "gold"},
	})
	require.NoError(t, err)

	progress, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, 1, backend.lists)

	require.True(t, mr.Exists("booking:progress:f1"))
	assert.Equal(t, 5*time.Minute, mr.TTL("booking:progress:f1"))

	again, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 1, backend.lists, "second read must be served from cache")
	require.Len(t, again, 1)
	assert.Equal(t, "gold", again[0].Payload["packageId"])
}

func TestListByFlow_CachedEmptyList(t *testing.T) {
	repo, backend, _ := setupCache(t)
	ctx := context.Background()

	first, err := repo.ListByFlow(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, first)

	second, err := repo.ListByFlow(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, second)
	assert.Empty(t, second)
	assert.Equal(t, 1, backend.lists)
}

func TestUpsert_InvalidatesFlowKey(t *testing.T) {
	repo, backend, mr := setupCache(t)
	ctx := context.Background()

	_, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.True(t, mr.Exists(CacheKey("f1")))

	_, err = repo.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "review", IsComplete: true})
	require.NoError(t, err)
	assert.False(t, mr.Exists(CacheKey("f1")))

	progress, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, 2, backend.lists)
}

func TestListByFlow_CorruptEntryFallsThrough(t *testing.T) {
	repo, backend, mr := setupCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(CacheKey("f1"), "not-json"))

	progress, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Empty(t, progress)
	assert.Equal(t, 1, backend.lists)

	raw, err := mr.Get(CacheKey("f1"))
	require.NoError(t, err)
	var decoded []domain.StepProgress
	assert.NoError(t, json.Unmarshal([]byte(raw), &decoded), "corrupt entry is overwritten")
}

func TestListByFlow_RedisDownFallsThrough(t *testing.T) {
	repo, backend, mr := setupCache(t)
	ctx := context.Background()

	_, err := backend.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "review"})
	require.NoError(t, err)
	mr.Close()

	progress, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, progress, 1)

	_, err = repo.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "contact-details"})
	assert.NoError(t, err, "invalidation failure must not fail the write")
	assert.Error(t, repo.Ping(ctx))
}

func TestListByFlow_BackendErrorNotCached(t *testing.T) {
	repo, backend, mr := setupCache(t)
	backend.listErr = errors.New("db down")

	_, err := repo.ListByFlow(context.Background(), "f1")
	require.Error(t, err)
	assert.False(t, mr.Exists(CacheKey("f1")))
}

func TestCachedProgressRepository_DelegatesDurability(t *testing.T) {
	repo, _, _ := setupCache(t)
	assert.False(t, repo.Durable())
	assert.Equal(t, "memory", repo.Backend())
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestListByFlow_ReadRacingUpsertIsNotCached(t *testing.T) {
	repo, backend, mr := setupCache(t)
	ctx := context.Background()

	readDone := make(chan struct{})
	release := make(chan struct{})
	backend.afterList = func() {
		close(readDone)
		<-release
	}

	type result struct {
		progress []domain.StepProgress
		err      error
	}
	slowRead := make(chan result, 1)
	go func() {
		p, err := repo.ListByFlow(ctx, "f1")
		slowRead <- result{p, err}
	}()

	<-readDone
	_, err := repo.Upsert(ctx, domain.StepProgress{
		FlowID: "f1", StepID: "package-selection", IsComplete: true,
		Payload: domain.Payload{"packageId": "gold"},
	})
	require.NoError(t, err)
	close(release)

	stale := <-slowRead
	require.NoError(t, stale.err)
	assert.Empty(t, stale.progress, "the slow read saw the flow before the write")
	assert.False(t, mr.Exists(CacheKey("f1")), "the slow read must not cache its result")

	backend.afterList = nil
	progress, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, "gold", progress[0].Payload["packageId"])

	cached, err := repo.ListByFlow(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
}

func TestUpsert_BumpsFlowVersion(t *testing.T) {
	repo, _, mr := setupCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := repo.Upsert(ctx, domain.StepProgress{FlowID: "f1", StepID: "review", IsComplete: true})
		require.NoError(t, err)
	}

	v, err := mr.Get(VersionKey("f1"))
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, minVersionTTL, mr.TTL(VersionKey("f1")))
}

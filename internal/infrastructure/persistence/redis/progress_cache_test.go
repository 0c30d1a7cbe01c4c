package redis

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/application/research"
)

type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value.([]byte)
	m.ttls[key] = ttl
	return nil
}

func progressEvent(phase int, status research.ProgressStatus) research.ProgressEvent {
	return research.ProgressEvent{
		ProjectID:   "p-1",
		ArtifactID:  "a-1",
		PhaseNumber: phase,
		Status:      status,
		Percent:     research.PercentFor(phase),
		At:          time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestProgressCacheEmitOverwritesLatest(t *testing.T) {
	kv := newMemKV()
	cache := newProgressCache(kv, time.Hour)
	ctx := context.Background()

	cache.Emit(ctx, progressEvent(1, research.ProgressRunning))
	cache.Emit(ctx, progressEvent(1, research.ProgressCompleted))

	got, err := cache.Latest(ctx, "p-1", nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, research.ProgressCompleted, got.Status)
	assert.Equal(t, 25, got.Percent)
	assert.Equal(t, time.Hour, kv.ttls[ProgressKey("p-1")])
}

func TestProgressCacheDefaultsTTL(t *testing.T) {
	kv := newMemKV()
	cache := newProgressCache(kv, 0)
	require.NoError(t, cache.Put(context.Background(), progressEvent(2, research.ProgressRunning)))
	assert.Equal(t, defaultProgressTTL, kv.ttls[ProgressKey("p-1")])
}

func TestProgressCacheMissBackfillsFromLoader(t *testing.T) {
	kv := newMemKV()
	cache := newProgressCache(kv, time.Hour)
	ctx := context.Background()

	var calls atomic.Int32
	loader := func(context.Context) (*research.ProgressEvent, error) {
		calls.Add(1)
		e := progressEvent(3, research.ProgressFailed)
		return &e, nil
	}

	got, err := cache.Latest(ctx, "p-1", loader)
	require.NoError(t, err)
	assert.Equal(t, research.ProgressFailed, got.Status)

	got, err = cache.Latest(ctx, "p-1", loader)
	require.NoError(t, err)
	assert.Equal(t, 3, got.PhaseNumber)
	assert.Equal(t, int32(1), calls.Load(), "second read should hit the backfilled key")
}

func TestProgressCacheLoaderResults(t *testing.T) {
	ctx := context.Background()

	got, err := newProgressCache(newMemKV(), time.Hour).Latest(ctx, "p-1", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = newProgressCache(newMemKV(), time.Hour).Latest(ctx, "p-1",
		func(context.Context) (*research.ProgressEvent, error) { return nil, nil })
	require.NoError(t, err)
	assert.Nil(t, got)

	boom := errors.New("db down")
	_, err = newProgressCache(newMemKV(), time.Hour).Latest(ctx, "p-1",
		func(context.Context) (*research.ProgressEvent, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestProgressCacheFallsBackWhenRedisFails(t *testing.T) {
	kv := newMemKV()
	kv.getErr = errors.New("connection refused")
	kv.setErr = errors.New("connection refused")
	cache := newProgressCache(kv, time.Hour)

	// Emit 失败只记录日志
	cache.Emit(context.Background(), progressEvent(1, research.ProgressRunning))

	got, err := cache.Latest(context.Background(), "p-1", func(context.Context) (*research.ProgressEvent, error) {
		e := progressEvent(4, research.ProgressCompleted)
		return &e, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 100, got.Percent)
}

package cache

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seasonValue struct {
	Season string  `json:"season"`
	Value  float64 `json:"value"`
}

func countingLoader(calls *int32, value float64) Loader[seasonValue] {
	return func(ctx context.Context, season string) (seasonValue, error) {
		atomic.AddInt32(calls, 1)
		return seasonValue{Season: season, Value: value}, nil
	}
}

func TestMemoryStoreExpiration(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))

	data, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), data)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)

	data, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), data, "zero expiration never expires")

	require.NoError(t, store.Delete(ctx, "b"))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestSeasonCacheReadThrough(t *testing.T) {
	var calls int32
	var hits, misses int32
	c := NewSeasonCache[seasonValue]("season", logrus.New(), WithLookupHook[seasonValue](func(hit bool) {
		if hit {
			atomic.AddInt32(&hits, 1)
		} else {
			atomic.AddInt32(&misses, 1)
		}
	}))
	ctx := context.Background()

	first, err := c.Get(ctx, "2023-24", countingLoader(&calls, 1))
	require.NoError(t, err)
	second, err := c.Get(ctx, "2023-24", countingLoader(&calls, 2))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, second.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(1), hits)
	assert.Equal(t, int32(1), misses)
	assert.Equal(t, []string{"2023-24"}, c.Seasons())
}

func TestSeasonCacheInvalidate(t *testing.T) {
	var calls int32
	remote := NewMemoryStore()
	c := NewSeasonCache[seasonValue]("season", logrus.New(), WithRemote[seasonValue](remote, time.Hour))
	ctx := context.Background()

	_, err := c.Get(ctx, "2023-24", countingLoader(&calls, 1))
	require.NoError(t, err)

	require.NoError(t, c.Invalidate(ctx, "2023-24"))
	assert.Empty(t, c.Seasons())
	_, err = remote.Get(ctx, "season:2023-24")
	assert.ErrorIs(t, err, ErrCacheMiss, "invalidation reaches the shared tier")

	reloaded, err := c.Get(ctx, "2023-24", countingLoader(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, reloaded.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestSeasonCacheSharedTier(t *testing.T) {
	remote := NewMemoryStore()
	ctx := context.Background()

	var calls int32
	writer := NewSeasonCache[seasonValue]("season", logrus.New(), WithRemote[seasonValue](remote, time.Hour))
	_, err := writer.Get(ctx, "2023-24", countingLoader(&calls, 7))
	require.NoError(t, err)

	reader := NewSeasonCache[seasonValue]("season", logrus.New(), WithRemote[seasonValue](remote, time.Hour))
	got, err := reader.Get(ctx, "2023-24", countingLoader(&calls, 8))
	require.NoError(t, err)

	assert.Equal(t, 7.0, got.Value, "second process reads the shared entry")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSeasonCacheUnshareableValueStaysLocal(t *testing.T) {
	remote := NewMemoryStore()
	ctx := context.Background()
	var calls int32

	c := NewSeasonCache[seasonValue]("season", logrus.New(), WithRemote[seasonValue](remote, time.Hour))
	got, err := c.Get(ctx, "2023-24", countingLoader(&calls, math.NaN()))
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.Value))

	_, err = remote.Get(ctx, "season:2023-24")
	assert.ErrorIs(t, err, ErrCacheMiss)

	_, err = c.Get(ctx, "2023-24", countingLoader(&calls, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "local tier still memoizes")
}

func TestSeasonCacheLoadErrorNotCached(t *testing.T) {
	c := NewSeasonCache[seasonValue]("season", logrus.New())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := c.Get(ctx, "2023-24", func(context.Context, string) (seasonValue, error) {
		return seasonValue{}, boom
	})
	assert.ErrorIs(t, err, boom)

	var calls int32
	_, err = c.Get(ctx, "2023-24", countingLoader(&calls, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSeasonCacheConcurrentMissesShareLoad(t *testing.T) {
	c := NewSeasonCache[seasonValue]("season", logrus.New())
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	loader := func(ctx context.Context, season string) (seasonValue, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return seasonValue{Season: season, Value: 3}, nil
	}

	var wg sync.WaitGroup
	results := make([]seasonValue, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(ctx, "2023-24", loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, v := range results {
		assert.Equal(t, 3.0, v.Value)
	}
}

func TestSeasonCacheCancelledCallerDoesNotFailWaiters(t *testing.T) {
	c := NewSeasonCache[seasonValue]("season", logrus.New())

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context, season string) (seasonValue, error) {
		atomic.AddInt32(&calls, 1)
		close(started)
		select {
		case <-release:
			return seasonValue{Season: season, Value: 4}, nil
		case <-ctx.Done():
			return seasonValue{}, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, "2023-24", loader)
		firstErr <- err
	}()
	<-started

	type result struct {
		value seasonValue
		err   error
	}
	second := make(chan result, 1)
	go func() {
		v, err := c.Get(context.Background(), "2023-24", loader)
		second <- result{v, err}
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 4.0, got.value.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{"2023-24"}, c.Seasons(), "detached load is still cached")
}

func TestSeasonCacheInvalidateDuringLoadDropsStaleValue(t *testing.T) {
	remote := NewMemoryStore()
	c := NewSeasonCache[seasonValue]("season", logrus.New(), WithRemote[seasonValue](remote, time.Hour))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	stale := func(ctx context.Context, season string) (seasonValue, error) {
		close(started)
		<-release
		return seasonValue{Season: season, Value: 1}, nil
	}

	done := make(chan seasonValue, 1)
	go func() {
		v, err := c.Get(ctx, "2023-24", stale)
		assert.NoError(t, err)
		done <- v
	}()
	<-started

	require.NoError(t, c.Invalidate(ctx, "2023-24"))
	close(release)
	assert.Equal(t, 1.0, (<-done).Value, "in-flight callers still get their load")

	assert.Empty(t, c.Seasons())
	_, err := remote.Get(ctx, "season:2023-24")
	assert.ErrorIs(t, err, ErrCacheMiss)

	var calls int32
	fresh, err := c.Get(ctx, "2023-24", countingLoader(&calls, 2))
	require.NoError(t, err)
	assert.Equal(t, 2.0, fresh.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Loader builds the value for a season on a cache miss.
type Loader[T any] func(ctx context.Context, season string) (T, error)

// SeasonCache memoizes one value per season in process, with an optional
// shared second tier. Concurrent misses for the same season share one load.
type SeasonCache[T any] struct {
	mu    sync.RWMutex
	local map[string]T
	// generation is bumped by Invalidate; a load started under an older
	// generation is returned to its callers but never stored.
	generation map[string]uint64
	group      singleflight.Group

	remote     Store
	prefix     string
	expiration time.Duration
	logger     *logrus.Logger
	onLookup   func(hit bool)
}

type SeasonCacheOption[T any] func(*SeasonCache[T])

// WithRemote adds a shared tier. Values are stored as JSON.
func WithRemote[T any](store Store, expiration time.Duration) SeasonCacheOption[T] {
	return func(c *SeasonCache[T]) {
		c.remote = store
		c.expiration = expiration
	}
}

// WithLookupHook is called after every Get with whether the value was cached.
func WithLookupHook[T any](fn func(hit bool)) SeasonCacheOption[T] {
	return func(c *SeasonCache[T]) { c.onLookup = fn }
}

func NewSeasonCache[T any](prefix string, logger *logrus.Logger, opts ...SeasonCacheOption[T]) *SeasonCache[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &SeasonCache[T]{
		local:      make(map[string]T),
		generation: make(map[string]uint64),
		prefix:     prefix,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SeasonCache[T]) key(season string) string {
	return fmt.Sprintf("%s:%s", c.prefix, season)
}

// cached returns the local value and the season's current generation.
func (c *SeasonCache[T]) cached(season string) (T, bool, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.local[season]
	return value, ok, c.generation[season]
}

// Get returns the cached value for season, loading it on a miss. The shared
// load is detached from ctx so one caller going away does not fail the others;
// ctx only bounds how long this caller waits.
func (c *SeasonCache[T]) Get(ctx context.Context, season string, load Loader[T]) (T, error) {
	value, ok, gen := c.cached(season)
	if ok {
		c.lookup(true)
		return value, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	flight := fmt.Sprintf("%s#%d", c.key(season), gen)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		if value, ok, current := c.cached(season); ok && current == gen {
			c.lookup(true)
			return value, nil
		}

		value, err := c.fill(loadCtx, season, gen, load)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.generation[season] == gen {
			c.local[season] = value
		}
		c.mu.Unlock()
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// current reports whether no Invalidate has happened since gen was read.
func (c *SeasonCache[T]) current(season string, gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation[season] == gen
}

func (c *SeasonCache[T]) fill(ctx context.Context, season string, gen uint64, load Loader[T]) (T, error) {
	if c.remote != nil {
		data, err := c.remote.Get(ctx, c.key(season))
		switch {
		case err == nil:
			var value T
			if err := json.Unmarshal(data, &value); err == nil {
				c.lookup(true)
				c.logger.WithField("season", season).Debug("Season model loaded from shared cache")
				return value, nil
			}
			c.logger.WithField("season", season).Warn("Discarding unreadable shared cache entry")
		case !errors.Is(err, ErrCacheMiss):
			c.logger.WithError(err).WithField("season", season).Warn("Shared cache unavailable, loading season directly")
		}
	}

	c.lookup(false)
	value, err := load(ctx, season)
	if err != nil {
		var zero T
		return zero, err
	}

	if c.remote != nil && c.current(season, gen) {
		data, err := json.Marshal(value)
		if err != nil {
			c.logger.WithError(err).WithField("season", season).Warn("Season model not shareable, keeping local copy only")
			return value, nil
		}
		if err := c.remote.Set(ctx, c.key(season), data, c.expiration); err != nil {
			c.logger.WithError(err).WithField("season", season).Warn("Failed to write shared cache")
		}
	}
	return value, nil
}

func (c *SeasonCache[T]) lookup(hit bool) {
	if c.onLookup != nil {
		c.onLookup(hit)
	}
}

// Invalidate drops the season from both tiers so the next Get reloads it.
func (c *SeasonCache[T]) Invalidate(ctx context.Context, season string) error {
	c.mu.Lock()
	delete(c.local, season)
	c.generation[season]++
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.Delete(ctx, c.key(season)); err != nil {
			return err
		}
	}
	c.logger.WithField("season", season).Info("Invalidated season cache")
	return nil
}

// Seasons lists the seasons held in process.
func (c *SeasonCache[T]) Seasons() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seasons := make([]string, 0, len(c.local))
	for s := range c.local {
		seasons = append(seasons, s)
	}
	sort.Strings(seasons)
	return seasons
}

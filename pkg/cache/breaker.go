package cache

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerStore guards a shared Store with a circuit breaker. While open,
// every call fails fast with gobreaker.ErrOpenState.
type BreakerStore struct {
	store   Store
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore trips after three requests with at least 60% failures and
// probes again after timeout. Cache misses count as successes.
func NewBreakerStore(store Store, timeout time.Duration, logger *logrus.Logger) *BreakerStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	settings := gobreaker.Settings{
		Name:        "season-cache",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"component": "circuit_breaker",
				"service":   name,
				"from":      from.String(),
				"to":        to.String(),
			}).Info("Circuit breaker state changed")
		},
	}
	return &BreakerStore{store: store, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.breaker.Execute(func() (interface{}, error) {
		return b.store.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return data.([]byte), nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, data []byte, expiration time.Duration) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.store.Set(ctx, key, data, expiration)
	})
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.store.Delete(ctx, key)
	})
	return err
}

// State reports the breaker state, "closed", "half-open" or "open".
func (b *BreakerStore) State() string {
	return b.breaker.State().String()
}

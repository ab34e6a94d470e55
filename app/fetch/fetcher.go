// Package fetch wraps idempotent reads with bounded exponential backoff and a
// last-known-good fallback. Writes must not go through it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/lysyi3m/event-feed/app/metrics"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
)

var ErrExhausted = errors.New("retries exhausted")

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration

	// BreakerFailures opens a circuit breaker after that many consecutive
	// failed attempts. Zero disables the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// Result carries the value and whether it came from the stale cache.
type Result[T any] struct {
	Value    T
	Degraded bool
	Attempts int
}

type Fetcher[T any] struct {
	name       string
	maxRetries int
	baseDelay  time.Duration
	breaker    *gobreaker.CircuitBreaker[T]

	mu       sync.RWMutex
	lastGood map[string]T
}

func New[T any](name string, config Config) *Fetcher[T] {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}

	f := &Fetcher[T]{
		name:       name,
		maxRetries: config.MaxRetries,
		baseDelay:  config.BaseDelay,
		lastGood:   make(map[string]T),
	}

	if config.BreakerFailures > 0 {
		f.breaker = newBreaker[T](name, config.BreakerFailures, config.BreakerTimeout)
	}

	return f
}

// Delay is the wait after the given zero-based failed attempt.
func Delay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(attempt))
}

// Fetch runs read up to MaxRetries+1 times. When every attempt fails and a
// previous read under the same key succeeded, that value is returned with
// Degraded set instead of an error.
func (f *Fetcher[T]) Fetch(ctx context.Context, key string, read func(context.Context) (T, error)) (Result[T], error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		attempts++
		value, err := f.attempt(ctx, read)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(f.name, "success").Inc()
			f.remember(key, value)
			return Result[T]{Value: value, Attempts: attempt + 1}, nil
		}

		lastErr = err
		metrics.FetchAttempts.WithLabelValues(f.name, "failure").Inc()

		if ctx.Err() != nil {
			return Result[T]{Attempts: attempt + 1}, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Warn("Circuit open, skipping remaining attempts", "source", f.name, "key", key)
			break
		}
		if attempt == f.maxRetries {
			break
		}

		delay := Delay(f.baseDelay, attempt)
		slog.Debug("Read failed, backing off", "source", f.name, "key", key, "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Result[T]{Attempts: attempt + 1}, ctx.Err()
		}
	}

	if cached, ok := f.LastGood(key); ok {
		metrics.DegradedReads.WithLabelValues(f.name).Inc()
		slog.Warn("Serving last known good response", "source", f.name, "key", key, "error", lastErr)
		return Result[T]{Value: cached, Degraded: true, Attempts: attempts}, nil
	}

	return Result[T]{Attempts: attempts}, fmt.Errorf("%s %w: %w", f.name, ErrExhausted, lastErr)
}

func (f *Fetcher[T]) LastGood(key string) (T, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.lastGood[key]
	return value, ok
}

// Forget drops the cached response for key.
func (f *Fetcher[T]) Forget(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lastGood, key)
}

func (f *Fetcher[T]) attempt(ctx context.Context, read func(context.Context) (T, error)) (T, error) {
	if f.breaker == nil {
		return read(ctx)
	}
	return f.breaker.Execute(func() (T, error) {
		return read(ctx)
	})
}

func (f *Fetcher[T]) remember(key string, value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGood[key] = value
}

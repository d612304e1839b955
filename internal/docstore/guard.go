package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"collegeattend/internal/logging"
	"collegeattend/internal/metrics"
)

// Guard bounds every call with a timeout, trips a circuit breaker on repeated infrastructure
// failures, and records per-operation metrics. Timeouts and an open circuit surface as
// ErrUnavailable.
type Guard struct {
	next    Store
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]
}

// NewGuard wraps next. A non-positive timeout defaults to five seconds.
func NewGuard(next Store, name string, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !infrastructural(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &Guard{next: next, timeout: timeout, cb: cb}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// infrastructural reports errors that say nothing about the data: timeouts and unavailability.
func infrastructural(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func (g *Guard) do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	_, err := g.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	metrics.StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.StoreOpErrors.WithLabelValues(operation).Inc()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable):
		metrics.StoreOpErrors.WithLabelValues(operation).Inc()
		return fmt.Errorf("%w: %s timed out", ErrUnavailable, operation)
	case infrastructural(err):
		metrics.StoreOpErrors.WithLabelValues(operation).Inc()
	}
	return err
}

func (g *Guard) Get(ctx context.Context, collection, id string) (Document, error) {
	var doc Document
	err := g.do(ctx, "get", func(ctx context.Context) error {
		var err error
		doc, err = g.next.Get(ctx, collection, id)
		return err
	})
	return doc, err
}

func (g *Guard) Set(ctx context.Context, collection, id string, fields Fields) error {
	return g.do(ctx, "set", func(ctx context.Context) error {
		return g.next.Set(ctx, collection, id, fields)
	})
}

func (g *Guard) Update(ctx context.Context, collection, id string, fields Fields) error {
	return g.do(ctx, "update", func(ctx context.Context) error {
		return g.next.Update(ctx, collection, id, fields)
	})
}

func (g *Guard) Delete(ctx context.Context, collection, id string) error {
	return g.do(ctx, "delete", func(ctx context.Context) error {
		return g.next.Delete(ctx, collection, id)
	})
}

func (g *Guard) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	var docs []Document
	err := g.do(ctx, "query", func(ctx context.Context) error {
		var err error
		docs, err = g.next.Query(ctx, collection, filters...)
		return err
	})
	return docs, err
}

func (g *Guard) Commit(ctx context.Context, b *Batch) error {
	return g.do(ctx, "commit", func(ctx context.Context) error {
		return g.next.Commit(ctx, b)
	})
}

func (g *Guard) Close() error { return g.next.Close() }

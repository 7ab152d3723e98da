// Package resilience guards provider calls with retries and a circuit breaker per call name.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Verdict is how the executor treats a failed attempt
type Verdict int

const (
	// Fatal failures count against the breaker and end the call
	Fatal Verdict = iota
	// Transient failures count against the breaker and are retried with backoff
	Transient
	// Refused failures end the call without counting against the breaker,
	// e.g. a rejected request or a cancelled context
	Refused
)

func (v Verdict) String() string {
	switch v {
	case Transient:
		return "transient"
	case Refused:
		return "refused"
	default:
		return "fatal"
	}
}

// Classifier decides the verdict for a failed attempt
type Classifier func(error) Verdict

func alwaysFatal(error) Verdict { return Fatal }

type breaker = gobreaker.CircuitBreaker[struct{}]

// Executor runs named provider calls with retry and circuit breaking
type Executor struct {
	cfg      Config
	logger   *slog.Logger
	breakers sync.Map // call name -> *breaker
}

// NewExecutor creates an Executor. Zero config fields take defaults.
func NewExecutor(cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{cfg: cfg.normalize(), logger: logger}
}

// Do runs fn as the named call. With the breaker enabled the whole retry
// sequence counts as a single breaker request.
func (e *Executor) Do(ctx context.Context, call string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return errors.New("resilience: nil call")
	}
	call = strings.TrimSpace(call)
	if call == "" {
		call = "unnamed"
	}
	if classify == nil {
		classify = alwaysFatal
	}

	run := func() (struct{}, error) {
		return struct{}{}, e.retry(ctx, call, fn, classify)
	}
	if !e.cfg.BreakerEnabled {
		_, err := run()
		return err
	}
	_, err := e.breakerFor(call, classify).Execute(run)
	return err
}

func (e *Executor) retry(ctx context.Context, call string, fn func(context.Context) error, classify Classifier) error {
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}

		if err = fn(ctx); err == nil {
			return nil
		}
		if classify(err) != Transient || attempt >= e.cfg.RetryMaxAttempts {
			return err
		}

		wait := e.cfg.backoff(attempt)
		e.logger.Warn("Provider call failed, retrying",
			slog.String("call", call),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.cfg.RetryMaxAttempts),
			slog.Duration("retry_after", wait),
			slog.Any("error", err),
		)
		if !sleep(ctx, wait) {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// breakerFor returns the breaker of a call; the first classifier seen for a call is kept
func (e *Executor) breakerFor(call string, classify Classifier) *breaker {
	if cb, ok := e.breakers.Load(call); ok {
		return cb.(*breaker)
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        call,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: e.cfg.tripped,
		IsSuccessful: func(err error) bool {
			return err == nil || classify(err) == Refused
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("Provider circuit changed state",
				slog.String("call", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	actual, _ := e.breakers.LoadOrStore(call, cb)
	return actual.(*breaker)
}

// IsCircuitOpen reports whether err came from an open or saturated breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Package retry runs store operations under a bounded exponential backoff,
// retrying only failures classified as transient.
package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NoRetries as Options.MaxRetries runs each operation once.
const NoRetries = -1

// Default policy values.
const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = 200 * time.Millisecond
	DefaultFactor       = 2.0
)

// ErrUnavailable is matched by the error returned once retries on a
// transient failure are exhausted.
var ErrUnavailable = errors.New("store unavailable")

// UnavailableError wraps the last transient cause after retry exhaustion.
type UnavailableError struct {
	Attempts int
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("retry: store unavailable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// transientMarkers is the lower-cased message vocabulary of retryable failures.
var transientMarkers = []string{
	"connection refused",
	"network error",
	"fetch failed",
	"database is locked",
	"too many requests",
	"rate limit",
	"timeout",
}

// IsTransient reports whether err is likely to succeed on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Options configures an Executor. Zero fields take the defaults; a negative
// MaxRetries disables retries.
type Options struct {
	MaxRetries   int
	InitialDelay time.Duration
	Factor       float64
}

func (o Options) withDefaults() Options {
	switch {
	case o.MaxRetries < 0:
		o.MaxRetries = NoRetries
	case o.MaxRetries == 0:
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = DefaultInitialDelay
	}
	if o.Factor <= 0 {
		o.Factor = DefaultFactor
	}
	return o
}

// Delay returns the wait before retry number attempt (1-based).
func (o Options) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	return time.Duration(float64(o.InitialDelay) * math.Pow(o.Factor, float64(attempt-1)))
}

// Executor applies the retry policy. It is safe for concurrent use.
type Executor struct {
	opts  Options
	log   *zap.Logger
	sleep func(context.Context, time.Duration) error
}

// New returns an Executor with the given options.
func New(opts Options, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{opts: opts.withDefaults(), log: log, sleep: sleepContext}
}

// Options returns the effective policy.
func (e *Executor) Options() Options { return e.opts }

// Do runs op until it succeeds, fails with a non-transient error, or the
// retry budget is spent. A non-transient error is returned unmodified.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error) error {
	attempt := 0
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		attempt++
		if !IsTransient(err) {
			return err
		}
		if attempt > max(e.opts.MaxRetries, 0) {
			return &UnavailableError{Attempts: attempt, Err: err}
		}

		delay := e.opts.Delay(attempt)
		e.log.Warn("transient store error, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.opts.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Value is Do for operations that produce a result.
func Value[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

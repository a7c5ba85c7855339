package resilience

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// ErrAttemptTimeout marks a single attempt that exceeded its own deadline
// while the overall request budget was still available.
var ErrAttemptTimeout = errors.New("attempt timed out")

// ErrTotalTimeout is the cancellation cause once a request used up its whole
// budget across attempts.
var ErrTotalTimeout = errors.New("total timeout exceeded")

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. The breaker also treats it as a
// healthy response from the target.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Retry implements exponential backoff with jitter.
type Retry struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	NoJitter   bool
	Clock      Clock
	Logger     *slog.Logger
}

// Do runs task until it succeeds, fails permanently, hits ErrCircuitOpen,
// exhausts MaxRetries additional attempts, or ctx is done.
func (r *Retry) Do(ctx context.Context, name string, task func(ctx context.Context) error) error {
	clock := r.Clock
	if clock == nil {
		clock = WallClock
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for attempt := 1; ; attempt++ {
		err := task(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("retry_succeeded", "task", name, "attempt", attempt)
			}
			return nil
		}
		if !r.shouldRetry(ctx, attempt, err) {
			logger.Debug("retry_gave_up", "task", name, "attempt", attempt, "error", err)
			return err
		}

		delay := r.Backoff(attempt)
		logger.Debug("retry_scheduled", "task", name, "attempt", attempt, "delay", delay.String(), "error", err)
		select {
		case <-clock.After(delay):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
}

func (r *Retry) shouldRetry(ctx context.Context, attempt int, err error) bool {
	switch {
	case attempt > r.MaxRetries,
		ctx.Err() != nil,
		errors.Is(err, ErrCircuitOpen),
		IsPermanent(err):
		return false
	}
	return true
}

// Backoff returns the delay before the retry that follows attempt (1-based):
// BaseDelay·2^(attempt-1), capped at MaxDelay, then jittered to 80–120%.
func (r *Retry) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	maxDelay := r.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	d := float64(r.BaseDelay) * math.Pow(2, float64(attempt-1))
	d = math.Min(d, float64(maxDelay))
	if !r.NoJitter {
		// #nosec G404
		d *= 0.8 + 0.4*rand.Float64()
	}
	return time.Duration(d)
}

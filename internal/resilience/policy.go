package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Policy composes, from the outside in: total request timeout, retry with
// backoff, a circuit breaker per target, and a per-attempt timeout.
type Policy struct {
	settings Settings
	retry    *Retry
	breakers *Registry
}

func NewPolicy(settings Settings, clock Clock, logger *slog.Logger, opts ...BreakerOption) *Policy {
	settings.ApplyDefaults()
	if clock == nil {
		clock = WallClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	brOpts := append([]BreakerOption{WithClock(clock), WithLogger(logger)}, opts...)
	return &Policy{
		settings: settings,
		retry: &Retry{
			MaxRetries: *settings.MaxRetries,
			BaseDelay:  settings.BaseDelay,
			MaxDelay:   settings.MaxDelay,
			NoJitter:   settings.NoJitter,
			Clock:      clock,
			Logger:     logger,
		},
		breakers: NewRegistry(settings, brOpts...),
	}
}

// Execute runs op against target under the full policy.
func (p *Policy) Execute(ctx context.Context, target string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeoutCause(ctx, p.settings.TotalTimeout, ErrTotalTimeout)
	defer cancel()

	breaker := p.breakers.For(target)
	return p.retry.Do(ctx, target, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			return p.attempt(ctx, op)
		})
	})
}

func (p *Policy) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	actx, cancel := context.WithTimeoutCause(ctx, p.settings.AttemptTimeout, ErrAttemptTimeout)
	defer cancel()

	err := op(actx)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(actx), ErrAttemptTimeout) {
		return fmt.Errorf("%w after %s: %w", ErrAttemptTimeout, p.settings.AttemptTimeout, err)
	}
	return err
}

// Breaker exposes the breaker guarding target.
func (p *Policy) Breaker(target string) *Breaker {
	return p.breakers.For(target)
}

func (p *Policy) Snapshots() []Snapshot {
	return p.breakers.Snapshots()
}

package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without touching the target while the breaker
// is open, or while a half-open trial call is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Target       string
	State        State
	FailureRatio float64
	SampleCount  int
	OpenedAt     time.Time
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeIgnored
)

type sample struct {
	at     time.Time
	failed bool
}

// Breaker is a failure-ratio circuit breaker over a rolling time window.
//
// Closed: calls pass and their outcomes are recorded. Once the window holds at
// least MinimumThroughput outcomes and the failure ratio reaches FailureRatio
// the breaker opens. Open: calls fail with ErrCircuitOpen until BreakDuration
// has elapsed. HalfOpen: exactly one trial call is admitted; success closes the
// breaker with an empty window, failure re-opens it and restarts the timer.
type Breaker struct {
	target   string
	settings Settings
	clock    Clock
	logger   *slog.Logger
	onChange func(target string, from, to State)

	mu       sync.Mutex
	state    State
	window   []sample
	openedAt time.Time
	trialing bool
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

func WithClock(c Clock) BreakerOption {
	return func(b *Breaker) {
		if c != nil {
			b.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) BreakerOption {
	return func(b *Breaker) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithStateChange registers a hook invoked after every transition. It runs
// outside the breaker lock.
func WithStateChange(fn func(target string, from, to State)) BreakerOption {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

func NewBreaker(target string, settings Settings, opts ...BreakerOption) *Breaker {
	settings.ApplyDefaults()
	b := &Breaker{
		target:   target,
		settings: settings,
		clock:    WallClock,
		logger:   slog.Default(),
		state:    Closed,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Execute runs op if the breaker admits the call and records its outcome.
// Cancellation of ctx by the caller is not held against the target.
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = op(ctx)
	b.record(trial, classify(ctx, err))
	return err
}

func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	switch b.state {
	case Closed:
		b.mu.Unlock()
		return false, nil
	case Open:
		since := b.clock.Now().Sub(b.openedAt)
		if since < b.settings.BreakDuration {
			b.mu.Unlock()
			b.logger.Debug("breaker_fast_fail", "target", b.target, "since_open", since.String())
			return false, ErrCircuitOpen
		}
		b.state = HalfOpen
		b.trialing = true
		b.mu.Unlock()
		b.transitioned(Open, HalfOpen)
		return true, nil
	default:
		if b.trialing {
			b.mu.Unlock()
			return false, ErrCircuitOpen
		}
		b.trialing = true
		b.mu.Unlock()
		return true, nil
	}
}

func (b *Breaker) record(trial bool, out outcome) {
	now := b.clock.Now()

	b.mu.Lock()
	if trial {
		b.trialing = false
		switch out {
		case outcomeIgnored:
			b.mu.Unlock()
			return
		case outcomeFailure:
			b.state = Open
			b.openedAt = now
			b.mu.Unlock()
			b.transitioned(HalfOpen, Open)
		default:
			b.state = Closed
			b.window = b.window[:0]
			b.mu.Unlock()
			b.transitioned(HalfOpen, Closed)
		}
		return
	}

	// Outcomes of calls admitted before the breaker tripped do not count.
	if b.state != Closed || out == outcomeIgnored {
		b.mu.Unlock()
		return
	}

	b.window = append(b.window, sample{at: now, failed: out == outcomeFailure})
	b.pruneLocked(now)
	failures, total := b.countLocked()
	if total < b.settings.MinimumThroughput || float64(failures)/float64(total) < b.settings.FailureRatio {
		b.mu.Unlock()
		return
	}
	b.state = Open
	b.openedAt = now
	b.window = b.window[:0]
	b.mu.Unlock()

	b.logger.Warn("breaker_opened", "target", b.target, "failures", failures, "calls", total)
	b.transitioned(Closed, Open)
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.settings.SamplingDuration)
	i := 0
	for i < len(b.window) && !b.window[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		b.window = append(b.window[:0], b.window[i:]...)
	}
}

func (b *Breaker) countLocked() (failures, total int) {
	for _, s := range b.window {
		if s.failed {
			failures++
		}
	}
	return failures, len(b.window)
}

func (b *Breaker) transitioned(from, to State) {
	b.logger.Info("breaker_state_changed", "target", b.target, "from", from.String(), "to", to.String())
	if b.onChange != nil {
		b.onChange(b.target, from, to)
	}
}

// State reports the current state. An open breaker whose break duration has
// elapsed still reports Open until the next call tries it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Snapshot {
	now := b.clock.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pruneLocked(now)
	failures, total := b.countLocked()
	snap := Snapshot{
		Target:      b.target,
		State:       b.state,
		SampleCount: total,
		OpenedAt:    b.openedAt,
	}
	if total > 0 {
		snap.FailureRatio = float64(failures) / float64(total)
	}
	return snap
}

func classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case ctx.Err() != nil && !errors.Is(context.Cause(ctx), ErrTotalTimeout):
		// Only the caller gave up; the target was never judged.
		return outcomeIgnored
	case IsPermanent(err):
		// The target answered; the request itself was bad.
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}

// Registry hands out one Breaker per outbound target.
type Registry struct {
	settings Settings
	opts     []BreakerOption

	mu       sync.Mutex
	breakers map[string]*Breaker
}

func NewRegistry(settings Settings, opts ...BreakerOption) *Registry {
	return &Registry{
		settings: settings,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

func (r *Registry) For(target string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[target]
	if !ok {
		b = NewBreaker(target, r.settings, r.opts...)
		r.breakers[target] = b
	}
	return b
}

func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

package kiosk

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCollectorClosed is returned when a reading is pushed after the push
// collector was stopped.
var ErrCollectorClosed = errors.New("kiosk: push collector closed")

// ErrPublisherClosed is returned when a channel publisher is written to after being closed.
var ErrPublisherClosed = errors.New("kiosk: channel publisher closed")

// PushCollector lets an embedding program feed readings into the runtime
// without a broker. Pass it to WithCollector and call Push from any goroutine.
type PushCollector struct {
	mu      sync.Mutex
	out     chan<- Reading
	stopped chan struct{}
	once    sync.Once
}

func NewPushCollector() *PushCollector {
	return &PushCollector{stopped: make(chan struct{})}
}

func (c *PushCollector) Start(out chan<- Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		return fmt.Errorf("push collector already started")
	}
	c.out = out
	return nil
}

// Push hands r to the pipeline, blocking while its channel is full.
func (c *PushCollector) Push(ctx context.Context, r Reading) error {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return fmt.Errorf("push collector not started")
	}

	select {
	case <-c.stopped:
		return ErrCollectorClosed
	default:
	}

	select {
	case <-c.stopped:
		return ErrCollectorClosed
	case <-ctx.Done():
		return ctx.Err()
	case out <- r:
		return nil
	}
}

func (c *PushCollector) Stop() error {
	c.once.Do(func() { close(c.stopped) })
	return nil
}

// PublishFunc receives every upserted daily statistic.
type PublishFunc func(ctx context.Context, stat DailyStatistic) error

// NewCallbackPublisher adapts fn into a RollupPublisher so callers can plug
// arbitrary functions without defining structs.
func NewCallbackPublisher(name string, fn PublishFunc) RollupPublisher {
	if name == "" {
		name = "callback"
	}
	return &callbackPublisher{name: name, fn: fn}
}

type callbackPublisher struct {
	name string
	fn   PublishFunc
}

func (p *callbackPublisher) Publish(ctx context.Context, stat DailyStatistic) error {
	if p.fn == nil {
		return fmt.Errorf("callback publisher %q: nil handler", p.name)
	}
	return p.fn(ctx, stat)
}

func (p *callbackPublisher) Close() error { return nil }

// NewChannelPublisher exposes upserted statistics via a channel. The channel
// is closed when the publisher is closed, which Runtime does on shutdown.
func NewChannelPublisher(buffer int) (RollupPublisher, <-chan DailyStatistic) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan DailyStatistic, buffer)
	return &channelPublisher{ch: ch, closed: make(chan struct{})}, ch
}

type channelPublisher struct {
	mu     sync.RWMutex
	ch     chan DailyStatistic
	closed chan struct{}
	once   sync.Once
}

func (p *channelPublisher) Publish(ctx context.Context, stat DailyStatistic) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.closed:
		return ErrPublisherClosed
	default:
	}

	select {
	case <-p.closed:
		return ErrPublisherClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.ch <- stat:
		return nil
	}
}

func (p *channelPublisher) Close() error {
	p.once.Do(func() {
		close(p.closed)
		// Wait out in-flight sends before closing the channel.
		p.mu.Lock()
		close(p.ch)
		p.mu.Unlock()
	})
	return nil
}

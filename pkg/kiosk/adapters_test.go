package kiosk

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallbackPublisherInvokesHandler(t *testing.T) {
	var got []DailyStatistic
	pub := NewCallbackPublisher("", func(_ context.Context, stat DailyStatistic) error {
		got = append(got, stat)
		return nil
	})

	stat := DailyStatistic{KioskID: "kiosk-1", SampleCount: 3}
	if err := pub.Publish(context.Background(), stat); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(got) != 1 || got[0].KioskID != "kiosk-1" {
		t.Fatalf("unexpected published statistics: %+v", got)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}

func TestCallbackPublisherNilHandler(t *testing.T) {
	pub := NewCallbackPublisher("audit", nil)
	if err := pub.Publish(context.Background(), DailyStatistic{}); err == nil {
		t.Fatalf("expected error for nil handler")
	}
}

func TestChannelPublisherDeliversAndCloses(t *testing.T) {
	pub, ch := NewChannelPublisher(1)

	if err := pub.Publish(context.Background(), DailyStatistic{KioskID: "kiosk-2"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if stat := <-ch; stat.KioskID != "kiosk-2" {
		t.Fatalf("unexpected statistic: %+v", stat)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := pub.Publish(context.Background(), DailyStatistic{}); !errors.Is(err, ErrPublisherClosed) {
		t.Fatalf("expected ErrPublisherClosed, got %v", err)
	}
	if _, open := <-ch; open {
		t.Fatalf("expected channel to be closed")
	}
}

func TestChannelPublisherCloseUnblocksPendingPublish(t *testing.T) {
	pub, _ := NewChannelPublisher(0)

	errCh := make(chan error, 1)
	go func() { errCh <- pub.Publish(context.Background(), DailyStatistic{KioskID: "kiosk-3"}) }()

	time.Sleep(10 * time.Millisecond)
	_ = pub.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrPublisherClosed) {
			t.Fatalf("expected ErrPublisherClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Publish stayed blocked after Close")
	}
}

func TestPushCollectorLifecycle(t *testing.T) {
	col := NewPushCollector()
	ctx := context.Background()

	if err := col.Push(ctx, Reading{KioskID: "kiosk-1"}); err == nil {
		t.Fatalf("expected error before Start")
	}

	out := make(chan Reading, 1)
	if err := col.Start(out); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := col.Start(out); err == nil {
		t.Fatalf("expected error on second Start")
	}

	if err := col.Push(ctx, Reading{KioskID: "kiosk-1", Temperature: 70}); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}
	if r := <-out; r.KioskID != "kiosk-1" || r.Temperature != 70 {
		t.Fatalf("unexpected reading: %+v", r)
	}

	cctx, cancel := context.WithCancel(ctx)
	out <- Reading{}
	cancel()
	if err := col.Push(cctx, Reading{KioskID: "kiosk-1"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled on full channel, got %v", err)
	}

	if err := col.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := col.Push(ctx, Reading{KioskID: "kiosk-1"}); !errors.Is(err, ErrCollectorClosed) {
		t.Fatalf("expected ErrCollectorClosed, got %v", err)
	}
}

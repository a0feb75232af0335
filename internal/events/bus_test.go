package events_test

import (
	"testing"
	"time"

	"github.com/micro-nova/ov5640-go/internal/events"
	"github.com/micro-nova/ov5640-go/internal/models"
)

func TestBusSubscribePublish(t *testing.T) {
	bus := events.NewBus()

	ch := bus.Subscribe("test1")

	ev := models.Event{Kind: models.EventCapture}
	ev.State.Info.Version = "test-1.0"

	bus.Publish(ev)

	select {
	case got := <-ch:
		if got.Kind != models.EventCapture {
			t.Errorf("got kind %q, want %q", got.Kind, models.EventCapture)
		}
		if got.State.Info.Version != "test-1.0" {
			t.Errorf("got version %q, want %q", got.State.Info.Version, "test-1.0")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("test-unsub")

	bus.Unsubscribe("test-unsub")

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed after unsubscribe")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for channel close")
	}

	// Unsubscribing twice is harmless.
	bus.Unsubscribe("test-unsub")
}

func TestBusResubscribeClosesOldChannel(t *testing.T) {
	bus := events.NewBus()
	old := bus.Subscribe("dup")
	_ = bus.Subscribe("dup")

	if _, ok := <-old; ok {
		t.Error("expected the replaced channel to be closed")
	}
	if n := bus.SubscriberCount(); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

func TestBusDropsEventsWhenFull(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe("slow-reader")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			bus.Publish(models.Event{Kind: models.EventFocus})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Publish blocked for too long (should drop events)")
	}

	if got := bus.Dropped(); got != 12 {
		t.Errorf("Dropped() = %d, want 12", got)
	}
	if got := len(ch); got != 8 {
		t.Errorf("buffered events = %d, want 8", got)
	}
	bus.Unsubscribe("slow-reader")
}

func TestBusSubscriberCount(t *testing.T) {
	bus := events.NewBus()
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	bus.Subscribe("s1")
	bus.Subscribe("s2")
	if n := bus.SubscriberCount(); n != 2 {
		t.Errorf("expected 2 subscribers, got %d", n)
	}
	bus.Unsubscribe("s1")
	if n := bus.SubscriberCount(); n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
}

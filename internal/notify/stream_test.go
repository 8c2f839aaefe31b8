package notify_test

import (
	"context"
	"testing"
	"time"

	"marquee/internal/notify"
)

func TestHubPublishAndFetch(t *testing.T) {
	hub := notify.NewHub(8)
	hub.Publish(notify.Event{ContentID: "a", Version: 1, Action: notify.ActionApplied})
	hub.Publish(notify.Event{ContentID: "b", Version: 2, Action: notify.ActionEvicted})

	events, next, err := hub.Fetch(context.Background(), 0, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].ContentID != "a" || events[1].ContentID != "b" {
		t.Fatalf("unexpected order: %+v", events)
	}
	if next != events[1].Sequence {
		t.Fatalf("next cursor %d, want %d", next, events[1].Sequence)
	}

	events, _, err = hub.Fetch(context.Background(), next, 10, false)
	if err != nil {
		t.Fatalf("Fetch after cursor: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no new events, got %d", len(events))
	}
}

func TestHubBoundedBuffer(t *testing.T) {
	hub := notify.NewHub(4)
	for i := 0; i < 10; i++ {
		hub.Publish(notify.Event{ContentID: "x", Version: int64(i), Action: notify.ActionApplied})
	}

	events, _, err := hub.Fetch(context.Background(), 0, 100, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected buffer capped at 4 events, got %d", len(events))
	}
	if events[0].Sequence != 7 {
		t.Fatalf("oldest retained sequence %d, want 7", events[0].Sequence)
	}
}

func TestHubFetchWaitWakesOnPublish(t *testing.T) {
	hub := notify.NewHub(8)

	done := make(chan []notify.Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- events
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(notify.Event{ContentID: "late", Version: 9, Action: notify.ActionDeadLettered})

	select {
	case events := <-done:
		if len(events) != 1 || events[0].ContentID != "late" {
			t.Fatalf("unexpected events: %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake after publish")
	}
}

func TestHubFetchWaitHonorsContext(t *testing.T) {
	hub := notify.NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error from waiting fetch")
	}
}

type recordingSink struct {
	events []notify.Event
}

func (s *recordingSink) Append(evt notify.Event) {
	s.events = append(s.events, evt)
}

func TestHubSinksReceiveEvents(t *testing.T) {
	hub := notify.NewHub(8)
	sink := &recordingSink{}
	hub.AddSink(sink)

	hub.Publish(notify.Event{ContentID: "a", Version: 1, Action: notify.ActionApplied})
	hub.Publish(notify.Event{ContentID: "b", Version: 2, Action: notify.ActionDeadLettered})

	if len(sink.events) != 2 {
		t.Fatalf("sink saw %d events, want 2", len(sink.events))
	}
	if sink.events[1].Action != notify.ActionDeadLettered {
		t.Fatalf("unexpected action: %s", sink.events[1].Action)
	}
}

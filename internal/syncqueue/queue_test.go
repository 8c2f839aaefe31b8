package syncqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/logging"
	"marquee/internal/notify"
	"marquee/internal/store"
	"marquee/internal/task"
	"marquee/internal/testsupport"
)

func newTestQueue(t *testing.T, opts ...testsupport.ConfigOption) (*Queue, *config.Config, *store.Store, *notify.Hub) {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	st := testsupport.MustOpenStore(t, cfg)
	hub := notify.NewHub(32)
	q := New(cfg, st, hub, notify.NewAlerter(cfg), logging.NewNop())
	return q, cfg, st, hub
}

func TestEnqueueDequeueRoundTrip(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if got.ContentID != "hero" || got.State != task.StateInFlight {
		t.Fatalf("unexpected task: %+v", got)
	}

	if _, err := q.DequeueNext(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	first := task.New(task.KindFetchItem, "a", content.ClassNormal)
	second := task.New(task.KindFetchItem, "b", content.ClassNormal)
	second.EnqueuedAt = first.EnqueuedAt.Add(time.Millisecond)
	urgent := task.New(task.KindFetchItem, "c", content.ClassCritical)
	urgent.EnqueuedAt = first.EnqueuedAt.Add(2 * time.Millisecond)

	for _, tk := range []*task.Task{first, second, urgent} {
		if err := q.Enqueue(ctx, tk); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var order []string
	for i := 0; i < 3; i++ {
		got, err := q.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("DequeueNext: %v", err)
		}
		order = append(order, got.ContentID)
	}
	if order[0] != "c" || order[1] != "a" || order[2] != "b" {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestEnqueueCoalescesPendingDuplicate(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassBackground)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassCritical)); err != nil {
		t.Fatalf("Enqueue duplicate: %v", err)
	}

	if pending := q.Pending(); pending != 1 {
		t.Fatalf("Pending = %d, want 1 after coalescing", pending)
	}
	got, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if got.Priority != content.ClassCritical {
		t.Fatalf("coalesced priority = %s, want critical", got.Priority)
	}
}

func TestOneInflightPerContentID(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	inflight, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}

	// A new change arrives while the fetch runs: it must queue, not coalesce
	// into the inflight task, and must not dequeue until the first finishes.
	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue during inflight: %v", err)
	}
	if _, err := q.DequeueNext(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty while same content id is inflight, got %v", err)
	}

	if err := q.MarkSucceeded(ctx, inflight.ID); err != nil {
		t.Fatalf("MarkSucceeded: %v", err)
	}
	if _, err := q.DequeueNext(ctx); err != nil {
		t.Fatalf("expected queued follow-up task, got %v", err)
	}
}

func TestMarkFailedSchedulesBackoff(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	inflight, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}

	if err := q.MarkFailed(ctx, inflight.ID, faults.Wrap(faults.ErrNetwork, "remote", "fetch", "hero", nil)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	// Not eligible until the backoff delay passes.
	if _, err := q.DequeueNext(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty during backoff, got %v", err)
	}

	q.now = func() time.Time { return time.Now().Add(time.Hour) }
	got, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext after backoff: %v", err)
	}
	if got.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", got.Attempts)
	}
}

func TestMarkFailedDeadLettersAtAttemptBudget(t *testing.T) {
	q, cfg, _, hub := newTestQueue(t)
	ctx := context.Background()

	// Advance a fake clock past each scheduled backoff.
	offset := time.Duration(0)
	q.now = func() time.Time { return time.Now().Add(offset) }

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	netErr := faults.Wrap(faults.ErrNetwork, "remote", "fetch", "hero", nil)
	for i := 0; i < cfg.Sync.MaxAttempts; i++ {
		offset += time.Hour
		inflight, err := q.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("DequeueNext attempt %d: %v", i+1, err)
		}
		if err := q.MarkFailed(ctx, inflight.ID, netErr); err != nil {
			t.Fatalf("MarkFailed attempt %d: %v", i+1, err)
		}
	}

	if _, err := q.DequeueNext(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("dead-lettered task must not dequeue, got %v", err)
	}

	dead, err := q.List(ctx, task.StateDeadLettered)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dead) != 1 || dead[0].Attempts != cfg.Sync.MaxAttempts {
		t.Fatalf("unexpected dead letters: %+v", dead)
	}

	events, _, _ := hub.Fetch(ctx, 0, 10, false)
	if len(events) != 1 || events[0].Action != notify.ActionDeadLettered {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestMarkFailedDeadLettersNonRetryableImmediately(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	inflight, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if err := q.MarkFailed(ctx, inflight.ID, faults.Wrap(faults.ErrProtocol, "remote", "manifest", "bad json", nil)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	dead, err := q.List(ctx, task.StateDeadLettered)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(dead) != 1 {
		t.Fatalf("expected immediate dead letter, got %+v", dead)
	}
}

func TestReplayRestoresPersistedWork(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	hub := notify.NewHub(32)
	ctx := context.Background()

	q := New(cfg, st, hub, notify.NewAlerter(cfg), logging.NewNop())
	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "a", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "b", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.DequeueNext(ctx); err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}

	// A fresh queue over the same store simulates a daemon restart: the
	// inflight task returns to queued without burning an attempt.
	restarted := New(cfg, st, hub, notify.NewAlerter(cfg), logging.NewNop())
	if err := restarted.Replay(ctx); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if pending := restarted.Pending(); pending != 2 {
		t.Fatalf("Pending after replay = %d, want 2", pending)
	}
	for i := 0; i < 2; i++ {
		got, err := restarted.DequeueNext(ctx)
		if err != nil {
			t.Fatalf("DequeueNext after replay: %v", err)
		}
		if got.Attempts != 0 {
			t.Fatalf("replayed task attempts = %d, want 0", got.Attempts)
		}
	}
}

func TestRequeueInflightOnDisconnect(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "a", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "b", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := q.DequeueNext(ctx); err != nil {
			t.Fatalf("DequeueNext: %v", err)
		}
	}

	requeued, err := q.RequeueInflight(ctx)
	if err != nil {
		t.Fatalf("RequeueInflight: %v", err)
	}
	if requeued != 2 {
		t.Fatalf("requeued = %d, want 2", requeued)
	}
	if pending := q.Pending(); pending != 2 {
		t.Fatalf("Pending = %d, want 2", pending)
	}
}

func TestRetryDeadLetterResetsBudget(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task.New(task.KindFetchItem, "hero", content.ClassNormal)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	inflight, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext: %v", err)
	}
	if err := q.MarkFailed(ctx, inflight.ID, faults.Wrap(faults.ErrProtocol, "remote", "manifest", "bad json", nil)); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if err := q.RetryDeadLetter(ctx, inflight.ID); err != nil {
		t.Fatalf("RetryDeadLetter: %v", err)
	}
	got, err := q.DequeueNext(ctx)
	if err != nil {
		t.Fatalf("DequeueNext after retry: %v", err)
	}
	if got.ID != inflight.ID || got.Attempts != 0 {
		t.Fatalf("unexpected retried task: %+v", got)
	}
}

func TestConcurrentEnqueueDequeue(t *testing.T) {
	q, _, _, _ := newTestQueue(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				id := string(rune('a'+worker)) + "-" + string(rune('0'+j))
				if err := q.Enqueue(ctx, task.New(task.KindFetchItem, id, content.ClassNormal)); err != nil {
					t.Errorf("Enqueue: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	done := 0
	for {
		got, err := q.DequeueNext(ctx)
		if errors.Is(err, ErrEmpty) {
			break
		}
		if err != nil {
			t.Fatalf("DequeueNext: %v", err)
		}
		if err := q.MarkSucceeded(ctx, got.ID); err != nil {
			t.Fatalf("MarkSucceeded: %v", err)
		}
		done++
	}
	if done != 40 {
		t.Fatalf("drained %d tasks, want 40", done)
	}
}

func TestBackoffGrowsAndStaysBounded(t *testing.T) {
	base := 2 * time.Second
	max := 5 * time.Minute

	prevMax := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := time.Duration(0)
		for i := 0; i < 50; i++ {
			d := backoffDelay(base, max, attempt)
			if d > max {
				t.Fatalf("attempt %d: delay %s exceeds max %s", attempt, d, max)
			}
			if d < time.Duration(float64(base)*0.8) {
				t.Fatalf("attempt %d: delay %s below jittered base", attempt, d)
			}
			if d > ceiling {
				ceiling = d
			}
		}
		if attempt <= 4 && ceiling <= prevMax {
			t.Fatalf("attempt %d: ceiling %s did not grow past %s", attempt, ceiling, prevMax)
		}
		prevMax = ceiling
	}
}

package syncqueue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"log/slog"

	"marquee/internal/config"
	"marquee/internal/faults"
	"marquee/internal/logging"
	"marquee/internal/notify"
	"marquee/internal/store"
	"marquee/internal/task"
)

// ErrEmpty signals that no task is eligible for dequeue right now.
var ErrEmpty = errors.New("syncqueue: no eligible task")

// Queue is the persisted sync work queue. All mutations write through to
// the store before they become visible; the in-memory index only ever
// mirrors committed rows.
type Queue struct {
	mu      sync.Mutex
	store   *store.Store
	hub     *notify.Hub
	alerter notify.Alerter
	logger  *slog.Logger

	baseDelay     time.Duration
	maxDelay      time.Duration
	maxAttempts   int
	deadLetterCap int

	tasks    map[string]*task.Task
	inflight map[string]string

	now func() time.Time
}

// New builds an empty queue. Call Replay before accepting work so tasks
// persisted by a previous run are restored.
func New(cfg *config.Config, st *store.Store, hub *notify.Hub, alerter notify.Alerter, logger *slog.Logger) *Queue {
	return &Queue{
		store:         st,
		hub:           hub,
		alerter:       alerter,
		logger:        logging.NewComponentLogger(logger, "syncqueue"),
		baseDelay:     time.Duration(cfg.Sync.BaseDelay) * time.Second,
		maxDelay:      time.Duration(cfg.Sync.MaxDelay) * time.Second,
		maxAttempts:   cfg.Sync.MaxAttempts,
		deadLetterCap: cfg.Sync.DeadLetterCap,
		tasks:         make(map[string]*task.Task),
		inflight:      make(map[string]string),
		now:           time.Now,
	}
}

// Replay loads persisted tasks into the index. Tasks that were inflight
// when the previous run stopped return to queued without counting an
// attempt; the interrupted run is nobody's fault.
func (q *Queue) Replay(ctx context.Context) error {
	tasks, err := q.store.ListTasks(ctx, task.StateQueued, task.StateInFlight, task.StateFailed)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	restored := 0
	for _, t := range tasks {
		if t.State == task.StateInFlight {
			t.State = task.StateQueued
			if err := q.store.PutTask(ctx, t); err != nil {
				return err
			}
		}
		q.tasks[t.ID] = t
		restored++
	}
	if restored > 0 {
		q.logger.InfoContext(ctx, "replayed persisted tasks", logging.Int("tasks", restored))
	}
	return nil
}

// Enqueue accepts a task. A pending task for the same content id and kind
// absorbs the new one; when priorities differ the higher of the two wins.
// The task is durably persisted before Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, t *task.Task) error {
	if t == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing := q.findPendingLocked(t.ContentID, t.Kind); existing != nil {
		if t.Priority.Weight() > existing.Priority.Weight() {
			existing.Priority = t.Priority
			if err := q.store.PutTask(ctx, existing); err != nil {
				return err
			}
		}
		return nil
	}

	if err := q.store.PutTask(ctx, t); err != nil {
		return err
	}
	q.tasks[t.ID] = t
	q.logger.DebugContext(ctx, "enqueued task",
		logging.String(logging.FieldTaskID, t.ID),
		logging.String(logging.FieldTaskKind, string(t.Kind)),
		logging.String(logging.FieldContentID, t.ContentID),
	)
	return nil
}

// DequeueNext hands out the highest-priority eligible task and marks it
// inflight. At most one task per content id is inflight at a time. Returns
// ErrEmpty when nothing is ready.
func (q *Queue) DequeueNext(ctx context.Context) (*task.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var candidates []*task.Task
	for _, t := range q.tasks {
		if t.State != task.StateQueued && t.State != task.StateFailed {
			continue
		}
		if t.NextEligible.After(now) {
			continue
		}
		if t.ContentID != "" {
			if _, busy := q.inflight[t.ContentID]; busy {
				continue
			}
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return nil, ErrEmpty
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority.Weight() != b.Priority.Weight() {
			return a.Priority.Weight() > b.Priority.Weight()
		}
		if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
			return a.EnqueuedAt.Before(b.EnqueuedAt)
		}
		return a.ID < b.ID
	})

	next := candidates[0]
	next.State = task.StateInFlight
	if err := q.store.PutTask(ctx, next); err != nil {
		next.State = task.StateQueued
		return nil, err
	}
	if next.ContentID != "" {
		q.inflight[next.ContentID] = next.ID
	}
	clone := *next
	return &clone, nil
}

// MarkSucceeded finishes a task. The record is kept until the succeeded
// grace prune so the API can report recent completions.
func (q *Queue) MarkSucceeded(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return faults.Wrap(faults.ErrNotFound, "syncqueue", "mark succeeded", id, nil)
	}
	t.State = task.StateSucceeded
	t.LastError = ""
	if err := q.store.PutTask(ctx, t); err != nil {
		return err
	}
	q.releaseLocked(t)
	delete(q.tasks, id)
	return nil
}

// MarkFailed records a failed attempt. Retryable causes schedule the next
// attempt with exponential backoff; exhausting the attempt budget or a
// non-retryable cause dead-letters the task.
func (q *Queue) MarkFailed(ctx context.Context, id string, cause error) error {
	q.mu.Lock()

	t, ok := q.tasks[id]
	if !ok {
		q.mu.Unlock()
		return faults.Wrap(faults.ErrNotFound, "syncqueue", "mark failed", id, nil)
	}

	t.Attempts++
	if cause != nil {
		t.LastError = cause.Error()
	}

	if t.Attempts >= q.maxAttempts || !faults.Retryable(cause) {
		snapshot := *t
		err := q.deadLetterLocked(ctx, t)
		q.mu.Unlock()
		if err != nil {
			return err
		}
		// The alert is an HTTP call; never make it under the queue lock.
		if err := q.alerter.AlertDeadLetter(ctx, snapshot.ContentID, string(snapshot.Kind), snapshot.Attempts, snapshot.LastError); err != nil {
			q.logger.WarnContext(ctx, "dead letter alert failed", logging.Error(err))
		}
		return nil
	}

	delay := backoffDelay(q.baseDelay, q.maxDelay, t.Attempts)
	t.State = task.StateFailed
	t.NextEligible = q.now().Add(delay)
	if err := q.store.PutTask(ctx, t); err != nil {
		q.mu.Unlock()
		return err
	}
	q.releaseLocked(t)
	snapshot := *t
	q.mu.Unlock()

	q.logger.WarnContext(ctx, "task failed, retry scheduled",
		logging.String(logging.FieldTaskID, snapshot.ID),
		logging.String(logging.FieldTaskKind, string(snapshot.Kind)),
		logging.String(logging.FieldContentID, snapshot.ContentID),
		logging.Int(logging.FieldAttempt, snapshot.Attempts),
		logging.Duration("retry_in", delay),
		logging.Error(cause),
	)
	return nil
}

// Requeue returns an inflight task to the queue without counting an
// attempt. Used when the device goes offline mid-task, on shutdown, and
// when a write is deferred for cache capacity.
func (q *Queue) Requeue(ctx context.Context, id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[id]
	if !ok {
		return faults.Wrap(faults.ErrNotFound, "syncqueue", "requeue", id, nil)
	}
	if !task.CanTransition(t.State, task.StateQueued) {
		return faults.Wrap(faults.ErrStorage, "syncqueue", "requeue", "task is not requeueable: "+string(t.State), nil)
	}
	t.State = task.StateQueued
	t.NextEligible = time.Time{}
	if delay > 0 {
		t.NextEligible = q.now().Add(delay)
	}
	if err := q.store.PutTask(ctx, t); err != nil {
		return err
	}
	q.releaseLocked(t)
	return nil
}

// RetryDeadLetter moves a dead-lettered task back to queued with a fresh
// attempt budget. This is the operator-facing escape hatch.
func (q *Queue) RetryDeadLetter(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if t.State != task.StateDeadLettered {
		return faults.Wrap(faults.ErrStorage, "syncqueue", "retry dead letter", "task is not dead-lettered: "+string(t.State), nil)
	}
	t.State = task.StateQueued
	t.Attempts = 0
	t.NextEligible = time.Time{}
	t.LastError = ""
	if err := q.store.PutTask(ctx, t); err != nil {
		return err
	}
	q.tasks[t.ID] = t
	return nil
}

// RequeueInflight returns every inflight task to queued. Called when
// connectivity drops so workers do not burn attempts against a dead link.
func (q *Queue) RequeueInflight(ctx context.Context) (int, error) {
	q.mu.Lock()
	ids := make([]string, 0, len(q.inflight))
	for _, taskID := range q.inflight {
		ids = append(ids, taskID)
	}
	q.mu.Unlock()

	requeued := 0
	for _, id := range ids {
		if err := q.Requeue(ctx, id, 0); err != nil {
			if errors.Is(err, faults.ErrNotFound) {
				continue
			}
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// Pending reports how many tasks are waiting or retrying.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, t := range q.tasks {
		if t.State == task.StateQueued || t.State == task.StateFailed {
			count++
		}
	}
	return count
}

// Stats returns per-state task counts from the store.
func (q *Queue) Stats(ctx context.Context) (map[task.State]int, error) {
	return q.store.TaskStats(ctx)
}

// List returns persisted tasks filtered by state.
func (q *Queue) List(ctx context.Context, states ...task.State) ([]*task.Task, error) {
	return q.store.ListTasks(ctx, states...)
}

// Maintain prunes old succeeded records and enforces the dead-letter cap.
func (q *Queue) Maintain(ctx context.Context, succeededGrace time.Duration) error {
	if _, err := q.store.PruneSucceededTasks(ctx, succeededGrace); err != nil {
		return err
	}
	_, err := q.store.CapDeadLetters(ctx, q.deadLetterCap)
	return err
}

func (q *Queue) deadLetterLocked(ctx context.Context, t *task.Task) error {
	t.State = task.StateDeadLettered
	if err := q.store.PutTask(ctx, t); err != nil {
		return err
	}
	q.releaseLocked(t)
	delete(q.tasks, t.ID)

	if _, err := q.store.CapDeadLetters(ctx, q.deadLetterCap); err != nil {
		q.logger.WarnContext(ctx, "dead letter cap failed", logging.Error(err))
	}

	q.logger.ErrorContext(ctx, "task dead-lettered",
		logging.String(logging.FieldTaskID, t.ID),
		logging.String(logging.FieldTaskKind, string(t.Kind)),
		logging.String(logging.FieldContentID, t.ContentID),
		logging.Int(logging.FieldAttempt, t.Attempts),
		logging.String("last_error", t.LastError),
	)
	q.hub.Publish(notify.Event{
		ContentID: t.ContentID,
		Action:    notify.ActionDeadLettered,
		Detail:    string(t.Kind),
	})
	return nil
}

// findPendingLocked returns a queued or retrying task matching content id
// and kind. Inflight tasks do not absorb new work: a change arriving while
// an older fetch is running must still be fetched afterwards.
func (q *Queue) findPendingLocked(contentID string, kind task.Kind) *task.Task {
	for _, t := range q.tasks {
		if t.ContentID != contentID || t.Kind != kind {
			continue
		}
		if t.State == task.StateQueued || t.State == task.StateFailed {
			return t
		}
	}
	return nil
}

func (q *Queue) releaseLocked(t *task.Task) {
	if t.ContentID == "" {
		return
	}
	if q.inflight[t.ContentID] == t.ID {
		delete(q.inflight, t.ContentID)
	}
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/task"
)

const taskColumns = "id, kind, content_id, priority, state, attempts, next_eligible, enqueued_at, updated_at, last_error"

// PutTask inserts or updates a sync task record.
func (s *Store) PutTask(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return faults.Wrap(faults.ErrStorage, "store", "put task", "task id is required", nil)
	}
	t.UpdatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sync_tasks (`+taskColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             kind = excluded.kind,
             content_id = excluded.content_id,
             priority = excluded.priority,
             state = excluded.state,
             attempts = excluded.attempts,
             next_eligible = excluded.next_eligible,
             enqueued_at = excluded.enqueued_at,
             updated_at = excluded.updated_at,
             last_error = excluded.last_error`,
		t.ID,
		string(t.Kind),
		t.ContentID,
		string(t.Priority),
		string(t.State),
		t.Attempts,
		nullableTimeString(t.NextEligible),
		formatTime(t.EnqueuedAt),
		formatTime(t.UpdatedAt),
		nullableString(t.LastError),
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "store", "put task", t.ID, err)
	}
	return nil
}

// GetTask returns a task by id or a not-found fault.
func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.Wrap(faults.ErrNotFound, "store", "get task", id, nil)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "get task", id, err)
	}
	return t, nil
}

// DeleteTask removes a task record. Deleting an unknown id is not an error.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id); err != nil {
		return faults.Wrap(faults.ErrStorage, "store", "delete task", id, err)
	}
	return nil
}

// ListTasks returns tasks filtered by state set (or all tasks when no state
// is provided), ordered by enqueue time.
func (s *Store) ListTasks(ctx context.Context, states ...task.State) ([]*task.Task, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + taskColumns + ` FROM sync_tasks`
	orderClause := ` ORDER BY enqueued_at, id`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = string(state)
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "list tasks", "", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrStorage, "store", "list tasks", "scan", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "list tasks", "iterate", err)
	}
	return tasks, nil
}

// TaskStats returns a count of tasks grouped by state.
func (s *Store) TaskStats(ctx context.Context) (map[task.State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM sync_tasks GROUP BY state`)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "task stats", "", err)
	}
	defer rows.Close()

	stats := make(map[task.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, faults.Wrap(faults.ErrStorage, "store", "task stats", "scan", err)
		}
		stats[task.State(state)] = count
	}
	return stats, rows.Err()
}

// PruneSucceededTasks removes succeeded tasks older than the grace period.
func (s *Store) PruneSucceededTasks(ctx context.Context, grace time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-grace)
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM sync_tasks WHERE state = ? AND updated_at < ?`,
		string(task.StateSucceeded),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStorage, "store", "prune succeeded", "", err)
	}
	return res.RowsAffected()
}

// CapDeadLetters keeps only the newest max dead-lettered tasks.
func (s *Store) CapDeadLetters(ctx context.Context, max int) (int64, error) {
	if max <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM sync_tasks WHERE state = ? AND id NOT IN (
            SELECT id FROM sync_tasks WHERE state = ? ORDER BY updated_at DESC LIMIT ?
        )`,
		string(task.StateDeadLettered),
		string(task.StateDeadLettered),
		max,
	)
	if err != nil {
		return 0, faults.Wrap(faults.ErrStorage, "store", "cap dead letters", "", err)
	}
	return res.RowsAffected()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*task.Task, error) {
	var (
		id           string
		kind         string
		contentID    string
		priority     string
		state        string
		attempts     int
		nextEligible sql.NullString
		enqueuedAt   string
		updatedAt    string
		lastError    sql.NullString
	)
	if err := scanner.Scan(
		&id,
		&kind,
		&contentID,
		&priority,
		&state,
		&attempts,
		&nextEligible,
		&enqueuedAt,
		&updatedAt,
		&lastError,
	); err != nil {
		return nil, err
	}

	t := &task.Task{
		ID:         id,
		Kind:       task.Kind(kind),
		ContentID:  contentID,
		Priority:   content.Class(priority),
		State:      task.State(state),
		Attempts:   attempts,
		EnqueuedAt: parseTimeString(enqueuedAt),
		UpdatedAt:  parseTimeString(updatedAt),
		LastError:  lastError.String,
	}
	if nextEligible.Valid {
		t.NextEligible = parseTimeString(nextEligible.String)
	}
	return t, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

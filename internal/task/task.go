package task

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"marquee/internal/content"
)

// Kind identifies the operation a task performs.
type Kind string

const (
	KindFetchManifest Kind = "fetch-manifest"
	KindFetchItem     Kind = "fetch-item"
	KindApplyItem     Kind = "apply-item"
	KindPurgeItem     Kind = "purge-item"
)

var allKinds = []Kind{KindFetchManifest, KindFetchItem, KindApplyItem, KindPurgeItem}

// NetworkBound reports whether the kind requires connectivity. The
// orchestrator holds these tasks while the device is offline.
func (k Kind) NetworkBound() bool {
	switch k {
	case KindFetchManifest, KindFetchItem:
		return true
	default:
		return false
	}
}

// ParseKind converts a string into a known Kind.
func ParseKind(value string) (Kind, bool) {
	normalized := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, kind := range allKinds {
		if kind == normalized {
			return normalized, true
		}
	}
	return "", false
}

// State represents the lifecycle of a sync task.
type State string

const (
	StateQueued       State = "queued"
	StateInFlight     State = "inflight"
	StateSucceeded    State = "succeeded"
	StateFailed       State = "failed"
	StateDeadLettered State = "deadlettered"
)

var legalTransitions = map[State][]State{
	StateQueued:       {StateInFlight},
	StateInFlight:     {StateSucceeded, StateFailed, StateDeadLettered, StateQueued},
	StateFailed:       {StateQueued},
	StateDeadLettered: {StateQueued},
}

// CanTransition reports whether moving a task from one state to another is
// legal. Succeeded is terminal; inflight back to queued covers disconnect
// re-queueing, and dead-lettered back to queued covers an operator retry.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is one persisted unit of sync work.
type Task struct {
	ID           string
	Kind         Kind
	ContentID    string
	Priority     content.Class
	State        State
	Attempts     int
	NextEligible time.Time
	EnqueuedAt   time.Time
	UpdatedAt    time.Time
	LastError    string
}

// New builds a queued task with a fresh identifier.
func New(kind Kind, contentID string, priority content.Class) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		ContentID:  strings.TrimSpace(contentID),
		Priority:   priority,
		State:      StateQueued,
		EnqueuedAt: now,
		UpdatedAt:  now,
	}
}

// Eligible reports whether a queued task may be dequeued at now.
func (t *Task) Eligible(now time.Time) bool {
	return t.State == StateQueued && !t.NextEligible.After(now)
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.State == StateSucceeded || t.State == StateDeadLettered
}

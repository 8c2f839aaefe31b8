package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldContentID is the standardized structured logging key for content identifiers.
	FieldContentID = "content_id"
	// FieldTaskID is the standardized structured logging key for sync task identifiers.
	FieldTaskID = "task_id"
	// FieldTaskKind is the standardized structured logging key for sync task kinds.
	FieldTaskKind = "task_kind"
	// FieldVersion is the standardized structured logging key for content versions.
	FieldVersion = "version"
	// FieldAttempt is the standardized structured logging key for task attempt counts.
	FieldAttempt = "attempt"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator next steps.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized structured logging key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldConnState is the standardized structured logging key for connectivity state.
	FieldConnState = "conn_state"
)

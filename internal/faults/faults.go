package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorage marks local I/O failures (database, payload files).
	ErrStorage = errors.New("storage failure")
	// ErrNetwork marks transient network failures (timeout, reset, refused).
	ErrNetwork = errors.New("network failure")
	// ErrIntegrity marks checksum mismatches between declared and computed digests.
	ErrIntegrity = errors.New("integrity failure")
	// ErrCapacity marks cache admissions that cannot be satisfied without
	// evicting pinned content.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrProtocol marks malformed manifests or channel messages.
	ErrProtocol = errors.New("protocol failure")
	// ErrNotFound marks store lookups for unknown content ids.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error that includes component context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrNetwork
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a task error should re-enter the backoff path.
// Integrity, capacity, and protocol faults have dedicated handling and must
// not be retried blindly at the same version.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrIntegrity), errors.Is(err, ErrCapacity), errors.Is(err, ErrProtocol), errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "engine failure"
	}
	return strings.Join(parts, ": ")
}

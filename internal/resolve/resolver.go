package resolve

import (
	"strings"

	"marquee/internal/content"
)

// Decision is the outcome of comparing a local item against a remote one.
type Decision string

const (
	KeepLocal  Decision = "keep-local"
	TakeRemote Decision = "take-remote"
	// Merge is reserved for structured-config items with field-level
	// timestamps. No current content kind qualifies, so Resolve never
	// returns it for opaque payloads.
	Merge Decision = "merge"
)

// Result carries the decision plus flags the orchestrator acts on.
type Result struct {
	Decision Decision
	// IntegrityWarning is set when equal versions disagree on checksum,
	// which indicates corruption or a concurrent edit upstream.
	IntegrityWarning bool
}

// Resolve compares the local item against the remote descriptor and returns
// a deterministic decision.
//
// Rules, in order:
//  1. No local item: take remote.
//  2. Remote version ahead: take remote, unless an uncommitted local edit
//     is based on a version the remote has not advanced past.
//  3. Equal versions with differing checksums: take remote and flag an
//     integrity warning.
//  4. Otherwise keep local (covers remote at or behind the local version).
func Resolve(local *content.Item, remote content.ManifestEntry) Result {
	if local == nil {
		return Result{Decision: TakeRemote}
	}

	if local.LocalEdit && remote.Version <= local.BaseVersion {
		// The server has not acknowledged anything past the edit's base;
		// hold the local change until the next cycle confirms.
		return Result{Decision: KeepLocal}
	}

	if remote.Version > local.Version {
		return Result{Decision: TakeRemote}
	}

	if remote.Version == local.Version && !checksumsEqual(local.Checksum, remote.Checksum) {
		return Result{Decision: TakeRemote, IntegrityWarning: true}
	}

	return Result{Decision: KeepLocal}
}

func checksumsEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

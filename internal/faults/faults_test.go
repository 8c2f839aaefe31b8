package faults_test

import (
	"errors"
	"testing"

	"marquee/internal/faults"
)

func TestWrapPreservesMarker(t *testing.T) {
	base := errors.New("disk full")
	err := faults.Wrap(faults.ErrStorage, "store", "put item", "commit payload", base)
	if !errors.Is(err, faults.ErrStorage) {
		t.Fatalf("expected storage marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestWrapDefaultsToNetwork(t *testing.T) {
	err := faults.Wrap(nil, "remote", "fetch", "", nil)
	if !errors.Is(err, faults.ErrNetwork) {
		t.Fatalf("expected network marker fallback, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", faults.Wrap(faults.ErrNetwork, "remote", "fetch", "", errors.New("timeout")), true},
		{"storage", faults.Wrap(faults.ErrStorage, "store", "put", "", errors.New("io")), true},
		{"integrity", faults.Wrap(faults.ErrIntegrity, "orchestrator", "verify", "", nil), false},
		{"capacity", faults.Wrap(faults.ErrCapacity, "cache", "admit", "", nil), false},
		{"protocol", faults.Wrap(faults.ErrProtocol, "listener", "decode", "", nil), false},
		{"untagged", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := faults.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

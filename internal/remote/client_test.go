package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/remote"
	"marquee/internal/testsupport"
)

func newTestClient(t *testing.T, handler http.Handler) *remote.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t)
	cfg.Server.BaseURL = server.URL
	return remote.NewClient(cfg)
}

func TestFetchManifest(t *testing.T) {
	var gotDevice string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/manifest" {
			http.NotFound(w, r)
			return
		}
		gotDevice = r.Header.Get("X-Marquee-Device")
		_, _ = w.Write([]byte(`{"items":[
			{"id":"hero","version":3,"checksum":"abc","size":10,"priority":"critical"},
			{"id":"footer","version":1,"checksum":"def","size":5}
		]}`))
	}))

	entries, err := client.FetchManifest(context.Background())
	if err != nil {
		t.Fatalf("FetchManifest: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].PriorityClass() != content.ClassCritical {
		t.Fatalf("priority = %s, want critical", entries[0].PriorityClass())
	}
	if gotDevice != "test-device" {
		t.Fatalf("device header = %q", gotDevice)
	}
}

func TestFetchManifestMalformedIsProtocolFault(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"version":1}]}`))
	}))

	_, err := client.FetchManifest(context.Background())
	if !errors.Is(err, faults.ErrProtocol) {
		t.Fatalf("expected protocol fault, got %v", err)
	}
}

func TestFetchItem(t *testing.T) {
	payload := []byte("payload bytes")
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/content/hero" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Version", "7")
		w.Header().Set("X-Content-Checksum", content.ChecksumBytes(payload))
		_, _ = w.Write(payload)
	}))

	download, err := client.FetchItem(context.Background(), "hero")
	if err != nil {
		t.Fatalf("FetchItem: %v", err)
	}
	if download.Version != 7 {
		t.Fatalf("Version = %d, want 7", download.Version)
	}
	if !content.VerifyChecksum(download.Payload, download.Checksum) {
		t.Fatal("checksum does not match payload")
	}
}

func TestFetchItemMissingVersionHeader(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Checksum", "abc")
		_, _ = w.Write([]byte("data"))
	}))

	_, err := client.FetchItem(context.Background(), "hero")
	if !errors.Is(err, faults.ErrProtocol) {
		t.Fatalf("expected protocol fault, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, faults.ErrNotFound},
		{"server error", http.StatusBadGateway, faults.ErrNetwork},
		{"client error", http.StatusForbidden, faults.ErrProtocol},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := client.FetchItem(context.Background(), "hero")
			if !errors.Is(err, tc.want) {
				t.Fatalf("status %d: got %v, want %v", tc.status, err, tc.want)
			}
		})
	}
}

func TestProbeUsesHealthPath(t *testing.T) {
	var gotPath string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if gotPath != "/healthz" {
		t.Fatalf("probe path = %q, want /healthz", gotPath)
	}
}

func TestUnreachableServerIsNetworkFault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Server.BaseURL = "http://127.0.0.1:1"
	cfg.Server.RequestTimeout = 1
	client := remote.NewClient(cfg)

	err := client.Probe(context.Background())
	if !errors.Is(err, faults.ErrNetwork) {
		t.Fatalf("expected network fault, got %v", err)
	}
}

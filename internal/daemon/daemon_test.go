package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"marquee/internal/api"
	"marquee/internal/content"
	"marquee/internal/daemon"
	"marquee/internal/logging"
	"marquee/internal/testsupport"
)

// newContentServer serves a one-item backend: a health endpoint, a manifest
// listing "hero", the hero payload, and a websocket events endpoint that
// holds the connection open.
func newContentServer(t *testing.T) *httptest.Server {
	t.Helper()

	payload := []byte("hero payload bytes")
	checksum := content.ChecksumBytes(payload)

	handler := http.NewServeMux()
	handler.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler.HandleFunc("/api/v1/manifest", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"items":[{"id":"hero","version":1,"checksum":%q,"size":%d,"priority":"critical"}]}`,
			checksum, len(payload))
	})
	handler.HandleFunc("/api/v1/content/hero", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Version", "1")
		w.Header().Set("X-Content-Checksum", checksum)
		_, _ = w.Write(payload)
	})
	handler.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		<-r.Context().Done()
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, string) {
	t.Helper()

	server := newContentServer(t)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Server.BaseURL = server.URL
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	if d.APIAddr() == "" {
		t.Fatal("expected a bound API address after Start")
	}
	return d, "http://" + d.APIAddr()
}

func apiGet(t *testing.T, base, path, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, base+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func waitFor(t *testing.T, timeout time.Duration, what string, check func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonSyncsContentAndServesAPI(t *testing.T) {
	_, base := startDaemon(t)

	// The listener enqueues a manifest sync on connect; the orchestrator
	// should download and commit the hero item shortly after.
	waitFor(t, 10*time.Second, "hero item to sync", func() bool {
		resp := apiGet(t, base, "/api/content", "")
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var items []api.Item
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			return false
		}
		return len(items) == 1 && items[0].ID == "hero" && items[0].Version == 1
	})

	resp := apiGet(t, base, "/api/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var status api.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.DeviceID != "test-device" {
		t.Fatalf("device id = %q", status.DeviceID)
	}
	if status.Items != 1 {
		t.Fatalf("items = %d, want 1", status.Items)
	}

	resp = apiGet(t, base, "/api/content/hero", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("content/hero = %d, want 200", resp.StatusCode)
	}
	resp = apiGet(t, base, "/api/content/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("content/missing = %d, want 404", resp.StatusCode)
	}
	resp = apiGet(t, base, "/api/cache", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cache = %d, want 200", resp.StatusCode)
	}
	resp = apiGet(t, base, "/api/queue", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue = %d, want 200", resp.StatusCode)
	}
}

func TestDaemonForcedSyncEndpoint(t *testing.T) {
	_, base := startDaemon(t)

	resp, err := http.Post(base+"/api/sync", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/sync: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("sync = %d, want 202", resp.StatusCode)
	}
}

func TestDaemonPinRoundTrip(t *testing.T) {
	_, base := startDaemon(t)

	waitFor(t, 10*time.Second, "hero item to sync", func() bool {
		resp := apiGet(t, base, "/api/content/hero", "")
		return resp.StatusCode == http.StatusOK
	})

	resp, err := http.Post(base+"/api/content/hero/pin", "application/json", nil)
	if err != nil {
		t.Fatalf("POST pin: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pin = %d, want 200", resp.StatusCode)
	}

	resp = apiGet(t, base, "/api/content/hero", "")
	var item api.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if !item.Pinned {
		t.Fatal("expected hero to be pinned")
	}
}

func TestDaemonEventsStream(t *testing.T) {
	_, base := startDaemon(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws://" + strings.TrimPrefix(base, "http://") + "/api/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The initial manifest sync commits hero, which publishes an applied
	// event on the stream.
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		var evt struct {
			ContentID string `json:"content_id"`
			Action    string `json:"action"`
		}
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.ContentID == "hero" && evt.Action == "applied" {
			return
		}
	}
}

func TestDaemonRejectsSecondInstance(t *testing.T) {
	d, _ := startDaemon(t)

	second, err := daemon.New(d.Config(), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	defer second.Close()

	if err := second.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail while the lock is held")
	}
}

func TestDaemonAPITokenRequired(t *testing.T) {
	server := newContentServer(t)
	cfg := testsupport.NewConfig(t)
	cfg.Server.BaseURL = server.URL
	cfg.Paths.APIToken = "sekrit"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	base := "http://" + d.APIAddr()

	if resp := apiGet(t, base, "/api/status", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	if resp := apiGet(t, base, "/api/status", "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d, want 401", resp.StatusCode)
	}
	if resp := apiGet(t, base, "/api/status", "sekrit"); resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", resp.StatusCode)
	}
}

package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"marquee/internal/api"
)

func newStub(t *testing.T, handler http.HandlerFunc) *api.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return api.NewClient(server.URL, "tok")
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(api.Status{DeviceID: "kiosk-9"})
	})

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.DeviceID != "kiosk-9" {
		t.Fatalf("device id = %q", status.DeviceID)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
}

func TestClientQueueListFilter(t *testing.T) {
	var gotQuery string
	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode([]api.Task{{ID: "t1", State: "deadlettered"}})
	})

	tasks, err := client.QueueList(context.Background(), "deadlettered", "failed")
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Fatalf("tasks = %+v", tasks)
	}
	if gotQuery != "state=deadlettered%2Cfailed" {
		t.Fatalf("query = %q", gotQuery)
	}
}

func TestClientSurfacesDaemonError(t *testing.T) {
	client := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "content item missing"})
	})

	_, err := client.ContentItem(context.Background(), "ghost")
	if err == nil || !strings.Contains(err.Error(), "content item missing") {
		t.Fatalf("expected daemon error, got %v", err)
	}
}

func TestClientAddsSchemeToBareAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.CacheStats{Entries: 3})
	}))
	t.Cleanup(server.Close)

	bare := strings.TrimPrefix(server.URL, "http://")
	client := api.NewClient(bare, "")
	stats, err := client.CacheStats(context.Background())
	if err != nil {
		t.Fatalf("CacheStats: %v", err)
	}
	if stats.Entries != 3 {
		t.Fatalf("entries = %d", stats.Entries)
	}
}

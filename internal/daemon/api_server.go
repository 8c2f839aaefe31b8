package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"marquee/internal/api"
	"marquee/internal/cache"
	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/logging"
	"marquee/internal/task"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
	done     chan struct{}
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
		done:   make(chan struct{}),
	}

	router := mux.NewRouter()
	router.Use(authMiddleware(strings.TrimSpace(cfg.Paths.APIToken)))
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/queue", srv.handleQueue).Methods(http.MethodGet)
	router.HandleFunc("/api/queue/{id}", srv.handleQueueTask).Methods(http.MethodGet)
	router.HandleFunc("/api/queue/{id}/retry", srv.handleQueueRetry).Methods(http.MethodPost)
	router.HandleFunc("/api/content", srv.handleContent).Methods(http.MethodGet)
	router.HandleFunc("/api/content/{id}", srv.handleContentItem).Methods(http.MethodGet)
	router.HandleFunc("/api/content/{id}/pin", srv.handlePin).Methods(http.MethodPost)
	router.HandleFunc("/api/content/{id}/unpin", srv.handleUnpin).Methods(http.MethodPost)
	router.HandleFunc("/api/cache", srv.handleCache).Methods(http.MethodGet)
	router.HandleFunc("/api/sync", srv.handleSync).Methods(http.MethodPost)
	router.HandleFunc("/api/events", srv.handleEvents).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, itemBytes, err := s.daemon.store.CountItems(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	stats, err := s.daemon.queue.Stats(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cacheStats, err := s.daemon.cache.Stats(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	queueCounts := make(map[string]int, len(stats))
	for state, count := range stats {
		queueCounts[string(state)] = count
	}
	s.writeJSON(w, http.StatusOK, api.Status{
		Running:      s.daemon.running.Load(),
		DeviceID:     s.daemon.cfg.Server.DeviceID,
		Connectivity: string(s.daemon.monitor.State()),
		Items:        items,
		ItemBytes:    itemBytes,
		Queue:        queueCounts,
		Cache:        cacheStatsView(cacheStats),
		DatabasePath: s.daemon.store.Path(),
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	var states []task.State
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			states = append(states, task.State(strings.TrimSpace(part)))
		}
	}
	tasks, err := s.daemon.queue.List(r.Context(), states...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]api.Task, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, taskView(t))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *apiServer) handleQueueTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.daemon.store.GetTask(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, taskView(t))
}

func (s *apiServer) handleQueueRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.daemon.queue.RetryDeadLetter(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "id": id})
}

func (s *apiServer) handleContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	views := make([]api.Item, 0)
	afterID := ""
	for {
		page, err := s.daemon.store.EnumerateItems(ctx, afterID, 200)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			views = append(views, itemView(item))
		}
		afterID = page[len(page)-1].ID
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *apiServer) handleContentItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.daemon.store.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Reads count as access for LRU eviction.
	if err := s.daemon.cache.Touch(r.Context(), item.ID); err != nil {
		s.logger.Warn("touch item failed", logging.String(logging.FieldContentID, item.ID), logging.Error(err))
	}
	s.writeJSON(w, http.StatusOK, itemView(item))
}

func (s *apiServer) handlePin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.daemon.cache.Pin(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "pinned", "id": id})
}

func (s *apiServer) handleUnpin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.daemon.cache.Unpin(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "unpinned", "id": id})
}

func (s *apiServer) handleCache(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.cache.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cacheStatsView(stats))
}

func (s *apiServer) handleSync(w http.ResponseWriter, r *http.Request) {
	t := task.New(task.KindFetchManifest, "", content.ClassCritical)
	if err := s.daemon.queue.Enqueue(r.Context(), t); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync scheduled"})
}

// handleEvents bridges the in-process event hub onto a websocket, one JSON
// frame per event.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Hijacked connections outlive server Shutdown; stop the stream when
	// the daemon does.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	since := uint64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		if parsed, parseErr := strconv.ParseUint(raw, 10, 64); parseErr == nil {
			since = parsed
		}
	}

	for {
		events, next, err := s.daemon.hub.Fetch(ctx, since, 100, true)
		if err != nil {
			return
		}
		for _, evt := range events {
			data, marshalErr := json.Marshal(evt)
			if marshalErr != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			writeErr := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if writeErr != nil {
				return
			}
		}
		since = next
	}
}

func cacheStatsView(stats cache.Stats) api.CacheStats {
	return api.CacheStats{
		Entries:      stats.Entries,
		PinnedItems:  stats.PinnedItems,
		ExpiredItems: stats.ExpiredItems,
		TotalBytes:   stats.TotalBytes,
		MaxBytes:     stats.MaxBytes,
		FreeBytes:    stats.FreeBytes,
		TotalFSBytes: stats.TotalFSBytes,
		FreeRatio:    stats.FreeRatio,
	}
}

func taskView(t *task.Task) api.Task {
	view := api.Task{
		ID:         t.ID,
		Kind:       string(t.Kind),
		ContentID:  t.ContentID,
		Priority:   string(t.Priority),
		State:      string(t.State),
		Attempts:   t.Attempts,
		EnqueuedAt: t.EnqueuedAt.Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.Format(time.RFC3339),
		LastError:  t.LastError,
	}
	if !t.NextEligible.IsZero() {
		view.NextEligible = t.NextEligible.Format(time.RFC3339)
	}
	return view
}

func itemView(item *content.Item) api.Item {
	view := api.Item{
		ID:         item.ID,
		Version:    item.Version,
		Checksum:   item.Checksum,
		Size:       item.Size,
		Priority:   string(item.Priority),
		TTLSeconds: item.TTLSeconds,
		Pinned:     item.Pinned,
		LocalEdit:  item.LocalEdit,
		Expired:    item.Expired(time.Now()),
	}
	if !item.LastVerified.IsZero() {
		view.LastVerified = item.LastVerified.Format(time.RFC3339)
	}
	if !item.LastAccess.IsZero() {
		view.LastAccess = item.LastAccess.Format(time.RFC3339)
	}
	return view
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, faults.ErrNotFound) {
		status = http.StatusNotFound
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

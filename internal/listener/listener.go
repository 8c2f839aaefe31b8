package listener

import (
	"context"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/coder/websocket"

	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/logging"
	"marquee/internal/store"
	"marquee/internal/syncqueue"
	"marquee/internal/task"
)

// Listener subscribes to the invalidation channel and turns notices into
// queue work.
type Listener struct {
	url      string
	deviceID string
	queue    *syncqueue.Queue
	store    *store.Store
	logger   *slog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
}

// New builds a listener. The channel URL comes from events_url, or is
// derived from the server base URL when unset.
func New(cfg *config.Config, queue *syncqueue.Queue, st *store.Store, logger *slog.Logger) *Listener {
	url := strings.TrimSpace(cfg.Server.EventsURL)
	if url == "" {
		url = deriveEventsURL(cfg.Server.BaseURL)
	}
	baseDelay := time.Duration(cfg.Sync.BaseDelay) * time.Second
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	maxDelay := time.Duration(cfg.Sync.MaxDelay) * time.Second
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &Listener{
		url:       url,
		deviceID:  strings.TrimSpace(cfg.Server.DeviceID),
		queue:     queue,
		store:     st,
		logger:    logging.NewComponentLogger(logger, "listener"),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// Run connects, reads notices, and reconnects with backoff until the
// context ends.
func (l *Listener) Run(ctx context.Context) {
	delay := l.baseDelay
	for ctx.Err() == nil {
		connected, err := l.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = l.baseDelay
		}
		if err != nil {
			l.logger.WarnContext(ctx, "channel disconnected, reconnecting",
				logging.Error(err),
				logging.Duration("reconnect_in", delay),
			)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(jittered(delay)):
		}
		delay *= 2
		if delay > l.maxDelay {
			delay = l.maxDelay
		}
	}
}

// connectAndRead holds one websocket session. A successful connect enqueues
// a manifest sync to cover anything missed while disconnected.
func (l *Listener) connectAndRead(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	opts := &websocket.DialOptions{}
	if l.deviceID != "" {
		opts.HTTPHeader = http.Header{"X-Marquee-Device": []string{l.deviceID}}
	}
	conn, _, err := websocket.Dial(dialCtx, l.url, opts)
	cancel()
	if err != nil {
		return false, err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.InfoContext(ctx, "channel connected", logging.String("url", l.url))
	if err := l.queue.Enqueue(ctx, task.New(task.KindFetchManifest, "", content.ClassCritical)); err != nil {
		return true, err
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		if err := l.handleMessage(ctx, data); err != nil {
			// A malformed message poisons the session; drop it without a
			// close handshake so the reconnect is immediate.
			conn.CloseNow()
			return true, err
		}
	}
}

func (l *Listener) handleMessage(ctx context.Context, data []byte) error {
	notice, err := parseNotice(data)
	if err != nil {
		return err
	}

	if notice.Action == noticeRemoved {
		return l.queue.Enqueue(ctx, task.New(task.KindPurgeItem, notice.ContentID, content.ClassNormal))
	}

	local, err := l.store.GetItem(ctx, notice.ContentID)
	if err == nil && local.Version >= notice.Version {
		// Already current; the notice is stale or duplicated.
		return nil
	}

	priority := content.ClassCritical
	if cls, ok := content.ParseClass(notice.Priority); ok {
		priority = cls
	}
	l.logger.InfoContext(ctx, "invalidation received",
		logging.String(logging.FieldContentID, notice.ContentID),
		logging.Int64(logging.FieldVersion, notice.Version),
	)
	return l.queue.Enqueue(ctx, task.New(task.KindFetchItem, notice.ContentID, priority))
}

func deriveEventsURL(baseURL string) string {
	url := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url + "/api/v1/events"
}

func jittered(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

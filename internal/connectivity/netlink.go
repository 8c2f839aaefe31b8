package connectivity

import (
	"context"
	"sync"

	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"marquee/internal/logging"
)

// linkWatcher listens for udev netlink events on the net subsystem and asks
// the monitor to re-probe when an interface appears, changes, or vanishes.
type linkWatcher struct {
	monitor *Monitor
	logger  *slog.Logger

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newLinkWatcher(monitor *Monitor, logger *slog.Logger) *linkWatcher {
	return &linkWatcher{monitor: monitor, logger: logger}
}

// Start begins listening for interface events. Failure to open the netlink
// socket is non-fatal; the periodic probe still detects transitions, just
// slower.
func (w *linkWatcher) Start(ctx context.Context) {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.logger.Warn("netlink socket unavailable, relying on probe interval only",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon can open netlink sockets"),
			logging.String(logging.FieldImpact, "slower reaction to link changes"),
		)
		return
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	quit := w.quit
	go w.watchLoop(ctx, quit)

	w.logger.Info("link watcher started",
		logging.String(logging.FieldEventType, "link_watcher_started"),
	)
}

// Stop shuts the watcher down.
func (w *linkWatcher) Stop() {
	if w == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.quit != nil {
		close(w.quit)
		w.quit = nil
	}
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.running = false
}

func (w *linkWatcher) watchLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, buildLinkMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.logger.Debug("interface event, probing",
				logging.String("action", string(uevent.Action)),
				logging.String("interface", uevent.Env["INTERFACE"]),
			)
			w.monitor.Kick()
		case err := <-errs:
			w.logger.Warn("link watcher error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "link_watcher_error"),
			)
		}
	}
}

func buildLinkMatcher() netlink.Matcher {
	action := "add|change|remove|move"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}

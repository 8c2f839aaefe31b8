package connectivity

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"marquee/internal/config"
	"marquee/internal/logging"
)

// State is the device's view of server reachability.
type State string

const (
	// StateConnecting is the boot state before the first probe completes.
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Prober checks server reachability. Implemented by the remote client.
type Prober interface {
	ProbeWithTimeout(ctx context.Context, timeout time.Duration) error
}

// Monitor runs the reachability state machine and fans out transitions.
type Monitor struct {
	prober   Prober
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	state State
	subs  []func(State)

	kick chan struct{}
	link *linkWatcher
}

// NewMonitor builds a monitor over the given prober.
func NewMonitor(cfg *config.Config, prober Prober, logger *slog.Logger) *Monitor {
	interval := time.Duration(cfg.Connectivity.ProbeInterval) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}
	timeout := time.Duration(cfg.Connectivity.ProbeTimeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	m := &Monitor{
		prober:   prober,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
		interval: interval,
		timeout:  timeout,
		state:    StateConnecting,
		kick:     make(chan struct{}, 1),
	}
	m.link = newLinkWatcher(m, m.logger)
	return m
}

// OnChange registers a callback invoked on every state transition. Register
// before Run starts; callbacks run on the monitor goroutine and must not
// block.
func (m *Monitor) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// State returns the current reachability state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the server was reachable at the last probe.
func (m *Monitor) Online() bool {
	return m.State() == StateConnected
}

// Kick requests an immediate probe outside the regular interval.
func (m *Monitor) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run probes until the context ends. The first probe happens immediately.
func (m *Monitor) Run(ctx context.Context) {
	m.link.Start(ctx)
	defer m.link.Stop()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		case <-m.kick:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	err := m.prober.ProbeWithTimeout(ctx, m.timeout)
	if ctx.Err() != nil {
		return
	}
	next := StateConnected
	if err != nil {
		next = StateDisconnected
	}
	m.setState(ctx, next, err)
}

func (m *Monitor) setState(ctx context.Context, next State, cause error) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	subs := append(make([]func(State), 0, len(m.subs)), m.subs...)
	m.mu.Unlock()

	attrs := []logging.Attr{
		logging.String(logging.FieldConnState, string(next)),
		logging.String("previous", string(prev)),
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	m.logger.InfoContext(ctx, "connectivity changed", logging.Args(attrs...)...)

	for _, fn := range subs {
		fn(next)
	}
}

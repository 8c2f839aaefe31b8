package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"marquee/internal/cache"
	"marquee/internal/config"
	"marquee/internal/connectivity"
	"marquee/internal/listener"
	"marquee/internal/logging"
	"marquee/internal/notify"
	"marquee/internal/orchestrator"
	"marquee/internal/preflight"
	"marquee/internal/remote"
	"marquee/internal/store"
	"marquee/internal/syncqueue"
)

// Daemon owns the engine lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	hub      *notify.Hub
	alerter  notify.Alerter
	cache    *cache.Manager
	queue    *syncqueue.Queue
	remote   *remote.Client
	monitor  *connectivity.Monitor
	listener *listener.Listener
	orch     *orchestrator.Orchestrator
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New opens the store and wires every component. Nothing starts running
// until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	hub := notify.NewHub(256)
	alerter := notify.NewAlerter(cfg)
	cacheMgr := cache.NewManager(cfg, st, hub, logger)
	queue := syncqueue.New(cfg, st, hub, alerter, logger)
	client := remote.NewClient(cfg)
	monitor := connectivity.NewMonitor(cfg, client, logger)
	lst := listener.New(cfg, queue, st, logger)
	orch := orchestrator.New(cfg, st, cacheMgr, queue, client, monitor, hub, alerter, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "marqueed.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		hub:      hub,
		alerter:  alerter,
		cache:    cacheMgr,
		queue:    queue,
		remote:   client,
		monitor:  monitor,
		listener: lst,
		orch:     orch,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, replays the persisted queue, and
// launches every component. The replay completes before the listener
// connects so restored work sits ahead of reconnection work.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another marquee daemon instance is already running")
	}

	if err := preflight.FirstFailure(preflight.Run(d.cfg)); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if err := d.store.CheckHealth(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if err := d.queue.Replay(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.orch.Start(runCtx); err != nil {
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(4)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.listener.Run(runCtx)
	}()
	go func() {
		defer d.wg.Done()
		d.cache.Run(runCtx, time.Duration(d.cfg.Cache.SweepInterval)*time.Second)
	}()
	go func() {
		defer d.wg.Done()
		d.maintainLoop(runCtx)
	}()

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.stopComponents()
			return err
		}
	}

	d.running.Store(true)
	d.logger.InfoContext(ctx, "marquee daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// Stop shuts everything down and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.stopComponents()
	d.running.Store(false)
	d.logger.Info("marquee daemon stopped")
}

func (d *Daemon) stopComponents() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.orch.Stop()
	if d.api != nil {
		d.api.stop()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Config returns the configuration the daemon was built with.
func (d *Daemon) Config() *config.Config {
	return d.cfg
}

// APIAddr returns the bound API address, or empty before Start.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// maintainLoop prunes finished task records on the sweep interval.
func (d *Daemon) maintainLoop(ctx context.Context) {
	interval := time.Duration(d.cfg.Cache.SweepInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	grace := time.Duration(d.cfg.Sync.SucceededGrace) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.queue.Maintain(ctx, grace); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("queue maintenance failed", logging.Error(err))
			}
		}
	}
}

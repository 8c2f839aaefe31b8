package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"marquee/internal/cache"
	"marquee/internal/config"
	"marquee/internal/connectivity"
	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/logging"
	"marquee/internal/notify"
	"marquee/internal/remote"
	"marquee/internal/resolve"
	"marquee/internal/store"
	"marquee/internal/syncqueue"
	"marquee/internal/task"
)

// RemoteClient is the server surface the orchestrator needs. Implemented
// by remote.Client.
type RemoteClient interface {
	FetchManifest(ctx context.Context) ([]content.ManifestEntry, error)
	FetchItem(ctx context.Context, id string) (*remote.ItemDownload, error)
}

// Connectivity is the reachability surface the orchestrator needs.
// Implemented by connectivity.Monitor.
type Connectivity interface {
	Online() bool
	OnChange(fn func(connectivity.State))
}

// Orchestrator coordinates the sync workers.
type Orchestrator struct {
	store   *store.Store
	cache   *cache.Manager
	queue   *syncqueue.Queue
	remote  RemoteClient
	conn    Connectivity
	hub     *notify.Hub
	alerter notify.Alerter
	logger  *slog.Logger

	workers      int
	pollInterval time.Duration
	deferDelay   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an orchestrator and registers the disconnect handler that
// re-queues inflight work.
func New(
	cfg *config.Config,
	st *store.Store,
	cacheMgr *cache.Manager,
	queue *syncqueue.Queue,
	client RemoteClient,
	conn Connectivity,
	hub *notify.Hub,
	alerter notify.Alerter,
	logger *slog.Logger,
) *Orchestrator {
	workers := cfg.Sync.Workers
	if workers <= 0 {
		workers = 2
	}
	poll := time.Duration(cfg.Sync.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	deferDelay := time.Duration(cfg.Cache.SweepInterval) * time.Second
	if deferDelay <= 0 {
		deferDelay = time.Minute
	}

	o := &Orchestrator{
		store:        st,
		cache:        cacheMgr,
		queue:        queue,
		remote:       client,
		conn:         conn,
		hub:          hub,
		alerter:      alerter,
		logger:       logging.NewComponentLogger(logger, "orchestrator"),
		workers:      workers,
		pollInterval: poll,
		deferDelay:   deferDelay,
	}

	conn.OnChange(func(state connectivity.State) {
		if state != connectivity.StateDisconnected {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		requeued, err := o.queue.RequeueInflight(ctx)
		if err != nil {
			o.logger.Warn("requeue on disconnect failed", logging.Error(err))
			return
		}
		if requeued > 0 {
			o.logger.Info("requeued inflight tasks on disconnect", logging.Int("tasks", requeued))
		}
	})
	return o
}

// Start launches the worker pool.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return errors.New("orchestrator already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running = true

	o.wg.Add(o.workers)
	for i := 0; i < o.workers; i++ {
		go o.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates the workers and waits for them to exit. Inflight tasks
// are re-queued so the next run picks them up.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	cancel := o.cancel
	o.running = false
	o.cancel = nil
	o.mu.Unlock()

	cancel()
	o.wg.Wait()

	ctx, cancelRequeue := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelRequeue()
	if _, err := o.queue.RequeueInflight(ctx); err != nil {
		o.logger.Warn("requeue on shutdown failed", logging.Error(err))
	}
}

func (o *Orchestrator) runWorker(ctx context.Context, id int) {
	defer o.wg.Done()

	logger := o.logger.With(logging.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		t, err := o.queue.DequeueNext(ctx)
		if errors.Is(err, syncqueue.ErrEmpty) {
			o.waitOrShutdown(ctx)
			continue
		}
		if err != nil {
			logger.Error("dequeue failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "dequeue_failed"),
				logging.String(logging.FieldErrorHint, "check sync database access"),
			)
			o.waitOrShutdown(ctx)
			continue
		}

		if t.Kind.NetworkBound() && !o.conn.Online() {
			if err := o.queue.Requeue(ctx, t.ID, o.pollInterval); err != nil {
				logger.Warn("offline requeue failed", logging.Error(err))
			}
			o.waitOrShutdown(ctx)
			continue
		}

		o.process(ctx, logger, t)
	}
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, t *task.Task) {
	err := o.handle(ctx, t)

	switch {
	case err == nil:
		if markErr := o.queue.MarkSucceeded(ctx, t.ID); markErr != nil {
			logger.Warn("mark succeeded failed", logging.Error(markErr))
		}
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		// Shutdown or disconnect mid-task; hand the work back untouched.
		requeueCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if requeueErr := o.queue.Requeue(requeueCtx, t.ID, 0); requeueErr != nil && !errors.Is(requeueErr, faults.ErrNotFound) {
			logger.Warn("shutdown requeue failed", logging.Error(requeueErr))
		}
	case errors.Is(err, faults.ErrCapacity):
		// Deferred, not failed: the sweeper may free room before the retry.
		logger.Info("commit deferred for cache capacity",
			logging.String(logging.FieldTaskID, t.ID),
			logging.String(logging.FieldContentID, t.ContentID),
			logging.Duration("retry_in", o.deferDelay),
		)
		if requeueErr := o.queue.Requeue(ctx, t.ID, o.deferDelay); requeueErr != nil {
			logger.Warn("capacity requeue failed", logging.Error(requeueErr))
		}
	default:
		if markErr := o.queue.MarkFailed(ctx, t.ID, err); markErr != nil {
			logger.Warn("mark failed failed", logging.Error(markErr))
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, t *task.Task) error {
	switch t.Kind {
	case task.KindFetchManifest:
		return o.handleFetchManifest(ctx)
	case task.KindFetchItem:
		return o.handleFetchItem(ctx, t)
	case task.KindApplyItem:
		return o.handleApplyItem(ctx, t)
	case task.KindPurgeItem:
		return o.handlePurgeItem(ctx, t)
	default:
		return faults.Wrap(faults.ErrProtocol, "orchestrator", "handle", "unknown task kind "+string(t.Kind), nil)
	}
}

// handleFetchManifest reconciles the local store against the server's
// manifest: newer or unknown ids become fetch tasks, delisted ids become
// purge tasks.
func (o *Orchestrator) handleFetchManifest(ctx context.Context) error {
	entries, err := o.remote.FetchManifest(ctx)
	if err != nil {
		return err
	}
	local, err := o.store.ItemVersions(ctx)
	if err != nil {
		return err
	}

	fetches, purges := 0, 0
	listed := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		listed[entry.ID] = struct{}{}
		version, known := local[entry.ID]
		if known && version >= entry.Version {
			continue
		}
		if err := o.queue.Enqueue(ctx, task.New(task.KindFetchItem, entry.ID, entry.PriorityClass())); err != nil {
			return err
		}
		fetches++
	}
	for id := range local {
		if _, ok := listed[id]; ok {
			continue
		}
		if err := o.queue.Enqueue(ctx, task.New(task.KindPurgeItem, id, content.ClassNormal)); err != nil {
			return err
		}
		purges++
	}

	o.logger.InfoContext(ctx, "manifest reconciled",
		logging.Int("listed", len(entries)),
		logging.Int("fetches", fetches),
		logging.Int("purges", purges),
	)
	return nil
}

// handleFetchItem downloads, verifies, resolves, and commits one item.
func (o *Orchestrator) handleFetchItem(ctx context.Context, t *task.Task) error {
	download, err := o.remote.FetchItem(ctx, t.ContentID)
	if err != nil {
		return err
	}

	if !content.VerifyChecksum(download.Payload, download.Checksum) {
		return o.integrityFailure(ctx, t.ContentID, download.Version, "downloaded payload does not match declared checksum")
	}

	local, err := o.store.GetItem(ctx, t.ContentID)
	if err != nil && !errors.Is(err, faults.ErrNotFound) {
		return err
	}

	entry := content.ManifestEntry{
		ID:       t.ContentID,
		Version:  download.Version,
		Checksum: download.Checksum,
		Size:     int64(len(download.Payload)),
		Priority: string(t.Priority),
	}
	result := resolve.Resolve(local, entry)
	if result.IntegrityWarning {
		o.logger.WarnContext(ctx, "equal versions with differing checksums, taking remote",
			logging.String(logging.FieldContentID, t.ContentID),
			logging.Int64(logging.FieldVersion, download.Version),
		)
		if alertErr := o.alerter.AlertIntegrity(ctx, t.ContentID, download.Version, "version collision with differing checksums"); alertErr != nil {
			o.logger.WarnContext(ctx, "integrity alert failed", logging.Error(alertErr))
		}
	}
	if result.Decision == resolve.KeepLocal {
		return nil
	}

	now := time.Now().UTC()
	item := &content.Item{
		ID:           t.ContentID,
		Version:      download.Version,
		Checksum:     download.Checksum,
		Priority:     t.Priority,
		LastVerified: now,
		LastAccess:   now,
		BaseVersion:  download.Version,
	}
	if local != nil {
		item.TTLSeconds = local.TTLSeconds
		item.Pinned = local.Pinned
	}
	return o.commit(ctx, item, download.Payload)
}

// handleApplyItem replays a locally staged payload through the commit path.
func (o *Orchestrator) handleApplyItem(ctx context.Context, t *task.Task) error {
	item, err := o.store.GetItem(ctx, t.ContentID)
	if err != nil {
		return err
	}
	payload, err := o.store.ReadPayload(item)
	if err != nil {
		return err
	}
	if !content.VerifyChecksum(payload, item.Checksum) {
		return o.integrityFailure(ctx, item.ID, item.Version, "staged payload does not match recorded checksum")
	}
	item.LastVerified = time.Now().UTC()
	return o.commit(ctx, item, payload)
}

// handlePurgeItem removes a delisted item. Delisting is authoritative, so
// pinning does not protect the item here.
func (o *Orchestrator) handlePurgeItem(ctx context.Context, t *task.Task) error {
	item, err := o.store.GetItem(ctx, t.ContentID)
	if errors.Is(err, faults.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := o.store.DeleteItem(ctx, t.ContentID); err != nil {
		return err
	}
	o.hub.Publish(notify.Event{
		ContentID: item.ID,
		Version:   item.Version,
		Action:    notify.ActionEvicted,
		Detail:    "delisted",
	})
	return nil
}

// commit is the single path by which new bytes become visible: cache
// admission, durable put, applied event.
func (o *Orchestrator) commit(ctx context.Context, item *content.Item, payload []byte) error {
	if err := o.cache.Admit(ctx, item.ID, int64(len(payload))); err != nil {
		return err
	}
	if err := o.store.PutItem(ctx, item, payload); err != nil {
		return err
	}
	o.hub.Publish(notify.Event{
		ContentID: item.ID,
		Version:   item.Version,
		Action:    notify.ActionApplied,
	})
	o.logger.InfoContext(ctx, "item applied",
		logging.String(logging.FieldContentID, item.ID),
		logging.Int64(logging.FieldVersion, item.Version),
		logging.Int64("size", item.Size),
	)
	return nil
}

// integrityFailure raises the alert, schedules a reconciliation, and
// returns the non-retryable fault. The fresh manifest fetch re-resolves the
// item at whatever version the server now declares.
func (o *Orchestrator) integrityFailure(ctx context.Context, id string, version int64, detail string) error {
	if err := o.alerter.AlertIntegrity(ctx, id, version, detail); err != nil {
		o.logger.WarnContext(ctx, "integrity alert failed", logging.Error(err))
	}
	if err := o.queue.Enqueue(ctx, task.New(task.KindFetchManifest, "", content.ClassCritical)); err != nil {
		o.logger.WarnContext(ctx, "recovery manifest enqueue failed", logging.Error(err))
	}
	return faults.Wrap(faults.ErrIntegrity, "orchestrator", "verify", fmt.Sprintf("%s v%d: %s", id, version, detail), nil)
}

func (o *Orchestrator) waitOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(o.pollInterval):
	}
}

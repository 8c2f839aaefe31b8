package cache

import (
	"context"
	"errors"
	"sort"
	"syscall"
	"time"

	"log/slog"

	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/faults"
	"marquee/internal/logging"
	"marquee/internal/notify"
	"marquee/internal/store"
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Manager enforces the cache budget over the content store.
type Manager struct {
	store     *store.Store
	hub       *notify.Hub
	logger    *slog.Logger
	root      string
	maxBytes  int64
	freeFloor float64
	statfs    statfsFunc
	now       func() time.Time
}

// Stats describes current cache usage.
type Stats struct {
	Entries      int     `json:"entries"`
	PinnedItems  int     `json:"pinned_items"`
	ExpiredItems int     `json:"expired_items"`
	TotalBytes   int64   `json:"total_bytes"`
	MaxBytes     int64   `json:"max_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	TotalFSBytes uint64  `json:"total_fs_bytes"`
	FreeRatio    float64 `json:"free_ratio"`
}

// NewManager builds a cache manager over the store.
func NewManager(cfg *config.Config, st *store.Store, hub *notify.Hub, logger *slog.Logger) *Manager {
	maxBytes := cfg.Cache.MaxMiB * 1024 * 1024
	floor := cfg.Cache.FreeSpaceFloor
	if floor < 0 || floor >= 1 {
		floor = 0
	}
	return &Manager{
		store:     st,
		hub:       hub,
		logger:    logging.NewComponentLogger(logger, "cache"),
		root:      cfg.Paths.PayloadDir,
		maxBytes:  maxBytes,
		freeFloor: floor,
		statfs:    realStatfs,
		now:       time.Now,
	}
}

// Admit makes room for an incoming payload of the given size, evicting
// unpinned items when necessary. A capacity fault means the payload cannot
// fit without removing pinned content and the caller must defer the write.
// incomingID exempts the item being replaced from eviction.
func (m *Manager) Admit(ctx context.Context, incomingID string, size int64) error {
	if size > m.maxBytes {
		return faults.Wrap(faults.ErrCapacity, "cache", "admit", incomingID, nil)
	}

	entries, total, err := m.scan(ctx)
	if err != nil {
		return err
	}
	// Replacing an item frees its current bytes first.
	for _, entry := range entries {
		if entry.ID == incomingID {
			total -= entry.Size
			break
		}
	}

	candidates := m.evictionOrder(entries, incomingID)
	for total+size > m.maxBytes || !m.freeSpaceOK(size) {
		if len(candidates) == 0 {
			return faults.Wrap(faults.ErrCapacity, "cache", "admit", incomingID, nil)
		}
		victim := candidates[0]
		candidates = candidates[1:]
		if err := m.evict(ctx, victim, "capacity"); err != nil {
			return err
		}
		total -= victim.Size
	}
	return nil
}

// Touch records a read for recency-based eviction.
func (m *Manager) Touch(ctx context.Context, id string) error {
	return m.store.TouchItem(ctx, id, m.now())
}

// Pin exempts an item from eviction.
func (m *Manager) Pin(ctx context.Context, id string) error {
	return m.store.SetPinned(ctx, id, true)
}

// Unpin restores normal eviction eligibility.
func (m *Manager) Unpin(ctx context.Context, id string) error {
	return m.store.SetPinned(ctx, id, false)
}

// EvictExpired removes unpinned items whose TTL has elapsed and returns the
// number evicted. Expired pinned items are retained: stale content beats a
// blank screen on an unattended display.
func (m *Manager) EvictExpired(ctx context.Context) (int, error) {
	entries, _, err := m.scan(ctx)
	if err != nil {
		return 0, err
	}

	now := m.now()
	evicted := 0
	for _, entry := range entries {
		if entry.Pinned || !entry.Expired(now) {
			continue
		}
		if err := m.evict(ctx, entry, "ttl"); err != nil {
			return evicted, err
		}
		evicted++
	}
	return evicted, nil
}

// Sweep runs one maintenance pass: expired eviction plus orphaned payload
// removal.
func (m *Manager) Sweep(ctx context.Context) error {
	evicted, err := m.EvictExpired(ctx)
	if err != nil {
		return err
	}
	if evicted > 0 {
		m.logger.InfoContext(ctx, "evicted expired items", logging.Int("evicted", evicted))
	}
	removed, err := m.store.SweepPayloads(ctx)
	if err != nil {
		return err
	}
	if removed > 0 {
		m.logger.InfoContext(ctx, "swept orphaned payloads", logging.Int("removed", removed))
	}
	return nil
}

// Run sweeps on the configured interval until the context ends.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.WarnContext(ctx, "cache sweep failed", logging.Error(err))
			}
		}
	}
}

// Stats returns current usage and filesystem free-space info.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	entries, total, err := m.scan(ctx)
	if err != nil {
		return Stats{}, err
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil {
		return Stats{}, faults.Wrap(faults.ErrStorage, "cache", "stats", "statfs", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}

	now := m.now()
	stats := Stats{
		Entries:      len(entries),
		TotalBytes:   total,
		MaxBytes:     m.maxBytes,
		FreeBytes:    freeFS,
		TotalFSBytes: totalFS,
		FreeRatio:    ratio,
	}
	for _, entry := range entries {
		if entry.Pinned {
			stats.PinnedItems++
		}
		if entry.Expired(now) {
			stats.ExpiredItems++
		}
	}
	return stats, nil
}

func (m *Manager) evict(ctx context.Context, item *content.Item, reason string) error {
	if err := m.store.DeleteItem(ctx, item.ID); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "evicted item",
		logging.String(logging.FieldContentID, item.ID),
		logging.Int64(logging.FieldVersion, item.Version),
		logging.String("reason", reason),
	)
	m.hub.Publish(notify.Event{
		ContentID: item.ID,
		Version:   item.Version,
		Action:    notify.ActionEvicted,
		Detail:    reason,
	})
	return nil
}

// evictionOrder ranks unpinned items for removal: expired items first by
// oldest expiry, then live items least-recently-used.
func (m *Manager) evictionOrder(entries []*content.Item, excludeID string) []*content.Item {
	now := m.now()
	var expired, live []*content.Item
	for _, entry := range entries {
		if entry.Pinned || entry.ID == excludeID {
			continue
		}
		if entry.Expired(now) {
			expired = append(expired, entry)
		} else {
			live = append(live, entry)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt().Before(expired[j].ExpiresAt())
	})
	sort.Slice(live, func(i, j int) bool {
		return m.recency(live[i]).Before(m.recency(live[j]))
	})
	return append(expired, live...)
}

func (m *Manager) recency(item *content.Item) time.Time {
	if !item.LastAccess.IsZero() {
		return item.LastAccess
	}
	return item.LastVerified
}

func (m *Manager) scan(ctx context.Context) ([]*content.Item, int64, error) {
	var entries []*content.Item
	var total int64
	afterID := ""
	for {
		page, err := m.store.EnumerateItems(ctx, afterID, 200)
		if err != nil {
			return nil, 0, err
		}
		if len(page) == 0 {
			return entries, total, nil
		}
		for _, item := range page {
			entries = append(entries, item)
			total += item.Size
		}
		afterID = page[len(page)-1].ID
	}
}

// freeSpaceOK reports whether writing size more bytes keeps the filesystem
// above the free-space floor.
func (m *Manager) freeSpaceOK(size int64) bool {
	if m.freeFloor <= 0 {
		return true
	}
	totalFS, freeFS, err := m.statfs(m.root)
	if err != nil || totalFS == 0 {
		// Unknown filesystem state never blocks admission.
		return true
	}
	remaining := int64(freeFS) - size
	if remaining < 0 {
		return false
	}
	return float64(remaining)/float64(totalFS) >= m.freeFloor
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

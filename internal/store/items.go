package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"time"

	"marquee/internal/content"
	"marquee/internal/faults"
)

const itemColumns = "id, version, checksum, payload_path, size, priority, ttl_seconds, last_verified, pinned, last_access, access_count, local_edit, base_version"

// PutItem durably persists an item together with its payload, replacing any
// prior version for the same id. The payload blob is committed first; the
// database row moves to the new locator in a transaction, and the previous
// blob is removed only after the commit succeeds.
func (s *Store) PutItem(ctx context.Context, item *content.Item, payload []byte) error {
	if item == nil || item.ID == "" {
		return faults.Wrap(faults.ErrStorage, "store", "put item", "item id is required", nil)
	}

	payloadPath, err := s.writePayload(item, payload)
	if err != nil {
		return err
	}

	prior, err := s.GetItem(ctx, item.ID)
	if err != nil && !errors.Is(err, faults.ErrNotFound) {
		removePayloadFile(payloadPath)
		return err
	}

	item.PayloadPath = payloadPath
	item.Size = int64(len(payload))

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO content_items (`+itemColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             version = excluded.version,
             checksum = excluded.checksum,
             payload_path = excluded.payload_path,
             size = excluded.size,
             priority = excluded.priority,
             ttl_seconds = excluded.ttl_seconds,
             last_verified = excluded.last_verified,
             pinned = excluded.pinned,
             last_access = excluded.last_access,
             access_count = excluded.access_count,
             local_edit = excluded.local_edit,
             base_version = excluded.base_version`,
		item.ID,
		item.Version,
		item.Checksum,
		item.PayloadPath,
		item.Size,
		string(item.Priority),
		item.TTLSeconds,
		nullableTimeString(item.LastVerified),
		boolToInt(item.Pinned),
		nullableTimeString(item.LastAccess),
		item.AccessCount,
		boolToInt(item.LocalEdit),
		item.BaseVersion,
	)
	if err != nil {
		removePayloadFile(payloadPath)
		return faults.Wrap(faults.ErrStorage, "store", "put item", item.ID, err)
	}

	// Only now is the old blob unreachable.
	if prior != nil && prior.PayloadPath != item.PayloadPath {
		removePayloadFile(prior.PayloadPath)
	}

	s.generation.Add(1)
	return nil
}

// GetItem returns the current item for id or a not-found fault.
func (s *Store) GetItem(ctx context.Context, id string) (*content.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM content_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, faults.Wrap(faults.ErrNotFound, "store", "get item", id, nil)
	}
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "get item", id, err)
	}
	return item, nil
}

// EnumerateItems returns up to limit items ordered by id, starting after
// afterID. Passing the last id of the previous page restarts the sequence;
// an empty result means the enumeration is complete.
func (s *Store) EnumerateItems(ctx context.Context, afterID string, limit int) ([]*content.Item, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+itemColumns+` FROM content_items WHERE id > ? ORDER BY id LIMIT ?`,
		afterID,
		limit,
	)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "enumerate items", "", err)
	}
	defer rows.Close()

	var items []*content.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, faults.Wrap(faults.ErrStorage, "store", "enumerate items", "scan", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "enumerate items", "iterate", err)
	}
	return items, nil
}

// ItemVersions returns the locally known version for every stored item,
// keyed by content id. The orchestrator diffs manifests against this.
func (s *Store) ItemVersions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, version FROM content_items`)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "item versions", "", err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var id string
		var version int64
		if err := rows.Scan(&id, &version); err != nil {
			return nil, faults.Wrap(faults.ErrStorage, "store", "item versions", "scan", err)
		}
		versions[id] = version
	}
	if err := rows.Err(); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "store", "item versions", "iterate", err)
	}
	return versions, nil
}

// DeleteItem removes an item row and its payload blob. Deleting an unknown
// id is not an error.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	item, err := s.GetItem(ctx, id)
	if errors.Is(err, faults.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, id); err != nil {
		return faults.Wrap(faults.ErrStorage, "store", "delete item", id, err)
	}
	removePayloadFile(item.PayloadPath)
	s.generation.Add(1)
	return nil
}

// TouchItem records a read of the item for recency-based eviction. Touches
// do not advance the store generation; they change no visible content.
func (s *Store) TouchItem(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE content_items SET last_access = ?, access_count = access_count + 1 WHERE id = ?`,
		formatTime(at),
		id,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "store", "touch item", id, err)
	}
	return nil
}

// SetPinned flips the eviction exemption for an item.
func (s *Store) SetPinned(ctx context.Context, id string, pinned bool) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE content_items SET pinned = ? WHERE id = ?`,
		boolToInt(pinned),
		id,
	)
	if err != nil {
		return faults.Wrap(faults.ErrStorage, "store", "set pinned", id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return faults.Wrap(faults.ErrNotFound, "store", "set pinned", id, nil)
	}
	return nil
}

// CountItems returns the number of stored items and their total payload size.
func (s *Store) CountItems(ctx context.Context) (int, int64, error) {
	var count int
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(size), 0) FROM content_items`).Scan(&count, &size)
	if err != nil {
		return 0, 0, faults.Wrap(faults.ErrStorage, "store", "count items", "", err)
	}
	return count, size.Int64, nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*content.Item, error) {
	var (
		id           string
		version      int64
		checksum     string
		payloadPath  string
		size         int64
		priority     string
		ttlSeconds   int64
		lastVerified sql.NullString
		pinned       int
		lastAccess   sql.NullString
		accessCount  int64
		localEdit    int
		baseVersion  int64
	)
	if err := scanner.Scan(
		&id,
		&version,
		&checksum,
		&payloadPath,
		&size,
		&priority,
		&ttlSeconds,
		&lastVerified,
		&pinned,
		&lastAccess,
		&accessCount,
		&localEdit,
		&baseVersion,
	); err != nil {
		return nil, err
	}

	item := &content.Item{
		ID:          id,
		Version:     version,
		Checksum:    checksum,
		PayloadPath: payloadPath,
		Size:        size,
		Priority:    content.Class(priority),
		TTLSeconds:  ttlSeconds,
		Pinned:      pinned != 0,
		AccessCount: accessCount,
		LocalEdit:   localEdit != 0,
		BaseVersion: baseVersion,
	}
	if lastVerified.Valid {
		item.LastVerified = parseTimeString(lastVerified.String)
	}
	if lastAccess.Valid {
		item.LastAccess = parseTimeString(lastAccess.String)
	}
	return item, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func removePayloadFile(path string) {
	if path == "" {
		return
	}
	// Best effort; an orphaned blob is reclaimed by the next payload sweep.
	_ = os.Remove(path)
}

package api

// Status is the /api/status payload.
type Status struct {
	Running      bool           `json:"running"`
	DeviceID     string         `json:"device_id"`
	Connectivity string         `json:"connectivity"`
	Items        int            `json:"items"`
	ItemBytes    int64          `json:"item_bytes"`
	Queue        map[string]int `json:"queue"`
	Cache        CacheStats     `json:"cache"`
	DatabasePath string         `json:"database_path"`
}

// Task is one sync queue entry as served by /api/queue.
type Task struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	ContentID    string `json:"content_id,omitempty"`
	Priority     string `json:"priority"`
	State        string `json:"state"`
	Attempts     int    `json:"attempts"`
	NextEligible string `json:"next_eligible,omitempty"`
	EnqueuedAt   string `json:"enqueued_at"`
	UpdatedAt    string `json:"updated_at"`
	LastError    string `json:"last_error,omitempty"`
}

// Item is one cached content item as served by /api/content.
type Item struct {
	ID           string `json:"id"`
	Version      int64  `json:"version"`
	Checksum     string `json:"checksum"`
	Size         int64  `json:"size"`
	Priority     string `json:"priority"`
	TTLSeconds   int64  `json:"ttl_seconds,omitempty"`
	LastVerified string `json:"last_verified,omitempty"`
	LastAccess   string `json:"last_access,omitempty"`
	Pinned       bool   `json:"pinned"`
	LocalEdit    bool   `json:"local_edit"`
	Expired      bool   `json:"expired"`
}

// CacheStats mirrors the cache manager usage report.
type CacheStats struct {
	Entries      int     `json:"entries"`
	PinnedItems  int     `json:"pinned_items"`
	ExpiredItems int     `json:"expired_items"`
	TotalBytes   int64   `json:"total_bytes"`
	MaxBytes     int64   `json:"max_bytes"`
	FreeBytes    uint64  `json:"free_bytes"`
	TotalFSBytes uint64  `json:"total_fs_bytes"`
	FreeRatio    float64 `json:"free_ratio"`
}

// Event is one change-notification frame from /api/events.
type Event struct {
	Sequence  uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	ContentID string `json:"content_id"`
	Version   int64  `json:"version"`
	Action    string `json:"action"`
	Detail    string `json:"detail,omitempty"`
}

// Ack is the generic acknowledgement payload for mutating endpoints.
type Ack struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

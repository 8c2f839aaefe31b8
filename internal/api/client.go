package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to a running marqueed over its local HTTP API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds a client for the daemon bound at addr (host:port or a
// full http URL). The token may be empty when the API is unauthenticated.
func NewClient(addr, token string) *Client {
	base := strings.TrimSpace(addr)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   strings.TrimSpace(token),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches the daemon status summary.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// QueueList fetches sync tasks, optionally filtered to the given states.
func (c *Client) QueueList(ctx context.Context, states ...string) ([]Task, error) {
	path := "/api/queue"
	if len(states) > 0 {
		path += "?state=" + url.QueryEscape(strings.Join(states, ","))
	}
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, path, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// RetryTask requeues a dead-lettered task.
func (c *Client) RetryTask(ctx context.Context, id string) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/api/queue/"+url.PathEscape(id)+"/retry", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// ContentList fetches every cached content item.
func (c *Client) ContentList(ctx context.Context) ([]Item, error) {
	var items []Item
	if err := c.do(ctx, http.MethodGet, "/api/content", &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ContentItem fetches one cached content item.
func (c *Client) ContentItem(ctx context.Context, id string) (*Item, error) {
	var item Item
	if err := c.do(ctx, http.MethodGet, "/api/content/"+url.PathEscape(id), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Pin marks an item as protected from cache eviction.
func (c *Client) Pin(ctx context.Context, id string) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/api/content/"+url.PathEscape(id)+"/pin", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// Unpin removes eviction protection from an item.
func (c *Client) Unpin(ctx context.Context, id string) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/api/content/"+url.PathEscape(id)+"/unpin", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// CacheStats fetches cache usage and free-space figures.
func (c *Client) CacheStats(ctx context.Context) (*CacheStats, error) {
	var stats CacheStats
	if err := c.do(ctx, http.MethodGet, "/api/cache", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ForceSync schedules an immediate full manifest reconciliation.
func (c *Client) ForceSync(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.do(ctx, http.MethodPost, "/api/sync", &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is marqueed running?)", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("daemon: %s", payload.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

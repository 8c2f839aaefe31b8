package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marquee/internal/config"
	"marquee/internal/content"
	"marquee/internal/faults"
)

const (
	headerDevice   = "X-Marquee-Device"
	headerVersion  = "X-Content-Version"
	headerChecksum = "X-Content-Checksum"

	userAgent = "Marquee-Go/0.1.0"

	// maxPayloadBytes bounds a single download; a TV box payload is a
	// rendered bundle, not a video file.
	maxPayloadBytes = 512 << 20
)

// HTTPDoer describes the HTTP client used by the remote client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ItemDownload is a fetched payload with its declared metadata.
type ItemDownload struct {
	Payload  []byte
	Version  int64
	Checksum string
}

// Client talks to the content server.
type Client struct {
	baseURL    string
	healthPath string
	deviceID   string
	timeout    time.Duration
	client     HTTPDoer
}

// NewClient builds a client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Server.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/"),
		healthPath: cfg.Server.HealthPath,
		deviceID:   strings.TrimSpace(cfg.Server.DeviceID),
		timeout:    timeout,
		client:     &http.Client{},
	}
}

// NewClientWithDoer builds a client over a caller-provided HTTP doer.
func NewClientWithDoer(cfg *config.Config, doer HTTPDoer) *Client {
	c := NewClient(cfg)
	c.client = doer
	return c
}

// FetchManifest downloads and parses the device manifest.
func (c *Client) FetchManifest(ctx context.Context) ([]content.ManifestEntry, error) {
	body, _, err := c.get(ctx, c.baseURL+"/api/v1/manifest", "fetch manifest")
	if err != nil {
		return nil, err
	}
	entries, err := content.ParseManifest(body)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchItem downloads one payload together with its declared version and
// checksum. The caller verifies the checksum before committing anything.
func (c *Client) FetchItem(ctx context.Context, id string) (*ItemDownload, error) {
	body, header, err := c.get(ctx, c.baseURL+"/api/v1/content/"+id, "fetch item "+id)
	if err != nil {
		return nil, err
	}

	version, err := strconv.ParseInt(strings.TrimSpace(header.Get(headerVersion)), 10, 64)
	if err != nil || version <= 0 {
		return nil, faults.Wrap(faults.ErrProtocol, "remote", "fetch item", id+": missing version header", nil)
	}
	checksum := strings.TrimSpace(header.Get(headerChecksum))
	if checksum == "" {
		return nil, faults.Wrap(faults.ErrProtocol, "remote", "fetch item", id+": missing checksum header", nil)
	}

	return &ItemDownload{Payload: body, Version: version, Checksum: checksum}, nil
}

// Probe checks server reachability via the health endpoint.
func (c *Client) Probe(ctx context.Context) error {
	_, _, err := c.get(ctx, c.baseURL+c.healthPath, "health probe")
	return err
}

// ProbeWithTimeout runs Probe under its own deadline, for callers without
// a request-scoped context budget.
func (c *Client) ProbeWithTimeout(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(probeCtx)
}

func (c *Client) get(ctx context.Context, url, op string) ([]byte, http.Header, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrProtocol, "remote", op, "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.deviceID != "" {
		req.Header.Set(headerDevice, c.deviceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrNetwork, "remote", op, "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil, faults.Wrap(faults.ErrNotFound, "remote", op, fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusInternalServerError:
		// Server-side trouble is transient from the device's perspective.
		return nil, nil, faults.Wrap(faults.ErrNetwork, "remote", op, fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return nil, nil, faults.Wrap(faults.ErrProtocol, "remote", op, fmt.Sprintf("server returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrNetwork, "remote", op, "read body", err)
	}
	return body, resp.Header, nil
}

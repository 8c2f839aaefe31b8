package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"marquee/internal/config"
)

const userAgent = "Marquee-Go/0.1.0"

// Alerter defines the operator alert surface used by the sync engine.
type Alerter interface {
	AlertDeadLetter(ctx context.Context, contentID, kind string, attempts int, lastErr string) error
	AlertIntegrity(ctx context.Context, contentID string, version int64, detail string) error
	AlertStorageFailure(ctx context.Context, err error) error
	TestAlert(ctx context.Context) error
}

// NewAlerter builds an alerter backed by ntfy when a topic is configured.
// Without a topic a noop implementation is returned.
func NewAlerter(cfg *config.Config) Alerter {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopAlerter{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyAlerter{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		deviceID: strings.TrimSpace(cfg.Server.DeviceID),
	}
}

type alertPayload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyAlerter struct {
	endpoint string
	client   *http.Client
	deviceID string
}

func (n *ntfyAlerter) AlertDeadLetter(ctx context.Context, contentID, kind string, attempts int, lastErr string) error {
	message := fmt.Sprintf("Task %s for %s dead-lettered after %d attempts", kind, contentID, attempts)
	if lastErr = strings.TrimSpace(lastErr); lastErr != "" {
		message = fmt.Sprintf("%s\nLast error: %s", message, lastErr)
	}
	data := alertPayload{
		title:    n.title("Dead Letter"),
		message:  message,
		tags:     []string{"marquee", "queue", "deadletter"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyAlerter) AlertIntegrity(ctx context.Context, contentID string, version int64, detail string) error {
	message := fmt.Sprintf("Integrity failure on %s v%d", contentID, version)
	if detail = strings.TrimSpace(detail); detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}
	data := alertPayload{
		title:    n.title("Integrity"),
		message:  message,
		tags:     []string{"marquee", "integrity", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyAlerter) AlertStorageFailure(ctx context.Context, err error) error {
	message := "Local store failure"
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(err.Error()))
	}
	data := alertPayload{
		title:    n.title("Storage"),
		message:  message,
		tags:     []string{"marquee", "storage", "alert"},
		priority: "urgent",
	}
	return n.send(ctx, data)
}

func (n *ntfyAlerter) TestAlert(ctx context.Context) error {
	data := alertPayload{
		title:    n.title("Test"),
		message:  "Notification test",
		tags:     []string{"marquee", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyAlerter) title(suffix string) string {
	if n.deviceID != "" {
		return fmt.Sprintf("Marquee %s - %s", n.deviceID, suffix)
	}
	return "Marquee - " + suffix
}

func (n *ntfyAlerter) send(ctx context.Context, data alertPayload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopAlerter struct{}

func (noopAlerter) AlertDeadLetter(context.Context, string, string, int, string) error { return nil }
func (noopAlerter) AlertIntegrity(context.Context, string, int64, string) error        { return nil }
func (noopAlerter) AlertStorageFailure(context.Context, error) error                   { return nil }
func (noopAlerter) TestAlert(context.Context) error                                    { return nil }

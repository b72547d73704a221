package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hopper/internal/config"
)

const userAgent = "Hopper-Go/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyDaemonStarted(ctx context.Context, bindAddr string) error
	NotifyDaemonStopped(ctx context.Context, uptime time.Duration) error
	NotifyPostIngested(ctx context.Context, authorName string) error
	NotifyProfileIngested(ctx context.Context, fullName string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		lifecycle: cfg.Notifications.Lifecycle,
		ingest:    cfg.Notifications.Ingest,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	lifecycle bool
	ingest    bool
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context, bindAddr string) error {
	if !n.lifecycle {
		return nil
	}
	bindAddr = strings.TrimSpace(bindAddr)
	data := payload{
		title:   "Hopper - Started",
		message: fmt.Sprintf("Daemon started, control API on %s", bindAddr),
		tags:    []string{"hopper", "daemon", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStopped(ctx context.Context, uptime time.Duration) error {
	if !n.lifecycle {
		return nil
	}
	uptime = uptime.Round(time.Second)
	if uptime < 0 {
		uptime = 0
	}
	data := payload{
		title:   "Hopper - Stopped",
		message: fmt.Sprintf("Daemon stopped after %s", uptime),
		tags:    []string{"hopper", "daemon", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPostIngested(ctx context.Context, authorName string) error {
	if !n.ingest {
		return nil
	}
	authorName = strings.TrimSpace(authorName)
	if authorName == "" {
		authorName = "unknown author"
	}
	data := payload{
		title:   "Hopper - Post Ingested",
		message: fmt.Sprintf("New post queued for enrichment: %s", authorName),
		tags:    []string{"hopper", "ingest", "post"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyProfileIngested(ctx context.Context, fullName string) error {
	if !n.ingest {
		return nil
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		fullName = "unknown profile"
	}
	data := payload{
		title:   "Hopper - Profile Ingested",
		message: fmt.Sprintf("New profile queued for completion: %s", fullName),
		tags:    []string{"hopper", "ingest", "profile"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Hopper - Test",
		message:  "Notification system test",
		tags:     []string{"hopper", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDaemonStarted(context.Context, string) error        { return nil }
func (noopService) NotifyDaemonStopped(context.Context, time.Duration) error { return nil }
func (noopService) NotifyPostIngested(context.Context, string) error         { return nil }
func (noopService) NotifyProfileIngested(context.Context, string) error      { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }

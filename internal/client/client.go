// Package client provides a small HTTP client for the hopper control API. The
// CLI uses it so command code never touches raw HTTP plumbing.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to a running daemon's control endpoint.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithSchedulerSecret attaches the X-Scheduler-Secret header to every request.
func WithSchedulerSecret(secret string) Option {
	return func(c *Client) {
		c.secret = strings.TrimSpace(secret)
	}
}

// New builds a client for the given daemon address. A bare host:port is
// treated as plain HTTP.
func New(address string, opts ...Option) (*Client, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("daemon address is required")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	parsed, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse daemon address: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(parsed.String(), "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WorkerStatus mirrors one entry of the status action's workers map.
// LastStatus is "never_run" for workers with no execution-log history.
type WorkerStatus struct {
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status"`
	RunsLastHour   int        `json:"runs_last_hour"`
	Successful     int        `json:"successful_last_hour"`
	Failed         int        `json:"failed_last_hour"`
	AvgDurationMS  int64      `json:"avg_duration_ms"`
	ItemsProcessed int        `json:"items_processed_last_hour"`
}

// LegacyStatus reports the inverse kill-switch flag kept for older readers.
type LegacyStatus struct {
	ContinueProcessingDisabled bool `json:"continue_processing_disabled"`
}

// StatusResponse is the status action's payload.
type StatusResponse struct {
	Status     string                  `json:"status"`
	Workers    map[string]WorkerStatus `json:"workers"`
	AllEnabled bool                    `json:"all_enabled"`
	AnyEnabled bool                    `json:"any_enabled"`
	Legacy     LegacyStatus            `json:"legacy"`
}

// ToggleResponse is the enable/disable action's payload.
type ToggleResponse struct {
	Status  string `json:"status"`
	Worker  string `json:"worker"`
	Enabled bool   `json:"enabled"`
}

// ToggleAllResponse is the enable-all/disable-all action's payload.
type ToggleAllResponse struct {
	Status         string   `json:"status"`
	Enabled        bool     `json:"enabled"`
	Workers        []string `json:"workers"`
	LegacyDisabled bool     `json:"legacy_disabled"`
}

// RunEntry is one execution-log row as reported by the logs action.
type RunEntry struct {
	ID             string     `json:"id"`
	Worker         string     `json:"worker"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `json:"status"`
	ItemsFound     int        `json:"items_found"`
	ItemsProcessed int        `json:"items_processed"`
	ItemsFailed    int        `json:"items_failed"`
	DurationMS     int64      `json:"duration_ms"`
	Error          string     `json:"error,omitempty"`
}

// LogsResponse is the logs action's payload.
type LogsResponse struct {
	Status string     `json:"status"`
	Runs   []RunEntry `json:"runs"`
}

// PendingResponse is the pending action's payload.
type PendingResponse struct {
	Status  string         `json:"status"`
	Pending map[string]int `json:"pending"`
	Total   int            `json:"total"`
	Stalled map[string]int `json:"stalled"`
}

// RunSummary describes one synchronous worker run.
type RunSummary struct {
	ID        string `json:"id"`
	Found     int    `json:"found"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Aborted   bool   `json:"aborted"`
	Error     string `json:"error,omitempty"`
}

// TriggerResponse is the run action's payload. The daemon runs the worker
// before responding; Skipped reports a disabled worker, which accepts the
// request but does no work and leaves Run empty.
type TriggerResponse struct {
	Status    string      `json:"status"`
	Worker    string      `json:"worker"`
	Triggered bool        `json:"triggered"`
	Skipped   bool        `json:"skipped,omitempty"`
	Run       *RunSummary `json:"run,omitempty"`
}

// APIError carries the control endpoint's error payload.
type APIError struct {
	StatusCode       int
	Message          string   `json:"error"`
	AvailableWorkers []string `json:"available_workers,omitempty"`
	AvailableActions []string `json:"available_actions,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("control api returned status %d", e.StatusCode)
}

// Status fetches the daemon and per-worker status summary.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.get(ctx, "status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Enable turns one worker on.
func (c *Client) Enable(ctx context.Context, worker string) (*ToggleResponse, error) {
	return c.toggle(ctx, "enable", worker)
}

// Disable turns one worker off.
func (c *Client) Disable(ctx context.Context, worker string) (*ToggleResponse, error) {
	return c.toggle(ctx, "disable", worker)
}

func (c *Client) toggle(ctx context.Context, action, worker string) (*ToggleResponse, error) {
	var out ToggleResponse
	params := url.Values{"worker": {worker}}
	if err := c.get(ctx, action, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnableAll turns every worker on.
func (c *Client) EnableAll(ctx context.Context) (*ToggleAllResponse, error) {
	return c.toggleAll(ctx, "enable-all")
}

// DisableAll turns every worker off.
func (c *Client) DisableAll(ctx context.Context) (*ToggleAllResponse, error) {
	return c.toggleAll(ctx, "disable-all")
}

func (c *Client) toggleAll(ctx context.Context, action string) (*ToggleAllResponse, error) {
	var out ToggleAllResponse
	if err := c.get(ctx, action, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logs fetches recent execution-log entries, optionally filtered to one
// worker. A zero limit uses the server default.
func (c *Client) Logs(ctx context.Context, worker string, limit int) (*LogsResponse, error) {
	params := url.Values{}
	if worker = strings.TrimSpace(worker); worker != "" {
		params.Set("worker", worker)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out LogsResponse
	if err := c.get(ctx, "logs", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Pending fetches per-stage backlog and stalled counts.
func (c *Client) Pending(ctx context.Context) (*PendingResponse, error) {
	var out PendingResponse
	if err := c.get(ctx, "pending", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Run asks the daemon to run one worker immediately.
func (c *Client) Run(ctx context.Context, worker string) (*TriggerResponse, error) {
	var out TriggerResponse
	params := url.Values{"worker": {worker}}
	if err := c.get(ctx, "run", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, action string, params url.Values, target any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)
	endpoint := c.baseURL + "/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.secret != "" {
		req.Header.Set("X-Scheduler-Secret", c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode %s response: %w", action, err)
	}
	return nil
}

package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hopper/internal/client"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *client.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL)
	if err != nil {
		t.Fatalf("construct client: %v", err)
	}
	return srv, c
}

func TestStatusDecodesWorkers(t *testing.T) {
	_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("action"); got != "status" {
			t.Errorf("expected action=status, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"workers": {
				"worker_extract_hooks_v2": {"enabled": true, "last_status": "success", "runs_last_hour": 4, "items_processed_last_hour": 12}
			},
			"all_enabled": false,
			"any_enabled": true,
			"legacy": {"continue_processing_disabled": false}
		}`))
	})

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	entry, ok := status.Workers["worker_extract_hooks_v2"]
	if !ok {
		t.Fatal("expected hook extraction worker in status")
	}
	if !entry.Enabled || entry.RunsLastHour != 4 || entry.ItemsProcessed != 12 {
		t.Errorf("unexpected worker entry: %+v", entry)
	}
	if status.AllEnabled || !status.AnyEnabled {
		t.Errorf("unexpected aggregate flags: %+v", status)
	}
}

func TestEnableSendsWorkerParam(t *testing.T) {
	_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("action") != "enable" || query.Get("worker") != "worker_generate_embeddings_v2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","worker":"worker_generate_embeddings_v2","enabled":true}`))
	})

	resp, err := c.Enable(context.Background(), "worker_generate_embeddings_v2")
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !resp.Enabled {
		t.Error("expected enabled=true in response")
	}
}

func TestUnknownWorkerSurfacesAPIError(t *testing.T) {
	_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown worker \"bogus\"","available_workers":["worker_extract_hooks_v2"]}`))
	})

	_, err := c.Enable(context.Background(), "bogus")
	if err == nil {
		t.Fatal("expected error for unknown worker")
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected status code %d", apiErr.StatusCode)
	}
	if len(apiErr.AvailableWorkers) != 1 {
		t.Errorf("expected available workers in error, got %+v", apiErr.AvailableWorkers)
	}
}

func TestLogsPassesFilterAndLimit(t *testing.T) {
	_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("worker") != "worker_classify_topics_v2" || query.Get("limit") != "5" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","runs":[{"id":"r1","worker":"worker_classify_topics_v2","started_at":"2026-08-29T10:00:00Z","status":"success","items_found":2,"items_processed":2}]}`))
	})

	logs, err := c.Logs(context.Background(), "worker_classify_topics_v2", 5)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(logs.Runs) != 1 || logs.Runs[0].ItemsProcessed != 2 {
		t.Errorf("unexpected runs payload: %+v", logs.Runs)
	}
}

func TestPendingDecodesCounters(t *testing.T) {
	_, c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","pending":{"hook_extraction":3},"total":3,"stalled":{"embedding":1}}`))
	})

	pending, err := c.Pending(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Total != 3 || pending.Pending["hook_extraction"] != 3 || pending.Stalled["embedding"] != 1 {
		t.Errorf("unexpected pending payload: %+v", pending)
	}
}

func TestSchedulerSecretHeaderIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Scheduler-Secret"); got != "hunter2" {
			t.Errorf("expected scheduler secret header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","worker":"worker_extract_hooks_v2","triggered":true,"skipped":false,"run":{"id":"run-7","found":2,"processed":2,"failed":0,"aborted":false}}`))
	}))
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL, client.WithSchedulerSecret("hunter2"))
	if err != nil {
		t.Fatalf("construct client: %v", err)
	}
	resp, err := c.Run(context.Background(), "worker_extract_hooks_v2")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !resp.Triggered {
		t.Error("expected triggered=true")
	}
	if resp.Run == nil || resp.Run.ID != "run-7" || resp.Run.Processed != 2 {
		t.Errorf("unexpected run summary: %+v", resp.Run)
	}
}

func TestNewRejectsEmptyAddress(t *testing.T) {
	if _, err := client.New("   "); err == nil {
		t.Fatal("expected error for empty address")
	}
}

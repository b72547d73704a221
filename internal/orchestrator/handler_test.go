package orchestrator_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/orchestrator"
	"hopper/internal/queue"
	"hopper/internal/testsupport"
	"hopper/internal/worker"
)

type stubTrigger struct {
	mu     sync.Mutex
	ran    []string
	known  bool
	result worker.RunResult
}

func (s *stubTrigger) RunNow(ctx context.Context, name string) (worker.RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.known {
		return worker.RunResult{}, false
	}
	s.ran = append(s.ran, name)
	result := s.result
	result.Worker = name
	return result, true
}

type fixture struct {
	store   *queue.Store
	gate    *flags.StoreGate
	trigger *stubTrigger
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	gate := flags.NewStoreGate(store)
	trigger := &stubTrigger{known: true}
	handler := orchestrator.NewHandler(store, gate, trigger, logging.NewNop(), orchestrator.Options{
		LogLimit:    5,
		MaxAttempts: 10,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &fixture{store: store, gate: gate, trigger: trigger, server: server}
}

func (f *fixture) get(t *testing.T, query string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.server.URL + query)
	if err != nil {
		t.Fatalf("request %s: %v", query, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s response: %v", query, err)
	}
	return resp.StatusCode, payload
}

func TestStatusReportsWorkersAndAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.gate.SetEnabled(ctx, flags.WorkerExtractHooks, true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	runID, err := f.store.StartRun(ctx, flags.WorkerExtractHooks)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := f.store.FinishRun(ctx, runID, queue.RunStatusSuccess, 2, 2, 0, ""); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	code, payload := f.get(t, "/?action=status")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if payload["all_enabled"] != false || payload["any_enabled"] != true {
		t.Errorf("unexpected aggregate flags: %v", payload)
	}

	workers, ok := payload["workers"].(map[string]any)
	if !ok || len(workers) != len(flags.KnownWorkers) {
		t.Fatalf("expected all %d workers in status, got %v", len(flags.KnownWorkers), payload["workers"])
	}
	hooks := workers[flags.WorkerExtractHooks].(map[string]any)
	if hooks["enabled"] != true || hooks["last_status"] != queue.RunStatusSuccess {
		t.Errorf("unexpected worker entry %v", hooks)
	}
	if hooks["runs_last_hour"].(float64) != 1 || hooks["items_processed_last_hour"].(float64) != 2 {
		t.Errorf("unexpected trailing-hour aggregates %v", hooks)
	}
	idle := workers[flags.WorkerCompleteProfiles].(map[string]any)
	if idle["last_status"] != "never_run" {
		t.Errorf("worker without history should report never_run, got %v", idle)
	}

	legacy := payload["legacy"].(map[string]any)
	if legacy["continue_processing_disabled"] != false {
		t.Errorf("unexpected legacy block %v", legacy)
	}
}

func TestStatusIsTheDefaultAction(t *testing.T) {
	f := newFixture(t)
	code, payload := f.get(t, "/")
	if code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("bare request should serve status, got %d %v", code, payload)
	}
}

func TestEnableDisableWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, payload := f.get(t, "/?action=enable&worker="+flags.WorkerClassifyTopics)
	if code != http.StatusOK || payload["enabled"] != true {
		t.Fatalf("enable failed: %d %v", code, payload)
	}
	enabled, err := f.gate.IsEnabled(ctx, flags.WorkerClassifyTopics)
	if err != nil || !enabled {
		t.Fatalf("flag not persisted: %v %v", enabled, err)
	}

	code, payload = f.get(t, "/?action=disable&worker="+flags.WorkerClassifyTopics)
	if code != http.StatusOK || payload["enabled"] != false {
		t.Fatalf("disable failed: %d %v", code, payload)
	}
}

func TestToggleUnknownWorkerListsAvailable(t *testing.T) {
	f := newFixture(t)
	code, payload := f.get(t, "/?action=enable&worker=worker_make_coffee")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	available, ok := payload["available_workers"].([]any)
	if !ok || len(available) != len(flags.KnownWorkers) {
		t.Fatalf("expected available worker list, got %v", payload)
	}
}

func TestBulkToggleFlipsLegacyFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	code, payload := f.get(t, "/?action=enable-all")
	if code != http.StatusOK || payload["legacy_disabled"] != true {
		t.Fatalf("enable-all failed: %d %v", code, payload)
	}
	for _, worker := range flags.KnownWorkers {
		enabled, err := f.gate.IsEnabled(ctx, worker)
		if err != nil || !enabled {
			t.Fatalf("%s should be enabled: %v %v", worker, enabled, err)
		}
	}
	legacyDisabled, err := f.gate.LegacyDisabled(ctx)
	if err != nil || !legacyDisabled {
		t.Fatalf("enable-all should disable the legacy path: %v %v", legacyDisabled, err)
	}

	code, payload = f.get(t, "/?action=disable-all")
	if code != http.StatusOK || payload["legacy_disabled"] != false {
		t.Fatalf("disable-all failed: %d %v", code, payload)
	}
	legacyDisabled, err = f.gate.LegacyDisabled(ctx)
	if err != nil || legacyDisabled {
		t.Fatalf("disable-all should restore the legacy path: %v %v", legacyDisabled, err)
	}
}

func TestLogsNewestFirstAndCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		id, err := f.store.StartRun(ctx, flags.WorkerExtractHooks)
		if err != nil {
			t.Fatalf("start run: %v", err)
		}
		if err := f.store.FinishRun(ctx, id, queue.RunStatusSuccess, i, i, 0, ""); err != nil {
			t.Fatalf("finish run: %v", err)
		}
	}

	code, payload := f.get(t, "/?action=logs")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	runs := payload["runs"].([]any)
	if len(runs) != 5 {
		t.Fatalf("logs should be capped at the configured limit, got %d", len(runs))
	}
	first := runs[0].(map[string]any)
	if first["items_found"].(float64) != 7 {
		t.Errorf("expected newest run first, got %v", first)
	}

	code, payload = f.get(t, "/?action=logs&limit=2")
	if code != http.StatusOK || len(payload["runs"].([]any)) != 2 {
		t.Fatalf("explicit lower limit not honored: %v", payload)
	}
}

func TestLogsRejectsUnknownWorkerFilter(t *testing.T) {
	f := newFixture(t)

	code, payload := f.get(t, "/?action=logs&worker=worker_unknown")
	if code != http.StatusBadRequest {
		t.Fatalf("unknown worker filter should 400, got %d %v", code, payload)
	}
	available, ok := payload["available_workers"].([]any)
	if !ok || len(available) != len(flags.KnownWorkers) {
		t.Fatalf("expected the valid-name list, got %v", payload)
	}
}

func TestPendingReportsBacklogAndStalled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, f.store, "profile-1", "content")
	for i := 0; i < 10; i++ {
		if err := f.store.RecordStageError(ctx, post.ID, queue.StageEmbedding, "boom"); err != nil {
			t.Fatalf("record error: %v", err)
		}
	}

	code, payload := f.get(t, "/?action=pending")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	pending := payload["pending"].(map[string]any)
	if pending[string(queue.StageHookExtraction)].(float64) != 1 {
		t.Errorf("unexpected pending counts %v", pending)
	}
	if payload["total"].(float64) != 5 {
		t.Errorf("expected total of 5 flagged stages, got %v", payload["total"])
	}
	stalled := payload["stalled"].(map[string]any)
	if stalled[string(queue.StageEmbedding)].(float64) != 1 {
		t.Errorf("post at the retry bound should report stalled, got %v", stalled)
	}
}

func TestRunActionExecutesWorkerSynchronously(t *testing.T) {
	f := newFixture(t)

	f.trigger.result = worker.RunResult{Skipped: true}
	code, payload := f.get(t, "/?action=run&worker="+flags.WorkerGenerateEmbedding)
	if code != http.StatusOK || payload["skipped"] != true || payload["triggered"] != false {
		t.Fatalf("disabled worker should report skipped: %d %v", code, payload)
	}
	if _, present := payload["run"]; present {
		t.Fatalf("skipped run should carry no summary, got %v", payload)
	}

	f.trigger.result = worker.RunResult{RunID: "run-1", Found: 3, Processed: 2, Failed: 1}
	code, payload = f.get(t, "/?action=run&worker="+flags.WorkerGenerateEmbedding)
	if code != http.StatusOK || payload["triggered"] != true || payload["skipped"] != false {
		t.Fatalf("run failed: %d %v", code, payload)
	}
	run, ok := payload["run"].(map[string]any)
	if !ok {
		t.Fatalf("expected run summary, got %v", payload)
	}
	if run["id"] != "run-1" || run["found"].(float64) != 3 || run["processed"].(float64) != 2 || run["failed"].(float64) != 1 {
		t.Fatalf("unexpected run summary %v", run)
	}
	if len(f.trigger.ran) != 2 || f.trigger.ran[1] != flags.WorkerGenerateEmbedding {
		t.Fatalf("unexpected RunNow calls %v", f.trigger.ran)
	}

	code, _ = f.get(t, "/?action=run&worker=worker_unknown")
	if code != http.StatusBadRequest {
		t.Fatalf("unknown worker should 400, got %d", code)
	}

	f.trigger.known = false
	code, _ = f.get(t, "/?action=run&worker="+flags.WorkerGenerateEmbedding)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("unregistered worker should 503, got %d", code)
	}
}

func TestUnknownActionListsAvailableActions(t *testing.T) {
	f := newFixture(t)
	code, payload := f.get(t, "/?action=reticulate")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	actions, ok := payload["available_actions"].([]any)
	if !ok || len(actions) == 0 {
		t.Fatalf("expected action list, got %v", payload)
	}
}

func TestOptionsPreflightAndCORS(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/?action=status", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preflight should return 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header on preflight")
	}

	getResp, err := http.Get(f.server.URL + "/?action=status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS origin header on regular response")
	}
}

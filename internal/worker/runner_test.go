package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/queue"
	"hopper/internal/services"
	"hopper/internal/stage"
	"hopper/internal/testsupport"
	"hopper/internal/worker"
)

// scriptedStage processes items with per-item outcomes supplied by the test.
type scriptedStage struct {
	name      string
	items     []stage.Item
	selectErr error
	outcomes  map[string]error
	followUps []string

	mu        sync.Mutex
	processed []string
}

func (s *scriptedStage) Name() string { return s.name }

func (s *scriptedStage) Select(context.Context) ([]stage.Item, error) {
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return s.items, nil
}

func (s *scriptedStage) Process(_ context.Context, item stage.Item) error {
	s.mu.Lock()
	s.processed = append(s.processed, item.ID)
	s.mu.Unlock()
	return s.outcomes[item.ID]
}

func (s *scriptedStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func (s *scriptedStage) FollowUps() []string { return s.followUps }

func (s *scriptedStage) processedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	nudged []string
}

func (d *recordingDispatcher) Nudge(worker string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nudged = append(d.nudged, worker)
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.nudged...)
}

func items(ids ...string) []stage.Item {
	result := make([]stage.Item, 0, len(ids))
	for _, id := range ids {
		result = append(result, stage.Item{ID: id})
	}
	return result
}

func enabledGate(t *testing.T, workerName string) *flags.MemoryGate {
	t.Helper()
	gate := flags.NewMemoryGate()
	if err := gate.SetEnabled(context.Background(), workerName, true); err != nil {
		t.Fatalf("enable %s: %v", workerName, err)
	}
	return gate
}

func TestRunDisabledWorkerLeavesNoTrace(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerExtractHooks, items: items("a")}
	runner := worker.NewRunner(handler, flags.NewMemoryGate(), store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if !result.Skipped || result.Err != nil {
		t.Fatalf("expected silent skip, got %+v", result)
	}
	if len(handler.processedIDs()) != 0 {
		t.Fatal("disabled worker must not touch items")
	}

	runs, err := store.RecentRuns(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatal("disabled worker must not write to the execution log")
	}
}

func TestRunGateErrorFailsSafe(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	gate := flags.NewMemoryGate()
	gate.FailWith(errors.New("db on fire"))
	handler := &scriptedStage{name: flags.WorkerExtractHooks, items: items("a")}
	runner := worker.NewRunner(handler, gate, store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if !result.Skipped {
		t.Fatal("unreadable flag must keep the worker off")
	}
	if result.Err == nil {
		t.Fatal("gate error should be surfaced in the result")
	}
	if len(handler.processedIDs()) != 0 {
		t.Fatal("no items should be processed")
	}
}

func TestRunIsolatesPerItemFailures(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{
		name:  flags.WorkerExtractHooks,
		items: items("a", "b", "c"),
		outcomes: map[string]error{
			"b": services.Wrap(services.ErrValidation, "test", "process", "bad item", nil),
		},
	}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if result.Found != 3 || result.Processed != 2 || result.Failed != 1 || result.Aborted {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := handler.processedIDs(); len(got) != 3 {
		t.Fatalf("every item should be attempted, got %v", got)
	}

	runs, err := store.RecentRuns(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one execution-log entry, got %d", len(runs))
	}
	run := runs[0]
	if run.Status != queue.RunStatusSuccess {
		t.Errorf("per-item failures still count as a completed run, got %s", run.Status)
	}
	if run.ItemsFound != 3 || run.ItemsProcessed != 2 || run.ItemsFailed != 1 {
		t.Errorf("unexpected counts %+v", run)
	}
	if run.FinishedAt == nil {
		t.Error("entry should be finalized")
	}
}

func TestRunAbortsBatchOnUpstreamFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{
		name:  flags.WorkerGenerateEmbedding,
		items: items("a", "b", "c"),
		outcomes: map[string]error{
			"a": services.Wrap(services.ErrUpstream, "test", "process", "api down", nil),
		},
	}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if !result.Aborted || result.Failed != 1 || result.Processed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if got := handler.processedIDs(); len(got) != 1 {
		t.Fatalf("abort must leave the rest of the batch untouched, got %v", got)
	}

	runs, _ := store.RecentRuns(context.Background(), "", 10)
	if len(runs) != 1 || runs[0].Status != queue.RunStatusFailure {
		t.Fatalf("aborted run should be logged as failure, got %+v", runs)
	}
	if runs[0].ErrorMessage == "" {
		t.Error("aborted run should carry the error message")
	}
}

func TestRunEmptyBatchStillLogged(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerClassifyHooks}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if result.Found != 0 || result.Err != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	runs, _ := store.RecentRuns(context.Background(), "", 10)
	if len(runs) != 1 || runs[0].Status != queue.RunStatusSuccess {
		t.Fatalf("empty run should still be logged as success, got %+v", runs)
	}
}

func TestRunSelectionFailureLogsFailure(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerClassifyTopics, selectErr: errors.New("query exploded")}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	result := runner.Run(context.Background())
	if result.Err == nil {
		t.Fatal("selection error should surface in the result")
	}
	runs, _ := store.RecentRuns(context.Background(), "", 10)
	if len(runs) != 1 || runs[0].Status != queue.RunStatusFailure {
		t.Fatalf("expected failure entry, got %+v", runs)
	}
}

func TestRunNudgesFollowUpsOnlyOnProgress(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	dispatcher := &recordingDispatcher{}

	productive := &scriptedStage{
		name:      flags.WorkerExtractHooks,
		items:     items("a"),
		followUps: []string{flags.WorkerClassifyHooks},
	}
	runner := worker.NewRunner(productive, enabledGate(t, productive.name), store, logging.NewNop(), 0)
	runner.SetDispatcher(dispatcher)
	runner.Run(context.Background())
	if got := dispatcher.names(); len(got) != 1 || got[0] != flags.WorkerClassifyHooks {
		t.Fatalf("expected one nudge to hook classification, got %v", got)
	}

	idle := &scriptedStage{
		name:      flags.WorkerClassifyTopics,
		followUps: []string{flags.WorkerCompleteProfiles},
	}
	idleRunner := worker.NewRunner(idle, enabledGate(t, idle.name), store, logging.NewNop(), 0)
	idleRunner.SetDispatcher(dispatcher)
	idleRunner.Run(context.Background())
	if got := dispatcher.names(); len(got) != 1 {
		t.Fatalf("idle run must not nudge, got %v", got)
	}
}

func TestRunRerunIsIdempotentAgainstSettledItems(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "content")
	if err := store.SetHook(ctx, post.ID, "hook"); err != nil {
		t.Fatalf("set hook: %v", err)
	}

	// The batch was selected before the item settled; reprocessing it must
	// be a no-op rather than a double write.
	handler := &settledAwareStage{store: store, item: stage.Item{ID: post.ID}}
	runner := worker.NewRunner(handler, enabledGate(t, handler.Name()), store, logging.NewNop(), 0)

	result := runner.Run(ctx)
	if result.Failed != 0 {
		t.Fatalf("reprocessing a settled item should not fail: %+v", result)
	}
	updated, _ := store.GetPost(ctx, post.ID)
	if updated.Hook != "hook" {
		t.Fatalf("settled output must be preserved, got %q", updated.Hook)
	}
}

// settledAwareStage mimics a production stage's recheck-on-process behavior.
type settledAwareStage struct {
	store *queue.Store
	item  stage.Item
}

func (s *settledAwareStage) Name() string { return flags.WorkerExtractHooks }

func (s *settledAwareStage) Select(context.Context) ([]stage.Item, error) {
	return []stage.Item{s.item}, nil
}

func (s *settledAwareStage) Process(ctx context.Context, item stage.Item) error {
	post, err := s.store.GetPost(ctx, item.ID)
	if err != nil {
		return err
	}
	if post == nil || !post.NeedsHookExtraction {
		return nil
	}
	return s.store.SetHook(ctx, item.ID, "overwritten")
}

func (s *settledAwareStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(s.Name())
}

func (s *settledAwareStage) FollowUps() []string { return nil }

func TestSchedulerTriggersRegisteredWorkers(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerExtractHooks, items: items("a")}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	scheduler := worker.NewScheduler(time.Hour, logging.NewNop())
	scheduler.Register(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	if !scheduler.Trigger(flags.WorkerExtractHooks) {
		t.Fatal("trigger should report a registered worker")
	}
	testsupport.WaitFor(t, 2*time.Second, func() bool {
		return len(handler.processedIDs()) > 0
	})

	if scheduler.Trigger("worker_unknown") {
		t.Fatal("trigger should report unknown workers")
	}
}

func TestSchedulerRunNowReturnsResult(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerExtractHooks, items: items("a", "b")}
	runner := worker.NewRunner(handler, enabledGate(t, handler.name), store, logging.NewNop(), 0)

	scheduler := worker.NewScheduler(time.Hour, logging.NewNop())
	scheduler.Register(runner)

	if _, ok := scheduler.RunNow(context.Background(), flags.WorkerExtractHooks); ok {
		t.Fatal("RunNow should refuse before Start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()

	result, ok := scheduler.RunNow(ctx, flags.WorkerExtractHooks)
	if !ok {
		t.Fatal("RunNow should find a registered worker")
	}
	if result.Skipped || result.Found != 2 || result.Processed != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	if _, ok := scheduler.RunNow(ctx, "worker_unknown"); ok {
		t.Fatal("RunNow should reject unknown workers")
	}
}

func TestSchedulerRejectsDoubleStart(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	handler := &scriptedStage{name: flags.WorkerExtractHooks}
	runner := worker.NewRunner(handler, flags.NewMemoryGate(), store, logging.NewNop(), 0)

	scheduler := worker.NewScheduler(time.Hour, logging.NewNop())
	scheduler.Register(runner)

	ctx := context.Background()
	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer scheduler.Stop()
	if err := scheduler.Start(ctx); err == nil {
		t.Fatal("second start should fail")
	}

	empty := worker.NewScheduler(time.Hour, logging.NewNop())
	if err := empty.Start(ctx); err == nil {
		t.Fatal("empty scheduler should refuse to start")
	}
}

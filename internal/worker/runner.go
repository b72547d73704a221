package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/queue"
	"hopper/internal/services"
	"hopper/internal/stage"
)

// Dispatcher delivers fire-and-forget nudges so downstream workers pick up
// freshly produced work before their next scheduled poll.
type Dispatcher interface {
	Nudge(worker string)
}

// RunResult summarizes one worker invocation.
type RunResult struct {
	RunID     string
	Worker    string
	Skipped   bool
	Found     int
	Processed int
	Failed    int
	Aborted   bool
	Err       error
}

// Runner executes a single stage: gate check, selection, per-item
// processing, execution-log bookkeeping.
type Runner struct {
	handler    stage.Handler
	gate       flags.Gate
	store      *queue.Store
	logger     *slog.Logger
	dispatcher Dispatcher
	itemDelay  time.Duration
}

// NewRunner constructs a runner for one stage.
func NewRunner(handler stage.Handler, gate flags.Gate, store *queue.Store, logger *slog.Logger, itemDelay time.Duration) *Runner {
	return &Runner{
		handler:   handler,
		gate:      gate,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "worker"),
		itemDelay: itemDelay,
	}
}

// SetDispatcher wires the nudge target. Nil disables follow-up nudges.
func (r *Runner) SetDispatcher(dispatcher Dispatcher) {
	r.dispatcher = dispatcher
}

// Worker returns the stage's worker name.
func (r *Runner) Worker() string {
	return r.handler.Name()
}

// HealthCheck reports the stage's readiness.
func (r *Runner) HealthCheck(ctx context.Context) stage.Health {
	return r.handler.HealthCheck(ctx)
}

// Run executes one invocation. It never returns an error: every outcome,
// including a worker that was simply switched off, is captured in the
// result, and anything worth operator attention is logged.
func (r *Runner) Run(ctx context.Context) RunResult {
	name := r.handler.Name()
	result := RunResult{Worker: name}
	logger := r.logger.With(logging.String(logging.FieldWorker, name))

	enabled, err := r.gate.IsEnabled(ctx, name)
	if err != nil {
		// Fail safe: an unreadable flag keeps the worker off.
		logger.Warn("flag read failed, treating worker as disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "flag_read_failed"))
		result.Skipped = true
		result.Err = err
		return result
	}
	if !enabled {
		result.Skipped = true
		return result
	}

	runID, err := r.store.StartRun(ctx, name)
	if err != nil {
		logger.Error("could not open execution-log entry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_log_failed"))
		result.Err = err
		return result
	}
	result.RunID = runID
	logger = logger.With(logging.String(logging.FieldRunID, runID))

	items, err := r.handler.Select(ctx)
	if err != nil {
		logger.Error("batch selection failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "selection_failed"))
		result.Err = err
		r.finish(ctx, logger, &result, queue.RunStatusFailure, err.Error())
		return result
	}
	result.Found = len(items)
	if len(items) == 0 {
		r.finish(ctx, logger, &result, queue.RunStatusSuccess, "")
		return result
	}
	logger.Info("processing batch", logging.Int("items", len(items)))

	for i, item := range items {
		if ctx.Err() != nil {
			result.Err = ctx.Err()
			r.finish(ctx, logger, &result, queue.RunStatusFailure, "run canceled")
			return result
		}

		err := r.handler.Process(ctx, item)
		switch {
		case err == nil:
			result.Processed++
		case services.AbortsBatch(err):
			// The upstream is down, not the item. Stop here; everything
			// unprocessed keeps its flag and costs nothing.
			result.Failed++
			result.Aborted = true
			result.Err = err
			logger.Error("aborting batch on upstream failure",
				logging.Error(err),
				logging.String(logging.FieldItemID, item.ID),
				logging.String(logging.FieldEventType, "batch_aborted"),
				logging.String(logging.FieldErrorHint, "check upstream api availability"))
			r.finish(ctx, logger, &result, queue.RunStatusFailure, err.Error())
			return result
		default:
			result.Failed++
			logger.Warn("item failed",
				logging.Error(err),
				logging.String(logging.FieldItemID, item.ID),
				logging.String(logging.FieldEventType, "item_failed"))
		}

		if i < len(items)-1 {
			r.pause(ctx)
		}
	}

	r.finish(ctx, logger, &result, queue.RunStatusSuccess, "")
	r.nudgeFollowUps(&result, logger)
	return result
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, result *RunResult, status, message string) {
	if result.RunID == "" {
		return
	}
	// Finalize with a background-friendly context so a canceled run still
	// lands in the log.
	finishCtx := ctx
	if finishCtx == nil || finishCtx.Err() != nil {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := r.store.FinishRun(finishCtx, result.RunID, status, result.Found, result.Processed, result.Failed, message); err != nil {
		logger.Error("could not finalize execution-log entry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "run_log_failed"))
		if result.Err == nil {
			result.Err = err
		}
		return
	}
	logger.Info("run finished",
		logging.String("status", status),
		logging.Int("found", result.Found),
		logging.Int("processed", result.Processed),
		logging.Int("failed", result.Failed))
}

func (r *Runner) nudgeFollowUps(result *RunResult, logger *slog.Logger) {
	if r.dispatcher == nil || result.Processed == 0 {
		return
	}
	for _, follower := range r.handler.FollowUps() {
		logger.Debug("nudging follow-up worker", logging.String("follow_up", follower))
		r.dispatcher.Nudge(follower)
	}
}

func (r *Runner) pause(ctx context.Context) {
	if r.itemDelay <= 0 {
		return
	}
	timer := time.NewTimer(r.itemDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// String implements fmt.Stringer for log-friendly run summaries.
func (res RunResult) String() string {
	if res.Skipped {
		return fmt.Sprintf("%s: skipped", res.Worker)
	}
	return fmt.Sprintf("%s: found=%d processed=%d failed=%d aborted=%t",
		res.Worker, res.Found, res.Processed, res.Failed, res.Aborted)
}

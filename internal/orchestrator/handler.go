package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/queue"
	"hopper/internal/worker"
)

// Actions the endpoint understands, in the order reported to callers.
var knownActions = []string{
	"status", "enable", "disable", "enable-all", "disable-all", "logs", "pending", "run",
}

const defaultLogLimit = 50

// Trigger executes a worker run in the caller's goroutine and returns its
// result. The boolean is false when the worker is not registered with a
// running scheduler.
type Trigger interface {
	RunNow(ctx context.Context, worker string) (worker.RunResult, bool)
}

// Options configures the handler.
type Options struct {
	// SchedulerSecret, when set, is compared against X-Scheduler-Secret.
	// Mismatches are logged, not rejected, so a scheduler misconfiguration
	// degrades to noisy instead of dark.
	SchedulerSecret string
	// LogLimit caps how many execution-log entries one request may fetch.
	LogLimit int
	// MaxAttempts is the retry bound used to report stalled items.
	MaxAttempts int
}

// Handler serves the action-routed control endpoint.
type Handler struct {
	store   *queue.Store
	gate    flags.Gate
	trigger Trigger
	logger  *slog.Logger
	opts    Options
}

// NewHandler constructs the control endpoint. trigger may be nil, which
// disables the run action.
func NewHandler(store *queue.Store, gate flags.Gate, trigger Trigger, logger *slog.Logger, opts Options) *Handler {
	if opts.LogLimit <= 0 {
		opts.LogLimit = defaultLogLimit
	}
	return &Handler{
		store:   store,
		gate:    gate,
		trigger: trigger,
		logger:  logging.NewComponentLogger(logger, "orchestrator"),
		opts:    opts,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}

	h.checkSchedulerSecret(r)

	action := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("action")))
	if action == "" {
		action = "status"
	}

	switch action {
	case "status":
		h.handleStatus(w, r)
	case "enable":
		h.handleToggle(w, r, true)
	case "disable":
		h.handleToggle(w, r, false)
	case "enable-all":
		h.handleToggleAll(w, r, true)
	case "disable-all":
		h.handleToggleAll(w, r, false)
	case "logs":
		h.handleLogs(w, r)
	case "pending":
		h.handlePending(w, r)
	case "run":
		h.handleRun(w, r)
	default:
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "unknown action " + strconv.Quote(action),
			"available_actions": knownActions,
		})
	}
}

func (h *Handler) checkSchedulerSecret(r *http.Request) {
	if h.opts.SchedulerSecret == "" {
		return
	}
	if r.Header.Get("X-Scheduler-Secret") != h.opts.SchedulerSecret {
		h.logger.Warn("scheduler secret mismatch",
			logging.String("remote", r.RemoteAddr),
			logging.String(logging.FieldEventType, "scheduler_secret_mismatch"),
			logging.String(logging.FieldErrorHint, "check the caller's X-Scheduler-Secret header"))
	}
}

// neverRun is reported as last_status for workers with no execution-log
// history.
const neverRun = "never_run"

type workerStatus struct {
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status"`
	RunsLastHour   int        `json:"runs_last_hour"`
	Successful     int        `json:"successful_last_hour"`
	Failed         int        `json:"failed_last_hour"`
	AvgDurationMS  int64      `json:"avg_duration_ms"`
	ItemsProcessed int        `json:"items_processed_last_hour"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := h.gate.Flags(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	legacyDisabled, err := h.gate.LegacyDisabled(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	health, err := h.store.HealthSnapshot(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	workers := make(map[string]workerStatus, len(flags.KnownWorkers))
	allEnabled := true
	anyEnabled := false
	for _, name := range flags.KnownWorkers {
		on := enabled[name]
		allEnabled = allEnabled && on
		anyEnabled = anyEnabled || on
		entry := workerStatus{Enabled: on, LastStatus: neverRun}
		if snapshot, ok := health[name]; ok {
			entry.LastRunAt = snapshot.LastRunAt
			if snapshot.LastStatus != "" {
				entry.LastStatus = snapshot.LastStatus
			}
			entry.RunsLastHour = snapshot.Runs
			entry.Successful = snapshot.Successful
			entry.Failed = snapshot.Failed
			entry.AvgDurationMS = snapshot.AvgDurationMS
			entry.ItemsProcessed = snapshot.ItemsProcessed
		}
		workers[name] = entry
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"workers":     workers,
		"all_enabled": allEnabled,
		"any_enabled": anyEnabled,
		"legacy": map[string]bool{
			"continue_processing_disabled": legacyDisabled,
		},
	})
}

func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	worker := strings.TrimSpace(r.URL.Query().Get("worker"))
	if err := h.gate.SetEnabled(r.Context(), worker, enabled); err != nil {
		var unknown *flags.ErrUnknownWorker
		if errors.As(err, &unknown) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             unknown.Error(),
				"available_workers": unknown.Available,
			})
			return
		}
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("worker toggled",
		logging.String(logging.FieldWorker, worker),
		logging.Bool("enabled", enabled))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"worker":  worker,
		"enabled": enabled,
	})
}

func (h *Handler) handleToggleAll(w http.ResponseWriter, r *http.Request, enabled bool) {
	if err := h.gate.SetAllEnabled(r.Context(), enabled); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.logger.Info("all workers toggled", logging.Bool("enabled", enabled))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"enabled":         enabled,
		"workers":         flags.KnownWorkers,
		"legacy_disabled": enabled,
	})
}

type runEntry struct {
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

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	worker := strings.TrimSpace(query.Get("worker"))
	if worker != "" && !flags.IsKnownWorker(worker) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "unknown worker " + strconv.Quote(worker),
			"available_workers": flags.KnownWorkers,
		})
		return
	}
	limit := h.opts.LogLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed < limit {
			limit = parsed
		}
	}

	runs, err := h.store.RecentRuns(r.Context(), worker, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	entries := make([]runEntry, 0, len(runs))
	for _, run := range runs {
		entries = append(entries, runEntry{
			ID:             run.ID,
			Worker:         run.WorkerName,
			StartedAt:      run.StartedAt,
			FinishedAt:     run.FinishedAt,
			Status:         run.Status,
			ItemsFound:     run.ItemsFound,
			ItemsProcessed: run.ItemsProcessed,
			ItemsFailed:    run.ItemsFailed,
			DurationMS:     run.DurationMillis,
			Error:          run.ErrorMessage,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"runs":   entries,
	})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, err := h.store.PendingCounts(ctx)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	stalled, err := h.store.StalledCounts(ctx, h.opts.MaxAttempts)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}

	total := 0
	pendingByStage := make(map[string]int, len(pending))
	for stage, count := range pending {
		pendingByStage[string(stage)] = count
		total += count
	}
	stalledByStage := make(map[string]int, len(stalled))
	for stage, count := range stalled {
		stalledByStage[string(stage)] = count
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pending": pendingByStage,
		"total":   total,
		"stalled": stalledByStage,
	})
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("worker"))
	if !flags.IsKnownWorker(name) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "unknown worker " + strconv.Quote(name),
			"available_workers": flags.KnownWorkers,
		})
		return
	}
	if h.trigger == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "worker not running in this daemon",
		})
		return
	}
	result, ok := h.trigger.RunNow(r.Context(), name)
	if !ok {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": "worker not running in this daemon",
		})
		return
	}

	payload := map[string]any{
		"status":    "ok",
		"worker":    name,
		"triggered": !result.Skipped,
		"skipped":   result.Skipped,
	}
	if !result.Skipped {
		run := map[string]any{
			"id":        result.RunID,
			"found":     result.Found,
			"processed": result.Processed,
			"failed":    result.Failed,
			"aborted":   result.Aborted,
		}
		if result.Err != nil {
			run["error"] = result.Err.Error()
		}
		payload["run"] = run
	}
	h.logger.Info("manual run finished",
		logging.String(logging.FieldWorker, name),
		logging.Bool("skipped", result.Skipped),
		logging.Int("processed", result.Processed))
	h.writeJSON(w, http.StatusOK, payload)
}

func writeCORS(w http.ResponseWriter) {
	header := w.Header()
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Scheduler-Secret")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.Error("request failed", logging.Error(err))
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hopper/internal/logging"
	"hopper/internal/stage"
)

// Scheduler drives every registered runner on a shared polling interval and
// relays nudges between them. It also accepts manual triggers from the
// control API.
type Scheduler struct {
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	runners  map[string]*Runner
	triggers map[string]chan struct{}
	order    []string
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewScheduler constructs an empty scheduler.
func NewScheduler(interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		runners:  make(map[string]*Runner),
		triggers: make(map[string]chan struct{}),
	}
}

// Register adds a runner and wires it to receive nudges through this
// scheduler. Must be called before Start.
func (s *Scheduler) Register(runner *Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := runner.Worker()
	if _, exists := s.runners[name]; exists {
		return
	}
	runner.SetDispatcher(s)
	s.runners[name] = runner
	s.triggers[name] = make(chan struct{}, 1)
	s.order = append(s.order, name)
}

// Workers lists registered worker names in registration order.
func (s *Scheduler) Workers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Start launches one polling goroutine per registered runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if len(s.runners) == 0 {
		return errors.New("no workers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.wg.Add(len(s.order))
	for _, name := range s.order {
		go s.runLoop(runCtx, s.runners[name], s.triggers[name])
	}
	s.logger.Info("scheduler started",
		logging.Int("workers", len(s.order)),
		logging.Duration("interval", s.interval))
	return nil
}

// Stop cancels the polling goroutines and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Nudge asks a worker to run soon. Unknown names and full trigger buffers
// are ignored; a nudge is a hint, not a guarantee.
func (s *Scheduler) Nudge(worker string) {
	s.mu.Lock()
	trigger, ok := s.triggers[worker]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// Trigger requests an immediate run of one worker, reporting whether the
// worker is registered.
func (s *Scheduler) Trigger(worker string) bool {
	s.mu.Lock()
	_, ok := s.triggers[worker]
	s.mu.Unlock()
	if ok {
		s.Nudge(worker)
	}
	return ok
}

// RunNow executes one worker synchronously in the caller's goroutine and
// returns its result. The second return is false when the worker is not
// registered or the scheduler is not running. A manual run may overlap a
// scheduled one; store writes are idempotent so the duplicate is harmless.
func (s *Scheduler) RunNow(ctx context.Context, worker string) (RunResult, bool) {
	s.mu.Lock()
	runner, ok := s.runners[worker]
	running := s.running
	s.mu.Unlock()
	if !ok || !running {
		return RunResult{}, false
	}
	return runner.Run(ctx), true
}

// Health gathers stage readiness across every registered runner.
func (s *Scheduler) Health(ctx context.Context) []stage.Health {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.order))
	for _, name := range s.order {
		runners = append(runners, s.runners[name])
	}
	s.mu.Unlock()

	health := make([]stage.Health, 0, len(runners))
	for _, runner := range runners {
		health = append(health, runner.HealthCheck(ctx))
	}
	return health
}

func (s *Scheduler) runLoop(ctx context.Context, runner *Runner, trigger <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-trigger:
		}
		if ctx.Err() != nil {
			return
		}
		runner.Run(ctx)
	}
}

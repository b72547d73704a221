package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"hopper/internal/config"
	"hopper/internal/enrich"
	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/notifications"
	"hopper/internal/orchestrator"
	"hopper/internal/queue"
	"hopper/internal/services/embedding"
	"hopper/internal/services/llm"
	"hopper/internal/stage"
	"hopper/internal/worker"
)

// Daemon coordinates the stage workers and the control API and enforces
// single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *queue.Store
	gate      *flags.StoreGate
	scheduler *worker.Scheduler
	notifier  notifications.Service
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	startedAt time.Time
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// Option adjusts daemon construction, primarily for tests that substitute the
// model providers.
type Option func(*options)

type options struct {
	chat     enrich.ChatClient
	embedder enrich.Embedder
	notifier notifications.Service
}

// WithChatClient overrides the chat-completion client used by the stages.
func WithChatClient(chat enrich.ChatClient) Option {
	return func(o *options) { o.chat = chat }
}

// WithEmbedder overrides the embedding client used by the embedding stage.
func WithEmbedder(embedder enrich.Embedder) Option {
	return func(o *options) { o.embedder = embedder }
}

// WithNotifier overrides the push notification service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) { o.notifier = notifier }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, and logger")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.chat == nil {
		o.chat = llm.NewClient(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		})
	}
	if o.embedder == nil {
		o.embedder = embedding.NewClient(embedding.Config{
			APIKey:         cfg.Embeddings.APIKey,
			BaseURL:        cfg.Embeddings.BaseURL,
			Model:          cfg.Embeddings.Model,
			TimeoutSeconds: cfg.Embeddings.TimeoutSeconds,
		})
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(cfg)
	}

	gate := flags.NewStoreGate(store)
	maxAttempts := cfg.Workers.MaxAttempts
	itemDelay := time.Duration(cfg.Workers.ItemDelayMillis) * time.Millisecond
	interval := time.Duration(cfg.Workers.IntervalSeconds) * time.Second

	handlers := []stage.Handler{
		enrich.NewHookExtraction(store, o.chat, logger, maxAttempts),
		enrich.NewEmbeddingGeneration(store, o.embedder, logger, maxAttempts),
		enrich.NewHookClassification(store, o.chat, logger, maxAttempts),
		enrich.NewTopicClassification(store, o.chat, logger, maxAttempts),
		enrich.NewAudienceClassification(store, o.chat, logger, maxAttempts),
		enrich.NewProfileCompletion(store, o.chat, logger, maxAttempts),
	}
	scheduler := worker.NewScheduler(interval, logger)
	for _, handler := range handlers {
		scheduler.Register(worker.NewRunner(handler, gate, store, logger, itemDelay))
	}

	controlHandler := orchestrator.NewHandler(store, gate, scheduler, logger, orchestrator.Options{
		SchedulerSecret: cfg.Orchestrator.SchedulerSecret,
		LogLimit:        cfg.Orchestrator.LogLimit,
		MaxAttempts:     maxAttempts,
	})
	api, err := newAPIServer(cfg, controlHandler, logger)
	if err != nil {
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "hopperd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		gate:      gate,
		scheduler: scheduler,
		notifier:  o.notifier,
		api:       api,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start seeds the feature flags, launches the scheduler and control API, and
// acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another hopper daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.gate.Seed(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("seed worker flags: %w", err)
	}
	if err := d.scheduler.Start(d.ctx); err != nil {
		d.releaseStart()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.scheduler.Stop()
		d.releaseStart()
		return fmt.Errorf("start control api: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("hopper daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddr()))
	if err := d.notifier.NotifyDaemonStarted(d.ctx, d.APIAddr()); err != nil {
		d.logger.Warn("startup notification failed", logging.Error(err))
	}
	return nil
}

func (d *Daemon) releaseStart() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
	d.ctx = nil
	d.cancel = nil
}

// Stop halts the scheduler and control API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	uptime := time.Since(d.startedAt)
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.scheduler.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("hopper daemon stopped", logging.Duration("uptime", uptime))

	notifyCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.notifier.NotifyDaemonStopped(notifyCtx, uptime); err != nil {
		d.logger.Warn("shutdown notification failed", logging.Error(err))
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether the daemon lifecycle is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddr returns the bound control API address, or the empty string when the
// API is disabled or not yet listening.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Health runs every registered worker's health check.
func (d *Daemon) Health(ctx context.Context) []stage.Health {
	return d.scheduler.Health(ctx)
}

// Trigger requests an immediate run of the named worker.
func (d *Daemon) Trigger(worker string) bool {
	return d.scheduler.Trigger(worker)
}

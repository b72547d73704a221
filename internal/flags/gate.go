package flags

import (
	"context"
	"fmt"
	"strings"

	"hopper/internal/queue"
)

// Worker names, one per enrichment stage. These exact strings are the flag
// names in storage and the identifiers accepted by the control API.
const (
	WorkerExtractHooks      = "worker_extract_hooks_v2"
	WorkerGenerateEmbedding = "worker_generate_embeddings_v2"
	WorkerClassifyHooks     = "worker_classify_hooks_v2"
	WorkerClassifyTopics    = "worker_classify_topics_v2"
	WorkerClassifyAudiences = "worker_classify_audiences_v2"
	WorkerCompleteProfiles  = "worker_complete_profiles_v2"

	// LegacyDisableAll shuts off the pre-v2 synchronous processing path.
	// Bulk toggles write it alongside the worker flags: enable-all sets it
	// (v2 owns processing), disable-all clears it (legacy takes over).
	LegacyDisableAll = "disable_continue_processing"
)

// KnownWorkers lists every gateable worker in pipeline order.
var KnownWorkers = []string{
	WorkerExtractHooks,
	WorkerGenerateEmbedding,
	WorkerClassifyHooks,
	WorkerClassifyTopics,
	WorkerClassifyAudiences,
	WorkerCompleteProfiles,
}

// ErrUnknownWorker reports a flag name outside the known worker set.
type ErrUnknownWorker struct {
	Name      string
	Available []string
}

func (e *ErrUnknownWorker) Error() string {
	return fmt.Sprintf("unknown worker %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

// IsKnownWorker reports whether the name belongs to the known worker set.
func IsKnownWorker(name string) bool {
	for _, known := range KnownWorkers {
		if known == name {
			return true
		}
	}
	return false
}

// Gate answers whether workers may run and lets operators toggle them.
type Gate interface {
	IsEnabled(ctx context.Context, worker string) (bool, error)
	SetEnabled(ctx context.Context, worker string, enabled bool) error
	SetAllEnabled(ctx context.Context, enabled bool) error
	Flags(ctx context.Context) (map[string]bool, error)
	LegacyDisabled(ctx context.Context) (bool, error)
}

// StoreGate persists flags through the pipeline store.
type StoreGate struct {
	store *queue.Store
}

// NewStoreGate returns a gate backed by the given store.
func NewStoreGate(store *queue.Store) *StoreGate {
	return &StoreGate{store: store}
}

// Seed inserts any missing worker flags as disabled, plus the legacy kill
// switch. Existing rows keep their values.
func (g *StoreGate) Seed(ctx context.Context) error {
	names := append([]string{}, KnownWorkers...)
	names = append(names, LegacyDisableAll)
	return g.store.SeedFlags(ctx, names)
}

// IsEnabled reads one worker flag. Unknown names are rejected, missing rows
// read as disabled.
func (g *StoreGate) IsEnabled(ctx context.Context, worker string) (bool, error) {
	if !IsKnownWorker(worker) {
		return false, &ErrUnknownWorker{Name: worker, Available: KnownWorkers}
	}
	return g.store.FlagEnabled(ctx, worker)
}

// SetEnabled writes one worker flag.
func (g *StoreGate) SetEnabled(ctx context.Context, worker string, enabled bool) error {
	if !IsKnownWorker(worker) {
		return &ErrUnknownWorker{Name: worker, Available: KnownWorkers}
	}
	return g.store.SetFlag(ctx, worker, enabled)
}

// SetAllEnabled toggles every known worker at once and writes the same value
// to the legacy kill switch: enabling the v2 workers disables the legacy
// synchronous path, disabling them re-enables it.
func (g *StoreGate) SetAllEnabled(ctx context.Context, enabled bool) error {
	if err := g.store.SetFlags(ctx, KnownWorkers, enabled); err != nil {
		return err
	}
	return g.store.SetFlag(ctx, LegacyDisableAll, enabled)
}

// Flags returns the enabled state of every known worker. Workers without a
// stored row report false.
func (g *StoreGate) Flags(ctx context.Context) (map[string]bool, error) {
	stored, err := g.store.GetFlags(ctx, KnownWorkers)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(KnownWorkers))
	for _, worker := range KnownWorkers {
		result[worker] = stored[worker].Enabled
	}
	return result, nil
}

// LegacyDisabled reads the inverse kill switch for status reporting.
func (g *StoreGate) LegacyDisabled(ctx context.Context) (bool, error) {
	return g.store.FlagEnabled(ctx, LegacyDisableAll)
}

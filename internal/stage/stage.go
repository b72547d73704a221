// Package stage defines the contract between the worker runner and each
// enrichment stage.
package stage

import "context"

// Item is one unit of work selected from the backlog.
type Item struct {
	ID    string
	Label string
}

// Handler describes the contract the worker runner needs from each stage.
//
// Select returns the next batch of eligible items, oldest first, bounded by
// the stage's batch size. Process handles exactly one item: on success the
// stage must have written the item's output and cleared its readiness flag
// in a single store operation; on failure it must have recorded the error
// against the item. FollowUps names the workers to nudge after a run that
// processed at least one item.
type Handler interface {
	Name() string
	Select(ctx context.Context) ([]Item, error)
	Process(ctx context.Context, item Item) error
	HealthCheck(ctx context.Context) Health
	FollowUps() []string
}

// Health summarizes the readiness of an enrichment stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

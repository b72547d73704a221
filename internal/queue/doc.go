// Package queue persists the enrichment pipeline's state in SQLite: posts
// with per-stage readiness flags, creator profiles awaiting completion,
// feature flags, the worker execution log, and the classification taxonomy.
//
// The posts table doubles as the work queue. Each stage dequeues with
// "flag set, output missing, attempts under bound, oldest first, limit N"
// and clears its flag in the same UPDATE that writes its output. Delivery is
// at-least-once; consumers are idempotent, so duplicate processing wastes an
// API call but never corrupts state.
package queue

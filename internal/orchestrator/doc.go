// Package orchestrator exposes the pipeline control surface over HTTP.
//
// A single action-routed endpoint drives everything: status inspection,
// per-worker and bulk flag toggles, execution-log reads, backlog counts,
// and manual run triggers. Responses are JSON and carry permissive CORS
// headers so browser-based scheduler consoles can call it directly.
package orchestrator

// Package notifications delivers daemon events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. Only
// daemon lifecycle and content ingest events go through this channel; worker
// run failures are surfaced through the execution log and the control API,
// never as push notifications.
//
// Extend this package if you need alternative transports; daemon code depends
// only on the simple Service interface.
package notifications

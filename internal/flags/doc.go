// Package flags gates worker execution behind persisted feature flags.
//
// Every flag name must come from the known worker set; anything else is
// rejected before touching storage. Reads fail safe: a missing or unreadable
// flag means the worker stays off.
package flags

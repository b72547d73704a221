// Package logging builds slog loggers for the hopper daemon and CLI.
//
// It provides console and JSON handlers, attribute helpers shared across
// packages, and standardized field names so worker runs can be correlated
// in log output.
package logging

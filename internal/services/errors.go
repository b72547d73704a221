package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstream marks failures where the enrichment provider is unreachable
	// or persistently erroring. A stage error carrying this marker aborts the
	// whole batch; remaining flags stay set for the next scheduled run.
	ErrUpstream = errors.New("upstream unavailable")

	// ErrValidation marks malformed or rejected input, including unknown
	// worker names passed to toggle operations.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration marks missing or unusable configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotFound marks lookups that produced no row.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks per-item failures that are safe to retry on the
	// next invocation without operator intervention.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// AbortsBatch reports whether a stage error should terminate the current
// batch instead of being isolated to one item.
func AbortsBatch(err error) bool {
	return errors.Is(err, ErrUpstream) || errors.Is(err, ErrConfiguration)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Package worker runs enrichment stages on a schedule.
//
// Each stage gets its own runner. A run checks the stage's feature flag
// first: a disabled worker does nothing and leaves no trace in the execution
// log. An enabled run is logged start to finish, processes its batch one
// item at a time, and nudges follow-up workers when it made progress.
package worker

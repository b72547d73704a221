// Package services holds the shared error taxonomy for external
// collaborators (LLM provider, embedding provider) and the helpers worker
// stages use to classify failures.
//
// Subpackages implement the HTTP clients themselves.
package services

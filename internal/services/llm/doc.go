// Package llm wraps the chat-completions API used for hook extraction,
// classification, and style analysis.
//
// Transport and server-side failures are wrapped as upstream errors so
// workers can abort a batch instead of burning retry budget on every item.
// Malformed model output is a validation error scoped to the single item
// that produced it.
package llm

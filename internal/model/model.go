package model

import "context"

// Response is the common completion result for model providers.
type Response struct {
	Content string
	// Fallback is set when the upstream returned no usable content and
	// Content holds the substituted apology string instead.
	Fallback     bool
	InputTokens  int
	OutputTokens int
}

// Completer is the completion service abstraction used by the pipeline.
type Completer interface {
	// Complete requests a free-form completion.
	Complete(ctx context.Context, systemRole, userText string) (Response, error)
	// CompleteJSON requests a JSON-object-shaped completion. Callers parse
	// the content themselves; a malformed object is not an error here.
	CompleteJSON(ctx context.Context, systemRole, userText string) (Response, error)
}

package langfuse

import (
	"context"
	"errors"
)

// ErrPromptNotFound reports that the backend has no prompt under the
// requested identifier.
var ErrPromptNotFound = errors.New("prompt not found")

// Backend is the remote tracing client the adapter submits to. Trace must
// implement create-or-patch-by-id semantics: submitting a spec whose id
// already exists updates only the fields the spec carries.
type Backend interface {
	Trace(ctx context.Context, spec *TraceSpec) (TraceHandle, error)
	GetPrompt(ctx context.Context, id string) (*PromptReference, error)
	// ResolveProjectID returns the backend project this client writes to.
	// Best-effort: callers treat failures as non-fatal.
	ResolveProjectID(ctx context.Context) (string, error)
}

// TraceHandle is one created (or patched) trace, parent to spans and
// generations.
type TraceHandle interface {
	ID() string
	Span(ctx context.Context, spec *SpanSpec) (SpanHandle, error)
	Generation(ctx context.Context, spec *GenerationSpec) (GenerationHandle, error)
}

// SpanHandle is one open child span.
type SpanHandle interface {
	End(ctx context.Context) error
}

// GenerationHandle exposes the resolved trace id of a submitted generation.
type GenerationHandle interface {
	TraceID() string
}

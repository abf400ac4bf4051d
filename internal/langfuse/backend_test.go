package langfuse

import (
	"context"
	"errors"
	"sync"
)

// fakeBackend records submitted specs in order and returns configurable
// failures, standing in for the remote client in pipeline tests.
type fakeBackend struct {
	mu sync.Mutex

	traces      []*TraceSpec
	spans       []*SpanSpec
	generations []*GenerationSpec
	endedSpans  int

	traceErr      error
	spanErr       error
	generationErr error

	prompts    map[string]*PromptReference
	promptErr  error
	projectID  string
	projectErr error
}

func (b *fakeBackend) Trace(ctx context.Context, spec *TraceSpec) (TraceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.traceErr != nil {
		return nil, b.traceErr
	}
	b.traces = append(b.traces, spec)
	return &fakeTrace{backend: b, id: spec.ID}, nil
}

func (b *fakeBackend) GetPrompt(ctx context.Context, id string) (*PromptReference, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.promptErr != nil {
		return nil, b.promptErr
	}
	prompt, ok := b.prompts[id]
	if !ok {
		return nil, ErrPromptNotFound
	}
	return prompt, nil
}

func (b *fakeBackend) ResolveProjectID(ctx context.Context) (string, error) {
	if b.projectErr != nil {
		return "", b.projectErr
	}
	return b.projectID, nil
}

func (b *fakeBackend) lastTrace() *TraceSpec {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.traces) == 0 {
		return nil
	}
	return b.traces[len(b.traces)-1]
}

type fakeTrace struct {
	backend *fakeBackend
	id      string
}

func (t *fakeTrace) ID() string { return t.id }

func (t *fakeTrace) Span(ctx context.Context, spec *SpanSpec) (SpanHandle, error) {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	if t.backend.spanErr != nil {
		return nil, t.backend.spanErr
	}
	t.backend.spans = append(t.backend.spans, spec)
	return &fakeSpan{backend: t.backend}, nil
}

func (t *fakeTrace) Generation(ctx context.Context, spec *GenerationSpec) (GenerationHandle, error) {
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	if t.backend.generationErr != nil {
		return nil, t.backend.generationErr
	}
	t.backend.generations = append(t.backend.generations, spec)
	return &fakeGeneration{traceID: t.id}, nil
}

type fakeSpan struct {
	backend *fakeBackend
}

func (s *fakeSpan) End(ctx context.Context) error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.endedSpans++
	return nil
}

type fakeGeneration struct {
	traceID string
}

func (g *fakeGeneration) TraceID() string { return g.traceID }

var errBackendDown = errors.New("backend unavailable")

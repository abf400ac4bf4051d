package langfuse

import (
	"context"
	"testing"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

func TestEmitGuardrailSpan(t *testing.T) {
	t.Parallel()

	start := time.Now()
	end := start.Add(30 * time.Millisecond)
	rec := &event.CallRecord{
		Logging: &event.LoggingPayload{
			Guardrail: &event.GuardrailRecord{
				Name:              "pii-mask",
				Mode:              "pre_call",
				MaskedEntityCount: 2,
				Request:           map[string]any{"text": "hello"},
				Response:          map[string]any{"text": "h***o"},
				StartTime:         &start,
				EndTime:           &end,
			},
		},
	}

	backend := &fakeBackend{}
	trace, err := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := emitGuardrailSpan(context.Background(), trace, rec); err != nil {
		t.Fatal(err)
	}

	if len(backend.spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(backend.spans))
	}
	span := backend.spans[0]
	if span.Name != "guardrail" {
		t.Errorf("Name = %q", span.Name)
	}
	if span.Metadata["guardrail_name"] != "pii-mask" || span.Metadata["guardrail_masked_entity_count"] != 2 {
		t.Errorf("Metadata = %v", span.Metadata)
	}
	if backend.endedSpans != 1 {
		t.Errorf("endedSpans = %d, guardrail span must be closed", backend.endedSpans)
	}
}

func TestEmitGuardrailSpanAbsent(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	trace, _ := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"})

	if err := emitGuardrailSpan(context.Background(), trace, &event.CallRecord{}); err != nil {
		t.Fatal(err)
	}
	if len(backend.spans) != 0 {
		t.Errorf("spans = %d, want none", len(backend.spans))
	}
}

func TestEmitProviderSpans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		grounding any
		wantNames []string
	}{
		{
			name:      "scalar becomes one span",
			grounding: "citation",
			wantNames: []string{"vertex_ai_grounding_metadata"},
		},
		{
			name: "list of mappings becomes one span per key",
			grounding: []any{map[string]any{
				"web_search_queries": []any{"q1"},
				"citations":          []any{"c1"},
			}},
			wantNames: []string{"citations", "web_search_queries"},
		},
		{
			name:      "list of scalars becomes one span per element",
			grounding: []any{"a", "b"},
			wantNames: []string{"vertex_ai_grounding_metadata", "vertex_ai_grounding_metadata"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{}
			trace, _ := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"})
			clean := map[string]any{
				"hidden_params": map[string]any{"vertex_ai_grounding_metadata": tc.grounding},
			}

			if err := emitProviderSpans(context.Background(), trace, clean); err != nil {
				t.Fatal(err)
			}

			if len(backend.spans) != len(tc.wantNames) {
				t.Fatalf("spans = %d, want %d", len(backend.spans), len(tc.wantNames))
			}
			for i, want := range tc.wantNames {
				if backend.spans[i].Name != want {
					t.Errorf("span[%d].Name = %q, want %q", i, backend.spans[i].Name, want)
				}
			}
		})
	}
}

func TestEmitProviderSpansNoGrounding(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	trace, _ := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"})

	for _, clean := range []map[string]any{
		nil,
		{"hidden_params": map[string]any{}},
		{"hidden_params": map[string]any{"vertex_ai_grounding_metadata": nil}},
	} {
		if err := emitProviderSpans(context.Background(), trace, clean); err != nil {
			t.Fatal(err)
		}
	}
	if len(backend.spans) != 0 {
		t.Errorf("spans = %d, want none", len(backend.spans))
	}
}

func TestEmitProviderSpansPropagatesBackendError(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{}
	trace, _ := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"})
	backend.spanErr = errBackendDown

	clean := map[string]any{
		"hidden_params": map[string]any{"vertex_ai_grounding_metadata": "citation"},
	}
	if err := emitProviderSpans(context.Background(), trace, clean); err == nil {
		t.Fatal("error = nil, want backend failure")
	}
}

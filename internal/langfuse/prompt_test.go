package langfuse

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

func TestResolvePromptReferenceClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		prompt any
		want   *PromptReference
	}{
		{
			name: "explicit chat type",
			prompt: map[string]any{
				"type":    "chat",
				"name":    "support-chat",
				"version": float64(3),
				"prompt":  []any{map[string]any{"role": "system", "content": "be kind"}},
			},
			want: &PromptReference{
				Kind:    PromptKindChat,
				Name:    "support-chat",
				Version: 3,
				Prompt:  []any{map[string]any{"role": "system", "content": "be kind"}},
			},
		},
		{
			name: "explicit text type",
			prompt: map[string]any{
				"type":    "text",
				"name":    "summary",
				"version": 1,
				"prompt":  "Summarize {{doc}}",
				"labels":  []any{"production"},
			},
			want: &PromptReference{
				Kind:    PromptKindText,
				Name:    "summary",
				Version: 1,
				Prompt:  "Summarize {{doc}}",
				Labels:  []string{"production"},
			},
		},
		{
			name: "inferred text from string content",
			prompt: map[string]any{
				"version": 2,
				"prompt":  "hello",
			},
			want: &PromptReference{Kind: PromptKindText, Version: 2, Prompt: "hello"},
		},
		{
			name: "inferred chat from turn list",
			prompt: map[string]any{
				"version": 2,
				"prompt":  []any{map[string]any{"role": "user", "content": "hi"}},
			},
			want: &PromptReference{
				Kind:    PromptKindChat,
				Version: 2,
				Prompt:  []any{map[string]any{"role": "user", "content": "hi"}},
			},
		},
		{
			name:   "malformed mapping drops reference",
			prompt: map[string]any{"version": 2},
			want:   nil,
		},
		{
			name: "mapping with unclassifiable content drops reference",
			prompt: map[string]any{
				"version": 2,
				"prompt":  42,
			},
			want: nil,
		},
		{
			name:   "non-mapping passes through raw",
			prompt: "just a string",
			want:   &PromptReference{Kind: PromptKindRaw, Raw: "just a string"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ev := &event.Normalized{CleanMetadata: map[string]any{"prompt": tc.prompt}}
			got := resolvePromptReference(context.Background(), ev, &fakeBackend{}, slog.Default())

			if tc.want == nil {
				if got != nil {
					t.Fatalf("reference = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("reference = nil")
			}
			if got.Kind != tc.want.Kind || got.Name != tc.want.Name || got.Version != tc.want.Version {
				t.Errorf("reference = %+v, want %+v", got, tc.want)
			}

			// The prompt key must be consumed so generation metadata does
			// not duplicate it.
			if _, ok := ev.CleanMetadata["prompt"]; ok {
				t.Error("prompt key still present in clean metadata")
			}
		})
	}
}

func TestResolvePromptReferenceNoSource(t *testing.T) {
	t.Parallel()

	ev := &event.Normalized{CleanMetadata: map[string]any{}}
	if got := resolvePromptReference(context.Background(), ev, &fakeBackend{}, slog.Default()); got != nil {
		t.Errorf("reference = %+v, want nil", got)
	}
}

func TestResolvePromptReferenceManagedFetch(t *testing.T) {
	t.Parallel()

	managed := &PromptReference{Kind: PromptKindText, Name: "managed", Version: 4, Prompt: "hi"}
	backend := &fakeBackend{prompts: map[string]*PromptReference{"prompt-1": managed}}
	ev := &event.Normalized{
		CleanMetadata:    map[string]any{},
		PromptManagement: &event.PromptManagement{PromptIntegration: "langfuse", PromptID: "prompt-1"},
	}

	got := resolvePromptReference(context.Background(), ev, backend, slog.Default())
	if got != managed {
		t.Errorf("reference = %+v, want fetched prompt", got)
	}
}

func TestResolvePromptReferenceManagedFetchWinsOverRawValue(t *testing.T) {
	t.Parallel()

	managed := &PromptReference{Kind: PromptKindText, Name: "managed", Version: 4, Prompt: "hi"}
	backend := &fakeBackend{prompts: map[string]*PromptReference{"prompt-1": managed}}
	ev := &event.Normalized{
		CleanMetadata:    map[string]any{"prompt": "just-a-string"},
		PromptManagement: &event.PromptManagement{PromptIntegration: "langfuse", PromptID: "prompt-1"},
	}

	got := resolvePromptReference(context.Background(), ev, backend, slog.Default())
	if got != managed {
		t.Errorf("reference = %+v, want fetched prompt over raw value", got)
	}
	if _, ok := ev.CleanMetadata["prompt"]; ok {
		t.Error("prompt key still present in clean metadata")
	}
}

func TestResolvePromptReferenceMappingWinsOverManagedFetch(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{prompts: map[string]*PromptReference{
		"prompt-1": {Kind: PromptKindText, Name: "managed"},
	}}
	ev := &event.Normalized{
		CleanMetadata: map[string]any{"prompt": map[string]any{
			"type":    "text",
			"name":    "inline",
			"version": 1,
			"prompt":  "hello",
		}},
		PromptManagement: &event.PromptManagement{PromptIntegration: "langfuse", PromptID: "prompt-1"},
	}

	got := resolvePromptReference(context.Background(), ev, backend, slog.Default())
	if got == nil || got.Name != "inline" {
		t.Errorf("reference = %+v, want inline mapping classification", got)
	}
}

func TestResolvePromptReferenceManagedFetchFailure(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{promptErr: errBackendDown}
	ev := &event.Normalized{
		CleanMetadata:    map[string]any{},
		PromptManagement: &event.PromptManagement{PromptIntegration: "langfuse", PromptID: "prompt-1"},
	}

	if got := resolvePromptReference(context.Background(), ev, backend, slog.Default()); got != nil {
		t.Errorf("reference = %+v, want nil on fetch failure", got)
	}
}

func TestResolvePromptReferenceOtherIntegrationIgnored(t *testing.T) {
	t.Parallel()

	ev := &event.Normalized{
		CleanMetadata:    map[string]any{},
		PromptManagement: &event.PromptManagement{PromptIntegration: "other", PromptID: "prompt-1"},
	}

	if got := resolvePromptReference(context.Background(), ev, &fakeBackend{}, slog.Default()); got != nil {
		t.Errorf("reference = %+v, want nil for foreign integration", got)
	}
}

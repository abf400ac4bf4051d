package langfuse

import (
	"context"
	"log/slog"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

// resolvePromptReference classifies the metadata prompt value into a typed
// reference, or fetches a managed prompt from the backend when the call
// record points at one. Malformed shapes and fetch failures are logged and
// degrade to no reference; they never fail the logging call.
//
// The prompt key is consumed from the event's clean metadata so it does not
// also appear inside generation metadata.
func resolvePromptReference(ctx context.Context, ev *event.Normalized, backend Backend, logger *slog.Logger) *PromptReference {
	raw, present := ev.CleanMetadata["prompt"]
	if present {
		delete(ev.CleanMetadata, "prompt")
	}

	management := ev.PromptManagement

	// Structured mappings classify directly; a managed reference takes
	// precedence over an unclassified raw value.
	switch {
	case raw == nil && management == nil:
		return nil

	case isMapping(raw):
		ref := classifyPrompt(raw.(map[string]any))
		if ref == nil {
			logger.Error("invalid prompt format, no prompt reference attached")
		}
		return ref

	case management != nil && management.PromptIntegration == "langfuse" && management.PromptID != "":
		fetched, err := backend.GetPrompt(ctx, management.PromptID)
		if err != nil {
			logger.Debug("prompt fetch failed", "prompt_id", management.PromptID, "error", err)
			return nil
		}
		return fetched

	case raw != nil:
		// Unclassified non-mapping values pass through unmodified.
		return &PromptReference{Kind: PromptKindRaw, Raw: raw}

	default:
		return nil
	}
}

func isMapping(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

// classifyPrompt parses a structured prompt mapping. Accepted shapes: an
// explicit type discriminator ("chat" or "text"), or a version+prompt pair
// whose prompt content decides between text (string) and chat (turn list).
// Returns nil for malformed shapes.
func classifyPrompt(shaped map[string]any) *PromptReference {
	switch event.MetadataString(shaped, "type") {
	case "chat":
		return promptFromFields(shaped, PromptKindChat)
	case "text":
		return promptFromFields(shaped, PromptKindText)
	}

	_, hasVersion := shaped["version"]
	content, hasPrompt := shaped["prompt"]
	if !hasVersion || !hasPrompt {
		return nil
	}

	switch content.(type) {
	case string:
		return promptFromFields(shaped, PromptKindText)
	case []any:
		return promptFromFields(shaped, PromptKindChat)
	default:
		return nil
	}
}

func promptFromFields(shaped map[string]any, kind PromptKind) *PromptReference {
	return &PromptReference{
		Kind:    kind,
		Name:    event.MetadataString(shaped, "name"),
		Version: intField(shaped, "version"),
		Prompt:  shaped["prompt"],
		Config:  shaped["config"],
		Labels:  stringListField(shaped, "labels"),
		Tags:    stringListField(shaped, "tags"),
	}
}

func intField(m map[string]any, key string) int {
	switch typed := m[key].(type) {
	case int:
		return typed
	case float64:
		return int(typed)
	default:
		return 0
	}
}

func stringListField(m map[string]any, key string) []string {
	switch typed := m[key].(type) {
	case []string:
		return typed
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

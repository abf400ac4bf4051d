package langfuse

import (
	"context"
	"sort"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

const groundingMetadataKey = "vertex_ai_grounding_metadata"

// emitGuardrailSpan attaches one child span describing the guardrail run,
// when the call record carries one.
func emitGuardrailSpan(ctx context.Context, trace TraceHandle, rec *event.CallRecord) error {
	if rec.Logging == nil || rec.Logging.Guardrail == nil {
		return nil
	}
	guardrail := rec.Logging.Guardrail

	span, err := trace.Span(ctx, &SpanSpec{
		Name:   "guardrail",
		Input:  guardrail.Request,
		Output: guardrail.Response,
		Metadata: map[string]any{
			"guardrail_name":                guardrail.Name,
			"guardrail_mode":                guardrail.Mode,
			"guardrail_masked_entity_count": guardrail.MaskedEntityCount,
		},
		StartTime: guardrail.StartTime,
		EndTime:   guardrail.EndTime,
	})
	if err != nil {
		return err
	}
	return span.End(ctx)
}

// emitProviderSpans surfaces provider side-channel data as child spans.
// Currently covers vertex grounding metadata: a list of mappings becomes one
// span per key/value pair, a list of other values one span per element, and
// a scalar or single mapping one span total.
func emitProviderSpans(ctx context.Context, trace TraceHandle, cleanMetadata map[string]any) error {
	hidden, ok := cleanMetadata["hidden_params"].(map[string]any)
	if !ok {
		return nil
	}
	grounding, ok := hidden[groundingMetadataKey]
	if !ok || grounding == nil {
		return nil
	}

	elements, isList := grounding.([]any)
	if !isList {
		_, err := trace.Span(ctx, &SpanSpec{Name: groundingMetadataKey, Input: grounding})
		return err
	}

	for _, element := range elements {
		mapping, isMapping := element.(map[string]any)
		if !isMapping {
			if _, err := trace.Span(ctx, &SpanSpec{Name: groundingMetadataKey, Input: element}); err != nil {
				return err
			}
			continue
		}
		keys := make([]string, 0, len(mapping))
		for key := range mapping {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if _, err := trace.Span(ctx, &SpanSpec{Name: key, Input: mapping[key]}); err != nil {
				return err
			}
		}
	}
	return nil
}

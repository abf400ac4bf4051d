package langfuse

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

// BuildGeneration assembles the generation-level record attached to a trace.
// Capability flags gate the optional cost, prompt-reference and
// completion-start-time fields. Prompt resolution may call the backend;
// failures there are logged and degrade to an omitted reference.
func BuildGeneration(
	ctx context.Context,
	ev *event.Normalized,
	rec *event.CallRecord,
	resp *event.Response,
	caps Capabilities,
	backend Backend,
	startTime, endTime time.Time,
	logger *slog.Logger,
) *GenerationSpec {
	if logger == nil {
		logger = slog.Default()
	}

	name := ev.GenerationName
	if name == "" {
		// Proxy deployments get the key alias as the generation name so the
		// backend groups invocations per consumer.
		name = "litellm-" + callTypeOrDefault(rec)
		if alias := event.MetadataString(ev.CleanMetadata, "user_api_key_alias"); alias != "" {
			name = "litellm:" + alias
		}
	}

	id := ev.GenerationID
	if id == "" {
		if responseID := resp.ID(); responseID != "" {
			id = deterministicGenerationID(startTime, responseID)
		}
	}

	var usage *Usage
	if tokenUsage := resp.Usage(); tokenUsage != nil {
		usage = &Usage{
			PromptTokens:     tokenUsage.PromptTokens,
			CompletionTokens: tokenUsage.CompletionTokens,
		}
		if caps.Cost && rec.ResponseCost != nil {
			cost := *rec.ResponseCost
			usage.TotalCost = &cost
		}
	}

	var prompt *PromptReference
	if caps.Prompt {
		prompt = resolvePromptReference(ctx, ev, backend, logger)
	}

	modelParams := ev.ModelParameters
	if fingerprint := resp.SystemFingerprint(); fingerprint != "" {
		if modelParams == nil {
			modelParams = make(map[string]any, 1)
		}
		modelParams["system_fingerprint"] = fingerprint
	}

	start := startTime
	end := endTime
	spec := &GenerationSpec{
		Name:                name,
		ID:                  id,
		StartTime:           &start,
		EndTime:             &end,
		Model:               rec.Model,
		ModelParameters:     modelParams,
		Input:               maskValue(ev.Input, ev.MaskInput),
		Output:              maskValue(ev.Output, ev.MaskOutput),
		Usage:               usage,
		Metadata:            requesterMetadata(ev.CleanMetadata),
		Level:               string(ev.Level),
		Version:             ev.Version,
		Prompt:              prompt,
		ParentObservationID: ev.ParentObservationID,
	}

	if ev.Level == event.LevelError {
		if message, ok := ev.Output.(string); ok {
			spec.StatusMessage = message
		}
	}

	if caps.CompletionStartTime && rec.CompletionStartTime != nil {
		completionStart := *rec.CompletionStartTime
		spec.CompletionStartTime = &completionStart
	}

	return spec
}

// deterministicGenerationID derives a stable identifier from the call start
// time and the response identity, so retried submissions of the same call
// land on the same generation.
func deterministicGenerationID(startTime time.Time, responseID string) string {
	return fmt.Sprintf("time-%s-%06d_%s", startTime.UTC().Format("15-04-05"), startTime.Nanosecond()/1000, responseID)
}

// requesterMetadata reshapes generation metadata so keys the caller already
// grouped under requester_metadata are not duplicated at the top level.
func requesterMetadata(clean map[string]any) map[string]any {
	requester, _ := clean["requester_metadata"].(map[string]any)
	out := make(map[string]any, len(clean)+1)
	for key, value := range clean {
		if key == "requester_metadata" {
			continue
		}
		if _, grouped := requester[key]; grouped {
			continue
		}
		out[key] = value
	}
	if requester == nil {
		requester = map[string]any{}
	}
	out["requester_metadata"] = requester
	return out
}

func callTypeOrDefault(rec *event.CallRecord) string {
	if rec.CallType == "" {
		return "completion"
	}
	return rec.CallType
}

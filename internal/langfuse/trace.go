package langfuse

import (
	"strings"

	"github.com/ongoingai/langfuse-bridge/internal/event"
)

// BuildTrace assembles the trace-level record for one normalized event.
//
// When the caller named an existing trace id, the result is a patch: it
// carries only the fields listed in the event's update keys, and remaining
// trace_*-prefixed metadata keys are stripped from the event's clean
// metadata without being submitted (they described the original trace, not
// this patch). A patch never carries a name: overwriting a stored trace
// name is disallowed.
func BuildTrace(ev *event.Normalized, caps Capabilities) *TraceSpec {
	if ev.ExistingTraceID != "" {
		return buildTracePatch(ev)
	}

	spec := &TraceSpec{
		ID:        ev.TraceID,
		Name:      ev.TraceName,
		SessionID: ev.SessionID,
		UserID:    ev.EndUserID,
		Version:   ev.TraceVersion,
		Input:     maskValue(ev.Input, ev.MaskInput),
		Extra:     ev.TraceFields,
	}

	if ev.Level == event.LevelError {
		spec.StatusMessage = ev.Output
	} else {
		spec.Output = maskValue(ev.Output, ev.MaskOutput)
	}

	if caps.Tags {
		spec.Tags = ev.Tags
		if spec.Tags == nil {
			spec.Tags = []string{}
		}
	}

	applyDebugMetadata(spec, ev)
	return spec
}

func buildTracePatch(ev *event.Normalized) *TraceSpec {
	spec := &TraceSpec{
		ID:    ev.ExistingTraceID,
		Extra: make(map[string]any),
	}

	seen := map[string]struct{}{"id": {}}
	for _, metaKey := range ev.UpdateTraceKeys {
		key := strings.TrimPrefix(metaKey, "trace_")
		if _, done := seen[key]; done {
			continue
		}
		seen[key] = struct{}{}

		switch key {
		case "name":
			// Names are only ever set on new traces.
		case "input":
			spec.Input = maskValue(ev.Input, ev.MaskInput)
		case "output":
			spec.Output = maskValue(ev.Output, ev.MaskOutput)
		default:
			value, ok := ev.CleanMetadata[metaKey]
			if !ok || value == nil {
				continue
			}
			delete(ev.CleanMetadata, metaKey)
			spec.Extra[key] = value
		}
	}

	// The untouched trace_* keys belonged to the original trace; drop them
	// so they do not leak into generation metadata.
	for key := range ev.CleanMetadata {
		if strings.HasPrefix(key, "trace_") {
			delete(ev.CleanMetadata, key)
		}
	}

	applyDebugMetadata(spec, ev)
	return spec
}

// applyDebugMetadata embeds the original pre-cleaning metadata under a
// diagnostic key when the caller asked for it.
func applyDebugMetadata(spec *TraceSpec, ev *event.Normalized) {
	if !ev.Debug {
		return
	}
	if existing, ok := spec.Extra["metadata"].(map[string]any); ok {
		existing["metadata_passed_to_litellm"] = ev.RawMetadata
		return
	}
	spec.Metadata = map[string]any{"metadata_passed_to_litellm": ev.RawMetadata}
}

func maskValue(value any, masked bool) any {
	if masked {
		return redactedMarker
	}
	return value
}

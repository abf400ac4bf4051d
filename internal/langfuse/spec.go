package langfuse

import (
	"time"
)

// redactedMarker replaces input/output content when the caller requested
// masking. The literal is part of the wire contract consumers filter on.
const redactedMarker = "redacted-by-litellm"

// TraceSpec is the field set submitted for one trace. Zero-valued fields are
// omitted from the submission body, which is what makes create-or-patch by
// id work: a patch carries only the fields being updated.
type TraceSpec struct {
	ID            string
	Name          string
	SessionID     any
	UserID        string
	Input         any
	Output        any
	StatusMessage any
	Version       any
	Tags          []string
	Metadata      map[string]any
	// Extra holds trace fields lifted from trace_*-prefixed metadata keys.
	// They are merged into the submission body last and may override the
	// named fields above.
	Extra map[string]any
}

// Body renders the submission body. Extra fields win over named ones.
func (s *TraceSpec) Body() map[string]any {
	body := make(map[string]any, 8+len(s.Extra))
	if s.ID != "" {
		body["id"] = s.ID
	}
	if s.Name != "" {
		body["name"] = s.Name
	}
	if s.SessionID != nil {
		body["sessionId"] = s.SessionID
	}
	if s.UserID != "" {
		body["userId"] = s.UserID
	}
	if s.Input != nil {
		body["input"] = s.Input
	}
	if s.Output != nil {
		body["output"] = s.Output
	}
	if s.StatusMessage != nil {
		body["statusMessage"] = s.StatusMessage
	}
	if s.Version != nil {
		body["version"] = s.Version
	}
	if s.Tags != nil {
		body["tags"] = s.Tags
	}
	if s.Metadata != nil {
		body["metadata"] = s.Metadata
	}
	for key, value := range s.Extra {
		body[key] = value
	}
	return body
}

// Usage is the token/cost accounting attached to a generation. Nil pointers
// mean the counter was not reported or is gated off by capabilities.
type Usage struct {
	PromptTokens     *int
	CompletionTokens *int
	TotalCost        *float64
}

// GenerationSpec is the field set submitted for one model invocation.
type GenerationSpec struct {
	Name                string
	ID                  string
	StartTime           *time.Time
	EndTime             *time.Time
	CompletionStartTime *time.Time
	Model               string
	ModelParameters     map[string]any
	Input               any
	Output              any
	StatusMessage       any
	Usage               *Usage
	Metadata            map[string]any
	Level               string
	Version             any
	Prompt              *PromptReference
	ParentObservationID string
}

// Body renders the submission body for a generation under the given trace.
func (s *GenerationSpec) Body(traceID string) map[string]any {
	body := make(map[string]any, 16)
	if s.ID != "" {
		body["id"] = s.ID
	}
	if traceID != "" {
		body["traceId"] = traceID
	}
	if s.Name != "" {
		body["name"] = s.Name
	}
	if s.StartTime != nil {
		body["startTime"] = s.StartTime.UTC()
	}
	if s.EndTime != nil {
		body["endTime"] = s.EndTime.UTC()
	}
	if s.CompletionStartTime != nil {
		body["completionStartTime"] = s.CompletionStartTime.UTC()
	}
	if s.Model != "" {
		body["model"] = s.Model
	}
	if s.ModelParameters != nil {
		body["modelParameters"] = s.ModelParameters
	}
	if s.Input != nil {
		body["input"] = s.Input
	}
	if s.Output != nil {
		body["output"] = s.Output
	}
	if s.StatusMessage != nil {
		body["statusMessage"] = s.StatusMessage
	}
	if s.Usage != nil {
		usage := make(map[string]any, 3)
		if s.Usage.PromptTokens != nil {
			usage["promptTokens"] = *s.Usage.PromptTokens
		}
		if s.Usage.CompletionTokens != nil {
			usage["completionTokens"] = *s.Usage.CompletionTokens
		}
		if s.Usage.TotalCost != nil {
			usage["totalCost"] = *s.Usage.TotalCost
		}
		if len(usage) > 0 {
			body["usage"] = usage
		}
	}
	if s.Metadata != nil {
		body["metadata"] = s.Metadata
	}
	if s.Level != "" {
		body["level"] = s.Level
	}
	if s.Version != nil {
		body["version"] = s.Version
	}
	if s.Prompt != nil {
		if s.Prompt.Kind == PromptKindRaw {
			body["prompt"] = s.Prompt.Raw
		} else if s.Prompt.Name != "" {
			body["promptName"] = s.Prompt.Name
			body["promptVersion"] = s.Prompt.Version
		}
	}
	if s.ParentObservationID != "" {
		body["parentObservationId"] = s.ParentObservationID
	}
	return body
}

// SpanSpec is the field set for one auxiliary child span of a trace.
type SpanSpec struct {
	Name      string
	Input     any
	Output    any
	Metadata  map[string]any
	StartTime *time.Time
	EndTime   *time.Time
}

// Body renders the submission body for a span under the given trace.
func (s *SpanSpec) Body(id, traceID string) map[string]any {
	body := make(map[string]any, 8)
	body["id"] = id
	if traceID != "" {
		body["traceId"] = traceID
	}
	if s.Name != "" {
		body["name"] = s.Name
	}
	if s.Input != nil {
		body["input"] = s.Input
	}
	if s.Output != nil {
		body["output"] = s.Output
	}
	if s.Metadata != nil {
		body["metadata"] = s.Metadata
	}
	if s.StartTime != nil {
		body["startTime"] = s.StartTime.UTC()
	}
	if s.EndTime != nil {
		body["endTime"] = s.EndTime.UTC()
	}
	return body
}

// PromptKind discriminates the shapes a prompt reference can take after the
// classification step.
type PromptKind string

const (
	PromptKindChat PromptKind = "chat"
	PromptKindText PromptKind = "text"
	// PromptKindRaw passes an unclassified metadata prompt value through
	// unmodified.
	PromptKindRaw PromptKind = "raw"
)

// PromptReference links a generation to a managed prompt, either parsed from
// caller metadata or fetched from the backend.
type PromptReference struct {
	Kind    PromptKind
	Name    string
	Version int
	// Prompt is the prompt content: a string for text prompts, an ordered
	// list of role/content turns for chat prompts.
	Prompt any
	Config any
	Labels []string
	Tags   []string
	// Raw carries the pass-through value for PromptKindRaw.
	Raw any
}

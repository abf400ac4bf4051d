package event

import "time"

// Severity level of one logged call.
type Level string

const (
	LevelDefault Level = "DEFAULT"
	LevelError   Level = "ERROR"
)

// CallRecord carries the raw parameters of one completed (or failed) LLM
// call. It is immutable for the duration of one logging invocation.
type CallRecord struct {
	CallID              string
	CallType            string
	Model               string
	Messages            []map[string]any
	RawInput            any
	CacheHit            *bool
	ResponseCost        *float64
	CompletionStartTime *time.Time
	OptionalParams      map[string]any
	RequestParams       RequestParams
	Logging             *LoggingPayload
	VertexLocation      string
	AWSRegionName       string
}

// RequestParams holds the request-scoped parameters nested inside a call
// record: caller metadata, the upstream base URL, and the original proxy
// request when the call entered through a gateway.
type RequestParams struct {
	Metadata     map[string]any
	APIBase      string
	ProxyRequest *ProxyRequest
}

// ProxyRequest describes the inbound HTTP request that triggered the call.
type ProxyRequest struct {
	Method  string
	URL     string
	Headers map[string]string
}

// LoggingPayload is the canonical logging object assembled by the calling
// framework: request tags, canonical metadata, provider hidden params and
// guardrail execution info.
type LoggingPayload struct {
	RequestTags  []string
	Metadata     map[string]any
	HiddenParams map[string]any
	Guardrail    *GuardrailRecord
}

// GuardrailRecord captures one guardrail execution attached to a call.
type GuardrailRecord struct {
	Name              string
	Mode              any
	MaskedEntityCount any
	Request           any
	Response          any
	StartTime         *time.Time
	EndTime           *time.Time
}

// PromptManagement references a managed prompt used for this call.
type PromptManagement struct {
	PromptID          string
	PromptIntegration string
}

package event

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Call types with extraction rules keyed on the call type rather than the
// response shape.
const (
	CallTypeRealtime    = "_arealtime"
	CallTypePassThrough = "pass_through_endpoint"
)

// Metadata keys never forwarded to the backend.
var droppedMetadataKeys = map[string]struct{}{
	"headers":         {},
	"endpoint":        {},
	"caching_groups":  {},
	"previous_models": {},
}

// Normalized is the per-call value derived once from a CallRecord; immutable
// after Normalize returns.
type Normalized struct {
	Input  any
	Output any

	CleanMetadata map[string]any
	// RawMetadata is the caller metadata after header merge but before
	// cleaning; used only for debug-mode embedding.
	RawMetadata map[string]any
	// TraceFields holds trace_*-prefixed metadata lifted onto a new trace,
	// prefix stripped. Empty when patching an existing trace.
	TraceFields map[string]any

	ModelParameters map[string]any
	Tags            []string

	SessionID       any
	TraceName       string
	TraceID         string
	ExistingTraceID string
	UpdateTraceKeys []string
	Version         any
	TraceVersion    any
	GenerationName  string
	GenerationID    string

	Debug      bool
	MaskInput  bool
	MaskOutput bool

	EndUserID           string
	ParentObservationID string
	PromptManagement    *PromptManagement

	Level         Level
	StatusMessage string
}

// Normalizer derives Normalized events from raw call records. The zero value
// is usable; Redact and CacheKeyFn are optional hooks.
type Normalizer struct {
	// DefaultTagKeys lists metadata keys promoted to "key:value" tags, plus
	// the special keys cache_hit, cache_key and proxy_base_url.
	DefaultTagKeys []string
	ProxyBaseURL   string
	// Redact masks secret-bearing fields in clean metadata. Must be pure and
	// must not drop unknown keys.
	Redact func(map[string]any) map[string]any
	// CacheKeyFn computes a fallback cache key when the canonical
	// hidden-params key is absent. May be nil; the cache_key tag then reads
	// "cache_key:None".
	CacheKeyFn func(*CallRecord) any
	// TagsSupported mirrors the backend's tag capability. Cache-hit state is
	// surfaced in clean metadata only when the backend also carries tags.
	TagsSupported bool
	Logger        *slog.Logger
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

// Normalize derives the per-call normalized event: input/output extraction,
// metadata cleaning, control-field routing and tag derivation.
func (n *Normalizer) Normalize(rec *CallRecord, resp *Response, level Level, statusMessage string) *Normalized {
	logger := n.logger()

	modelParams := make(map[string]any, len(rec.OptionalParams))
	for key, value := range rec.OptionalParams {
		modelParams[key] = value
	}

	prompt := map[string]any{"messages": rec.Messages}
	if functions, ok := modelParams["functions"]; ok {
		prompt["functions"] = functions
		delete(modelParams, "functions")
	}
	if tools, ok := modelParams["tools"]; ok {
		prompt["tools"] = tools
		delete(modelParams, "tools")
	}

	// The backend accepts only primitives as model parameters.
	for key, value := range modelParams {
		if isPrimitive(value) {
			continue
		}
		if s, ok := stringify(value); ok {
			modelParams[key] = s
		}
	}

	input, output := extractInputOutput(rec, resp, prompt, level, statusMessage)

	metadata := mergeHeaderMetadata(rec, logger)

	var tags []string
	if rec.Logging != nil && len(rec.Logging.RequestTags) > 0 {
		tags = append(tags, rec.Logging.RequestTags...)
	}

	clean := make(map[string]any, len(metadata))
	var promptManagement *PromptManagement
	if rec.Logging != nil {
		if raw, ok := rec.Logging.Metadata["prompt_management_metadata"]; ok && raw != nil {
			promptManagement = parsePromptManagement(raw)
			clean["prompt_management_metadata"] = raw
		}
	}

	for _, key := range sortedKeys(metadata) {
		value := metadata[key]
		if n.isDefaultTagKey(key) {
			tags = append(tags, key+":"+formatTagValue(value))
		}
		if _, dropped := droppedMetadataKeys[key]; dropped {
			continue
		}
		clean[key] = value
	}

	tags = n.appendDefaultTags(tags, rec, metadata)

	ev := &Normalized{
		Input:            input,
		Output:           output,
		Tags:             tags,
		RawMetadata:      metadata,
		ModelParameters:  modelParams,
		PromptManagement: promptManagement,
		Level:            level,
		StatusMessage:    statusMessage,
	}

	ev.SessionID = takeValue(clean, "session_id")
	ev.TraceName = takeString(clean, "trace_name")
	ev.TraceID = takeString(clean, "trace_id")
	if ev.TraceID == "" {
		ev.TraceID = rec.CallID
	}
	if ev.TraceID == "" {
		ev.TraceID = uuid.NewString()
	}
	ev.ExistingTraceID = takeString(clean, "existing_trace_id")
	ev.UpdateTraceKeys = takeStringList(clean, "update_trace_keys")
	ev.Debug = takeBool(clean, "debug_langfuse")
	ev.MaskInput = takeBool(clean, "mask_input")
	ev.MaskOutput = takeBool(clean, "mask_output")
	ev.GenerationName = takeString(clean, "generation_name")
	ev.GenerationID = takeString(clean, "generation_id")
	ev.Version = takeValue(clean, "version")
	ev.TraceVersion = takeValue(clean, "trace_version")
	if ev.TraceVersion == nil {
		ev.TraceVersion = ev.Version
	}

	if n.Redact != nil {
		clean = n.Redact(clean)
	}

	if ev.TraceName == "" && ev.ExistingTraceID == "" {
		// Never derive a name when appending to an existing trace: it would
		// overwrite the stored one.
		ev.TraceName = "litellm-" + callTypeOrDefault(rec)
	}

	if ev.ExistingTraceID == "" {
		ev.TraceFields = make(map[string]any)
		for _, key := range sortedKeys(clean) {
			if !strings.HasPrefix(key, "trace_") {
				continue
			}
			ev.TraceFields[strings.TrimPrefix(key, "trace_")] = clean[key]
			delete(clean, key)
		}
	}

	if rec.ResponseCost != nil {
		clean["litellm_response_cost"] = *rec.ResponseCost
	}
	if rec.Logging != nil && rec.Logging.HiddenParams != nil {
		clean["hidden_params"] = rec.Logging.HiddenParams
	}
	if rec.RequestParams.APIBase != "" {
		clean["api_base"] = rec.RequestParams.APIBase
	}
	if rec.VertexLocation != "" {
		clean["vertex_location"] = rec.VertexLocation
	}
	if rec.AWSRegionName != "" {
		clean["aws_region_name"] = rec.AWSRegionName
	}
	if n.TagsSupported {
		clean["cache_hit"] = rec.CacheHit != nil && *rec.CacheHit
	}

	ev.CleanMetadata = clean
	if rec.Logging != nil {
		ev.EndUserID = MetadataString(rec.Logging.Metadata, "user_api_key_end_user_id")
	}
	ev.ParentObservationID = MetadataString(metadata, "parent_observation_id")

	return ev
}

// extractInputOutput applies the extraction table; rules are checked in
// order and the first match wins.
func extractInputOutput(rec *CallRecord, resp *Response, prompt map[string]any, level Level, statusMessage string) (any, any) {
	switch {
	case level == LevelError && statusMessage != "":
		return prompt, statusMessage

	case rec.CallType == "embedding" || resp.Kind() == KindEmbedding:
		if resp.Kind() == KindNone {
			return nil, nil
		}
		return prompt, nil

	case resp.Kind() == KindChat:
		return prompt, chatOutput(resp)

	case resp.Kind() == KindSpeech:
		return prompt, "speech-output"

	case resp.Kind() == KindText:
		return prompt, textOutput(resp)

	case resp.Kind() == KindImage:
		return prompt, resp.image.Data

	case resp.Kind() == KindTranscription:
		return prompt, resp.transcription.Text

	case resp.Kind() == KindRerank:
		return prompt, resp.rerank.Results

	case rec.CallType == CallTypeRealtime && resp.Kind() == KindRealtime:
		return rec.RawInput, resp.realtime

	case rec.CallType == CallTypePassThrough && resp.Kind() == KindPassThrough:
		output, ok := resp.passThrough["response"]
		if !ok {
			output = ""
		}
		return prompt, output

	default:
		return nil, nil
	}
}

// chatOutput serializes the first choice's message as a structured value;
// nil when the response has no choices.
func chatOutput(resp *Response) any {
	if len(resp.chat.Choices) == 0 {
		return nil
	}
	message := resp.chat.Choices[0].Message
	out := map[string]any{
		"role":    message.Role,
		"content": message.Content,
	}
	if message.FunctionCall != nil {
		out["function_call"] = message.FunctionCall
	}
	if len(message.ToolCalls) > 0 {
		out["tool_calls"] = message.ToolCalls
	}
	return out
}

func textOutput(resp *Response) any {
	if len(resp.text.Choices) == 0 {
		return nil
	}
	return resp.text.Choices[0].Text
}

// mergeHeaderMetadata copies caller metadata and injects request headers
// prefixed langfuse_, prefix stripped. An existing metadata key is logged
// and still overwritten.
func mergeHeaderMetadata(rec *CallRecord, logger *slog.Logger) map[string]any {
	metadata := make(map[string]any, len(rec.RequestParams.Metadata))
	for key, value := range rec.RequestParams.Metadata {
		metadata[key] = value
	}

	proxyRequest := rec.RequestParams.ProxyRequest
	if proxyRequest == nil {
		return metadata
	}
	headerKeys := make([]string, 0, len(proxyRequest.Headers))
	for key := range proxyRequest.Headers {
		headerKeys = append(headerKeys, key)
	}
	sort.Strings(headerKeys)
	for _, key := range headerKeys {
		if !strings.HasPrefix(key, "langfuse_") {
			continue
		}
		stripped := strings.TrimPrefix(key, "langfuse_")
		if _, exists := metadata[stripped]; exists {
			logger.Warn("overwriting metadata key from request header", "key", stripped)
		}
		metadata[stripped] = proxyRequest.Headers[key]
	}
	return metadata
}

func (n *Normalizer) isDefaultTagKey(key string) bool {
	for _, candidate := range n.DefaultTagKeys {
		if candidate == key {
			return true
		}
	}
	return false
}

// appendDefaultTags evaluates the special cache_hit, cache_key and
// proxy_base_url tags when configured.
func (n *Normalizer) appendDefaultTags(tags []string, rec *CallRecord, metadata map[string]any) []string {
	if len(n.DefaultTagKeys) == 0 {
		return tags
	}
	if n.isDefaultTagKey("cache_hit") {
		cacheHit := rec.CacheHit != nil && *rec.CacheHit
		tags = append(tags, "cache_hit:"+formatTagValue(cacheHit))
	}
	if n.isDefaultTagKey("cache_key") {
		var cacheKey any
		if hidden, ok := metadata["hidden_params"].(map[string]any); ok {
			cacheKey = hidden["cache_key"]
		}
		if cacheKey == nil && rec.Logging != nil && rec.Logging.HiddenParams != nil {
			cacheKey = rec.Logging.HiddenParams["cache_key"]
		}
		if cacheKey == nil && n.CacheKeyFn != nil {
			cacheKey = n.CacheKeyFn(rec)
		}
		tags = append(tags, "cache_key:"+formatTagValue(cacheKey))
	}
	if n.isDefaultTagKey("proxy_base_url") && n.ProxyBaseURL != "" {
		tags = append(tags, "proxy_base_url:"+n.ProxyBaseURL)
	}
	return tags
}

func parsePromptManagement(raw any) *PromptManagement {
	switch typed := raw.(type) {
	case *PromptManagement:
		return typed
	case PromptManagement:
		return &typed
	case map[string]any:
		return &PromptManagement{
			PromptID:          MetadataString(typed, "prompt_id"),
			PromptIntegration: MetadataString(typed, "prompt_integration"),
		}
	default:
		return nil
	}
}

func callTypeOrDefault(rec *CallRecord) string {
	if strings.TrimSpace(rec.CallType) == "" {
		return "completion"
	}
	return rec.CallType
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func takeValue(m map[string]any, key string) any {
	value, ok := m[key]
	if !ok {
		return nil
	}
	delete(m, key)
	return value
}

func takeString(m map[string]any, key string) string {
	value := takeValue(m, key)
	if value == nil {
		return ""
	}
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

func takeBool(m map[string]any, key string) bool {
	switch typed := takeValue(m, key).(type) {
	case bool:
		return typed
	case string:
		return strings.EqualFold(strings.TrimSpace(typed), "true")
	default:
		return false
	}
}

func takeStringList(m map[string]any, key string) []string {
	switch typed := takeValue(m, key).(type) {
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

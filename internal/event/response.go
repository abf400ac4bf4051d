package event

import (
	openai "github.com/sashabaranov/go-openai"
)

// Kind discriminates the response variants the adapter understands.
type Kind string

const (
	KindNone          Kind = ""
	KindChat          Kind = "chat"
	KindText          Kind = "text"
	KindEmbedding     Kind = "embedding"
	KindImage         Kind = "image"
	KindTranscription Kind = "transcription"
	KindSpeech        Kind = "speech"
	KindRerank        Kind = "rerank"
	KindRealtime      Kind = "realtime"
	KindPassThrough   Kind = "passthrough"
)

// RerankResponse is the response shape of a rerank call. There is no
// upstream client type for it, so the adapter carries its own.
type RerankResponse struct {
	ID      string           `json:"id"`
	Results []map[string]any `json:"results"`
	Meta    map[string]any   `json:"meta,omitempty"`
}

// Response is a tagged union over the response shapes the adapter knows how
// to extract input/output from. Exactly one variant field is set, matching
// the kind.
type Response struct {
	kind          Kind
	chat          *openai.ChatCompletionResponse
	text          *openai.CompletionResponse
	embedding     *openai.EmbeddingResponse
	image         *openai.ImageResponse
	transcription *openai.AudioResponse
	rerank        *RerankResponse
	realtime      []any
	passThrough   map[string]any
}

func ChatResponse(resp *openai.ChatCompletionResponse) *Response {
	return &Response{kind: KindChat, chat: resp}
}

func TextResponse(resp *openai.CompletionResponse) *Response {
	return &Response{kind: KindText, text: resp}
}

func EmbeddingResponseOf(resp *openai.EmbeddingResponse) *Response {
	return &Response{kind: KindEmbedding, embedding: resp}
}

func ImageResponseOf(resp *openai.ImageResponse) *Response {
	return &Response{kind: KindImage, image: resp}
}

func TranscriptionResponse(resp *openai.AudioResponse) *Response {
	return &Response{kind: KindTranscription, transcription: resp}
}

// SpeechResponse marks a binary audio-speech response. The payload itself is
// never logged; only a fixed marker reaches the backend.
func SpeechResponse() *Response {
	return &Response{kind: KindSpeech}
}

func RerankResponseOf(resp *RerankResponse) *Response {
	return &Response{kind: KindRerank, rerank: resp}
}

func RealtimeResponse(items []any) *Response {
	return &Response{kind: KindRealtime, realtime: items}
}

func PassThroughResponse(payload map[string]any) *Response {
	return &Response{kind: KindPassThrough, passThrough: payload}
}

// Kind returns the variant tag; KindNone for a nil response.
func (r *Response) Kind() Kind {
	if r == nil {
		return KindNone
	}
	return r.kind
}

// ID returns the response identity field, when the variant has one.
func (r *Response) ID() string {
	if r == nil {
		return ""
	}
	switch r.kind {
	case KindChat:
		return r.chat.ID
	case KindText:
		return r.text.ID
	case KindRerank:
		return r.rerank.ID
	default:
		return ""
	}
}

// TokenUsage is the usage sub-object of a response. Nil pointers mean the
// response did not report the counter.
type TokenUsage struct {
	PromptTokens     *int
	CompletionTokens *int
}

// Usage extracts token usage from the response, accepting the
// prompt/completion and input/output key namings for untyped payloads.
func (r *Response) Usage() *TokenUsage {
	if r == nil {
		return nil
	}
	switch r.kind {
	case KindChat:
		return usageFromCounts(r.chat.Usage.PromptTokens, r.chat.Usage.CompletionTokens)
	case KindText:
		return usageFromCounts(r.text.Usage.PromptTokens, r.text.Usage.CompletionTokens)
	case KindEmbedding:
		return usageFromCounts(r.embedding.Usage.PromptTokens, r.embedding.Usage.CompletionTokens)
	case KindPassThrough:
		usage, ok := r.passThrough["usage"].(map[string]any)
		if !ok {
			return nil
		}
		prompt, promptOK := firstInt(usage, "prompt_tokens", "input_tokens")
		completion, completionOK := firstInt(usage, "completion_tokens", "output_tokens")
		if !promptOK && !completionOK {
			return nil
		}
		out := &TokenUsage{}
		if promptOK {
			out.PromptTokens = &prompt
		}
		if completionOK {
			out.CompletionTokens = &completion
		}
		return out
	default:
		return nil
	}
}

// SystemFingerprint returns the backend system fingerprint for chat
// completions, empty otherwise.
func (r *Response) SystemFingerprint() string {
	if r == nil || r.kind != KindChat {
		return ""
	}
	return r.chat.SystemFingerprint
}

func usageFromCounts(prompt, completion int) *TokenUsage {
	p := prompt
	c := completion
	return &TokenUsage{PromptTokens: &p, CompletionTokens: &c}
}

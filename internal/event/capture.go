package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Capture is one call record captured to disk as JSON, replayable through
// the full pipeline.
type Capture struct {
	Record        *CallRecord
	Response      *Response
	StartTime     time.Time
	EndTime       time.Time
	UserID        string
	Level         Level
	StatusMessage string
}

type captureEnvelope struct {
	CallID              string           `json:"call_id"`
	CallType            string           `json:"call_type"`
	Model               string           `json:"model"`
	Messages            []map[string]any `json:"messages"`
	RawInput            any              `json:"input"`
	CacheHit            *bool            `json:"cache_hit"`
	ResponseCost        *float64         `json:"response_cost"`
	CompletionStartTime *time.Time       `json:"completion_start_time"`
	OptionalParams      map[string]any   `json:"optional_params"`
	RequestParams       struct {
		Metadata     map[string]any `json:"metadata"`
		APIBase      string         `json:"api_base"`
		ProxyRequest *struct {
			Method  string            `json:"method"`
			URL     string            `json:"url"`
			Headers map[string]string `json:"headers"`
		} `json:"proxy_request"`
	} `json:"request_params"`
	Logging *struct {
		RequestTags  []string       `json:"request_tags"`
		Metadata     map[string]any `json:"metadata"`
		HiddenParams map[string]any `json:"hidden_params"`
		Guardrail    *struct {
			Name              string     `json:"name"`
			Mode              any        `json:"mode"`
			MaskedEntityCount any        `json:"masked_entity_count"`
			Request           any        `json:"request"`
			Response          any        `json:"response"`
			StartTime         *time.Time `json:"start_time"`
			EndTime           *time.Time `json:"end_time"`
		} `json:"guardrail"`
	} `json:"logging"`
	VertexLocation string `json:"vertex_location"`
	AWSRegionName  string `json:"aws_region_name"`

	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	UserID        string    `json:"user_id"`
	Level         string    `json:"level"`
	StatusMessage string    `json:"status_message"`

	ResponseKind string          `json:"response_kind"`
	ResponseBody json.RawMessage `json:"response"`
}

// DecodeCapture parses a captured call record envelope. The response body is
// decoded according to response_kind; an empty kind means the call produced
// no response.
func DecodeCapture(data []byte) (*Capture, error) {
	var envelope captureEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse capture: %w", err)
	}

	record := &CallRecord{
		CallID:              envelope.CallID,
		CallType:            envelope.CallType,
		Model:               envelope.Model,
		Messages:            envelope.Messages,
		RawInput:            envelope.RawInput,
		CacheHit:            envelope.CacheHit,
		ResponseCost:        envelope.ResponseCost,
		CompletionStartTime: envelope.CompletionStartTime,
		OptionalParams:      envelope.OptionalParams,
		VertexLocation:      envelope.VertexLocation,
		AWSRegionName:       envelope.AWSRegionName,
	}
	record.RequestParams.Metadata = envelope.RequestParams.Metadata
	record.RequestParams.APIBase = envelope.RequestParams.APIBase
	if pr := envelope.RequestParams.ProxyRequest; pr != nil {
		record.RequestParams.ProxyRequest = &ProxyRequest{
			Method:  pr.Method,
			URL:     pr.URL,
			Headers: pr.Headers,
		}
	}
	if envelope.Logging != nil {
		payload := &LoggingPayload{
			RequestTags:  envelope.Logging.RequestTags,
			Metadata:     envelope.Logging.Metadata,
			HiddenParams: envelope.Logging.HiddenParams,
		}
		if g := envelope.Logging.Guardrail; g != nil {
			payload.Guardrail = &GuardrailRecord{
				Name:              g.Name,
				Mode:              g.Mode,
				MaskedEntityCount: g.MaskedEntityCount,
				Request:           g.Request,
				Response:          g.Response,
				StartTime:         g.StartTime,
				EndTime:           g.EndTime,
			}
		}
		record.Logging = payload
	}

	response, err := decodeResponse(envelope.ResponseKind, envelope.ResponseBody)
	if err != nil {
		return nil, err
	}

	level := Level(strings.ToUpper(strings.TrimSpace(envelope.Level)))
	if level == "" {
		level = LevelDefault
	}

	return &Capture{
		Record:        record,
		Response:      response,
		StartTime:     envelope.StartTime,
		EndTime:       envelope.EndTime,
		UserID:        envelope.UserID,
		Level:         level,
		StatusMessage: envelope.StatusMessage,
	}, nil
}

func decodeResponse(kind string, body json.RawMessage) (*Response, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case KindNone:
		return nil, nil
	case KindChat:
		var resp openai.ChatCompletionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse chat response: %w", err)
		}
		return ChatResponse(&resp), nil
	case KindText:
		var resp openai.CompletionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse text response: %w", err)
		}
		return TextResponse(&resp), nil
	case KindEmbedding:
		var resp openai.EmbeddingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse embedding response: %w", err)
		}
		return EmbeddingResponseOf(&resp), nil
	case KindImage:
		var resp openai.ImageResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse image response: %w", err)
		}
		return ImageResponseOf(&resp), nil
	case KindTranscription:
		var resp openai.AudioResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse transcription response: %w", err)
		}
		return TranscriptionResponse(&resp), nil
	case KindSpeech:
		return SpeechResponse(), nil
	case KindRerank:
		var resp RerankResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse rerank response: %w", err)
		}
		return RerankResponseOf(&resp), nil
	case KindRealtime:
		var items []any
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("parse realtime response: %w", err)
		}
		return RealtimeResponse(items), nil
	case KindPassThrough:
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("parse pass-through response: %w", err)
		}
		return PassThroughResponse(payload), nil
	default:
		return nil, fmt.Errorf("unknown response kind %q", kind)
	}
}

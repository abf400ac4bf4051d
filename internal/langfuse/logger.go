package langfuse

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/config"
	"github.com/ongoingai/langfuse-bridge/internal/event"
	"github.com/ongoingai/langfuse-bridge/internal/redact"
)

// Result carries the backend identifiers of one submission. Both fields are
// empty when submission failed; callers never see an error.
type Result struct {
	TraceID      string
	GenerationID string
}

// Report describes one finished logging call for diagnostics sinks.
type Report struct {
	TraceID      string
	GenerationID string
	CallType     string
	Model        string
	Level        event.Level
	Err          error
}

// Hooks holds optional callbacks the logger invokes at key pipeline points.
type Hooks struct {
	// OnSubmitFailure is called when a backend call fails, with the pipeline
	// stage that failed (trace, span, generation).
	OnSubmitFailure func(stage string)
	// OnSubmit is called once per logging call with the final outcome.
	OnSubmit func(report Report)
}

// Options configures construction of a Logger beyond the file config.
type Options struct {
	// Factory overrides how backend clients are constructed. Defaults to
	// the HTTP backend.
	Factory BackendFactory
	// Transport is handed to the default HTTP backend, letting callers wrap
	// outbound requests (for example with otel instrumentation).
	Transport http.RoundTripper
	Logger    *slog.Logger
	Hooks     Hooks
}

// Logger converts completed LLM calls into trace/generation/span records and
// submits them. One Logger owns one primary backend client, plus an optional
// mirror client that is constructed but not part of the pipeline.
type Logger struct {
	client     *Client
	mirror     *Client
	normalizer *event.Normalizer
	hooks      Hooks
	log        *slog.Logger
}

// New constructs a Logger from configuration. Client construction is the
// only loud failure in the adapter: an unreachable backend or an exceeded
// client ceiling surfaces here and nowhere else.
func New(ctx context.Context, cfg config.Config, opts Options) (*Logger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	factory := opts.Factory
	if factory == nil {
		transport := opts.Transport
		factory = func(ctx context.Context, clientCfg ClientConfig) (Backend, error) {
			return NewHTTPBackend(ctx, HTTPBackendConfig{
				Host:          clientCfg.Host,
				PublicKey:     clientCfg.PublicKey,
				SecretKey:     clientCfg.SecretKey,
				Release:       clientCfg.Release,
				Debug:         clientCfg.Debug,
				FlushInterval: clientCfg.FlushInterval,
				Transport:     transport,
				Logger:        logger,
			})
		}
	}

	manager := &Manager{
		MaxClients: int64(cfg.Langfuse.MaxClients),
		Factory:    factory,
		Logger:     logger,
	}

	client, err := manager.CreateClient(ctx, ClientConfig{
		PublicKey:     cfg.Langfuse.PublicKey,
		SecretKey:     cfg.Langfuse.SecretKey,
		Host:          cfg.Langfuse.Host,
		Release:       cfg.Langfuse.Release,
		Debug:         cfg.Langfuse.Debug,
		FlushInterval: time.Duration(cfg.Langfuse.FlushInterval) * time.Second,
		SDKVersion:    cfg.Langfuse.SDKVersion,
	})
	if err != nil {
		return nil, err
	}

	var mirror *Client
	if cfg.MirrorEnabled() {
		mirror, err = manager.CreateClient(ctx, ClientConfig{
			PublicKey:     cfg.Upstream.PublicKey,
			SecretKey:     cfg.Upstream.SecretKey,
			Host:          cfg.Upstream.Host,
			Release:       cfg.Upstream.Release,
			Debug:         cfg.Upstream.Debug,
			FlushInterval: time.Duration(cfg.Langfuse.FlushInterval) * time.Second,
			SDKVersion:    cfg.Langfuse.SDKVersion,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Logger{
		client: client,
		mirror: mirror,
		normalizer: &event.Normalizer{
			DefaultTagKeys: cfg.Langfuse.DefaultTags,
			ProxyBaseURL:   cfg.Langfuse.ProxyBaseURL,
			Redact:         redact.Metadata,
			TagsSupported:  client.Capabilities().Tags,
			Logger:         logger,
		},
		hooks: opts.Hooks,
		log:   logger,
	}, nil
}

// Client returns the primary backend client.
func (l *Logger) Client() *Client { return l.client }

// Mirror returns the optional second backend client, nil when unconfigured.
func (l *Logger) Mirror() *Client { return l.mirror }

// LogEvent runs one call record through the normalize → build → submit
// pipeline. It never returns an error: every backend failure is logged and
// collapses to an empty Result, because observability must not break the
// primary call path.
func (l *Logger) LogEvent(
	ctx context.Context,
	rec *event.CallRecord,
	resp *event.Response,
	startTime, endTime time.Time,
	userID string,
	level event.Level,
	statusMessage string,
) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("logging pipeline panicked", "panic", r)
			result = Result{}
		}
	}()

	ev := l.normalizer.Normalize(rec, resp, level, statusMessage)

	var err error
	if l.client.Capabilities().V2 {
		result, err = l.submit(ctx, ev, rec, resp, startTime, endTime)
	} else if resp.Kind() != event.KindNone {
		result, err = l.submitLegacy(ctx, ev, rec, resp, startTime, endTime, userID)
	}

	if l.hooks.OnSubmit != nil {
		l.hooks.OnSubmit(Report{
			TraceID:      result.TraceID,
			GenerationID: result.GenerationID,
			CallType:     rec.CallType,
			Model:        rec.Model,
			Level:        level,
			Err:          err,
		})
	}
	return result
}

// submit drives the v2 path: create or patch the trace, emit child spans,
// then attach the generation.
func (l *Logger) submit(
	ctx context.Context,
	ev *event.Normalized,
	rec *event.CallRecord,
	resp *event.Response,
	startTime, endTime time.Time,
) (Result, error) {
	caps := l.client.Capabilities()
	backend := l.client.Backend()

	traceSpec := BuildTrace(ev, caps)
	trace, err := backend.Trace(ctx, traceSpec)
	if err != nil {
		return Result{}, l.submitFailure("trace", err)
	}

	if err := emitProviderSpans(ctx, trace, ev.CleanMetadata); err != nil {
		return Result{}, l.submitFailure("span", err)
	}
	if err := emitGuardrailSpan(ctx, trace, rec); err != nil {
		return Result{}, l.submitFailure("span", err)
	}

	generationSpec := BuildGeneration(ctx, ev, rec, resp, caps, backend, startTime, endTime, l.log)
	generation, err := trace.Generation(ctx, generationSpec)
	if err != nil {
		return Result{}, l.submitFailure("generation", err)
	}

	return Result{TraceID: generation.TraceID(), GenerationID: generationSpec.ID}, nil
}

// submitLegacy is the reduced pre-v2 path: no tags, no spans, usage limited
// to token counts. A successful submission reports the trace id so callers
// can tell it apart from a skipped call.
func (l *Logger) submitLegacy(
	ctx context.Context,
	ev *event.Normalized,
	rec *event.CallRecord,
	resp *event.Response,
	startTime, endTime time.Time,
	userID string,
) (Result, error) {
	l.log.Warn("backend below protocol v2, using legacy reduced submission", "sdk_version", l.client.SDKVersion())

	name := ev.GenerationName
	if name == "" {
		name = "litellm-completion"
	}

	backend := l.client.Backend()
	trace, err := backend.Trace(ctx, &TraceSpec{
		ID:     ev.TraceID,
		Name:   name,
		Input:  ev.Input,
		Output: ev.Output,
		UserID: userID,
	})
	if err != nil {
		return Result{}, l.submitFailure("trace", err)
	}

	var usage *Usage
	if tokenUsage := resp.Usage(); tokenUsage != nil {
		usage = &Usage{
			PromptTokens:     tokenUsage.PromptTokens,
			CompletionTokens: tokenUsage.CompletionTokens,
		}
	}

	start := startTime
	end := endTime
	_, err = trace.Generation(ctx, &GenerationSpec{
		Name:            name,
		StartTime:       &start,
		EndTime:         &end,
		Model:           rec.Model,
		ModelParameters: ev.ModelParameters,
		Input:           ev.Input,
		Output:          ev.Output,
		Usage:           usage,
		Metadata:        ev.CleanMetadata,
	})
	if err != nil {
		return Result{}, l.submitFailure("generation", err)
	}
	return Result{TraceID: trace.ID()}, nil
}

func (l *Logger) submitFailure(stage string, err error) error {
	l.log.Error("backend submission failed", "stage", stage, "error", err)
	if l.hooks.OnSubmitFailure != nil {
		l.hooks.OnSubmitFailure(stage)
	}
	return err
}

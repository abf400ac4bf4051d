package langfuse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	ingestionPath  = "/api/public/ingestion"
	promptsPath    = "/api/public/v2/prompts"
	projectsPath   = "/api/public/projects"
	ingestionBatch = 64
)

// ErrQueueFull reports that an ingestion event was rejected because the
// submission queue is saturated.
var ErrQueueFull = errors.New("ingestion queue full")

// HTTPBackendConfig carries the connection parameters for the HTTP backend.
type HTTPBackendConfig struct {
	Host      string
	PublicKey string
	SecretKey string
	// Release stamps every submitted trace, identifying the deployment the
	// calls came from. Metadata-level release values win over it.
	Release string
	// Debug logs every queued ingestion event.
	Debug bool
	// FlushInterval is how long buffered events may wait before a flush.
	// Zero means one second.
	FlushInterval time.Duration
	// QueueSize bounds the event buffer. Zero means 1024.
	QueueSize int
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// ingestionEvent is one entry in an ingestion batch request.
type ingestionEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Body      map[string]any `json:"body"`
}

// HTTPBackend submits trace, span and generation events to the backend's
// batch ingestion endpoint. Events are buffered and flushed by a background
// goroutine on a timer or when a full batch accumulates, so submission calls
// never block on the network.
type HTTPBackend struct {
	host      string
	publicKey string
	secretKey string
	release   string
	debug     bool
	client    *http.Client
	log       *slog.Logger

	queue chan ingestionEvent
	wg    sync.WaitGroup

	stopped  atomic.Bool
	stopOnce sync.Once
	queueMu  sync.RWMutex

	droppedTotal atomic.Int64
	flushedTotal atomic.Int64
}

// NewHTTPBackend constructs the backend and starts its flush goroutine. The
// context bounds the goroutine's lifetime; cancelling it drains the queue
// with one final flush.
func NewHTTPBackend(ctx context.Context, cfg HTTPBackendConfig) (*HTTPBackend, error) {
	if cfg.Host == "" {
		return nil, errors.New("backend host must not be empty")
	}
	if _, err := url.Parse(cfg.Host); err != nil {
		return nil, fmt.Errorf("parse backend host: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = time.Second
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	b := &HTTPBackend{
		host:      cfg.Host,
		publicKey: cfg.PublicKey,
		secretKey: cfg.SecretKey,
		release:   cfg.Release,
		debug:     cfg.Debug,
		client:    &http.Client{Timeout: 30 * time.Second, Transport: cfg.Transport},
		log:       logger,
		queue:     make(chan ingestionEvent, queueSize),
	}

	b.wg.Add(1)
	go b.run(ctx, interval)
	return b, nil
}

func (b *HTTPBackend) run(ctx context.Context, interval time.Duration) {
	defer b.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make([]ingestionEvent, 0, ingestionBatch)
	for {
		select {
		case <-ctx.Done():
			// Drain with a fresh context so shutdown does not lose events.
			pending = append(pending, b.drain()...)
			b.flush(context.Background(), pending)
			return
		case ev, ok := <-b.queue:
			if !ok {
				b.flush(context.Background(), pending)
				return
			}
			pending = append(pending, ev)
			if len(pending) >= ingestionBatch {
				b.flush(ctx, pending)
				pending = pending[:0]
			}
		case <-ticker.C:
			if len(pending) > 0 {
				b.flush(ctx, pending)
				pending = pending[:0]
			}
		}
	}
}

func (b *HTTPBackend) drain() []ingestionEvent {
	var events []ingestionEvent
	for {
		select {
		case ev, ok := <-b.queue:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func (b *HTTPBackend) flush(ctx context.Context, events []ingestionEvent) {
	if len(events) == 0 {
		return
	}
	if err := b.post(ctx, events); err != nil {
		b.droppedTotal.Add(int64(len(events)))
		b.log.Error("ingestion flush failed", "events", len(events), "error", err)
		return
	}
	b.flushedTotal.Add(int64(len(events)))
}

func (b *HTTPBackend) post(ctx context.Context, events []ingestionEvent) error {
	payload, err := json.Marshal(map[string]any{"batch": events})
	if err != nil {
		return fmt.Errorf("encode ingestion batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.host+ingestionPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build ingestion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(b.publicKey, b.secretKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ingestion batch: %w", err)
	}
	defer resp.Body.Close()

	// 207 means partial acceptance; treat it as success and rely on the
	// backend's per-event error reporting.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusMultiStatus {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ingestion returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// enqueue places one event on the buffer, rejecting instead of blocking when
// the buffer is full.
func (b *HTTPBackend) enqueue(eventType string, body map[string]any) error {
	if b.stopped.Load() {
		return ErrQueueFull
	}
	b.queueMu.RLock()
	defer b.queueMu.RUnlock()
	if b.stopped.Load() {
		return ErrQueueFull
	}

	select {
	case b.queue <- ingestionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Body:      body,
	}:
		if b.debug {
			b.log.Info("queued ingestion event", "type", eventType)
		}
		return nil
	default:
		b.droppedTotal.Add(1)
		return fmt.Errorf("%w: %s dropped", ErrQueueFull, eventType)
	}
}

// Shutdown stops accepting events and waits for the flush goroutine to drain,
// bounded by the context.
func (b *HTTPBackend) Shutdown(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		b.queueMu.Lock()
		close(b.queue)
		b.queueMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DroppedEvents returns how many events were lost to queue saturation or
// failed flushes.
func (b *HTTPBackend) DroppedEvents() int64 { return b.droppedTotal.Load() }

// Trace submits a trace-create event. The ingestion endpoint upserts by id,
// which is what gives Trace its create-or-patch semantics.
func (b *HTTPBackend) Trace(ctx context.Context, spec *TraceSpec) (TraceHandle, error) {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	body := spec.Body()
	body["id"] = id
	if b.release != "" {
		if _, ok := body["release"]; !ok {
			body["release"] = b.release
		}
	}
	if err := b.enqueue("trace-create", body); err != nil {
		return nil, err
	}
	return &httpTrace{backend: b, id: id}, nil
}

// GetPrompt fetches a managed prompt by name from the prompt registry.
func (b *HTTPBackend) GetPrompt(ctx context.Context, id string) (*PromptReference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+promptsPath+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build prompt request: %w", err)
	}
	req.SetBasicAuth(b.publicKey, b.secretKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch prompt %q: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("prompt %q: %w", id, ErrPromptNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("prompt %q: backend returned %d", id, resp.StatusCode)
	}

	var payload struct {
		Name    string   `json:"name"`
		Version int      `json:"version"`
		Type    string   `json:"type"`
		Prompt  any      `json:"prompt"`
		Config  any      `json:"config"`
		Labels  []string `json:"labels"`
		Tags    []string `json:"tags"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode prompt %q: %w", id, err)
	}

	kind := PromptKindText
	if payload.Type == "chat" {
		kind = PromptKindChat
	}
	return &PromptReference{
		Kind:    kind,
		Name:    payload.Name,
		Version: payload.Version,
		Prompt:  payload.Prompt,
		Config:  payload.Config,
		Labels:  payload.Labels,
		Tags:    payload.Tags,
	}, nil
}

// ResolveProjectID returns the id of the project the credentials belong to.
func (b *HTTPBackend) ResolveProjectID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+projectsPath, nil)
	if err != nil {
		return "", fmt.Errorf("build projects request: %w", err)
	}
	req.SetBasicAuth(b.publicKey, b.secretKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch projects: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("projects endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode projects response: %w", err)
	}
	if len(payload.Data) == 0 {
		return "", errors.New("projects response was empty")
	}
	return payload.Data[0].ID, nil
}

type httpTrace struct {
	backend *HTTPBackend
	id      string
}

func (t *httpTrace) ID() string { return t.id }

func (t *httpTrace) Span(ctx context.Context, spec *SpanSpec) (SpanHandle, error) {
	id := uuid.NewString()
	if err := t.backend.enqueue("span-create", spec.Body(id, t.id)); err != nil {
		return nil, err
	}
	return &httpSpan{backend: t.backend, id: id, traceID: t.id}, nil
}

func (t *httpTrace) Generation(ctx context.Context, spec *GenerationSpec) (GenerationHandle, error) {
	body := spec.Body(t.id)
	if spec.ID == "" {
		body["id"] = uuid.NewString()
	}
	if err := t.backend.enqueue("generation-create", body); err != nil {
		return nil, err
	}
	return &httpGeneration{traceID: t.id}, nil
}

type httpSpan struct {
	backend *HTTPBackend
	id      string
	traceID string
}

func (s *httpSpan) End(ctx context.Context) error {
	now := time.Now().UTC()
	return s.backend.enqueue("span-update", map[string]any{
		"id":      s.id,
		"traceId": s.traceID,
		"endTime": now,
	})
}

type httpGeneration struct {
	traceID string
}

func (g *httpGeneration) TraceID() string { return g.traceID }

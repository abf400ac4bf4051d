package langfuse

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type capturedBatch struct {
	user string
	pass string
	body struct {
		Batch []ingestionEvent `json:"batch"`
	}
}

// ingestionServer collects batch posts to the ingestion endpoint.
type ingestionServer struct {
	mu      sync.Mutex
	batches []capturedBatch
	status  int
}

func (s *ingestionServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ingestionPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var captured capturedBatch
		captured.user, captured.pass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&captured.body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.batches = append(s.batches, captured)
		status := s.status
		s.mu.Unlock()
		if status == 0 {
			status = http.StatusMultiStatus
		}
		w.WriteHeader(status)
	}
}

func (s *ingestionServer) events() []ingestionEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []ingestionEvent
	for _, batch := range s.batches {
		all = append(all, batch.body.Batch...)
	}
	return all
}

func newIngestionBackend(t *testing.T, sink *ingestionServer) *HTTPBackend {
	t.Helper()

	server := httptest.NewServer(sink.handler())
	t.Cleanup(server.Close)

	backend, err := NewHTTPBackend(context.Background(), HTTPBackendConfig{
		Host:          server.URL,
		PublicKey:     "pk-test",
		SecretKey:     "sk-test",
		FlushInterval: time.Hour, // flush only on shutdown
	})
	if err != nil {
		t.Fatal(err)
	}
	return backend
}

func TestHTTPBackendStampsReleaseOnTraces(t *testing.T) {
	t.Parallel()

	sink := &ingestionServer{}
	server := httptest.NewServer(sink.handler())
	t.Cleanup(server.Close)

	backend, err := NewHTTPBackend(context.Background(), HTTPBackendConfig{
		Host:          server.URL,
		PublicKey:     "pk-test",
		SecretKey:     "sk-test",
		Release:       "v2026.08",
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"}); err != nil {
		t.Fatal(err)
	}
	// Metadata-lifted release values win over the configured one.
	if _, err := backend.Trace(context.Background(), &TraceSpec{
		ID:    "trace-2",
		Extra: map[string]any{"release": "canary"},
	}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	events := sink.events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if got := events[0].Body["release"]; got != "v2026.08" {
		t.Errorf("trace-1 release = %v, want v2026.08", got)
	}
	if got := events[1].Body["release"]; got != "canary" {
		t.Errorf("trace-2 release = %v, want canary", got)
	}
}

func TestHTTPBackendSubmitsBatch(t *testing.T) {
	t.Parallel()

	sink := &ingestionServer{}
	backend := newIngestionBackend(t, sink)

	trace, err := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1", Name: "litellm-completion"})
	if err != nil {
		t.Fatal(err)
	}
	span, err := trace.Span(context.Background(), &SpanSpec{Name: "guardrail"})
	if err != nil {
		t.Fatal(err)
	}
	if err := span.End(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := trace.Generation(context.Background(), &GenerationSpec{ID: "gen-1", Name: "litellm-completion"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	events := sink.events()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}

	wantTypes := []string{"trace-create", "span-create", "span-update", "generation-create"}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d].Type = %q, want %q", i, events[i].Type, want)
		}
		if events[i].ID == "" {
			t.Errorf("event[%d] missing envelope id", i)
		}
	}

	if events[0].Body["id"] != "trace-1" {
		t.Errorf("trace body id = %v", events[0].Body["id"])
	}
	if events[3].Body["traceId"] != "trace-1" || events[3].Body["id"] != "gen-1" {
		t.Errorf("generation body = %v", events[3].Body)
	}
	// Span create and update must share an id so the update closes the right
	// observation.
	if events[1].Body["id"] != events[2].Body["id"] {
		t.Errorf("span ids differ: %v vs %v", events[1].Body["id"], events[2].Body["id"])
	}

	sink.mu.Lock()
	auth := sink.batches[0]
	sink.mu.Unlock()
	if auth.user != "pk-test" || auth.pass != "sk-test" {
		t.Errorf("basic auth = %q/%q", auth.user, auth.pass)
	}
}

func TestHTTPBackendGeneratesMissingIDs(t *testing.T) {
	t.Parallel()

	sink := &ingestionServer{}
	backend := newIngestionBackend(t, sink)

	trace, err := backend.Trace(context.Background(), &TraceSpec{})
	if err != nil {
		t.Fatal(err)
	}
	if trace.ID() == "" {
		t.Error("trace handle must carry a generated id")
	}
	if _, err := trace.Generation(context.Background(), &GenerationSpec{Name: "g"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	events := sink.events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Body["id"] != trace.ID() {
		t.Errorf("trace body id = %v, want %q", events[0].Body["id"], trace.ID())
	}
	if id, _ := events[1].Body["id"].(string); id == "" {
		t.Error("generation body must carry a generated id")
	}
}

func TestHTTPBackendFailedFlushCountsDrops(t *testing.T) {
	t.Parallel()

	sink := &ingestionServer{status: http.StatusInternalServerError}
	backend := newIngestionBackend(t, sink)

	if _, err := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if got := backend.DroppedEvents(); got != 1 {
		t.Errorf("DroppedEvents = %d, want 1", got)
	}
}

func TestHTTPBackendRejectsAfterShutdown(t *testing.T) {
	t.Parallel()

	sink := &ingestionServer{}
	backend := newIngestionBackend(t, sink)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := backend.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := backend.Trace(context.Background(), &TraceSpec{ID: "trace-1"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestHTTPBackendRequiresHost(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPBackend(context.Background(), HTTPBackendConfig{}); err == nil {
		t.Fatal("error = nil, want missing host failure")
	}
}

func TestGetPrompt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case promptsPath + "/support-chat":
			json.NewEncoder(w).Encode(map[string]any{
				"name":    "support-chat",
				"version": 5,
				"type":    "chat",
				"prompt":  []any{map[string]any{"role": "system", "content": "be kind"}},
				"labels":  []string{"production"},
			})
		case promptsPath + "/summary":
			json.NewEncoder(w).Encode(map[string]any{
				"name":    "summary",
				"version": 2,
				"type":    "text",
				"prompt":  "Summarize {{doc}}",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	backend, err := NewHTTPBackend(context.Background(), HTTPBackendConfig{Host: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Shutdown(context.Background()) })

	chat, err := backend.GetPrompt(context.Background(), "support-chat")
	if err != nil {
		t.Fatal(err)
	}
	if chat.Kind != PromptKindChat || chat.Name != "support-chat" || chat.Version != 5 {
		t.Errorf("chat prompt = %+v", chat)
	}

	text, err := backend.GetPrompt(context.Background(), "summary")
	if err != nil {
		t.Fatal(err)
	}
	if text.Kind != PromptKindText || text.Prompt != "Summarize {{doc}}" {
		t.Errorf("text prompt = %+v", text)
	}

	if _, err := backend.GetPrompt(context.Background(), "missing"); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("error = %v, want ErrPromptNotFound", err)
	}
}

func TestResolveProjectID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != projectsPath {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"id": "proj-1", "name": "default"}},
		})
	}))
	t.Cleanup(server.Close)

	backend, err := NewHTTPBackend(context.Background(), HTTPBackendConfig{Host: server.URL})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Shutdown(context.Background()) })

	id, err := backend.ResolveProjectID(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if id != "proj-1" {
		t.Errorf("project id = %q, want proj-1", id)
	}
}

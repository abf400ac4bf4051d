package observability

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/ongoingai/langfuse-bridge/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	t.Parallel()

	runtime, err := Setup(context.Background(), config.OTelConfig{Enabled: false}, "1.0.0", slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if runtime.Enabled() {
		t.Error("Enabled = true, want disabled runtime")
	}

	// All hooks must be safe no-ops on a disabled runtime.
	runtime.RecordSubmitFailure("trace")
	runtime.RecordJournalDrop("queue_full", 3)
	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v", err)
	}
}

func TestWrapHTTPTransportDisabled(t *testing.T) {
	t.Parallel()

	runtime := &Runtime{}
	if got := runtime.WrapHTTPTransport(nil); got != http.DefaultTransport {
		t.Error("disabled runtime must return the base transport")
	}

	base := &http.Transport{}
	if got := runtime.WrapHTTPTransport(base); got != http.RoundTripper(base) {
		t.Error("disabled runtime must pass through a custom base transport")
	}
}

func TestNilRuntimeIsSafe(t *testing.T) {
	t.Parallel()

	var runtime *Runtime
	if runtime.Enabled() {
		t.Error("nil runtime reports enabled")
	}
	if err := runtime.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown = %v", err)
	}
}

func TestNormalizeOTLPEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		in           string
		want         string
		wantInsecure bool
		wantErr      bool
	}{
		{"bare host", "localhost:4318", "localhost:4318", false, false},
		{"http scheme", "http://collector:4318", "collector:4318", true, false},
		{"https scheme", "https://collector:4318", "collector:4318", false, false},
		{"surrounding whitespace", "  localhost:4318  ", "localhost:4318", false, false},
		{"empty", "", "", false, true},
		{"unsupported scheme", "grpc://collector:4317", "", false, true},
		{"scheme without host", "http://", "", false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, insecure, err := normalizeOTLPEndpoint(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatal("error = nil")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want || insecure != tc.wantInsecure {
				t.Errorf("normalizeOTLPEndpoint(%q) = %q/%v, want %q/%v", tc.in, got, insecure, tc.want, tc.wantInsecure)
			}
		})
	}
}

func TestClientSpanName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{"POST", "/api/public/ingestion", "backend POST /api/public/ingestion"},
		{"GET", "/api/public/v2/prompts/support-chat", "backend GET /api/public/v2/prompts/*"},
		{"GET", "/api/public/projects", "backend GET /api/public/projects"},
		{"GET", "/healthz", "backend GET /other"},
		{"", "/api/public/projects", "backend UNKNOWN /api/public/projects"},
	}
	for _, tc := range tests {
		if got := clientSpanName(tc.method, tc.path); got != tc.want {
			t.Errorf("clientSpanName(%q, %q) = %q, want %q", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestRoutePatternForPathAvoidsPrefixCollisions(t *testing.T) {
	t.Parallel()

	if got := routePatternForPath("/api/public/ingestion-v2"); got != "/other" {
		t.Errorf("routePatternForPath = %q, segment prefixes must not match partial names", got)
	}
}

package langfuse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// ErrCapacityExceeded reports that the process-wide backend client ceiling
// has been reached. Each client carries its own background flush goroutine,
// so unbounded re-initialization would accumulate resources for the process
// lifetime.
var ErrCapacityExceeded = errors.New("max backend clients reached")

// initializedClients counts live backend clients across the whole process.
// Clients are never torn down before process exit, so the counter only
// grows; it exists to fail construction loudly instead of leaking.
var initializedClients atomic.Int64

// ClientConfig carries the connection parameters for one backend client.
type ClientConfig struct {
	PublicKey     string
	SecretKey     string
	Host          string
	Release       string
	Debug         bool
	FlushInterval time.Duration
	// SDKVersion is the declared backend protocol version; capability flags
	// are resolved from it once at creation.
	SDKVersion string
}

// BackendFactory constructs the remote client for a connection config.
type BackendFactory func(ctx context.Context, cfg ClientConfig) (Backend, error)

// Manager creates backend clients under a process-wide ceiling.
type Manager struct {
	// MaxClients is the inclusive ceiling on live clients. Must be positive.
	MaxClients int64
	Factory    BackendFactory
	Logger     *slog.Logger
}

// Client is one live backend connection: the remote client itself plus the
// capability flags and project identity resolved at creation. Read-only
// after construction.
type Client struct {
	backend    Backend
	caps       Capabilities
	sdkVersion string
	projectID  string
}

func (c *Client) Backend() Backend           { return c.backend }
func (c *Client) Capabilities() Capabilities { return c.caps }
func (c *Client) SDKVersion() string         { return c.sdkVersion }

// ProjectID returns the backend project identifier, or empty when resolution
// failed at creation.
func (c *Client) ProjectID() string { return c.projectID }

// CreateClient constructs one backend client, failing with
// ErrCapacityExceeded once MaxClients live clients exist. The counter is
// reserved before construction so concurrent callers can never exceed the
// ceiling.
func (m *Manager) CreateClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	for {
		current := initializedClients.Load()
		if current >= m.MaxClients {
			return nil, fmt.Errorf("%w: %d live clients, ceiling %d", ErrCapacityExceeded, current, m.MaxClients)
		}
		if initializedClients.CompareAndSwap(current, current+1) {
			break
		}
	}

	backend, err := m.Factory(ctx, cfg)
	if err != nil {
		initializedClients.Add(-1)
		return nil, fmt.Errorf("initialize backend client: %w", err)
	}

	client := &Client{
		backend:    backend,
		caps:       ResolveCapabilities(cfg.SDKVersion),
		sdkVersion: cfg.SDKVersion,
	}

	// Downstream alerting links to the project through this env var; losing
	// it only degrades links, never the client.
	if projectID, err := backend.ResolveProjectID(ctx); err == nil && projectID != "" {
		client.projectID = projectID
		if setErr := os.Setenv("LANGFUSE_PROJECT_ID", projectID); setErr != nil {
			logger.Warn("failed to export project id", "error", setErr)
		}
	} else if err != nil {
		logger.Debug("project id resolution failed", "error", err)
	}

	logger.Debug("created backend client", "live_clients", initializedClients.Load(), "sdk_version", cfg.SDKVersion)
	return client, nil
}

// LiveClients returns the current process-wide live client count.
func LiveClients() int64 {
	return initializedClients.Load()
}

// resetClientCounter clears the process-wide counter. Test use only.
func resetClientCounter() {
	initializedClients.Store(0)
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Langfuse      LangfuseConfig      `yaml:"langfuse"`
	Upstream      UpstreamConfig      `yaml:"upstream"`
	Journal       JournalConfig       `yaml:"journal"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LangfuseConfig describes the primary backend connection and the
// trace-enrichment knobs applied to every submitted event.
type LangfuseConfig struct {
	PublicKey     string `yaml:"public_key"`
	SecretKey     string `yaml:"secret_key"`
	Host          string `yaml:"host"`
	Release       string `yaml:"release"`
	Debug         bool   `yaml:"debug"`
	FlushInterval int    `yaml:"flush_interval"`
	// SDKVersion is the declared backend protocol version used to resolve
	// capability flags once at client creation.
	SDKVersion string `yaml:"sdk_version"`
	// MaxClients caps the number of backend clients initialized within one
	// process. Each client carries its own background flush machinery, so
	// repeated re-initialization without a ceiling can exhaust the host.
	MaxClients int `yaml:"max_clients"`
	// DefaultTags lists metadata keys promoted to "key:value" tags on every
	// trace, plus the special keys cache_hit, cache_key and proxy_base_url.
	DefaultTags  []string `yaml:"default_tags"`
	ProxyBaseURL string   `yaml:"proxy_base_url"`
}

// UpstreamConfig describes an optional second, independent backend target.
// When a secret key is present a mirror client is constructed alongside the
// primary one; it is not otherwise part of the submission pipeline.
type UpstreamConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
	Release   string `yaml:"release"`
	Debug     bool   `yaml:"debug"`
}

type JournalConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	DSN        string `yaml:"dsn"`
	BufferSize int    `yaml:"buffer_size"`
}

type ObservabilityConfig struct {
	OTel OTelConfig `yaml:"otel"`
}

type OTelConfig struct {
	Enabled                bool    `yaml:"enabled"`
	Endpoint               string  `yaml:"endpoint"`
	Insecure               bool    `yaml:"insecure"`
	ServiceName            string  `yaml:"service_name"`
	TracesEnabled          bool    `yaml:"traces_enabled"`
	MetricsEnabled         bool    `yaml:"metrics_enabled"`
	SamplingRatio          float64 `yaml:"sampling_ratio"`
	ExportTimeoutMS        int     `yaml:"export_timeout_ms"`
	MetricExportIntervalMS int     `yaml:"metric_export_interval_ms"`
}

const (
	defaultHost          = "https://cloud.langfuse.com"
	defaultSDKVersion    = "2.7.3"
	defaultMaxClients    = 20
	defaultFlushInterval = 1

	defaultOTELEndpoint               = "localhost:4318"
	defaultOTELServiceName            = "langfuse-bridge"
	defaultOTELSamplingRatio          = 1.0
	defaultOTELExportTimeoutMS        = 3000
	defaultOTELMetricExportIntervalMS = 10000
)

func Default() Config {
	return Config{
		Langfuse: LangfuseConfig{
			Host:          defaultHost,
			FlushInterval: defaultFlushInterval,
			SDKVersion:    defaultSDKVersion,
			MaxClients:    defaultMaxClients,
		},
		Journal: JournalConfig{
			Enabled:    false,
			Driver:     "sqlite",
			Path:       "./data/langfuse-bridge.db",
			BufferSize: 256,
		},
		Observability: ObservabilityConfig{
			OTel: OTelConfig{
				Enabled:                false,
				Endpoint:               defaultOTELEndpoint,
				Insecure:               true,
				ServiceName:            defaultOTELServiceName,
				TracesEnabled:          true,
				MetricsEnabled:         true,
				SamplingRatio:          defaultOTELSamplingRatio,
				ExportTimeoutMS:        defaultOTELExportTimeoutMS,
				MetricExportIntervalMS: defaultOTELMetricExportIntervalMS,
			},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			decoder := yaml.NewDecoder(bytes.NewReader(data))
			decoder.KnownFields(true)
			decodeErr := decoder.Decode(&cfg)
			if errors.Is(decodeErr, io.EOF) {
				decodeErr = nil
			}
			if decodeErr != nil {
				return Config{}, fmt.Errorf("parse yaml %q: %w", path, decodeErr)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Langfuse.Host = NormalizeHost(cfg.Langfuse.Host)
	if cfg.Upstream.Host != "" {
		cfg.Upstream.Host = NormalizeHost(cfg.Upstream.Host)
	}

	return cfg, nil
}

// NormalizeHost prepends http:// when the host carries no scheme, assuming
// communication over a private network.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return host
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "http://" + host
}

// Validate checks configuration invariants required at runtime.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Langfuse.PublicKey) == "" {
		return errors.New("langfuse.public_key must not be empty")
	}
	if strings.TrimSpace(cfg.Langfuse.SecretKey) == "" {
		return errors.New("langfuse.secret_key must not be empty")
	}
	if strings.TrimSpace(cfg.Langfuse.Host) == "" {
		return errors.New("langfuse.host must not be empty")
	}
	if cfg.Langfuse.MaxClients <= 0 {
		return fmt.Errorf("langfuse.max_clients must be positive (got %d)", cfg.Langfuse.MaxClients)
	}
	if cfg.Langfuse.FlushInterval <= 0 {
		return fmt.Errorf("langfuse.flush_interval must be positive (got %d)", cfg.Langfuse.FlushInterval)
	}

	if cfg.Journal.Enabled {
		driver := strings.TrimSpace(cfg.Journal.Driver)
		switch driver {
		case "sqlite":
			if strings.TrimSpace(cfg.Journal.Path) == "" {
				return errors.New("journal.path is required when journal.driver=sqlite")
			}
		case "postgres":
			if strings.TrimSpace(cfg.Journal.DSN) == "" {
				return errors.New("journal.dsn is required when journal.driver=postgres")
			}
		default:
			return fmt.Errorf("journal.driver must be one of sqlite, postgres (got %q)", cfg.Journal.Driver)
		}
	}

	if err := validateOTelConfig(cfg.Observability.OTel); err != nil {
		return err
	}

	return nil
}

func validateOTelConfig(cfg OTelConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("observability.otel.endpoint must not be empty when otel is enabled")
	}
	if cfg.SamplingRatio < 0 || cfg.SamplingRatio > 1 {
		return fmt.Errorf("observability.otel.sampling_ratio must be between 0 and 1 (got %g)", cfg.SamplingRatio)
	}
	if cfg.ExportTimeoutMS <= 0 {
		return fmt.Errorf("observability.otel.export_timeout_ms must be positive (got %d)", cfg.ExportTimeoutMS)
	}
	if cfg.MetricExportIntervalMS <= 0 {
		return fmt.Errorf("observability.otel.metric_export_interval_ms must be positive (got %d)", cfg.MetricExportIntervalMS)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		cfg.Langfuse.PublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		cfg.Langfuse.SecretKey = v
	}
	if v := os.Getenv("LANGFUSE_HOST"); v != "" {
		cfg.Langfuse.Host = v
	}
	if v := os.Getenv("LANGFUSE_RELEASE"); v != "" {
		cfg.Langfuse.Release = v
	}
	if v := os.Getenv("LANGFUSE_DEBUG"); v != "" {
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return fmt.Errorf("invalid LANGFUSE_DEBUG: %w", err)
		}
		cfg.Langfuse.Debug = parsed
	}
	if v := os.Getenv("LANGFUSE_FLUSH_INTERVAL"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LANGFUSE_FLUSH_INTERVAL: %w", err)
		}
		cfg.Langfuse.FlushInterval = parsed
	}
	if v := os.Getenv("PROXY_BASE_URL"); v != "" {
		cfg.Langfuse.ProxyBaseURL = v
	}

	if v := os.Getenv("UPSTREAM_LANGFUSE_PUBLIC_KEY"); v != "" {
		cfg.Upstream.PublicKey = v
	}
	if v := os.Getenv("UPSTREAM_LANGFUSE_SECRET_KEY"); v != "" {
		cfg.Upstream.SecretKey = v
	}
	if v := os.Getenv("UPSTREAM_LANGFUSE_HOST"); v != "" {
		cfg.Upstream.Host = v
	}
	if v := os.Getenv("UPSTREAM_LANGFUSE_RELEASE"); v != "" {
		cfg.Upstream.Release = v
	}
	if v := os.Getenv("UPSTREAM_LANGFUSE_DEBUG"); v != "" {
		parsed, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
		if err != nil {
			return fmt.Errorf("invalid UPSTREAM_LANGFUSE_DEBUG: %w", err)
		}
		cfg.Upstream.Debug = parsed
	}

	return nil
}

// MirrorEnabled reports whether a second, independent backend target is
// configured.
func (cfg Config) MirrorEnabled() bool {
	return strings.TrimSpace(cfg.Upstream.SecretKey) != ""
}

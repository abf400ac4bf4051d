package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/config"
	"github.com/ongoingai/langfuse-bridge/internal/journal"
	"github.com/ongoingai/langfuse-bridge/internal/langfuse"
	"github.com/ongoingai/langfuse-bridge/internal/observability"
	"github.com/ongoingai/langfuse-bridge/internal/version"
)

const defaultConfigPath = "langfuse-bridge.yaml"

const journalShutdownTimeout = 5 * time.Second
const backendShutdownTimeout = 10 * time.Second
const otelShutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Println(version.String())
		return 0
	case "submit":
		return runSubmit(args[1:], os.Stdout, os.Stderr)
	case "replay":
		return runReplay(args[1:], os.Stdout, os.Stderr)
	case "failures":
		return runFailures(args[1:], os.Stdout, os.Stderr)
	case "config":
		return runConfig(args[1:], os.Stdout, os.Stderr)
	default:
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: langfuse-bridge <command> [flags]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  submit    Submit captured call records to the tracing backend")
	fmt.Fprintln(out, "  replay    Resubmit journaled failed submissions")
	fmt.Fprintln(out, "  failures  List recent failed submissions from the journal")
	fmt.Fprintln(out, "  config    Validate configuration")
	fmt.Fprintln(out, "  version   Print version information")
}

func runConfig(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 || args[0] != "validate" {
		fmt.Fprintln(errOut, "Usage: langfuse-bridge config validate [-config path]")
		return 2
	}
	configPath, rest, code := parseConfigFlag("config validate", args[1:], errOut)
	if code != 0 {
		return code
	}
	if len(rest) != 0 {
		fmt.Fprintln(errOut, "config validate does not accept positional arguments")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(errOut, "config invalid: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, "config ok")
	return 0
}

// runtime bundles everything a submitting command needs, with one cleanup
// that flushes queues in dependency order.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
	obs    *observability.Runtime
	bridge *langfuse.Logger

	journalStore  journal.Store
	journalWriter *journal.Writer

	lastReport langfuse.Report
}

func newRuntime(ctx context.Context, configPath string, errOut io.Writer) (*runtime, int) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return nil, 1
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(errOut, "config invalid: %v\n", err)
		return nil, 1
	}

	logLevel := slog.LevelInfo
	if cfg.Langfuse.Debug {
		logLevel = slog.LevelDebug
	}
	baseHandler := slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(observability.NewTraceLogHandler(baseHandler))

	obs, err := observability.Setup(ctx, cfg.Observability.OTel, version.Version, logger)
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize observability: %v\n", err)
		return nil, 1
	}

	rt := &runtime{cfg: cfg, logger: logger, obs: obs}

	if cfg.Journal.Enabled {
		store, err := journal.Open(cfg.Journal)
		if err != nil {
			fmt.Fprintf(errOut, "failed to open journal: %v\n", err)
			rt.close(ctx)
			return nil, 1
		}
		writer := journal.NewWriter(store, cfg.Journal.BufferSize)
		writer.SetMetrics(&journal.WriterMetrics{
			OnDrop: func() { obs.RecordJournalDrop("queue_full", 1) },
		})
		writer.SetWriteFailureHandler(func(failure journal.WriteFailure) {
			obs.RecordJournalDrop(failure.ErrorClass, failure.FailedCount)
			logger.Error("journal write failed",
				"operation", failure.Operation,
				"failed", failure.FailedCount,
				"class", failure.ErrorClass,
				"error", failure.Err,
			)
		})
		writer.Start(ctx)
		rt.journalStore = store
		rt.journalWriter = writer
	}

	bridge, err := langfuse.New(ctx, cfg, langfuse.Options{
		Transport: obs.WrapHTTPTransport(nil),
		Logger:    logger,
		Hooks: langfuse.Hooks{
			OnSubmitFailure: obs.RecordSubmitFailure,
			OnSubmit:        func(report langfuse.Report) { rt.lastReport = report },
		},
	})
	if err != nil {
		fmt.Fprintf(errOut, "failed to initialize backend client: %v\n", err)
		rt.close(ctx)
		return nil, 1
	}
	rt.bridge = bridge
	return rt, 0
}

// close drains pipelines back to front: journal first so outcomes of the
// final submissions are recorded, then the backend queue, then telemetry.
func (rt *runtime) close(ctx context.Context) {
	if rt.journalWriter != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, journalShutdownTimeout)
		if err := rt.journalWriter.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("journal writer shutdown incomplete", "error", err)
		}
		cancel()
	}
	if rt.journalStore != nil {
		if err := rt.journalStore.Close(); err != nil {
			rt.logger.Warn("journal store close failed", "error", err)
		}
	}
	if rt.bridge != nil {
		if backend, ok := rt.bridge.Client().Backend().(interface {
			Shutdown(context.Context) error
		}); ok {
			shutdownCtx, cancel := context.WithTimeout(ctx, backendShutdownTimeout)
			if err := backend.Shutdown(shutdownCtx); err != nil {
				rt.logger.Warn("backend flush incomplete on shutdown", "error", err)
			}
			cancel()
		}
	}
	if rt.obs != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, otelShutdownTimeout)
		if err := rt.obs.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("observability shutdown incomplete", "error", err)
		}
		cancel()
	}
}

// journalOutcome records one submission outcome when journaling is enabled.
func (rt *runtime) journalOutcome(report langfuse.Report, payload []byte) {
	if rt.journalWriter == nil {
		return
	}

	status := journal.StatusSubmitted
	switch {
	case report.Err != nil:
		status = journal.StatusFailed
	case report.TraceID == "" && report.GenerationID == "":
		status = journal.StatusSkipped
	}

	entry := &journal.Entry{
		TraceID:      report.TraceID,
		GenerationID: report.GenerationID,
		CallType:     report.CallType,
		Model:        report.Model,
		Level:        string(report.Level),
		Status:       status,
		Payload:      payload,
		RecordedAt:   time.Now().UTC(),
	}
	if report.Err != nil {
		entry.Error = report.Err.Error()
	}
	rt.journalWriter.Enqueue(entry)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/ongoingai/langfuse-bridge/internal/config"
	"github.com/ongoingai/langfuse-bridge/internal/event"
	"github.com/ongoingai/langfuse-bridge/internal/journal"
	"github.com/ongoingai/langfuse-bridge/internal/langfuse"
)

func runReplay(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("replay", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	limit := flagSet.Int("limit", 50, "Maximum number of failed submissions to replay")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "replay does not accept positional arguments")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, code := newRuntime(ctx, *configPath, errOut)
	if code != 0 {
		return code
	}
	defer rt.close(context.Background())

	if rt.journalStore == nil {
		fmt.Fprintln(errOut, "replay requires journal.enabled=true")
		return 1
	}

	failures, err := rt.journalStore.RecentFailures(ctx, *limit)
	if err != nil {
		fmt.Fprintf(errOut, "failed to read journal: %v\n", err)
		return 1
	}
	if len(failures) == 0 {
		fmt.Fprintln(out, "no failed submissions to replay")
		return 0
	}

	exit := 0
	for _, entry := range failures {
		if len(entry.Payload) == 0 {
			fmt.Fprintf(errOut, "entry %d: no capture payload, skipping\n", entry.ID)
			continue
		}

		capture, err := event.DecodeCapture(entry.Payload)
		if err != nil {
			fmt.Fprintf(errOut, "entry %d: %v\n", entry.ID, err)
			exit = 1
			continue
		}

		rt.lastReport = langfuse.Report{}
		result := rt.bridge.LogEvent(
			ctx,
			capture.Record,
			capture.Response,
			capture.StartTime,
			capture.EndTime,
			capture.UserID,
			capture.Level,
			capture.StatusMessage,
		)
		rt.journalOutcome(rt.lastReport, entry.Payload)

		if result.TraceID == "" && result.GenerationID == "" {
			fmt.Fprintf(out, "entry %d: replay not submitted\n", entry.ID)
			exit = 1
			continue
		}
		fmt.Fprintf(out, "entry %d: trace_id=%s generation_id=%s\n", entry.ID, result.TraceID, result.GenerationID)
	}
	return exit
}

func runFailures(args []string, out io.Writer, errOut io.Writer) int {
	flagSet := flag.NewFlagSet("failures", flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	limit := flagSet.Int("limit", 50, "Maximum number of failed submissions to list")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}
	if flagSet.NArg() != 0 {
		fmt.Fprintln(errOut, "failures does not accept positional arguments")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(errOut, "failed to load config: %v\n", err)
		return 1
	}
	if !cfg.Journal.Enabled {
		fmt.Fprintln(errOut, "failures requires journal.enabled=true")
		return 1
	}

	store, err := journal.Open(cfg.Journal)
	if err != nil {
		fmt.Fprintf(errOut, "failed to open journal: %v\n", err)
		return 1
	}
	defer store.Close()

	failures, err := store.RecentFailures(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(errOut, "failed to read journal: %v\n", err)
		return 1
	}
	if len(failures) == 0 {
		fmt.Fprintln(out, "no failed submissions")
		return 0
	}

	for _, entry := range failures {
		fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\n",
			entry.ID,
			entry.RecordedAt.Format(time.RFC3339),
			entry.CallType,
			entry.Model,
			truncateError(entry.Error, 120),
		)
	}
	return 0
}

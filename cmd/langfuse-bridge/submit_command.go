package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ongoingai/langfuse-bridge/internal/event"
	"github.com/ongoingai/langfuse-bridge/internal/langfuse"
)

func runSubmit(args []string, out io.Writer, errOut io.Writer) int {
	configPath, files, code := parseConfigFlag("submit", args, errOut)
	if code != 0 {
		return code
	}
	if len(files) == 0 {
		fmt.Fprintln(errOut, "submit requires at least one capture file (use - for stdin)")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, code := newRuntime(ctx, configPath, errOut)
	if code != 0 {
		return code
	}
	defer rt.close(context.Background())

	exit := 0
	for _, file := range files {
		if err := submitCapture(ctx, rt, file, out); err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", file, err)
			exit = 1
		}
	}
	return exit
}

func submitCapture(ctx context.Context, rt *runtime, file string, out io.Writer) error {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return fmt.Errorf("read capture: %w", err)
	}

	capture, err := event.DecodeCapture(data)
	if err != nil {
		return err
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
	rt.journalOutcome(rt.lastReport, data)

	if result.TraceID == "" && result.GenerationID == "" {
		fmt.Fprintf(out, "%s: not submitted\n", file)
		return nil
	}
	fmt.Fprintf(out, "%s: trace_id=%s generation_id=%s\n", file, result.TraceID, result.GenerationID)
	return nil
}

package main

import (
	"flag"
	"io"
	"strings"
)

// parseConfigFlag parses the shared -config flag for a subcommand and returns
// the config path, the remaining positional arguments, and a non-zero exit
// code on parse failure.
func parseConfigFlag(name string, args []string, errOut io.Writer) (string, []string, int) {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)
	flagSet.SetOutput(errOut)
	configPath := flagSet.String("config", defaultConfigPath, "Path to config file")
	if err := flagSet.Parse(args); err != nil {
		return "", nil, 2
	}
	return *configPath, flagSet.Args(), 0
}

// truncateError shortens error text for one-line listings.
func truncateError(msg string, max int) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	if max <= 0 || len(msg) <= max {
		return msg
	}
	return msg[:max] + "..."
}

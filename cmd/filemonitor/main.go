package main

import (
	"fmt"
	"io"
	"os"

	"filemonitor/internal/logging"

	"github.com/spf13/cobra"
)

type globalOptions struct {
	logLevel  string
	logFormat string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "filemonitor: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	globals := &globalOptions{}
	root := &cobra.Command{
		Use:           "filemonitor",
		Short:         "Watch directory trees and report file changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&globals.logLevel, "log-level", "", "log level (debug, info, warning, error)")
	root.PersistentFlags().StringVar(&globals.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(newWatchCommand(globals))
	root.AddCommand(newServeCommand(globals))
	root.AddCommand(newVersionCommand())
	return root
}

// newLogger renders to the command's stderr. Empty values fall back to the
// given defaults.
func newLogger(globals *globalOptions, cmd *cobra.Command, level, format string) (*logging.Logger, error) {
	if globals.logLevel != "" {
		level = globals.logLevel
	}
	if globals.logFormat != "" {
		format = globals.logFormat
	}
	parsedLevel, ok := logging.ParseLevel(level)
	if !ok {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	parsedFormat, ok := logging.ParseFormat(format)
	if !ok {
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logging.NewLoggerWithOptions(logging.Options{
		Buffer: logging.NewLogBuffer(logging.DefaultBufferSize),
		Level:  parsedLevel,
		Format: parsedFormat,
		Output: cmd.ErrOrStderr(),
	}), nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"filemonitor/internal/event"
	"filemonitor/internal/filter"
	"filemonitor/internal/logging"
	"filemonitor/internal/monitor"
	"filemonitor/internal/watcher"

	"github.com/spf13/cobra"
)

const (
	outputText = "text"
	outputJSON = "json"
)

type watchOptions struct {
	recursive bool
	flags     []string
	ignore    []string
	output    string
}

func newWatchCommand(globals *globalOptions) *cobra.Command {
	options := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch PATH",
		Short: "Print changes under PATH until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(globals, cmd, string(logging.LevelWarning), string(logging.FormatText))
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), logger)
			defer stop()
			return runWatch(ctx, args[0], *options, logger, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&options.recursive, "recursive", "r", false, "watch every subdirectory")
	cmd.Flags().StringArrayVar(&options.flags, "flag", nil, "monitor flag (watch_moves, send_moved, watch_mounts, watch_hard_links)")
	cmd.Flags().StringArrayVar(&options.ignore, "ignore", nil, "glob of paths to leave out of the output")
	cmd.Flags().StringVarP(&options.output, "output", "o", outputText, "output format (text, json)")
	return cmd
}

// runWatch prints events for path until ctx is done.
func runWatch(ctx context.Context, path string, options watchOptions, logger *logging.Logger, out io.Writer) error {
	if options.output != outputText && options.output != outputJSON {
		return fmt.Errorf("invalid output %q", options.output)
	}
	flags, err := monitor.ParseFlags(options.flags)
	if err != nil {
		return err
	}
	matcher, err := filter.NewMatcher(options.ignore)
	if err != nil {
		return err
	}
	absolute, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	backend, err := watcher.NewWithOptions(watcher.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer backend.Close()

	printer := &eventPrinter{out: out, format: options.output}
	m, err := monitor.New(monitor.Config{
		Path:      absolute,
		Recursive: options.recursive,
		Flags:     flags,
		Callback: func(changed string, kind monitor.Kind) {
			if matcher.IsIgnored(changed) {
				return
			}
			printer.print(event.NewFileEvent(absolute, changed, kind.String()))
		},
	},
		monitor.WithWatcher(backend),
		monitor.WithLogger(logger),
		monitor.WithRegistry(monitor.NewRegistry()),
	)
	if err != nil {
		return err
	}
	defer m.Cancel()

	logger.Info("watching", map[string]string{
		"path":    m.Path(),
		"watches": fmt.Sprint(m.WatchCount()),
	})
	<-ctx.Done()
	return nil
}

type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	format string
}

func (p *eventPrinter) print(payload event.FileEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.format == outputJSON {
		_ = json.NewEncoder(p.out).Encode(payload)
		return
	}
	fmt.Fprintf(p.out, "%s\t%s\t%s\n", payload.OccurredAt.Format(time.RFC3339Nano), payload.Kind, payload.Path)
}

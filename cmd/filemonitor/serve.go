package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"filemonitor/internal/config"
	"filemonitor/internal/event"
	"filemonitor/internal/filter"
	"filemonitor/internal/journal"
	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"
	"filemonitor/internal/monitor"
	"filemonitor/internal/server"
	"filemonitor/internal/watcher"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const eventHistorySize = 1000

type serveOptions struct {
	configPath string
	listen     string
}

func newServeCommand(globals *globalOptions) *cobra.Command {
	options := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run every configured monitor and serve events over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(options.configPath)
			if err != nil {
				return err
			}
			if listen := strings.TrimSpace(options.listen); listen != "" {
				cfg.Listen = listen
			}
			logger, err := newLogger(globals, cmd, cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context(), logger)
			defer stop()

			d, err := startDaemon(ctx, cfg, logger, metrics.Default)
			if err != nil {
				return err
			}
			defer d.Close()
			listener, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return err
			}
			return d.Run(ctx, listener)
		},
	}
	cmd.Flags().StringVarP(&options.configPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.Flags().StringVar(&options.listen, "listen", "", "HTTP listen address")
	return cmd
}

// daemon owns the shared backend, every configured monitor and the HTTP
// surface built on them.
type daemon struct {
	logger    *logging.Logger
	backend   *watcher.Watcher
	registry  *monitor.Registry
	bus       *event.Bus[event.FileEvent]
	journal   *journal.Journal
	server    *server.Server
	stopFuncs []func()
}

func startDaemon(ctx context.Context, cfg config.Config, logger *logging.Logger, registry *metrics.Registry) (*daemon, error) {
	backend, err := watcher.NewWithOptions(watcher.Options{
		Logger:     logger,
		Settle:     cfg.Settle,
		MaxWatches: cfg.MaxWatches,
		Metrics:    registry,
		ErrorHandler: func(err error) {
			logger.Error("watch backend failed", map[string]string{
				"filemonitor.category": "watcher",
				"error":                err.Error(),
			})
		},
	})
	if err != nil {
		return nil, err
	}

	d := &daemon{
		logger:   logger,
		backend:  backend,
		registry: monitor.NewRegistry(),
		bus: event.NewBus[event.FileEvent](ctx, event.BusOptions{
			Name:        "file_events",
			HistorySize: eventHistorySize,
			Metrics:     registry,
			Logger:      logger,
		}),
	}
	if cfg.Journal != "" {
		d.journal, err = journal.Open(cfg.Journal)
		if err != nil {
			d.Close()
			return nil, err
		}
	}

	for _, entry := range cfg.Watches {
		if err := d.addWatch(entry, registry); err != nil {
			d.Close()
			return nil, err
		}
	}

	d.server = &server.Server{
		Registry: d.registry,
		Bus:      d.bus,
		Logger:   logger,
		Metrics:  registry,
		Journal:  d.journal,
	}
	return d, nil
}

func (d *daemon) addWatch(entry config.Watch, registry *metrics.Registry) error {
	flags, err := entry.MonitorFlags()
	if err != nil {
		return err
	}
	matcher, err := filter.NewMatcher(entry.Ignore)
	if err != nil {
		return err
	}
	m, err := monitor.New(monitor.Config{
		Path:      entry.Path,
		Recursive: entry.Recursive,
		Flags:     flags,
	},
		monitor.WithWatcher(d.backend),
		monitor.WithLogger(d.logger),
		monitor.WithRegistry(d.registry),
		monitor.WithMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("watch %s: %w", entry.Path, err)
	}
	d.stopFuncs = append(d.stopFuncs, server.Publish(m, d.bus, matcher))
	return nil
}

// Run serves HTTP on listener and journals events until ctx is done or
// either task fails.
func (d *daemon) Run(ctx context.Context, listener net.Listener) error {
	group, groupCtx := errgroup.WithContext(ctx)
	if d.journal != nil {
		events, cancel := d.bus.Subscribe()
		group.Go(func() error {
			defer cancel()
			d.journal.Consume(groupCtx, events, d.logger)
			return nil
		})
	}
	group.Go(func() error {
		return d.server.Serve(groupCtx, listener)
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close cancels every monitor before releasing the backend.
func (d *daemon) Close() {
	for _, stop := range d.stopFuncs {
		stop()
	}
	d.stopFuncs = nil
	d.registry.CancelAll()
	d.bus.Close()
	_ = d.backend.Close()
	if d.journal != nil {
		_ = d.journal.Close()
	}
	d.logger.Info("filemonitor stopped", map[string]string{"filemonitor.category": "shutdown"})
}

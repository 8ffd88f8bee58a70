package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"filemonitor/internal/logging"
)

// signalContext returns a context cancelled on the first SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *logging.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	stopWatching := watchShutdownSignals(logger, cancel, signalCh)
	return ctx, func() {
		signal.Stop(signalCh)
		stopWatching()
		cancel()
	}
}

func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}

	done := make(chan struct{})
	var shutdownStarted atomic.Bool
	var loggedRepeat atomic.Bool

	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signalCh:
				if !ok {
					return
				}
				fields := map[string]string{"filemonitor.category": "shutdown"}
				if sig != nil {
					fields["signal"] = sig.String()
				}
				if shutdownStarted.CompareAndSwap(false, true) {
					if logger != nil {
						logger.Info("shutdown signal received", fields)
					}
					if shutdownCancel != nil {
						shutdownCancel()
					}
					continue
				}
				if loggedRepeat.CompareAndSwap(false, true) && logger != nil {
					logger.Info("shutdown already in progress; ignoring signal", fields)
				}
			}
		}
	}()

	var closeOnce atomic.Bool
	return func() {
		if closeOnce.CompareAndSwap(false, true) {
			close(done)
		}
	}
}

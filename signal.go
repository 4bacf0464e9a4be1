package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// exitInterrupted is the conventional status for death by SIGINT.
const exitInterrupted = 130

// shutdownContext returns a context canceled by the first SIGINT/SIGTERM.
// Running downloads stop at their next chunk and the staging area is cleaned
// up. A second signal exits immediately.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)

	go watchInterrupts(ctx, parent, cancel, interrupts, logger)

	return ctx
}

func watchInterrupts(ctx, parent context.Context, cancel context.CancelFunc, interrupts chan os.Signal, logger *slog.Logger) {
	defer signal.Stop(interrupts)

	// Until the first signal, stop with ctx. Afterwards ctx is already done,
	// so keep listening for a second signal until the parent ends.
	done := ctx.Done()
	interrupted := false

	for {
		select {
		case sig := <-interrupts:
			if interrupted {
				logger.Warn("interrupted again, exiting now", slog.String("signal", sig.String()))
				os.Exit(exitInterrupted)
			}

			logger.Info("interrupted, stopping after in-flight chunks", slog.String("signal", sig.String()))

			interrupted = true
			done = parent.Done()

			cancel()
		case <-done:
			return
		}
	}
}

package exporter

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalHandler turns SIGINT/SIGTERM into context cancellation and SIGHUP
// into reload requests. Reload requests can also be raised programmatically
// with RequestReload, which the config watcher uses.
type SignalHandler struct {
	logger   *slog.Logger
	reloadCh chan struct{}
}

// NewSignalHandler creates a new signal handler.
func NewSignalHandler(logger *slog.Logger) *SignalHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalHandler{
		logger:   logger,
		reloadCh: make(chan struct{}, 1),
	}
}

// Start begins listening for signals. The returned context is cancelled on
// the first shutdown signal or when parent is done.
func (h *SignalHandler) Start(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					h.logger.Info("received reload signal")
					h.RequestReload()
					continue
				}
				h.logger.Info("received shutdown signal", "signal", sig)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return ctx
}

// RequestReload queues a reload. Requests coalesce while one is pending.
func (h *SignalHandler) RequestReload() {
	select {
	case h.reloadCh <- struct{}{}:
	default:
	}
}

// Reload returns a channel that receives once per queued reload.
func (h *SignalHandler) Reload() <-chan struct{} {
	return h.reloadCh
}

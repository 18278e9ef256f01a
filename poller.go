package exporter

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCycleInProgress is returned by RunCycle when another cycle is running.
var ErrCycleInProgress = errors.New("collection cycle already in progress")

// PollerConfig configures a Poller.
type PollerConfig struct {
	Runner Runner
	Parser Parser
	Store  *Store
	Logger *slog.Logger

	// OnPublish is called with every snapshot after it has been published.
	OnPublish func(Snapshot)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Poller runs collection cycles. At most one cycle is in flight at a time;
// triggers that arrive while a cycle is running are dropped.
type Poller struct {
	runner    Runner
	parser    Parser
	store     *Store
	logger    *slog.Logger
	onPublish func(Snapshot)
	now       func() time.Time

	busy  atomic.Bool
	wg    sync.WaitGroup
	stats statsTracker
}

// NewPoller creates a Poller. Runner and Store are required; Parser defaults
// to a HighstateParser.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.Parser == nil {
		cfg.Parser = NewHighstateParser()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		runner:    cfg.Runner,
		parser:    cfg.Parser,
		store:     cfg.Store,
		logger:    cfg.Logger,
		onPublish: cfg.OnPublish,
		now:       cfg.Now,
	}
}

// Trigger starts a cycle in the background unless one is already running
// or ctx is done. It reports whether a cycle was started.
func (p *Poller) Trigger(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.stats.recordSkip()
		p.logger.Debug("previous highstate run still in progress, skipping tick")
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.cycle(ctx)
	}()
	return true
}

// RunCycle runs one cycle synchronously.
func (p *Poller) RunCycle(ctx context.Context) error {
	if !p.busy.CompareAndSwap(false, true) {
		return ErrCycleInProgress
	}
	defer p.busy.Store(false)
	return p.cycle(ctx)
}

// Running reports whether a cycle is in flight.
func (p *Poller) Running() bool {
	return p.busy.Load()
}

// Wait blocks until any cycle started by Trigger has finished.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Stats returns a snapshot of cycle statistics.
func (p *Poller) Stats() PollStats {
	return p.stats.snapshot()
}

func (p *Poller) cycle(ctx context.Context) error {
	start := p.now()

	lines, err := p.runner.Run(ctx)
	finished := p.now()
	duration := finished.Sub(start)

	if err != nil {
		p.stats.recordCycle(err, duration, finished)
		p.logger.Error("highstate run failed, keeping previous metrics",
			"kind", failureKind(err),
			"error", err,
			"duration", duration,
		)
		return err
	}

	snap := Snapshot{
		Counts:      p.parser.Parse(lines),
		LastRunUnix: finished.Unix(),
		Valid:       true,
	}
	p.store.Publish(snap)
	p.stats.recordCycle(nil, duration, finished)

	p.logger.Info("highstate run completed",
		"states", snap.TotalStates,
		"nonhigh", snap.NonHighStates,
		"errors", snap.ErrorStates,
		"duration", duration,
		"format_version", HighstateFormatVersion,
	)

	if p.onPublish != nil {
		p.onPublish(p.store.Load())
	}
	return nil
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrCapture):
		return "capture"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrExitStatus):
		return "exit_status"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unknown"
	}
}

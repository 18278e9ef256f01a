package exporter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Sink receives every published snapshot. Sinks are secondary outputs; the
// Prometheus endpoint always reads the Store directly.
type Sink interface {
	// Name returns the sink name for logging.
	Name() string

	// Initialize sets up the sink connection.
	Initialize(ctx context.Context) error

	// Write delivers one snapshot.
	Write(ctx context.Context, snap Snapshot) error

	// Close cleanly shuts down the sink.
	Close() error

	// Healthy returns true if the sink is operational.
	Healthy() bool
}

// Echo is a debug sink that writes each snapshot as an InfluxDB line
// protocol record to an io.Writer.
type Echo struct {
	writer      io.Writer
	measurement string
	logger      *slog.Logger

	mu      sync.RWMutex
	healthy bool
}

// NewEcho creates an Echo sink writing to w (stdout when nil).
func NewEcho(w io.Writer, measurement string, logger *slog.Logger) *Echo {
	if w == nil {
		w = os.Stdout
	}
	if measurement == "" {
		measurement = "saltstack_highstate"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Echo{
		writer:      w,
		measurement: measurement,
		logger:      logger,
		healthy:     true,
	}
}

func (e *Echo) Name() string {
	return "echo"
}

func (e *Echo) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = true
	return nil
}

func (e *Echo) Write(ctx context.Context, snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := fmt.Fprintln(e.writer, snap.LineProtocol(e.measurement)); err != nil {
		return fmt.Errorf("failed to echo snapshot: %w", err)
	}
	return nil
}

func (e *Echo) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = false
	return nil
}

func (e *Echo) Healthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthy
}

// LineProtocol renders the snapshot as a single line protocol record with
// second precision.
func (s Snapshot) LineProtocol(measurement string) string {
	return fmt.Sprintf("%s states_total=%di,nonhigh_states=%di,error_states=%di,last_highstate=%di %d",
		measurement,
		s.TotalStates,
		s.NonHighStates,
		s.ErrorStates,
		s.LastRunUnix,
		s.LastRunUnix,
	)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        *slog.Logger
}

// Dispatcher hands published snapshots to sinks on a background goroutine so
// a slow sink never delays the poller. Only the newest undelivered snapshot
// is kept.
type Dispatcher struct {
	sinks         []Sink
	retryAttempts int
	retryDelay    time.Duration
	logger        *slog.Logger

	pending chan Snapshot
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given sinks.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		sinks:         sinks,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		logger:        cfg.Logger,
		pending:       make(chan Snapshot, 1),
		done:          make(chan struct{}),
	}
}

// Len returns the number of sinks.
func (d *Dispatcher) Len() int {
	return len(d.sinks)
}

// Start initializes every sink and begins delivery.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, s := range d.sinks {
		if err := s.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize sink %s: %w", s.Name(), err)
		}
		d.logger.Info("sink initialized", "sink", s.Name())
	}

	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Push queues a snapshot for delivery, replacing any snapshot that has not
// been picked up yet. It never blocks.
func (d *Dispatcher) Push(snap Snapshot) {
	if len(d.sinks) == 0 {
		return
	}
	for {
		select {
		case d.pending <- snap:
			return
		default:
		}
		select {
		case <-d.pending:
		default:
		}
	}
}

// Stop delivers a pending snapshot, then closes every sink.
func (d *Dispatcher) Stop(ctx context.Context) error {
	close(d.done)
	d.wg.Wait()

	select {
	case snap := <-d.pending:
		d.deliver(ctx, snap)
	default:
	}

	var lastErr error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			d.logger.Error("sink close failed", "sink", s.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case snap := <-d.pending:
			d.deliver(ctx, snap)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, snap Snapshot) {
	for _, s := range d.sinks {
		if !s.Healthy() {
			d.logger.Warn("skipping unhealthy sink", "sink", s.Name())
			continue
		}
		if err := d.writeWithRetry(ctx, s, snap); err != nil {
			d.logger.Error("sink write failed", "sink", s.Name(), "error", err)
		}
	}
}

func (d *Dispatcher) writeWithRetry(ctx context.Context, s Sink, snap Snapshot) error {
	var lastErr error
	for attempt := 1; attempt <= d.retryAttempts; attempt++ {
		err := s.Write(ctx, snap)
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt < d.retryAttempts {
			d.logger.Warn("sink write failed, retrying",
				"sink", s.Name(),
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.retryDelay):
			}
		}
	}
	return lastErr
}

var _ Sink = (*Echo)(nil)

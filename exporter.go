package exporter

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Exporter owns the collection side of the service: it runs the polling
// loop, feeds the Store, and fans snapshots out to sinks. The HTTP surface
// lives in the promexporter package and only reads the Store.
type Exporter struct {
	cfg      *Config
	cfgPath  string
	logger   *slog.Logger
	levelVar *slog.LevelVar
	runner   Runner
	parser   Parser
	store    *Store
	sinks    []Sink
	reloadFn func(string) (*Config, error)
	watch    bool

	poller     *Poller
	dispatcher *Dispatcher
	signals    *SignalHandler
}

// New creates an Exporter from the given options.
func New(opts ...Option) (*Exporter, error) {
	e := &Exporter{}

	for _, opt := range opts {
		opt(e)
	}

	if e.cfg == nil && e.cfgPath != "" {
		cfg, err := LoadConfig(e.cfgPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		e.cfg = cfg
	}

	if e.cfg == nil {
		e.cfg = DefaultConfig()
	}

	if e.logger == nil {
		e.logger, e.levelVar = NewLogger(e.cfg.Global.LogLevel, e.cfg.Global.LogFormat, nil)
	}

	if e.runner == nil {
		e.runner = NewCommandRunner(e.cfg.Command, e.logger)
	}
	if e.parser == nil {
		e.parser = NewHighstateParser()
	}
	if e.store == nil {
		e.store = NewStore()
	}

	if e.cfg.Sinks.Echo {
		e.sinks = append(e.sinks, NewEcho(nil, e.cfg.InfluxDB.Measurement, e.logger))
	}

	e.dispatcher = NewDispatcher(DispatcherConfig{
		RetryAttempts: e.cfg.Sinks.RetryAttempts,
		RetryDelay:    e.cfg.Sinks.RetryDelay.Duration,
		Logger:        e.logger,
	}, e.sinks...)

	e.poller = NewPoller(PollerConfig{
		Runner:    e.runner,
		Parser:    e.parser,
		Store:     e.store,
		Logger:    e.logger,
		OnPublish: e.dispatcher.Push,
	})

	return e, nil
}

// Config returns the active configuration.
func (e *Exporter) Config() *Config {
	return e.cfg
}

// Logger returns the exporter's logger.
func (e *Exporter) Logger() *slog.Logger {
	return e.logger
}

// Store returns the snapshot store read by the metrics endpoint.
func (e *Exporter) Store() *Store {
	return e.store
}

// Stats returns a snapshot of collection statistics.
func (e *Exporter) Stats() PollStats {
	return e.poller.Stats()
}

// RunOnce performs a single synchronous collection cycle.
func (e *Exporter) RunOnce(ctx context.Context) error {
	if err := e.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sinks: %w", err)
	}
	defer e.stopDispatcher()

	return e.poller.RunCycle(ctx)
}

// Run starts the polling loop and blocks until ctx is cancelled or a
// shutdown signal arrives. Collection failures are logged, never returned.
// An Exporter is single-use: call either Run or RunOnce, once.
func (e *Exporter) Run(ctx context.Context) error {
	interval := e.cfg.Global.PollInterval.Duration
	e.logger.Info("starting saltstack exporter", "interval", interval)

	if err := e.dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sinks: %w", err)
	}
	defer e.stopDispatcher()

	e.signals = NewSignalHandler(e.logger)
	ctx = e.signals.Start(ctx)

	if e.watch && e.cfgPath != "" {
		go func() {
			if err := WatchConfig(ctx, e.cfgPath, e.logger, e.signals.RequestReload); err != nil {
				e.logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	// The first run happens immediately so metrics appear without waiting a
	// full interval.
	e.poller.Trigger(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if e.poller.Running() {
				e.logger.Info("shutting down, waiting for running highstate to stop")
			}
			e.poller.Wait()
			e.logger.Info("shutdown complete")
			return nil

		case <-e.signals.Reload():
			e.handleReload(ticker)

		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			e.poller.Trigger(ctx)
		}
	}
}

func (e *Exporter) stopDispatcher() {
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.dispatcher.Stop(stopCtx); err != nil {
		e.logger.Error("error stopping sinks", "error", err)
	}
}

func (e *Exporter) handleReload(ticker *time.Ticker) {
	e.logger.Info("reloading configuration")

	var newCfg *Config
	var err error

	if e.reloadFn != nil {
		newCfg, err = e.reloadFn(e.cfgPath)
	} else if e.cfgPath != "" {
		newCfg, err = LoadConfig(e.cfgPath)
	} else {
		e.logger.Warn("no config path or reload function, ignoring reload signal")
		return
	}

	if err == nil {
		err = newCfg.Validate()
	}
	if err != nil {
		e.logger.Error("config reload failed, keeping current config", "error", err)
		return
	}

	if newCfg.Global.PollInterval.Duration != e.cfg.Global.PollInterval.Duration {
		ticker.Reset(newCfg.Global.PollInterval.Duration)
		e.logger.Info("updated poll interval", "interval", newCfg.Global.PollInterval.Duration)
	}

	if e.levelVar != nil && newCfg.Global.LogLevel != e.cfg.Global.LogLevel {
		e.levelVar.Set(ParseLogLevel(newCfg.Global.LogLevel))
		e.logger.Info("updated log level", "level", newCfg.Global.LogLevel)
	}

	// Only the interval and log level apply live; the listener, command and
	// sinks keep their startup settings.
	e.cfg.Global.PollInterval = newCfg.Global.PollInterval
	e.cfg.Global.LogLevel = newCfg.Global.LogLevel
}

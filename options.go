package exporter

import "log/slog"

// Option configures an Exporter.
type Option func(*Exporter)

// WithConfigFile sets the path to a TOML or YAML config file. The path is
// also what reloads re-read.
func WithConfigFile(path string) Option {
	return func(e *Exporter) {
		e.cfgPath = path
	}
}

// WithConfig provides a Config directly instead of loading from file.
func WithConfig(cfg *Config) Option {
	return func(e *Exporter) {
		e.cfg = cfg
	}
}

// WithLogger provides a custom logger. Reloads cannot change its level.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithLogLevelVar attaches the LevelVar behind a logger given to WithLogger
// so reloads can adjust it.
func WithLogLevelVar(levelVar *slog.LevelVar) Option {
	return func(e *Exporter) {
		e.levelVar = levelVar
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(e *Exporter) {
		e.runner = r
	}
}

// WithParser replaces the highstate output parser.
func WithParser(p Parser) Option {
	return func(e *Exporter) {
		e.parser = p
	}
}

// WithStore makes the exporter publish into an existing store.
func WithStore(s *Store) Option {
	return func(e *Exporter) {
		e.store = s
	}
}

// WithSink adds a sink that receives every published snapshot.
func WithSink(s Sink) Option {
	return func(e *Exporter) {
		e.sinks = append(e.sinks, s)
	}
}

// WithWatchConfig reloads the config file whenever it changes on disk.
func WithWatchConfig(enabled bool) Option {
	return func(e *Exporter) {
		e.watch = enabled
	}
}

// WithReloadFunc provides a custom config reload function.
// The function receives the config file path and returns a new Config.
func WithReloadFunc(fn func(path string) (*Config, error)) Option {
	return func(e *Exporter) {
		e.reloadFn = fn
	}
}

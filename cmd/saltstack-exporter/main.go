package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	exporter "github.com/danweinerdev/saltstack-exporter"
	"github.com/danweinerdev/saltstack-exporter/influxdb"
	"github.com/danweinerdev/saltstack-exporter/promexporter"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "saltstack-exporter:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	listenAddr := flag.String("listen-addr", "", "address to bind to (default: all interfaces)")
	listenPort := flag.Int("listen-port", 9175, "port to bind to")
	interval := flag.Int("highstate-interval", 300, "seconds between each highstate test run")
	logLevel := flag.String("log-level", "warn", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "text", "log format (text, json)")
	once := flag.Bool("once", false, "run one highstate test, print the metrics and exit")
	watch := flag.Bool("watch-config", false, "reload the config file when it changes")
	flag.Parse()

	cfg := exporter.DefaultConfig()
	if *configPath != "" {
		loaded, err := exporter.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags given explicitly win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen-addr":
			cfg.Listen.Address = *listenAddr
		case "listen-port":
			cfg.Listen.Port = *listenPort
		case "highstate-interval":
			cfg.Global.PollInterval = exporter.Duration{Duration: time.Duration(*interval) * time.Second}
		case "log-level":
			cfg.Global.LogLevel = *logLevel
		case "log-format":
			cfg.Global.LogFormat = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, levelVar := exporter.NewLogger(cfg.Global.LogLevel, cfg.Global.LogFormat, nil)

	opts := []exporter.Option{
		exporter.WithConfig(cfg),
		exporter.WithConfigFile(*configPath),
		exporter.WithLogger(logger),
		exporter.WithLogLevelVar(levelVar),
		exporter.WithWatchConfig(*watch),
	}
	if cfg.InfluxDB.Enabled {
		opts = append(opts, exporter.WithSink(influxdb.New(cfg.InfluxDB, logger)))
	}

	exp, err := exporter.New(opts...)
	if err != nil {
		return err
	}

	ctx := context.Background()

	if *once {
		if err := exp.RunOnce(ctx); err != nil {
			return err
		}
		renderer, err := promexporter.NewRenderer(exp.Store())
		if err != nil {
			return err
		}
		return renderer.Render(os.Stdout)
	}

	srv, err := promexporter.New(exp.Config().Listen, exp.Store(), exp.Logger())
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer srv.Close()

	return exp.Run(ctx)
}

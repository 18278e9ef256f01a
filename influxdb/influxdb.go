// Package influxdb mirrors highstate snapshots into InfluxDB 2.x.
package influxdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	exporter "github.com/danweinerdev/saltstack-exporter"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Sink implements exporter.Sink for InfluxDB 2.x.
type Sink struct {
	cfg    exporter.InfluxDBConfig
	client influxdb2.Client
	writer api.WriteAPIBlocking
	logger *slog.Logger

	mu sync.RWMutex
}

// New creates a new InfluxDB sink.
func New(cfg exporter.InfluxDBConfig, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "saltstack_highstate"
	}
	return &Sink{
		cfg:    cfg,
		logger: logger,
	}
}

func (s *Sink) Name() string {
	return "influxdb"
}

func (s *Sink) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("connecting to InfluxDB", "url", s.cfg.URL, "org", s.cfg.Org, "bucket", s.cfg.Bucket)

	opts := influxdb2.DefaultOptions().SetPrecision(time.Second)
	client := influxdb2.NewClientWithOptions(s.cfg.URL, s.cfg.Token, opts)

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		return fmt.Errorf("InfluxDB health check failed: %s", health.Status)
	}

	s.client = client
	s.writer = client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)

	version := "unknown"
	if health.Version != nil {
		version = *health.Version
	}
	s.logger.Info("connected to InfluxDB", "version", version)
	return nil
}

// Point converts a snapshot into an InfluxDB point.
func (s *Sink) Point(snap exporter.Snapshot) *write.Point {
	return influxdb2.NewPoint(
		s.cfg.Measurement,
		nil,
		map[string]interface{}{
			"states_total":   snap.TotalStates,
			"nonhigh_states": snap.NonHighStates,
			"error_states":   snap.ErrorStates,
			"last_highstate": snap.LastRunUnix,
		},
		time.Unix(snap.LastRunUnix, 0),
	)
}

func (s *Sink) Write(ctx context.Context, snap exporter.Snapshot) error {
	if !snap.Valid {
		return nil
	}

	s.mu.RLock()
	writer := s.writer
	s.mu.RUnlock()

	if writer == nil {
		return fmt.Errorf("InfluxDB not initialized")
	}

	if err := writer.WritePoint(ctx, s.Point(snap)); err != nil {
		return fmt.Errorf("failed to write to InfluxDB: %w", err)
	}

	s.logger.Debug("wrote snapshot to InfluxDB", "measurement", s.cfg.Measurement)
	return nil
}

func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
		s.client = nil
		s.writer = nil
		s.logger.Info("InfluxDB connection closed")
	}
	return nil
}

// Healthy reports whether the sink holds an open connection. Individual
// write failures do not mark it unhealthy; the dispatcher retries them.
func (s *Sink) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writer != nil
}

// Compile-time check.
var _ exporter.Sink = (*Sink)(nil)

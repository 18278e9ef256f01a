package exporter

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateGlobal()...)
	errs = append(errs, c.validateListen()...)
	errs = append(errs, c.validateCommand()...)
	errs = append(errs, c.validateInfluxDB()...)
	errs = append(errs, c.validateSinks()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateGlobal() ValidationErrors {
	var errs ValidationErrors

	if c.Global.PollInterval.Duration <= 0 {
		errs = append(errs, ValidationError{
			Field:   "global.poll_interval",
			Message: "must be positive",
		})
	}

	if !validLogLevel(c.Global.LogLevel) {
		errs = append(errs, ValidationError{
			Field:   "global.log_level",
			Message: "must be one of: debug, info, warn, error",
		})
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "global.log_format",
			Message: "must be one of: text, json",
		})
	}

	return errs
}

func (c *Config) validateListen() ValidationErrors {
	var errs ValidationErrors

	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "listen.port",
			Message: "must be a valid port (1-65535)",
		})
	}

	if c.Listen.MetricsPath == "" {
		errs = append(errs, ValidationError{
			Field:   "listen.metrics_path",
			Message: "required",
		})
	} else if !strings.HasPrefix(c.Listen.MetricsPath, "/") {
		errs = append(errs, ValidationError{
			Field:   "listen.metrics_path",
			Message: "must start with /",
		})
	} else if c.Listen.MetricsPath == "/" || c.Listen.MetricsPath == "/healthcheck" {
		errs = append(errs, ValidationError{
			Field:   "listen.metrics_path",
			Message: "conflicts with a built-in route",
		})
	}

	return errs
}

func (c *Config) validateCommand() ValidationErrors {
	var errs ValidationErrors

	if strings.TrimSpace(c.Command.Binary) == "" {
		errs = append(errs, ValidationError{
			Field:   "command.binary",
			Message: "required",
		})
	}

	if c.Command.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "command.timeout",
			Message: "must not be negative",
		})
	}

	return errs
}

func (c *Config) validateInfluxDB() ValidationErrors {
	var errs ValidationErrors

	if !c.InfluxDB.Enabled {
		return errs
	}

	if c.InfluxDB.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.url",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Token == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.token",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Org == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.org",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Bucket == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.bucket",
			Message: "required when InfluxDB is enabled",
		})
	}

	if c.InfluxDB.Measurement == "" {
		errs = append(errs, ValidationError{
			Field:   "influxdb.measurement",
			Message: "required when InfluxDB is enabled",
		})
	}

	return errs
}

func (c *Config) validateSinks() ValidationErrors {
	var errs ValidationErrors

	if c.Sinks.RetryAttempts <= 0 {
		errs = append(errs, ValidationError{
			Field:   "sinks.retry_attempts",
			Message: "must be positive",
		})
	}

	if c.Sinks.RetryDelay.Duration < 0 {
		errs = append(errs, ValidationError{
			Field:   "sinks.retry_delay",
			Message: "must not be negative",
		})
	}

	return errs
}

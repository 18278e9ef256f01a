package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Failure kinds returned by CommandRunner. Match them with errors.Is.
var (
	ErrSpawn      = errors.New("command could not be started")
	ErrCapture    = errors.New("command output could not be captured")
	ErrTimeout    = errors.New("command timed out")
	ErrExitStatus = errors.New("command exited with non-zero status")
)

// waitDelay bounds how long Wait keeps draining output after the process
// exits or is killed, in case a grandchild still holds the pipes.
const waitDelay = 5 * time.Second

// Runner executes the dry-run command and returns its stdout split into
// lines. A nil error means output was captured, whatever the lines contain.
type Runner interface {
	Run(ctx context.Context) ([]string, error)
}

// CommandRunner runs a fixed argument vector through os/exec. There is no
// shell, so nothing in Args is ever interpolated.
type CommandRunner struct {
	binary          string
	args            []string
	timeout         time.Duration
	requireZeroExit bool
	logger          *slog.Logger
}

// NewCommandRunner creates a runner for the given command settings.
func NewCommandRunner(cfg CommandConfig, logger *slog.Logger) *CommandRunner {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]string, len(cfg.Args))
	copy(args, cfg.Args)
	return &CommandRunner{
		binary:          cfg.Binary,
		args:            args,
		timeout:         cfg.Timeout.Duration,
		requireZeroExit: cfg.RequireZeroExit,
		logger:          logger,
	}
}

// String returns the command line for logging.
func (r *CommandRunner) String() string {
	return strings.Join(append([]string{r.binary}, r.args...), " ")
}

func (r *CommandRunner) Run(ctx context.Context) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, r.args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("command cancelled: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSpawn, r.binary, err)
	}

	waitErr := cmd.Wait()
	duration := time.Since(start)

	if stderr.Len() > 0 {
		r.logger.Debug("command stderr", "command", r.String(), "stderr", stderr.String())
	}

	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, duration.Round(time.Millisecond), r.String())
	case ctxErr != nil:
		return nil, fmt.Errorf("command cancelled: %w", ctxErr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) || errors.Is(waitErr, exec.ErrWaitDelay) {
			return nil, fmt.Errorf("%w: %w", ErrCapture, waitErr)
		}
		if r.requireZeroExit {
			return nil, fmt.Errorf("%w: %d", ErrExitStatus, exitErr.ExitCode())
		}
		// salt-call exits non-zero whenever a state would fail; the output is
		// still the data we want.
		r.logger.Warn("command exited with non-zero status",
			"command", r.String(),
			"exit_code", exitErr.ExitCode(),
		)
	}

	r.logger.Debug("command finished",
		"command", r.String(),
		"bytes", stdout.Len(),
		"duration", duration,
	)

	return strings.Split(stdout.String(), "\n"), nil
}

var _ Runner = (*CommandRunner)(nil)

package exporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRunner returns canned results. When block is non-nil every call waits
// on it (or on ctx) before returning.
type fakeRunner struct {
	mu      sync.Mutex
	results []fakeResult
	calls   atomic.Int64
	block   chan struct{}
	started chan struct{}
}

type fakeResult struct {
	lines []string
	err   error
}

func (f *fakeRunner) push(lines []string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fakeResult{lines: lines, err: err})
}

func (f *fakeRunner) Run(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, fmt.Errorf("command cancelled: %w", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return []string{}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.lines, r.err
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestPollerPublishesOnSuccess(t *testing.T) {
	runner := &fakeRunner{}
	runner.push([]string{"  ID: a", "  Result: None", "  ID: b", "  Result: False"}, nil)

	store := NewStore()
	var published []Snapshot
	p := NewPoller(PollerConfig{
		Runner:    runner,
		Store:     store,
		Now:       fixedClock(1700000000),
		OnPublish: func(s Snapshot) { published = append(published, s) },
	})

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	want := Snapshot{
		Counts:      Counts{TotalStates: 2, NonHighStates: 1, ErrorStates: 1},
		LastRunUnix: 1700000000,
		Valid:       true,
	}
	if got := store.Load(); got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
	if len(published) != 1 || published[0] != want {
		t.Errorf("OnPublish got %+v, want one %+v", published, want)
	}

	stats := p.Stats()
	if stats.TotalCycles != 1 || stats.SuccessfulCycles != 1 {
		t.Errorf("stats = %+v, want one successful cycle", stats)
	}
}

func TestPollerEmptyOutputIsSuccess(t *testing.T) {
	runner := &fakeRunner{}
	runner.push(nil, nil)

	store := NewStore()
	p := NewPoller(PollerConfig{Runner: runner, Store: store, Now: fixedClock(42)})

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	got := store.Load()
	if !got.Valid || got.Counts != (Counts{}) || got.LastRunUnix != 42 {
		t.Errorf("Load() = %+v, want valid zero counts at 42", got)
	}
}

func TestPollerFailureLeavesStoreUntouched(t *testing.T) {
	runner := &fakeRunner{}
	runner.push([]string{"  ID: a"}, nil)
	runner.push(nil, fmt.Errorf("%w: salt-call: not found", ErrSpawn))

	store := NewStore()
	now := int64(100)
	p := NewPoller(PollerConfig{
		Runner: runner,
		Store:  store,
		Now:    func() time.Time { return time.Unix(now, 0) },
	})

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle() error: %v", err)
	}
	before := store.Load()

	now = 200
	err := p.RunCycle(context.Background())
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("second RunCycle() error = %v, want ErrSpawn", err)
	}

	after := store.Load()
	if after != before {
		t.Errorf("Load() = %+v after failure, want unchanged %+v", after, before)
	}
	if after.LastRunUnix != 100 {
		t.Errorf("LastRunUnix = %d, want 100", after.LastRunUnix)
	}

	stats := p.Stats()
	if stats.FailedCycles != 1 || stats.SuccessfulCycles != 1 {
		t.Errorf("stats = %+v, want 1 success and 1 failure", stats)
	}
	if stats.LastError == "" {
		t.Error("LastError should be recorded")
	}
}

func TestPollerFailureBeforeFirstSuccess(t *testing.T) {
	runner := &fakeRunner{}
	runner.push(nil, fmt.Errorf("%w: boom", ErrCapture))

	store := NewStore()
	p := NewPoller(PollerConfig{Runner: runner, Store: store})
	p.RunCycle(context.Background())

	if got := store.Load(); got.Valid || got.LastRunUnix != 0 {
		t.Errorf("Load() = %+v, want the invalid placeholder", got)
	}
}

func TestPollerSkipsWhileRunning(t *testing.T) {
	runner := &fakeRunner{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	store := NewStore()
	p := NewPoller(PollerConfig{Runner: runner, Store: store})

	ctx := context.Background()
	if !p.Trigger(ctx) {
		t.Fatal("first Trigger() should start a cycle")
	}
	<-runner.started

	if p.Trigger(ctx) {
		t.Error("Trigger() should skip while a cycle is running")
	}
	if err := p.RunCycle(ctx); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("RunCycle() error = %v, want ErrCycleInProgress", err)
	}
	if !p.Running() {
		t.Error("Running() should be true while blocked")
	}

	close(runner.block)
	p.Wait()

	if p.Running() {
		t.Error("Running() should be false after the cycle finished")
	}
	if got := runner.calls.Load(); got != 1 {
		t.Errorf("runner called %d times, want 1", got)
	}
	if got := p.Stats().SkippedTicks; got != 1 {
		t.Errorf("SkippedTicks = %d, want 1", got)
	}

	if !p.Trigger(ctx) {
		t.Error("Trigger() should start a new cycle once idle")
	}
	p.Wait()
}

func TestPollerWaitReturnsAfterCancel(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	store := NewStore()
	p := NewPoller(PollerConfig{Runner: runner, Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	p.Trigger(ctx)
	<-runner.started
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait() should return once the cycle is cancelled")
	}

	if store.Load().Valid {
		t.Error("a cancelled cycle must not publish")
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", ErrSpawn), "spawn"},
		{fmt.Errorf("%w: x", ErrCapture), "capture"},
		{fmt.Errorf("%w after 1s", ErrTimeout), "timeout"},
		{fmt.Errorf("%w: 2", ErrExitStatus), "exit_status"},
		{fmt.Errorf("command cancelled: %w", context.Canceled), "cancelled"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		if got := failureKind(tt.err); got != tt.want {
			t.Errorf("failureKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPollerTriggerAfterCancel(t *testing.T) {
	runner := &fakeRunner{}
	p := NewPoller(PollerConfig{Runner: runner, Store: NewStore()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if p.Trigger(ctx) {
		t.Error("Trigger() should not start a cycle on a cancelled context")
	}
	p.Wait()
	if got := runner.calls.Load(); got != 0 {
		t.Errorf("runner called %d times, want 0", got)
	}
	if stats := p.Stats(); stats.TotalCycles != 0 {
		t.Errorf("stats = %+v, want no cycles", stats)
	}
}

func TestPollerLastSuccessMatchesLastRun(t *testing.T) {
	runner := &fakeRunner{}
	runner.push([]string{"  ID: a"}, nil)

	var tick int64
	store := NewStore()
	p := NewPoller(PollerConfig{
		Runner: runner,
		Store:  store,
		Now: func() time.Time {
			tick++
			return time.Unix(1700000000+tick*60, 0)
		},
	})

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}

	stats := p.Stats()
	if got := store.Load().LastRunUnix; stats.LastSuccess.Unix() != got {
		t.Errorf("LastSuccess = %d, want the published LastRunUnix %d", stats.LastSuccess.Unix(), got)
	}
	if stats.LastDuration != time.Minute {
		t.Errorf("LastDuration = %v, want 1m", stats.LastDuration)
	}
}

func TestPollerLogsFormatVersion(t *testing.T) {
	runner := &fakeRunner{}
	runner.push([]string{"  ID: a"}, nil)

	var buf bytes.Buffer
	logger, _ := NewLogger("info", "text", &buf)
	p := NewPoller(PollerConfig{Runner: runner, Store: NewStore(), Logger: logger})

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle() error: %v", err)
	}
	want := fmt.Sprintf("format_version=%d", HighstateFormatVersion)
	if !strings.Contains(buf.String(), want) {
		t.Errorf("log output = %q, want %q", buf.String(), want)
	}
}

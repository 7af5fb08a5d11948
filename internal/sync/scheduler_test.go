package sync

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"soil-sync-service/internal/config"
	"soil-sync-service/internal/store"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:             false,
		PeriodicInterval:    "1h",
		PostWriteDelay:      "80ms",
		BackoffBase:         "50ms",
		BackoffBasePeriodic: "60ms",
		BackoffMax:          "400ms",
		ConnectivityRetry:   "40ms",
	}
}

// fakeRunner records pass invocations and plays back scripted results.
type fakeRunner struct {
	mu      gosync.Mutex
	calls   []time.Time
	results []PassStatus
	block   chan struct{}
	started chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 16)}
}

func (f *fakeRunner) RunPass(ctx context.Context) *PassResult {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	status := PassSuccess
	if len(f.results) > 0 {
		status = f.results[0]
		f.results = f.results[1:]
	}
	block := f.block
	f.mu.Unlock()

	select {
	case f.started <- struct{}{}:
	default:
	}

	if block != nil {
		<-block
	}

	result := &PassResult{Status: status}
	if status != PassSuccess {
		result.Attempted = 1
		result.Failed = 1
	}
	return result
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) callTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.calls))
	copy(out, f.calls)
	return out
}

type fakeConn struct {
	mu     gosync.Mutex
	online bool
}

func (c *fakeConn) Online(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

func (c *fakeConn) set(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startScheduler(t *testing.T, cfg config.SchedulerConfig, runner *fakeRunner, fs *fakeRecordStore, conn Connectivity) *Scheduler {
	t.Helper()
	s := NewScheduler(cfg, runner, fs, conn)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestImmediateSingleFlight(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	s := startScheduler(t, testSchedulerConfig(), runner, newFakeRecordStore(), nil)

	s.TriggerImmediate()
	<-runner.started // first pass is now in flight

	// Rapid re-triggers while a pass runs must coalesce into one queued unit.
	for i := 0; i < 4; i++ {
		s.TriggerImmediate()
	}

	stats := s.Stats()
	if stats.Running != 1 {
		t.Errorf("Expected 1 running pass, got %d", stats.Running)
	}
	if stats.Enqueued != 1 {
		t.Errorf("Expected 1 enqueued unit, got %d", stats.Enqueued)
	}

	close(runner.block)
	waitFor(t, 2*time.Second, "both passes", func() bool { return runner.callCount() == 2 })

	// No stacked duplicates left behind.
	time.Sleep(150 * time.Millisecond)
	if n := runner.callCount(); n != 2 {
		t.Errorf("Expected exactly 2 passes, got %d", n)
	}
}

func TestPostWriteDebounce(t *testing.T) {
	runner := newFakeRunner()
	s := startScheduler(t, testSchedulerConfig(), runner, newFakeRecordStore(), nil)

	// Three rapid writes inside the debounce window.
	for i := 0; i < 3; i++ {
		s.TriggerAfterWrite()
		time.Sleep(20 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, "debounced pass", func() bool { return runner.callCount() == 1 })

	time.Sleep(250 * time.Millisecond)
	if n := runner.callCount(); n != 1 {
		t.Errorf("Expected a single debounced pass, got %d", n)
	}
}

func TestBackoffDelayDoubling(t *testing.T) {
	cfg := config.SchedulerConfig{
		BackoffBase:         "10s",
		BackoffBasePeriodic: "30s",
		BackoffMax:          "60s",
	}
	s := NewScheduler(cfg, newFakeRunner(), newFakeRecordStore(), nil)

	expected := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for attempts, want := range expected {
		if got := s.backoffDelay(TriggerImmediate, attempts); got != want {
			t.Errorf("attempts=%d: expected %v, got %v", attempts, want, got)
		}
	}

	if got := s.backoffDelay(TriggerPeriodic, 0); got != 30*time.Second {
		t.Errorf("Expected periodic base 30s, got %v", got)
	}
}

func TestRetryOnTotalFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.results = []PassStatus{PassFailure, PassFailure, PassFailure}
	s := startScheduler(t, testSchedulerConfig(), runner, newFakeRecordStore(), nil)

	s.TriggerImmediate()
	waitFor(t, 3*time.Second, "retries", func() bool { return runner.callCount() >= 4 })

	times := runner.callTimes()
	gap1 := times[1].Sub(times[0])
	gap2 := times[2].Sub(times[1])
	gap3 := times[3].Sub(times[2])

	// Backoff doubles each time, so measured gaps must grow.
	if gap2 <= gap1 {
		t.Errorf("Expected second retry gap > first (%v vs %v)", gap2, gap1)
	}
	if gap3 <= gap2 {
		t.Errorf("Expected third retry gap > second (%v vs %v)", gap3, gap2)
	}

	stats := s.Stats()
	if stats.Failed < 3 {
		t.Errorf("Expected at least 3 failed passes counted, got %d", stats.Failed)
	}
	if stats.Succeeded < 1 {
		t.Errorf("Expected the final pass to succeed, got %d", stats.Succeeded)
	}
}

func TestOfflineDefersPass(t *testing.T) {
	runner := newFakeRunner()
	conn := &fakeConn{}
	s := startScheduler(t, testSchedulerConfig(), runner, newFakeRecordStore(), conn)

	s.TriggerImmediate()

	time.Sleep(150 * time.Millisecond)
	if n := runner.callCount(); n != 0 {
		t.Fatalf("Expected no passes while offline, got %d", n)
	}
	if stats := s.Stats(); stats.Enqueued != 1 {
		t.Errorf("Unit should stay parked while offline, enqueued=%d", stats.Enqueued)
	}

	conn.set(true)
	waitFor(t, 2*time.Second, "pass after reconnect", func() bool { return runner.callCount() == 1 })
}

func TestCancelAll(t *testing.T) {
	runner := newFakeRunner()
	fs := newFakeRecordStore()
	s := startScheduler(t, testSchedulerConfig(), runner, fs, nil)

	s.TriggerAfterWrite()
	s.CancelAll()

	time.Sleep(250 * time.Millisecond)
	if n := runner.callCount(); n != 0 {
		t.Errorf("Expected no passes after cancel, got %d", n)
	}
	if stats := s.Stats(); stats.Enqueued != 0 {
		t.Errorf("Expected empty queue after cancel, got %d", stats.Enqueued)
	}
	if len(fs.jobs) != 0 {
		t.Errorf("Expected persisted jobs removed, got %d", len(fs.jobs))
	}
}

func TestCancelPeriodicKeepsOneShots(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.Enabled = true
	runner := newFakeRunner()
	s := startScheduler(t, cfg, runner, newFakeRecordStore(), nil)

	s.TriggerAfterWrite()
	s.CancelPeriodic()

	// The post-write unit survives periodic cancellation.
	waitFor(t, 2*time.Second, "post-write pass", func() bool { return runner.callCount() == 1 })
}

func TestSchedulePeriodicKeepsExistingEntry(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.Enabled = true
	s := startScheduler(t, cfg, newFakeRunner(), newFakeRecordStore(), nil)

	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("Expected 1 cron entry, got %d", n)
	}

	s.SchedulePeriodic()

	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("Re-scheduling must keep the existing entry, got %d", n)
	}
}

func TestCatchUpPassOnStart(t *testing.T) {
	runner := newFakeRunner()
	fs := newFakeRecordStore(record(1, 1000)) // left unsynced by a previous run
	startScheduler(t, testSchedulerConfig(), runner, fs, nil)

	waitFor(t, 2*time.Second, "catch-up pass", func() bool { return runner.callCount() == 1 })
}

func TestRestoredJobRunsAfterRestart(t *testing.T) {
	runner := newFakeRunner()
	fs := newFakeRecordStore()
	fs.jobs[string(TriggerPostWrite)] = &store.SyncJob{
		Kind:      string(TriggerPostWrite),
		NotBefore: time.Now().Add(-time.Second).UnixMilli(),
		Attempts:  1,
	}
	startScheduler(t, testSchedulerConfig(), runner, fs, nil)

	waitFor(t, 2*time.Second, "restored pass", func() bool { return runner.callCount() >= 1 })
}

func TestOneShotJobPersistedUntilRun(t *testing.T) {
	runner := newFakeRunner()
	runner.block = make(chan struct{})
	fs := newFakeRecordStore()
	cfg := testSchedulerConfig()
	cfg.PostWriteDelay = "10m" // keep it pending
	s := startScheduler(t, cfg, runner, fs, nil)

	s.TriggerAfterWrite()

	waitFor(t, time.Second, "persisted job", func() bool {
		return fs.jobs[string(TriggerPostWrite)] != nil
	})

	close(runner.block)
}

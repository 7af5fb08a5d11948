package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"soil-sync-service/internal/config"
	"soil-sync-service/internal/logger"
	"soil-sync-service/internal/store"
)

// TriggerKind names a sync unit. At most one unit of a given kind is
// pending at any time; a new trigger of the same kind replaces it.
type TriggerKind string

const (
	TriggerPeriodic  TriggerKind = "periodic-sync"
	TriggerImmediate TriggerKind = "immediate-sync"
	TriggerPostWrite TriggerKind = "post-write-sync"
)

// PassRunner is what the scheduler drives; satisfied by *Engine.
type PassRunner interface {
	RunPass(ctx context.Context) *PassResult
}

type unit struct {
	kind      TriggerKind
	notBefore time.Time
	attempts  int
}

// Scheduler decides when sync passes run. Three trigger classes feed a
// single dispatcher goroutine, so passes never overlap:
//
//   - periodic: cron at a fixed interval, re-scheduling keeps the
//     existing entry (phase preserved)
//   - immediate: one-shot, latest request wins
//   - post-write: one-shot with a debounce delay, a new write resets it
//
// Failed passes retry with exponential backoff, capped but unbounded in
// count: a field tool must never drop data, it just waits for the network.
// One-shot units are persisted so a process restart re-derives them.
type Scheduler struct {
	cfg     config.SchedulerConfig
	engine  PassRunner
	store   RecordStore
	conn    Connectivity
	cron    *cron.Cron
	baseCtx context.Context

	mu         gosync.Mutex
	pending    map[TriggerKind]*unit
	running    bool
	succeeded  int
	failed     int
	periodicOn bool
	entryID    cron.EntryID
	started    bool

	wake   chan struct{}
	stopCh chan struct{}
	wg     gosync.WaitGroup
}

func NewScheduler(cfg config.SchedulerConfig, engine PassRunner, recordStore RecordStore, conn Connectivity) *Scheduler {
	if conn == nil {
		conn = AlwaysOnline{}
	}
	return &Scheduler{
		cfg:     cfg,
		engine:  engine,
		store:   recordStore,
		conn:    conn,
		cron:    cron.New(),
		baseCtx: context.Background(),
		pending: make(map[TriggerKind]*unit),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start restores persisted trigger state, registers the periodic unit and
// launches the dispatcher. Records left unsynced by a previous run get a
// catch-up pass.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	jobs, err := s.store.ListJobs(s.baseCtx)
	if err != nil {
		return fmt.Errorf("failed to load persisted sync jobs: %w", err)
	}

	s.mu.Lock()
	for _, job := range jobs {
		kind := TriggerKind(job.Kind)
		if kind != TriggerImmediate && kind != TriggerPostWrite {
			continue
		}
		s.pending[kind] = &unit{
			kind:      kind,
			notBefore: time.UnixMilli(job.NotBefore),
			attempts:  job.Attempts,
		}
		logger.Log.Info("Restored pending sync unit", zap.String("kind", job.Kind))
	}
	havePending := len(s.pending) > 0
	s.mu.Unlock()

	if !havePending {
		if n, err := s.store.CountUnsynced(s.baseCtx); err == nil && n > 0 {
			logger.Log.Info("Unsynced samples found at startup, scheduling catch-up pass", zap.Int("count", n))
			s.enqueue(TriggerImmediate, 0, 0)
		}
	}

	if s.cfg.Enabled {
		s.SchedulePeriodic()
	}
	s.cron.Start()

	s.wg.Add(1)
	go s.dispatch()

	logger.Log.Info("Sync scheduler started",
		zap.Duration("periodicInterval", s.cfg.GetPeriodicInterval()),
		zap.Duration("postWriteDelay", s.cfg.GetPostWriteDelay()),
	)
	return nil
}

// Stop halts future scheduling. An in-flight pass is not interrupted; Stop
// returns after it completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	s.cron.Stop()
	close(s.stopCh)
	s.wg.Wait()
	logger.Log.Info("Sync scheduler stopped")
}

// SchedulePeriodic registers the recurring trigger. Calling it while a
// periodic unit exists keeps the existing one and does not reset its phase.
func (s *Scheduler) SchedulePeriodic() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.periodicOn {
		return
	}

	spec := fmt.Sprintf("@every %s", s.cfg.GetPeriodicInterval())
	id, err := s.cron.AddFunc(spec, func() {
		s.enqueue(TriggerPeriodic, 0, 0)
	})
	if err != nil {
		logger.Log.Error("Failed to register periodic sync", zap.Error(err))
		return
	}

	s.entryID = id
	s.periodicOn = true
	logger.Log.Info("Periodic sync scheduled", zap.String("spec", spec))
}

// TriggerImmediate enqueues a one-shot pass, replacing any pending
// immediate unit.
func (s *Scheduler) TriggerImmediate() {
	s.enqueue(TriggerImmediate, 0, 0)
}

// TriggerAfterWrite enqueues a debounced pass after a local insert. Rapid
// successive writes keep resetting the debounce window, so a burst of
// captures produces a single pass.
func (s *Scheduler) TriggerAfterWrite() {
	s.enqueue(TriggerPostWrite, s.cfg.GetPostWriteDelay(), 0)
}

// CancelPeriodic removes the recurring trigger and any queued periodic
// unit. One-shot units are untouched.
func (s *Scheduler) CancelPeriodic() {
	s.mu.Lock()
	if s.periodicOn {
		s.cron.Remove(s.entryID)
		s.periodicOn = false
	}
	delete(s.pending, TriggerPeriodic)
	s.mu.Unlock()

	s.kick()
	logger.Log.Info("Periodic sync cancelled")
}

// CancelAll drops every pending unit and the periodic registration.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	if s.periodicOn {
		s.cron.Remove(s.entryID)
		s.periodicOn = false
	}
	kinds := make([]TriggerKind, 0, len(s.pending))
	for kind := range s.pending {
		kinds = append(kinds, kind)
	}
	s.pending = make(map[TriggerKind]*unit)
	s.mu.Unlock()

	for _, kind := range kinds {
		if kind != TriggerPeriodic {
			if err := s.store.DeleteJob(s.baseCtx, string(kind)); err != nil {
				logger.Log.Warn("Failed to delete persisted sync job", zap.String("kind", string(kind)), zap.Error(err))
			}
		}
	}

	s.kick()
	logger.Log.Info("All sync units cancelled")
}

// Stats snapshots the scheduler's work state.
func (s *Scheduler) Stats() SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SyncStats{
		Enqueued:  len(s.pending),
		Succeeded: s.succeeded,
		Failed:    s.failed,
	}
	if s.running {
		stats.Running = 1
	}
	return stats
}

// enqueue replaces the pending unit of the given kind. attempts carries the
// failure count for backoff; fresh triggers reset it to zero.
func (s *Scheduler) enqueue(kind TriggerKind, delay time.Duration, attempts int) {
	u := &unit{
		kind:      kind,
		notBefore: time.Now().Add(delay),
		attempts:  attempts,
	}

	s.mu.Lock()
	s.pending[kind] = u
	s.mu.Unlock()

	if kind != TriggerPeriodic {
		job := &store.SyncJob{
			Kind:      string(kind),
			NotBefore: u.notBefore.UnixMilli(),
			Attempts:  attempts,
			CreatedAt: time.Now().UnixMilli(),
		}
		if err := s.store.PutJob(s.baseCtx, job); err != nil {
			logger.Log.Warn("Failed to persist sync job", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	s.kick()
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch owns the run queue. It sleeps until the earliest unit is due,
// re-evaluating whenever the queue changes, and runs passes one at a time.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		next := s.earliest()
		s.mu.Unlock()

		if next == nil {
			select {
			case <-s.wake:
				continue
			case <-s.stopCh:
				return
			}
		}

		wait := time.Until(next.notBefore)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			case <-s.stopCh:
				timer.Stop()
				return
			}
			continue
		}

		select {
		case <-s.stopCh:
			return
		default:
		}

		s.runUnit(next)
	}
}

// earliest returns the pending unit with the soonest notBefore. Caller
// holds the lock.
func (s *Scheduler) earliest() *unit {
	var next *unit
	for _, u := range s.pending {
		if next == nil || u.notBefore.Before(next.notBefore) {
			next = u
		}
	}
	return next
}

func (s *Scheduler) runUnit(u *unit) {
	s.mu.Lock()
	current, ok := s.pending[u.kind]
	if !ok || current != u {
		// Replaced or cancelled while we were waiting.
		s.mu.Unlock()
		return
	}

	if !s.conn.Online(s.baseCtx) {
		// Park the unit until the network comes back; no attempt consumed.
		current.notBefore = time.Now().Add(s.cfg.GetConnectivityRetry())
		s.mu.Unlock()
		logger.Log.Info("Offline, deferring sync unit",
			zap.String("kind", string(u.kind)),
			zap.Duration("retryIn", s.cfg.GetConnectivityRetry()),
		)
		return
	}

	delete(s.pending, u.kind)
	s.running = true
	s.mu.Unlock()

	if u.kind != TriggerPeriodic {
		if err := s.store.DeleteJob(s.baseCtx, string(u.kind)); err != nil {
			logger.Log.Warn("Failed to delete persisted sync job", zap.String("kind", string(u.kind)), zap.Error(err))
		}
	}

	logger.Log.Debug("Running sync unit",
		zap.String("kind", string(u.kind)),
		zap.Int("attempt", u.attempts+1),
	)

	result := s.engine.RunPass(s.baseCtx)

	s.mu.Lock()
	s.running = false
	if result.Status == PassFailure {
		s.failed++
	} else {
		s.succeeded++
	}
	s.mu.Unlock()

	if result.Status == PassFailure {
		delay := s.backoffDelay(u.kind, u.attempts)
		logger.Log.Warn("Sync pass failed, scheduling retry",
			zap.String("kind", string(u.kind)),
			zap.Duration("backoff", delay),
			zap.Int("attempts", u.attempts+1),
		)
		s.enqueue(u.kind, delay, u.attempts+1)
	}
}

// backoffDelay doubles per failed attempt from the kind's base, capped at
// the configured maximum.
func (s *Scheduler) backoffDelay(kind TriggerKind, attempts int) time.Duration {
	base := s.cfg.GetBackoffBase()
	if kind == TriggerPeriodic {
		base = s.cfg.GetBackoffBasePeriodic()
	}
	max := s.cfg.GetBackoffMax()

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

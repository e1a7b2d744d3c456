// Package pool manages a bounded set of per-user browser sessions. Each
// identity key owns at most one driver/session pair; sessions are reused
// across sequential tasks from the same caller, liveness-checked on every
// acquisition, and reclaimed when idle too long or when capacity demands it.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/okanya/webagentd/internal/observability"
	"github.com/okanya/webagentd/pkg/identity"
)

// cleanupTimeout bounds the best-effort resource release during eviction.
const cleanupTimeout = 10 * time.Second

// Eviction reasons, used in logs, metrics, and events.
const (
	EvictReasonDead     = "dead"
	EvictReasonIdle     = "idle"
	EvictReasonCapacity = "capacity"
	EvictReasonBroken   = "broken"
	EvictReasonWorker   = "worker_failed"
	EvictReasonShutdown = "shutdown"
)

// EventSink receives pool lifecycle events. Delivery is asynchronous and
// best-effort; sinks must not rely on ordering.
type EventSink func(event string, data map[string]interface{})

// Pool owns the key to record mapping and all admission, eviction, and
// worker-lifecycle decisions. One mutex serializes every operation that
// touches shared state; the actual automation work happens outside it once
// handles are returned.
type Pool struct {
	mu      sync.Mutex
	records map[string]*SessionRecord
	factory SessionFactory
	checker *Checker
	opts    Options
	sink    EventSink

	scheduler *cron.Cron
	closed    bool
}

// New builds a Pool around the given session factory. Zero option fields
// fall back to defaults. The janitor is not started; call StartJanitor.
func New(factory SessionFactory, opts Options) *Pool {
	opts = opts.normalize()
	return &Pool{
		records: make(map[string]*SessionRecord),
		factory: factory,
		checker: NewChecker(opts.ProbeTimeout, opts.PageProbeTimeout),
		opts:    opts,
	}
}

// SetEventSink registers a sink for pool lifecycle events.
func (p *Pool) SetEventSink(sink EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// Acquire resolves the caller's identity key and returns the driver/session
// pair for it, creating or rebuilding the record as needed. On success the
// record's active-task count is incremented; the caller must Release the key
// exactly once when done. Acquire never leaves a key mapped to a half-built
// record.
func (p *Pool) Acquire(ctx context.Context, headers map[string]string, sourceAddress string) (DriverHandle, SessionHandle, string, error) {
	key := identity.Resolve(headers, sourceAddress)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, key, newPoolError(ErrCodePoolClosed, "pool is shut down", nil)
	}

	// Existing record: verify it still answers before handing it out.
	if rec, ok := p.records[key]; ok {
		if p.checker.DriverAlive(ctx, rec.Driver) && p.checker.SessionAlive(ctx, rec.Session) {
			rec.ActiveTasks++
			rec.TotalTasks++
			rec.touch()
			observability.RecordPoolAcquire("reused")
			log.Debug().
				Str("key", key).
				Int("active_tasks", rec.ActiveTasks).
				Msg("Reusing pooled session")
			return rec.Driver, rec.Session, key, nil
		}

		log.Info().Str("key", key).Msg("Pooled session no longer alive, rebuilding")
		p.cleanupRecordLocked(rec, EvictReasonDead)
	}

	// New record. Make room first: evict the least recently used idle
	// record, or refuse when every record is busy.
	if len(p.records) >= p.opts.MaxSessions {
		if !p.evictLRUIdleLocked() {
			observability.RecordPoolAcquire("capacity_rejected")
			return nil, nil, key, newPoolError(ErrCodeCapacityExceeded,
				fmt.Sprintf("pool is full (%d sessions, none idle)", len(p.records)), nil)
		}
	}

	factoryCtx, cancel := context.WithTimeout(ctx, p.opts.FactoryTimeout)
	defer cancel()

	driver, session, err := p.factory.Create(factoryCtx)
	if err != nil {
		observability.RecordPoolAcquire("factory_failed")
		return nil, nil, key, newPoolError(ErrCodeFactoryFailed,
			fmt.Sprintf("session creation for key %s failed", key), err)
	}

	rec := newSessionRecord(key, driver, session)
	rec.ActiveTasks = 1
	rec.TotalTasks = 1
	p.records[key] = rec

	observability.RecordPoolAcquire("created")
	observability.RecordSessionCreated()
	observability.SetPoolSessions(len(p.records))
	log.Info().
		Str("key", key).
		Int("total_sessions", len(p.records)).
		Int("max_sessions", p.opts.MaxSessions).
		Msg("Created session")
	p.emit("pool.session.created", map[string]interface{}{
		"key":            key,
		"total_sessions": len(p.records),
	})

	return driver, session, key, nil
}

// GetOrCreateWorker builds a fresh worker for the key's session. Any
// pre-existing worker is discarded first: a session is reused across tasks
// but a worker never is, since a worker carries the previous task's internal
// state. The returned flag reports that a fresh worker was built; it is true
// whenever the call succeeds.
func (p *Pool) GetOrCreateWorker(ctx context.Context, key, task string, factory WorkerFactory) (WorkerHandle, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return nil, false, newPoolError(ErrCodeUnknownKey,
			fmt.Sprintf("no session for key %s", key), nil)
	}

	if rec.Worker != nil {
		log.Debug().Str("key", key).Msg("Discarding previous worker")
		rec.Worker = nil
	}

	if rec.Driver == nil || rec.Session == nil {
		p.cleanupRecordLocked(rec, EvictReasonBroken)
		return nil, false, newPoolError(ErrCodeUnknownKey,
			fmt.Sprintf("session for key %s is broken, re-acquire", key), nil)
	}

	worker, err := factory(ctx, rec.Driver, rec.Session, task)
	if err != nil {
		// Construction failure is evidence of a broken session: evict so
		// the next acquire starts clean.
		p.cleanupRecordLocked(rec, EvictReasonWorker)
		return nil, false, newPoolError(ErrCodeWorkerFactoryFailed,
			fmt.Sprintf("worker construction for key %s failed", key), err)
	}

	rec.Worker = worker
	log.Debug().Str("key", key).Msg("Attached worker")
	return worker, true, nil
}

// Release returns one acquisition of the key. Unknown keys are a no-op:
// callers may race with eviction.
func (p *Pool) Release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		log.Debug().Str("key", key).Msg("Release for unknown key")
		return
	}

	if rec.ActiveTasks > 0 {
		rec.ActiveTasks--
	}
	rec.touch()
	log.Debug().
		Str("key", key).
		Int("active_tasks", rec.ActiveTasks).
		Msg("Released session")
}

// ClearWorker drops the key's worker reference, leaving driver and session
// untouched for the next task. Unknown keys are a no-op.
func (p *Pool) ClearWorker(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return
	}
	rec.Worker = nil
	log.Debug().Str("key", key).Msg("Cleared worker")
}

// EvictIdleOlderThan removes every idle record whose last use is older than
// maxIdle and returns how many were evicted. Records with active tasks are
// never touched.
func (p *Pool) EvictIdleOlderThan(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var victims []*SessionRecord
	for _, rec := range p.records {
		if rec.idle() && rec.idleFor(now) > maxIdle {
			victims = append(victims, rec)
		}
	}
	for _, rec := range victims {
		p.cleanupRecordLocked(rec, EvictReasonIdle)
	}
	return len(victims)
}

// StartJanitor begins the periodic idle sweep. Calling it twice, or after
// shutdown, is a no-op.
func (p *Pool) StartJanitor() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scheduler != nil || p.closed {
		return
	}

	p.scheduler = cron.New()
	p.scheduler.Schedule(cron.Every(p.opts.SweepInterval), cron.FuncJob(p.sweep))
	p.scheduler.Start()
	log.Info().
		Dur("interval", p.opts.SweepInterval).
		Dur("max_idle", p.opts.MaxIdleDuration).
		Msg("Pool janitor started")
}

func (p *Pool) sweep() {
	start := time.Now()
	evicted := p.EvictIdleOlderThan(p.opts.MaxIdleDuration)
	observability.RecordPoolSweep(time.Since(start), evicted)
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Msg("Idle sweep completed")
	}
	p.mu.Lock()
	remaining := len(p.records)
	p.mu.Unlock()
	p.emitUnlocked("pool.sweep.completed", map[string]interface{}{
		"evicted":        evicted,
		"total_sessions": remaining,
	})
}

// Shutdown stops the janitor, waits for an in-flight sweep to finish, and
// evicts every record regardless of active tasks. Cleanup errors for
// already-dead resources are tolerated. The pool refuses new acquisitions
// afterwards.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	scheduler := p.scheduler
	p.scheduler = nil
	p.mu.Unlock()

	// The sweep takes the pool lock, so wait for it without holding it.
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, rec := range p.records {
		p.cleanupRecordLocked(rec, EvictReasonShutdown)
	}
	log.Info().Msg("Pool shut down")
}

// Status returns a read-only snapshot of every record. It never runs
// liveness probes and never blocks beyond the pool lock.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	sessions := make(map[string]SessionStatus, len(p.records))
	for key, rec := range p.records {
		sessions[key] = SessionStatus{
			CreatedAt:   rec.CreatedAt,
			LastUsedAt:  rec.LastUsedAt,
			ActiveTasks: rec.ActiveTasks,
			TotalTasks:  rec.TotalTasks,
			Idle:        rec.idle(),
			IdleSeconds: rec.idleFor(now).Seconds(),
			HasWorker:   rec.Worker != nil,
		}
	}

	return Status{
		TotalSessions: len(p.records),
		MaxSessions:   p.opts.MaxSessions,
		Sessions:      sessions,
	}
}

// Size returns the current record count.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// MaxIdleDuration exposes the configured idle bound for callers that trigger
// manual sweeps.
func (p *Pool) MaxIdleDuration() time.Duration {
	return p.opts.MaxIdleDuration
}

// cleanupRecordLocked releases the record's resources best-effort and always
// removes the key from the map. Errors are logged and swallowed: a cleanup
// failure must not leak the slot. Callers hold the pool lock.
func (p *Pool) cleanupRecordLocked(rec *SessionRecord, reason string) {
	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if rec.Session != nil {
		if err := rec.Session.Close(cleanupCtx); err != nil {
			log.Warn().Err(err).Str("key", rec.Key).Msg("Session close failed during eviction")
		}
	}
	if rec.Driver != nil {
		if err := rec.Driver.Close(cleanupCtx); err != nil {
			log.Warn().Err(err).Str("key", rec.Key).Msg("Driver close failed during eviction")
		}
	}
	rec.Worker = nil

	delete(p.records, rec.Key)
	observability.RecordSessionEvicted(reason)
	observability.SetPoolSessions(len(p.records))
	log.Info().
		Str("key", rec.Key).
		Str("reason", reason).
		Int("total_sessions", len(p.records)).
		Msg("Session evicted")
	p.emit("pool.session.evicted", map[string]interface{}{
		"key":            rec.Key,
		"reason":         reason,
		"total_sessions": len(p.records),
	})
}

// evictLRUIdleLocked removes the least recently used idle record. Returns
// false when every record has active tasks.
func (p *Pool) evictLRUIdleLocked() bool {
	var victim *SessionRecord
	for _, rec := range p.records {
		if !rec.idle() {
			continue
		}
		if victim == nil || rec.LastUsedAt.Before(victim.LastUsedAt) {
			victim = rec
		}
	}
	if victim == nil {
		return false
	}
	p.cleanupRecordLocked(victim, EvictReasonCapacity)
	return true
}

// emit dispatches an event while the pool lock is held. Delivery happens on
// a separate goroutine so a sink calling back into the pool cannot deadlock.
func (p *Pool) emit(event string, data map[string]interface{}) {
	if p.sink == nil {
		return
	}
	go p.sink(event, data)
}

// emitUnlocked dispatches an event without assuming the lock is held.
func (p *Pool) emitUnlocked(event string, data map[string]interface{}) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink == nil {
		return
	}
	go sink(event, data)
}

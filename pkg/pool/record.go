package pool

import "time"

// SessionRecord is the pool's bookkeeping unit: one driver/session pair bound
// to one identity key, plus usage counters. Records are mutated only while
// the pool lock is held.
type SessionRecord struct {
	Key         string
	Driver      DriverHandle
	Session     SessionHandle
	Worker      WorkerHandle
	CreatedAt   time.Time
	LastUsedAt  time.Time
	ActiveTasks int
	TotalTasks  int
}

func newSessionRecord(key string, driver DriverHandle, session SessionHandle) *SessionRecord {
	now := time.Now()
	return &SessionRecord{
		Key:        key,
		Driver:     driver,
		Session:    session,
		CreatedAt:  now,
		LastUsedAt: now,
	}
}

// idle reports whether no caller currently holds the record.
func (r *SessionRecord) idle() bool {
	return r.ActiveTasks == 0
}

func (r *SessionRecord) idleFor(now time.Time) time.Duration {
	return now.Sub(r.LastUsedAt)
}

func (r *SessionRecord) touch() {
	r.LastUsedAt = time.Now()
}

// Status is a read-only snapshot of the pool.
type Status struct {
	TotalSessions int                      `json:"total_sessions"`
	MaxSessions   int                      `json:"max_sessions"`
	Sessions      map[string]SessionStatus `json:"sessions"`
}

// SessionStatus is the diagnostic view of one record.
type SessionStatus struct {
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used"`
	ActiveTasks int       `json:"active_tasks"`
	TotalTasks  int       `json:"total_tasks"`
	Idle        bool      `json:"is_idle"`
	IdleSeconds float64   `json:"idle_seconds"`
	HasWorker   bool      `json:"has_worker"`
}

package pool

import "context"

// DriverHandle is the capability surface the pool needs from an automation
// driver: a cheap liveness probe and a close operation. The pool never asks
// a driver to do real work.
type DriverHandle interface {
	// Probe performs a minimal read-only round trip against the driver
	// process. Any error means the process may be gone.
	Probe(ctx context.Context) error

	// Close releases the driver process. Must tolerate being called on an
	// already-dead driver.
	Close(ctx context.Context) error
}

// SessionHandle is the capability surface the pool needs from a session.
type SessionHandle interface {
	// PageCount reports how many pages the session currently has open.
	PageCount(ctx context.Context) (int, error)

	// OpenProbePage opens and immediately closes a throwaway page. Used
	// only when PageCount reports zero, to distinguish an empty-but-live
	// session from a torn-down one.
	OpenProbePage(ctx context.Context) error

	// Close releases the session. Must tolerate a dead underlying driver.
	Close(ctx context.Context) error
}

// WorkerHandle is a task-scoped worker attached to a record. The pool stores
// and clears it but never invokes it; its behavior belongs to the caller.
type WorkerHandle interface{}

// SessionFactory creates driver/session pairs for new records. A factory
// error must leave no live resources behind.
type SessionFactory interface {
	Create(ctx context.Context) (DriverHandle, SessionHandle, error)
}

// WorkerFactory builds the worker for one logical task. It is supplied per
// call so the caller controls agent wiring; the pool only manages attachment
// and lifetime.
type WorkerFactory func(ctx context.Context, driver DriverHandle, session SessionHandle, task string) (WorkerHandle, error)

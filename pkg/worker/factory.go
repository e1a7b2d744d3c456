package worker

import (
	"context"
	"fmt"

	"github.com/okanya/webagentd/pkg/driver"
	"github.com/okanya/webagentd/pkg/pool"
)

// NewSessionWorkerFactory adapts a provider and worker config into the
// pool's WorkerFactory signature. The returned factory binds a fresh
// tool registry to the record's browser session for every task.
func NewSessionWorkerFactory(provider Provider, cfg Config) pool.WorkerFactory {
	return func(ctx context.Context, _ pool.DriverHandle, sessionHandle pool.SessionHandle, task string) (pool.WorkerHandle, error) {
		session, ok := sessionHandle.(*driver.Session)
		if !ok {
			return nil, fmt.Errorf("unexpected session handle type %T", sessionHandle)
		}

		registry := NewRegistry()
		if err := RegisterBrowserTools(registry, session, cfg.Navigation); err != nil {
			return nil, fmt.Errorf("failed to register browser tools: %w", err)
		}

		return New(provider, registry, task, cfg), nil
	}
}

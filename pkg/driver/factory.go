package driver

import (
	"context"

	"github.com/okanya/webagentd/pkg/pool"
)

// Factory creates driver/session pairs for the pool. Each Create call
// launches a dedicated Chrome process with its own profile directory
// and debug port, then opens one incognito context on it.
type Factory struct {
	cfg Config
}

var _ pool.SessionFactory = (*Factory)(nil)

// NewFactory returns a factory that launches Chrome per cfg.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg}
}

// Create implements pool.SessionFactory.
func (f *Factory) Create(ctx context.Context) (pool.DriverHandle, pool.SessionHandle, error) {
	drv, err := Launch(ctx, f.cfg)
	if err != nil {
		return nil, nil, err
	}

	session, err := drv.NewSession(ctx)
	if err != nil {
		_ = drv.Close(ctx)
		return nil, nil, err
	}

	return drv, session, nil
}

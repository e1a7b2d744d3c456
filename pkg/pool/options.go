package pool

import "time"

// Defaults applied by Options.normalize.
const (
	DefaultMaxSessions      = 10
	DefaultMaxIdleDuration  = 30 * time.Minute
	DefaultSweepInterval    = 5 * time.Minute
	DefaultProbeTimeout     = 3 * time.Second
	DefaultPageProbeTimeout = 5 * time.Second
	DefaultFactoryTimeout   = 30 * time.Second
)

// Options configures a Pool.
type Options struct {
	// MaxSessions bounds the number of concurrently pooled records.
	MaxSessions int

	// MaxIdleDuration is the age past which an idle record is reclaimed by
	// the background sweep.
	MaxIdleDuration time.Duration

	// SweepInterval is how often the janitor runs.
	SweepInterval time.Duration

	// ProbeTimeout bounds the driver liveness probe.
	ProbeTimeout time.Duration

	// PageProbeTimeout bounds page enumeration and the throwaway probe page.
	PageProbeTimeout time.Duration

	// FactoryTimeout bounds driver/session creation.
	FactoryTimeout time.Duration
}

// DefaultOptions returns the standard pool configuration.
func DefaultOptions() Options {
	return Options{
		MaxSessions:      DefaultMaxSessions,
		MaxIdleDuration:  DefaultMaxIdleDuration,
		SweepInterval:    DefaultSweepInterval,
		ProbeTimeout:     DefaultProbeTimeout,
		PageProbeTimeout: DefaultPageProbeTimeout,
		FactoryTimeout:   DefaultFactoryTimeout,
	}
}

func (o Options) normalize() Options {
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	if o.MaxIdleDuration <= 0 {
		o.MaxIdleDuration = DefaultMaxIdleDuration
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.PageProbeTimeout <= 0 {
		o.PageProbeTimeout = DefaultPageProbeTimeout
	}
	if o.FactoryTimeout <= 0 {
		o.FactoryTimeout = DefaultFactoryTimeout
	}
	return o
}

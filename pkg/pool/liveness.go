package pool

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Probe failure reasons. Every reason means "dead"; the classification exists
// so logs and tests can name why a resource was declared dead, instead of
// scattering substring checks through the pool.
const (
	ReasonClosed      = "closed"
	ReasonProcessGone = "process_gone"
	ReasonConnRefused = "connection_refused"
	ReasonConnLost    = "connection_lost"
	ReasonTimeout     = "timeout"
	ReasonUnknown     = "unknown"
)

// classifyProbeError maps a probe error onto a failure reason. Unrecognized
// errors classify as ReasonUnknown, which still counts as dead: ambiguity
// must never keep a possibly-broken session in the pool.
func classifyProbeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "has been closed"),
		strings.Contains(msg, "target closed"),
		strings.Contains(msg, "session closed"):
		return ReasonClosed
	case strings.Contains(msg, "process quit"),
		strings.Contains(msg, "process exited"),
		strings.Contains(msg, "no such process"):
		return ReasonProcessGone
	case strings.Contains(msg, "connection refused"):
		return ReasonConnRefused
	case strings.Contains(msg, "use of closed network connection"),
		strings.Contains(msg, "websocket: close"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"):
		return ReasonConnLost
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return ReasonTimeout
	default:
		return ReasonUnknown
	}
}

// Checker classifies driver and session handles as alive or dead using cheap
// bounded probes. It never mutates a resource beyond opening and closing a
// throwaway page when a session has none.
type Checker struct {
	probeTimeout time.Duration
	pageTimeout  time.Duration
}

// NewChecker builds a Checker with the given probe bounds. Non-positive
// values fall back to the pool defaults.
func NewChecker(probeTimeout, pageTimeout time.Duration) *Checker {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	if pageTimeout <= 0 {
		pageTimeout = DefaultPageProbeTimeout
	}
	return &Checker{probeTimeout: probeTimeout, pageTimeout: pageTimeout}
}

// DriverAlive reports whether the driver process still answers a minimal
// probe. Any error, including an unrecognized one, counts as dead.
func (c *Checker) DriverAlive(ctx context.Context, driver DriverHandle) bool {
	if driver == nil {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	err := driver.Probe(probeCtx)
	if err == nil {
		return true
	}

	log.Debug().
		Err(err).
		Str("reason", classifyProbeError(err)).
		Msg("Driver probe failed")
	return false
}

// SessionAlive reports whether the session can still host work. A session
// with at least one open page is alive; with zero pages it is alive only if
// a throwaway page can be opened.
func (c *Checker) SessionAlive(ctx context.Context, session SessionHandle) bool {
	if session == nil {
		return false
	}

	countCtx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	count, err := session.PageCount(countCtx)
	if err != nil {
		log.Debug().
			Err(err).
			Str("reason", classifyProbeError(err)).
			Msg("Session page enumeration failed")
		return false
	}
	if count > 0 {
		return true
	}

	// Zero pages is ambiguous: the session may be fresh or already torn
	// down. Opening a probe page is the only reliable signal.
	probeCtx, cancel := context.WithTimeout(ctx, c.pageTimeout)
	defer cancel()

	if err := session.OpenProbePage(probeCtx); err != nil {
		log.Debug().
			Err(err).
			Str("reason", classifyProbeError(err)).
			Msg("Session probe page failed")
		return false
	}
	return true
}

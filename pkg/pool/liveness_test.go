package pool

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifyProbeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"target closed", errors.New("target closed"), ReasonClosed},
		{"browser closed", errors.New("Browser has been closed"), ReasonClosed},
		{"session closed", errors.New("rpc: session closed"), ReasonClosed},
		{"process quit", errors.New("did the browser process quit?"), ReasonProcessGone},
		{"process exited", errors.New("chrome process exited with status 1"), ReasonProcessGone},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9222: connect: connection refused"), ReasonConnRefused},
		{"closed network connection", errors.New("use of closed network connection"), ReasonConnLost},
		{"websocket closed", errors.New("websocket: close 1006 (abnormal closure)"), ReasonConnLost},
		{"connection reset", errors.New("read: connection reset by peer"), ReasonConnLost},
		{"broken pipe", errors.New("write: broken pipe"), ReasonConnLost},
		{"io timeout", errors.New("read tcp: i/o timeout"), ReasonTimeout},
		{"context deadline", context.DeadlineExceeded, ReasonTimeout},
		{"wrapped deadline", fmt.Errorf("probe: %w", context.DeadlineExceeded), ReasonTimeout},
		{"anything else", errors.New("some novel failure"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyProbeError(tt.err))
		})
	}
}

func TestDriverAlive(t *testing.T) {
	checker := NewChecker(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	t.Run("nil driver is dead", func(t *testing.T) {
		assert.False(t, checker.DriverAlive(ctx, nil))
	})

	t.Run("healthy probe", func(t *testing.T) {
		assert.True(t, checker.DriverAlive(ctx, &fakeDriver{}))
	})

	t.Run("known fatal error", func(t *testing.T) {
		d := &fakeDriver{probeErr: errors.New("connection refused")}
		assert.False(t, checker.DriverAlive(ctx, d))
	})

	t.Run("unrecognized error still counts as dead", func(t *testing.T) {
		d := &fakeDriver{probeErr: errors.New("some novel failure")}
		assert.False(t, checker.DriverAlive(ctx, d))
	})
}

func TestSessionAlive(t *testing.T) {
	checker := NewChecker(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	t.Run("nil session is dead", func(t *testing.T) {
		assert.False(t, checker.SessionAlive(ctx, nil))
	})

	t.Run("open pages mean alive without probing", func(t *testing.T) {
		s := &fakeSession{pages: 2}
		assert.True(t, checker.SessionAlive(ctx, s))
		assert.Equal(t, 0, s.probes)
	})

	t.Run("zero pages but probe page succeeds", func(t *testing.T) {
		s := &fakeSession{pages: 0}
		assert.True(t, checker.SessionAlive(ctx, s))
		assert.Equal(t, 1, s.probes)
	})

	t.Run("zero pages and probe page fails", func(t *testing.T) {
		s := &fakeSession{pages: 0, probeErr: errors.New("target closed")}
		assert.False(t, checker.SessionAlive(ctx, s))
	})

	t.Run("page enumeration failure", func(t *testing.T) {
		s := &fakeSession{pagesErr: errors.New("websocket: close 1006")}
		assert.False(t, checker.SessionAlive(ctx, s))
		assert.Equal(t, 0, s.probes, "enumeration failure must not trigger a probe page")
	})
}

func TestNewCheckerDefaults(t *testing.T) {
	c := NewChecker(0, 0)
	assert.Equal(t, DefaultProbeTimeout, c.probeTimeout)
	assert.Equal(t, DefaultPageProbeTimeout, c.pageTimeout)
}

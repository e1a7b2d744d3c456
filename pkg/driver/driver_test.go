package driver

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProfileDir(t *testing.T) {
	base := t.TempDir()

	first, err := newProfileDir(base)
	require.NoError(t, err)
	second, err := newProfileDir(base)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, base, filepath.Dir(first))
	assert.Equal(t, base, filepath.Dir(second))

	info, err := os.Stat(first)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNewProfileDirDefaultBase(t *testing.T) {
	dir, err := newProfileDir("")
	require.NoError(t, err)
	defer removeProfileDir(dir)

	assert.True(t, strings.HasPrefix(dir, filepath.Join(os.TempDir(), "webagentd-profiles")))
}

func TestRemoveProfileDir(t *testing.T) {
	base := t.TempDir()
	dir, err := newProfileDir(base)
	require.NoError(t, err)

	removeProfileDir(dir)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	// Removing a missing or empty path must not panic.
	removeProfileDir(dir)
	removeProfileDir("")
}

func TestWaitForCDPSuccess(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	controlURL := fmt.Sprintf("ws://%s/devtools/browser/abc", listener.Addr().String())

	err = waitForCDP(context.Background(), controlURL)
	assert.NoError(t, err)
}

func TestWaitForCDPCanceled(t *testing.T) {
	// Grab a port that nothing listens on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = waitForCDP(ctx, fmt.Sprintf("ws://%s/devtools/browser/abc", addr))
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForCDPBadURL(t *testing.T) {
	err := waitForCDP(context.Background(), "://not-a-url")
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	cfg := Config{
		Headless:     true,
		WindowWidth:  1280,
		WindowHeight: 900,
		DataDir:      t.TempDir(),
	}

	f := NewFactory(cfg)
	require.NotNil(t, f)
	assert.Equal(t, cfg, f.cfg)
}

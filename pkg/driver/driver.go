// Package driver runs one headless Chrome process per pool record and
// exposes it through the pool's handle interfaces. A Driver owns the
// process and its CDP connection; a Session is an incognito browser
// context on that process, so evicting a record tears down everything
// the caller's tasks touched.
package driver

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/okanya/webagentd/pkg/pool"
)

const cdpWaitTimeout = 10 * time.Second

// Config describes how Chrome processes are launched. The zero value
// launches a headful browser with a temp profile; the config layer fills
// in sensible defaults before handing it to NewFactory.
type Config struct {
	Headless     bool
	ChromePath   string
	NoSandbox    bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
	// DataDir is the base directory for per-driver profile directories.
	// Empty means a subdirectory of os.TempDir().
	DataDir string
}

// Driver is one launched Chrome process plus its CDP connection. It
// implements the pool's DriverHandle.
type Driver struct {
	launcher   *launcher.Launcher
	browser    *rod.Browser
	controlURL string
	dataDir    string
}

var _ pool.DriverHandle = (*Driver)(nil)

// Launch spawns a Chrome process for cfg, waits for its CDP endpoint and
// connects to it. The profile directory is private to the returned
// Driver and removed again on Close.
func Launch(ctx context.Context, cfg Config) (*Driver, error) {
	dataDir, err := newProfileDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}

	l := launcher.New().
		Headless(cfg.Headless).
		UserDataDir(dataDir)

	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if cfg.ChromePath != "" {
		l = l.Bin(cfg.ChromePath)
	}
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	}

	controlURL, err := l.Launch()
	if err != nil {
		removeProfileDir(dataDir)
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	if err := waitForCDP(ctx, controlURL); err != nil {
		l.Kill()
		removeProfileDir(dataDir)
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		removeProfileDir(dataDir)
		return nil, fmt.Errorf("connect to cdp: %w", err)
	}

	log.Debug().
		Str("control_url", controlURL).
		Str("data_dir", dataDir).
		Bool("headless", cfg.Headless).
		Msg("Chrome launched")

	return &Driver{
		launcher:   l,
		browser:    browser,
		controlURL: controlURL,
		dataDir:    dataDir,
	}, nil
}

// Probe checks that the browser process still answers on the CDP
// connection. It is a single version round trip and is safe to call
// frequently.
func (d *Driver) Probe(ctx context.Context) error {
	if _, err := proto.BrowserGetVersion{}.Call(d.browser.Context(ctx)); err != nil {
		return fmt.Errorf("browser version probe: %w", err)
	}
	return nil
}

// NewSession creates an incognito browser context on this driver.
func (d *Driver) NewSession(ctx context.Context) (*Session, error) {
	incognito, err := d.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create incognito context: %w", err)
	}
	return &Session{browser: incognito}, nil
}

// Browser exposes the underlying CDP connection.
func (d *Driver) Browser() *rod.Browser {
	return d.browser
}

// ControlURL returns the DevTools websocket URL of the process.
func (d *Driver) ControlURL() string {
	return d.controlURL
}

// Close shuts the browser down and kills the process. Both are
// attempted even if the graceful close fails, and the profile directory
// is removed afterwards.
func (d *Driver) Close(ctx context.Context) error {
	var closeErr error
	if d.browser != nil {
		if err := d.browser.Context(ctx).Close(); err != nil {
			closeErr = fmt.Errorf("close browser: %w", err)
		}
	}
	if d.launcher != nil {
		d.launcher.Kill()
	}
	removeProfileDir(d.dataDir)
	return closeErr
}

// waitForCDP waits for the DevTools endpoint of controlURL to accept
// TCP connections. Chrome occasionally reports its websocket URL a
// moment before the listener is ready.
func waitForCDP(ctx context.Context, controlURL string) error {
	u, err := url.Parse(controlURL)
	if err != nil {
		return fmt.Errorf("parse control url: %w", err)
	}

	deadline := time.Now().Add(cdpWaitTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := net.DialTimeout("tcp", u.Host, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}

		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("cdp endpoint %s not available after %v", u.Host, cdpWaitTimeout)
}

// newProfileDir creates a fresh per-driver profile directory under
// baseDir. Two drivers must never share a user data directory, Chrome
// refuses to start on a locked profile.
func newProfileDir(baseDir string) (string, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "webagentd-profiles")
	}
	dir := filepath.Join(baseDir, "profile-"+uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func removeProfileDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Debug().Err(err).Str("data_dir", dir).Msg("Failed to remove profile directory")
	}
}

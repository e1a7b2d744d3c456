package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/okanya/webagentd/internal/config"
	"github.com/okanya/webagentd/internal/logger"
	"github.com/okanya/webagentd/internal/observability"
	"github.com/okanya/webagentd/internal/server"
	"github.com/okanya/webagentd/internal/tasks"
	"github.com/okanya/webagentd/pkg/driver"
	"github.com/okanya/webagentd/pkg/pool"
	"github.com/okanya/webagentd/pkg/worker"
)

// shutdownTimeout bounds how long Stop waits for in-flight HTTP
// requests before closing the listener anyway.
const shutdownTimeout = 10 * time.Second

// Daemon represents the webagentd daemon service
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	// Core modules
	sessionFactory *driver.Factory
	provider       worker.Provider
	pool           *pool.Pool
	store          tasks.Store
	taskManager    *tasks.Manager

	// Services
	httpServer    *server.Server
	configWatcher *config.Watcher

	// Internal
	lifecycle *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex
}

// New creates a new daemon instance. configPath is the config file the
// daemon watches for live reloads; empty means the default location.
func New(cfg *config.Config, log *logger.Logger, configPath string) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		logger:     log,
	}

	// Initialize core modules in dependency order
	if err := d.initializeCoreModules(); err != nil {
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}

	// Initialize services
	if err := d.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)

	return d, nil
}

// initializeCoreModules initializes all core modules
func (d *Daemon) initializeCoreModules() error {
	// Initialize audit logger
	if d.config.DataDir != "" {
		if err := os.MkdirAll(d.config.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		auditPath := filepath.Join(d.config.DataDir, "audit.log")
		if err := observability.InitAuditLogger(auditPath); err != nil {
			d.logger.Warn().Err(err).Msg("Failed to initialize audit logger, using default stderr")
		} else {
			d.logger.Info().Str("path", auditPath).Msg("Audit logger initialized")
		}
	}

	d.sessionFactory = driver.NewFactory(driver.Config{
		Headless:     d.config.Browser.Headless,
		ChromePath:   d.config.Browser.ChromePath,
		NoSandbox:    d.config.Browser.NoSandbox,
		UserAgent:    d.config.Browser.UserAgent,
		WindowWidth:  d.config.Browser.WindowWidth,
		WindowHeight: d.config.Browser.WindowHeight,
		DataDir:      d.config.Browser.DataDir,
	})
	d.logger.Info().Bool("headless", d.config.Browser.Headless).Msg("Browser factory initialized")

	provider, err := worker.NewProvider(worker.ProviderConfig{
		Name:    d.config.LLM.Provider,
		APIKey:  d.config.LLM.APIKey,
		BaseURL: d.config.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	d.provider = provider
	d.logger.Info().
		Str("provider", d.config.LLM.Provider).
		Str("model", d.config.LLM.Model).
		Msg("LLM provider initialized")

	d.pool = pool.New(d.sessionFactory, pool.Options{
		MaxSessions:     d.config.Pool.MaxSessions,
		MaxIdleDuration: time.Duration(d.config.Pool.MaxIdleSeconds) * time.Second,
		SweepInterval:   time.Duration(d.config.Pool.SweepIntervalSeconds) * time.Second,
		ProbeTimeout:    time.Duration(d.config.Pool.ProbeTimeoutSeconds) * time.Second,
		FactoryTimeout:  time.Duration(d.config.Pool.FactoryTimeoutSeconds) * time.Second,
	})
	d.logger.Info().
		Int("max_sessions", d.config.Pool.MaxSessions).
		Int("max_idle_seconds", d.config.Pool.MaxIdleSeconds).
		Msg("Session pool initialized")

	store, err := d.buildStore()
	if err != nil {
		return fmt.Errorf("failed to create task store: %w", err)
	}
	d.store = store
	d.logger.Info().Str("backend", d.config.Store.Backend).Msg("Task store initialized")

	taskManager, err := tasks.NewManager(tasks.Config{
		Pool:     d.pool,
		Provider: d.provider,
		Store:    d.store,
		WorkerConfig: worker.Config{
			Model:       d.config.LLM.Model,
			Temperature: d.config.LLM.Temperature,
			MaxTokens:   d.config.LLM.MaxTokens,
			MaxSteps:    d.config.Agent.MaxSteps,
			Navigation: worker.NavigationPolicy{
				AllowFileURLs:      d.config.Browser.AllowFileURLs,
				AllowLocalhostURLs: d.config.Browser.AllowLocalhostURLs,
				AllowedDomains:     d.config.Browser.AllowedDomains,
				BlockedDomains:     d.config.Browser.BlockedDomains,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create task manager: %w", err)
	}
	d.taskManager = taskManager
	d.logger.Info().Msg("Task manager initialized")

	return nil
}

// initializeServices initializes all services
func (d *Daemon) initializeServices() error {
	httpServer, err := server.New(server.Config{
		Host:  d.config.Server.Host,
		Port:  d.config.Server.Port,
		Debug: d.config.Server.Debug,
	}, d.taskManager, d.pool)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	d.httpServer = httpServer
	d.logger.Info().
		Str("host", d.config.Server.Host).
		Int("port", d.config.Server.Port).
		Msg("HTTP server initialized")

	// Fan pool and task lifecycle events out to websocket clients, and
	// keep an audit trail of session eviction and task settlement.
	broadcaster := d.httpServer.Broadcaster()
	d.pool.SetEventSink(func(event string, data map[string]interface{}) {
		broadcaster.Broadcast(event, data)
		if event == "pool.session.evicted" {
			key, _ := data["key"].(string)
			reason, _ := data["reason"].(string)
			observability.RecordSessionAudit(context.Background(), "evict:"+reason, key, "success", data)
		}
	})
	d.taskManager.SetEventSink(func(event string, data map[string]interface{}) {
		broadcaster.Broadcast(event, data)
		if event != "task.started" {
			id, _ := data["task_id"].(string)
			status, _ := data["status"].(string)
			observability.RecordTaskAudit(context.Background(), "settle", id, status, data)
		}
	})

	d.configWatcher = config.NewWatcher(d.configPath, d.handleConfigReload)
	d.logger.Info().Msg("Config watcher initialized")

	return nil
}

func (d *Daemon) buildStore() (tasks.Store, error) {
	switch d.config.Store.Backend {
	case "sqlite":
		return tasks.NewSQLiteStore(d.config.Store.Path)
	default:
		return tasks.NewMemoryStore(), nil
	}
}

// handleConfigReload applies the subset of configuration that is safe
// to change at runtime. Everything else requires a restart.
func (d *Daemon) handleConfigReload(cfg *config.Config) {
	d.mu.Lock()
	previous := d.config
	d.config = cfg
	d.mu.Unlock()

	if cfg.Logging.Level != previous.Logging.Level {
		if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
			zerolog.SetGlobalLevel(level)
			d.logger.Info().Str("level", cfg.Logging.Level).Msg("Log level updated")
		} else {
			d.logger.Warn().Str("level", cfg.Logging.Level).Msg("Ignoring invalid log level")
		}
	}

	if cfg.Server != previous.Server || cfg.Pool != previous.Pool {
		d.logger.Warn().Msg("Server or pool configuration changed; restart required to apply")
	}

	observability.RecordConfigAudit(context.Background(), "reload", "watcher", map[string]interface{}{
		"log_level": cfg.Logging.Level,
	})
}

// Start starts the daemon service
func (d *Daemon) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info().Msg("Starting webagentd daemon")

	// Start lifecycle manager
	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	// Start pool janitor
	d.pool.StartJanitor()
	d.logger.Info().
		Int("sweep_interval_seconds", d.config.Pool.SweepIntervalSeconds).
		Msg("Pool janitor started")

	// Start HTTP server
	if err := d.httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	d.logger.Info().
		Str("addr", fmt.Sprintf("%s:%d", d.config.Server.Host, d.config.Server.Port)).
		Msg("HTTP server started")

	// Start config watcher
	if err := d.configWatcher.Start(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to start config watcher")
	} else {
		d.logger.Info().Msg("Config watcher started")
	}

	d.logger.Info().Msg("Daemon started successfully - all core modules active")

	return nil
}

// Stop stops the daemon service gracefully
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	d.logger.Info().Msg("Stopping webagentd daemon")

	// Stop config watcher
	if d.configWatcher != nil {
		d.configWatcher.Stop()
	}

	// Stop HTTP server
	if d.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := d.httpServer.Shutdown(ctx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to shutdown HTTP server")
		}
		cancel()
	}
	d.logger.Info().Msg("HTTP server stopped")

	// Stop running tasks
	if d.taskManager != nil {
		d.taskManager.StopAll()
	}
	d.logger.Info().Msg("Task manager stopped")

	// Shut down the session pool, closes every browser
	if d.pool != nil {
		d.pool.Shutdown()
	}
	d.logger.Info().Msg("Session pool stopped")

	// Close task store
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close task store")
		}
	}

	// Stop lifecycle manager
	if err := d.lifecycle.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	// Close audit logger
	if err := observability.GetAuditLogger().Close(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to close audit logger")
	}

	d.logger.Info().Msg("Daemon stopped successfully")

	return nil
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := Status{
		Running: d.running,
	}

	if d.running {
		status.Uptime = time.Since(d.startTime)
		status.StartTime = d.startTime
	}

	return status
}

// Status represents daemon status
type Status struct {
	Running   bool
	Uptime    time.Duration
	StartTime time.Time
}

// Wait waits for the daemon to stop
func (d *Daemon) Wait() {
	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for signal
	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	// Stop daemon
	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// GetLogger returns the daemon logger
func (d *Daemon) GetLogger() *logger.Logger {
	return d.logger
}

// GetPool returns the session pool
func (d *Daemon) GetPool() *pool.Pool {
	return d.pool
}

// GetTaskManager returns the task manager
func (d *Daemon) GetTaskManager() *tasks.Manager {
	return d.taskManager
}

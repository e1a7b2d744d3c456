package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okanya/webagentd/internal/config"
	"github.com/okanya/webagentd/internal/daemon"
	"github.com/okanya/webagentd/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the webagentd daemon service",
	Long: `Start the webagentd daemon service.
The daemon serves the task API, manages the browser session pool and
runs until it receives SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// Check if daemon is already running
	pidFile := getPIDFilePath()
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The flag wins over the config file when set explicitly
	if cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSizeMB,
		MaxAge:    cfg.Logging.MaxAgeDays,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, cfgFile)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	fmt.Printf("webagentd listening on %s:%d (PID %d)\n", cfg.Server.Host, cfg.Server.Port, os.Getpid())

	// Block until SIGINT/SIGTERM, then shut down
	d.Wait()
	return nil
}

func getPIDFilePath() string {
	// The daemon writes its PID under the configured data directory.
	if cfg, err := config.Load(cfgFile); err == nil && cfg.DataDir != "" {
		return filepath.Join(cfg.DataDir, "webagentd.pid")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/webagentd.pid"
	}
	return filepath.Join(home, ".webagentd", "webagentd.pid")
}

func isRunning(pidFile string) bool {
	if _, err := os.Stat(pidFile); os.IsNotExist(err) {
		return false
	}

	// Read PID and check if process exists
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return false
	}

	var pid int
	_, err = fmt.Sscanf(string(data), "%d", &pid)
	if err != nil {
		return false
	}

	// FindProcess always succeeds on Unix, so probe with signal 0
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

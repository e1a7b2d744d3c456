package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okanya/webagentd/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show the current status of the webagentd daemon service.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidFile := getPIDFilePath()

	if !isRunning(pidFile) {
		fmt.Println("Status: stopped")
		return nil
	}

	pid, err := readPIDFile(pidFile)
	if err != nil {
		return err
	}

	// Get PID file modification time for uptime calculation
	fileInfo, err := os.Stat(pidFile)
	if err == nil {
		uptime := time.Since(fileInfo.ModTime())
		fmt.Printf("Status: running\n")
		fmt.Printf("PID: %d\n", pid)
		fmt.Printf("Uptime: %s\n", formatDuration(uptime))
	} else {
		fmt.Printf("Status: running\n")
		fmt.Printf("PID: %d\n", pid)
	}

	// Ask the daemon's HTTP API for pool and task details
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil
	}
	printDaemonStatus(os.Stdout, cfg)

	return nil
}

// printDaemonStatus queries the running daemon over HTTP. Failures are
// silent: the process is up even when the API is not reachable yet.
func printDaemonStatus(out io.Writer, cfg *config.Config) {
	client := &http.Client{Timeout: 2 * time.Second}
	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	resp, err := client.Get(base + "/pool/status")
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	var status struct {
		TotalSessions int `json:"total_sessions"`
		MaxSessions   int `json:"max_sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return
	}

	fmt.Fprintf(out, "Sessions: %d/%d\n", status.TotalSessions, status.MaxSessions)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

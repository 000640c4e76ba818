package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RevCBH/siren/internal/config"
	"github.com/RevCBH/siren/internal/daemon"
)

// LogFileName is the daemon log written by a background start
const LogFileName = "daemon.log"

// NewDaemonCmd creates the daemon command group with start, stop, status, logs subcommands
func NewDaemonCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the siren daemon",
	}

	cmd.AddCommand(newDaemonStartCmd(a))
	cmd.AddCommand(newDaemonStopCmd(a))
	cmd.AddCommand(newDaemonStatusCmd(a))
	cmd.AddCommand(newDaemonLogsCmd(a))

	return cmd
}

// newDaemonStartCmd creates the 'daemon start' command
// By default, starts the daemon in the background after checking if it's already running.
// Use --foreground to run in blocking mode (useful for debugging or process managers).
func newDaemonStartCmd(a *App) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			if isDaemonRunning(cfg) {
				a.printf("Daemon is already running\n")
				return nil
			}

			if foreground {
				d, err := daemon.New(cfg, a.versionInfo.Version)
				if err != nil {
					return err
				}

				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				handler := NewSignalHandler(cancel)
				handler.Start()
				defer handler.Stop()

				return d.Start(ctx)
			}

			return a.startDaemonBackground(cfg)
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run daemon in foreground (blocking)")

	return cmd
}

// isDaemonRunning checks if the daemon is already running by checking
// the PID file and verifying the process exists.
func isDaemonRunning(cfg *config.Config) bool {
	pid, err := daemon.ReadPID(cfg.Daemon.PIDFile)
	if err != nil {
		return false
	}
	return daemon.IsProcessRunning(pid)
}

// startDaemonBackground spawns the daemon process in the background.
// The child runs in its own process group so signals sent to the
// parent (e.g., Ctrl+C) do not reach it.
func (a *App) startDaemonBackground(cfg *config.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("failed to resolve executable path: %w", err)
	}

	if err := os.MkdirAll(cfg.Home, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.Home, err)
	}
	logPath := filepath.Join(cfg.Home, LogFileName)

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "--home", cfg.Home, "daemon", "start", "--foreground")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid

	// Detach; the daemon manages itself from here
	if err := cmd.Process.Release(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to release process: %v\n", err)
	}

	// Poll with backoff: 100ms, 200ms, 400ms, 800ms, 1600ms
	const maxRetries = 5
	delay := 100 * time.Millisecond
	for i := 0; i < maxRetries; i++ {
		time.Sleep(delay)
		if isDaemonRunning(cfg) {
			a.printf("Daemon started (PID: %d)\n", pid)
			a.printf("Logs: %s\n", logPath)
			return nil
		}
		delay *= 2
	}

	return fmt.Errorf("daemon failed to start - check %s for details", logPath)
}

// newDaemonStopCmd creates the 'daemon stop' command.
// Live sessions are cancelled; their timers die with the process.
func newDaemonStopCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !isDaemonRunning(cfg) {
				a.printf("Daemon is not running\n")
				return nil
			}

			c, err := a.connect()
			if err != nil {
				a.printf("Daemon is not running\n")
				return nil
			}
			defer c.Close()

			active, err := c.Shutdown(cmd.Context())
			if err != nil {
				return err
			}
			if active > 0 {
				a.printf("Cancelled %d active session(s)\n", active)
			}
			a.printf("Daemon stopped\n")
			return nil
		},
	}
}

// newDaemonStatusCmd creates the 'daemon status' command
// Displays: Daemon Status, Active Sessions, Version, Uptime
func newDaemonStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			health, err := c.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon not running: %w", err)
			}

			a.printf("Daemon Status: %s\n", boolToStatus(health.Healthy))
			a.printf("Active Sessions: %d\n", health.ActiveSessions)
			a.printf("Version: %s\n", health.Version)
			if !health.StartedAt.IsZero() {
				a.printf("Uptime: %s\n", formatDuration(time.Since(health.StartedAt)))
			}
			return nil
		},
	}
}

// newDaemonLogsCmd creates the 'daemon logs' command
// Shows daemon log output with optional follow mode
func newDaemonLogsCmd(a *App) *cobra.Command {
	var (
		follow bool
		lines  int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon logs",
		Long:  `Display daemon log output. Use -f to follow logs in real-time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := a.homeDir()
			if err != nil {
				return err
			}
			logPath := filepath.Join(home, LogFileName)

			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				return fmt.Errorf("no daemon logs found at %s", logPath)
			}

			if follow {
				return followLogs(cmd, a.out, logPath, lines)
			}
			return showLogs(a.out, logPath, lines)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show (0 for all)")

	return cmd
}

// showLogs writes the last N lines of the log file to w, reading backwards
// from the end in chunks.
func showLogs(w io.Writer, logPath string, lines int) error {
	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if lines == 0 {
		_, err = io.Copy(w, f)
		return err
	}

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	start, err := tailOffset(f, stat.Size(), lines)
	if err != nil {
		return err
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.Copy(w, f)
	return err
}

// tailOffset returns the offset where the last n lines of r begin
func tailOffset(r io.ReaderAt, size int64, n int) (int64, error) {
	const bufSize = 8192
	buf := make([]byte, bufSize)
	newlines := 0

	pos := size
	for pos > 0 {
		readSize := int64(bufSize)
		if pos < readSize {
			readSize = pos
		}
		pos -= readSize

		read, err := r.ReadAt(buf[:readSize], pos)
		if err != nil && err != io.EOF {
			return 0, fmt.Errorf("failed to read: %w", err)
		}

		for i := read - 1; i >= 0; i-- {
			if buf[i] != '\n' {
				continue
			}
			// The trailing newline of the final line doesn't start a new one
			if pos+int64(i) == size-1 {
				continue
			}
			newlines++
			if newlines == n {
				return pos + int64(i) + 1, nil
			}
		}
	}
	return 0, nil
}

// followLogs tails the log file, showing new content as it's written
func followLogs(cmd *cobra.Command, w io.Writer, logPath string, initialLines int) error {
	if initialLines > 0 {
		if err := showLogs(w, logPath, initialLines); err != nil {
			return err
		}
	}

	f, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end of file: %w", err)
	}

	reader := bufio.NewReader(f)
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		default:
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					time.Sleep(100 * time.Millisecond)
					continue
				}
				return fmt.Errorf("error reading log file: %w", err)
			}
			fmt.Fprint(w, line)
		}
	}
}

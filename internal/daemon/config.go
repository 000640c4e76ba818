package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RevCBH/siren/internal/config"
)

// Config holds daemon process settings resolved from the Siren config.
type Config struct {
	Home       string
	SocketPath string // Default: ~/.siren/daemon.sock
	PIDFile    string // Default: ~/.siren/daemon.pid
	DBPath     string // Default: ~/.siren/siren.db
	WebAddr    string // Default: :8787, empty disables the web API

	EventBuffer   int
	SendTimeout   time.Duration
	PruneInterval time.Duration

	// Version is reported by Health
	Version string
}

// ConfigFrom derives daemon settings from a loaded config.
// Paths are made absolute.
func ConfigFrom(cfg *config.Config) (*Config, error) {
	sendTimeout, err := cfg.SendTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("notify.send_timeout: %w", err)
	}

	c := &Config{
		Home:          cfg.Home,
		SocketPath:    cfg.Daemon.Socket,
		PIDFile:       cfg.Daemon.PIDFile,
		DBPath:        cfg.Daemon.DBPath,
		WebAddr:       cfg.Daemon.WebAddr,
		EventBuffer:   cfg.Daemon.EventBuffer,
		SendTimeout:   sendTimeout,
		PruneInterval: time.Minute,
		Version:       "dev",
	}

	for _, p := range []*string{&c.SocketPath, &c.PIDFile, &c.DBPath} {
		if *p == ":memory:" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", *p, err)
		}
		*p = abs
	}
	return c, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !filepath.IsAbs(c.SocketPath) {
		return fmt.Errorf("SocketPath must be absolute, got %s", c.SocketPath)
	}

	if !filepath.IsAbs(c.PIDFile) {
		return fmt.Errorf("PIDFile must be absolute, got %s", c.PIDFile)
	}

	if c.DBPath != ":memory:" && !filepath.IsAbs(c.DBPath) {
		return fmt.Errorf("DBPath must be absolute, got %s", c.DBPath)
	}

	if c.EventBuffer <= 0 {
		return fmt.Errorf("EventBuffer must be greater than 0, got %d", c.EventBuffer)
	}

	if c.PruneInterval <= 0 {
		return fmt.Errorf("PruneInterval must be positive, got %s", c.PruneInterval)
	}

	return nil
}

// EnsureDirectories creates the directories needed for daemon files.
func (c *Config) EnsureDirectories() error {
	dirs := map[string]bool{
		filepath.Dir(c.SocketPath): true,
		filepath.Dir(c.PIDFile):    true,
	}
	if c.DBPath != ":memory:" {
		dirs[filepath.Dir(c.DBPath)] = true
	}

	for dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

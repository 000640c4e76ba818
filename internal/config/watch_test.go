package config

import (
	"context"
	"testing"
	"time"
)

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := isolate(t)
	writeFile(t, Path(dir), "log_level: info\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func(c *Config) { reloaded <- c })
	}()

	// Give the watcher time to register before editing
	time.Sleep(100 * time.Millisecond)
	writeFile(t, Path(dir), "log_level: debug\n")

	select {
	case cfg := <-reloaded:
		if cfg.LogLevel != "debug" {
			t.Errorf("expected reloaded log level debug, got %q", cfg.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestWatch_SkipsInvalidConfig(t *testing.T) {
	dir := isolate(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 4)
	go Watch(ctx, dir, func(c *Config) { reloaded <- c })

	time.Sleep(100 * time.Millisecond)
	writeFile(t, Path(dir), "log_level: shouting\n")

	select {
	case cfg := <-reloaded:
		t.Errorf("expected invalid config to be skipped, got %+v", cfg)
	case <-time.After(600 * time.Millisecond):
	}
}

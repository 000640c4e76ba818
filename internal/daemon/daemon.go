package daemon

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"

	"github.com/RevCBH/siren/internal/config"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/notify"
	"github.com/RevCBH/siren/internal/store"
	"github.com/RevCBH/siren/internal/web"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

// Daemon is the main daemon process coordinator.
type Daemon struct {
	cfg      *Config
	clock    clockwork.Clock
	store    *store.Store
	bus      *events.Bus
	notifier *swappableNotifier
	engine   *escalation.Engine
	service  *Service
	pidFile  *PIDFile

	grpcServer *grpc.Server
	grpcImpl   *GRPCServer
	listener   net.Listener
	webServer  *web.Server

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New creates a new daemon instance from a loaded config and opens the database.
func New(sirenCfg *config.Config, version string) (*Daemon, error) {
	// 1. Resolve and validate process settings
	cfg, err := ConfigFrom(sirenCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if version != "" {
		cfg.Version = version
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 2. Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	// 3. Open database connection
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	clock := clockwork.NewRealClock()

	// 4. Notifier backends, swappable on config reload
	backend, err := notify.FromConfig(sirenCfg.NotifierConfig())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("notifier: %w", err)
	}
	notifier := newSwappableNotifier(backend)

	// 5. Event bus with persistence and logging subscribers
	bus := events.NewBus(cfg.EventBuffer)
	bus.Subscribe(store.Handler(st))
	bus.Subscribe(events.LogHandler(events.LogConfig{
		IncludePayload: sirenCfg.LogLevel == "debug",
	}))

	// 6. Engine and service
	engine := escalation.New(escalation.EngineConfig{
		Clock:       clock,
		Notifier:    notifier,
		Bus:         bus,
		SendTimeout: cfg.SendTimeout,
	})
	service := NewService(ServiceConfig{
		Config: sirenCfg,
		Engine: engine,
		Bus:    bus,
		Store:  st,
		Clock:  clock,
	})

	return &Daemon{
		cfg:        cfg,
		clock:      clock,
		store:      st,
		bus:        bus,
		notifier:   notifier,
		engine:     engine,
		service:    service,
		pidFile:    NewPIDFile(cfg.PIDFile),
		shutdownCh: make(chan struct{}),
	}, nil
}

// Service returns the session service
func (d *Daemon) Service() *Service {
	return d.service
}

// Start acquires the PID file, listens on the control socket and the web
// address, and blocks until ctx is cancelled or Shutdown is called.
func (d *Daemon) Start(ctx context.Context) error {
	// 1. Acquire PID file (fails if daemon already running)
	if err := d.pidFile.Acquire(); err != nil {
		d.closeCore()
		return fmt.Errorf("failed to acquire PID file: %w", err)
	}

	// Sessions left live by a crashed run cannot resume without their timers
	if n, err := d.store.MarkInterrupted(d.clock.Now()); err != nil {
		log.Printf("WARN: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d session(s) from a previous run as cancelled", n)
	}

	// 2. Create Unix socket listener (remove stale socket first)
	listener, err := d.setupSocket()
	if err != nil {
		if releaseErr := d.pidFile.Release(); releaseErr != nil {
			log.Printf("Error releasing PID file during cleanup: %v", releaseErr)
		}
		d.closeCore()
		return fmt.Errorf("failed to setup socket: %w", err)
	}
	d.listener = listener

	// 3. Create and register gRPC server
	d.grpcServer = grpc.NewServer()
	d.grpcImpl = NewGRPCServer(d.service, d.cfg.Version, d.Shutdown)
	apiv1.RegisterSirenServer(d.grpcServer, d.grpcImpl)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.grpcServer.Serve(d.listener); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// 4. Start web server
	if d.cfg.WebAddr != "" {
		webSrv := web.New(web.Config{Addr: d.cfg.WebAddr}, d.service)
		if err := webSrv.Start(); err != nil {
			log.Printf("Warning: failed to start web server: %v", err)
		} else {
			d.webServer = webSrv
			log.Printf("Web server listening on http://%s", webSrv.Addr())
		}
	}

	// 5. Background housekeeping
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	d.wg.Add(2)
	go func() {
		defer d.wg.Done()
		d.service.RunPruner(bgCtx, d.cfg.PruneInterval)
	}()
	go func() {
		defer d.wg.Done()
		if err := config.Watch(bgCtx, d.cfg.Home, d.reload); err != nil {
			log.Printf("WARN: config watch disabled: %v", err)
		}
	}()

	log.Printf("Daemon started on %s (PID: %d)", d.cfg.SocketPath, os.Getpid())
	d.bus.Emit(events.NewEvent(events.DaemonStarted, "").WithPayload(map[string]any{
		"pid":     os.Getpid(),
		"socket":  d.cfg.SocketPath,
		"web":     d.cfg.WebAddr,
		"version": d.cfg.Version,
	}))

	// 6. Wait for shutdown signal
	select {
	case <-ctx.Done():
		log.Println("Received context cancellation")
	case <-d.shutdownCh:
		log.Println("Received shutdown signal")
	}
	stopBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return d.gracefulShutdown(shutdownCtx)
}

// Shutdown initiates graceful shutdown. Safe to call more than once.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

// reload applies an edited config: new sessions use the new defaults and
// contact sources, and notifier backends are rebuilt.
func (d *Daemon) reload(cfg *config.Config) {
	backend, err := notify.FromConfig(cfg.NotifierConfig())
	if err != nil {
		log.Printf("WARN: config reload rejected: notifier: %v", err)
		return
	}
	d.notifier.Swap(backend)
	d.service.SetConfig(cfg)

	log.Printf("Config reloaded (notifiers: %s)", backend.Name())
	d.bus.Emit(events.NewEvent(events.DaemonConfigReloaded, "").WithPayload(map[string]any{
		"notifiers": backend.Name(),
		"contacts":  len(cfg.Contacts),
	}))
}

// gracefulShutdown performs ordered shutdown of daemon components.
// 1. End Watch streams and stop gRPC
// 2. Stop web server
// 3. Cancel live sessions so their final events reach the store
// 4. Drain the engine and bus, then close the database
// 5. Release PID file and socket
func (d *Daemon) gracefulShutdown(ctx context.Context) error {
	log.Println("Starting graceful shutdown...")

	if d.grpcServer != nil {
		d.grpcImpl.setShuttingDown()
		stopped := make(chan struct{})
		go func() {
			d.grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			log.Println("gRPC server stopped")
		case <-time.After(3 * time.Second):
			log.Println("gRPC server graceful stop timed out, forcing stop")
			d.grpcServer.Stop()
		case <-ctx.Done():
			d.grpcServer.Stop()
		}
	}

	if d.webServer != nil {
		log.Println("Stopping web server...")
		webCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := d.webServer.Stop(webCtx); err != nil {
			log.Printf("Error stopping web server: %v", err)
		}
	}

	// No client can reach the service now
	if n := d.service.CancelAll(); n > 0 {
		log.Printf("Cancelled %d active session(s)", n)
	}

	d.wg.Wait()
	d.closeCore()

	if err := d.pidFile.Release(); err != nil {
		log.Printf("Error releasing PID file: %v", err)
	}

	if d.cfg.SocketPath != "" {
		if err := os.Remove(d.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			log.Printf("Error removing socket file: %v", err)
		}
	}

	log.Println("Daemon shutdown complete")
	return nil
}

// closeCore stops the engine, drains the bus into the store and closes it
func (d *Daemon) closeCore() {
	d.service.Close()
	d.engine.Close()
	if err := d.bus.Close(); err != nil {
		log.Printf("Error closing event bus: %v", err)
	}
	if err := d.store.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// setupSocket creates the Unix domain socket listener.
func (d *Daemon) setupSocket() (net.Listener, error) {
	// Remove stale socket file
	if err := os.Remove(d.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	// Set permissions (0600 - user only)
	if err := os.Chmod(d.cfg.SocketPath, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return listener, nil
}

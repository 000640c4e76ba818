package web

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

// DefaultAddr is used when Config.Addr is empty
const DefaultAddr = ":8787"

// streamKeepalive is the idle interval between SSE ping comments
const streamKeepalive = 15 * time.Second

// Server is the HTTP API: session control, history, the SSE event stream
// and the sensor WebSocket.
type Server struct {
	addr    string
	backend Backend
	feed    *Feed

	httpServer   *http.Server
	httpListener net.Listener
	unsubscribe  func()
}

// New creates a web server for the backend.
// Does not start listening - call Start() for that.
func New(cfg Config, backend Backend) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		addr:    cfg.Addr,
		backend: backend,
		feed:    NewFeed(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes returns the API mux
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", HealthHandler())
	mux.HandleFunc("GET /api/sessions", ListSessionsHandler(s.backend))
	mux.HandleFunc("POST /api/sessions", CreateSessionHandler(s.backend))
	mux.HandleFunc("GET /api/sessions/{id}", GetSessionHandler(s.backend))
	mux.HandleFunc("POST /api/sessions/{id}/ack", AckHandler(s.backend))
	mux.HandleFunc("POST /api/sessions/{id}/trigger", TriggerHandler(s.backend))
	mux.HandleFunc("POST /api/sessions/{id}/complete", CompleteHandler(s.backend))
	mux.HandleFunc("POST /api/sessions/{id}/cancel", CancelHandler(s.backend))
	mux.HandleFunc("GET /api/sessions/{id}/events", HistoryHandler(s.backend))
	mux.HandleFunc("GET /api/sessions/{id}/sensors", SensorHandler(s.backend, sensorPingPeriod))
	mux.HandleFunc("GET /api/events", EventsHandler(s.feed, streamKeepalive))
	return mux
}

// Start begins listening on the HTTP address.
// - Subscribes the SSE feed to the backend
// - Starts the HTTP server
// Non-blocking - the server runs in a goroutine.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("HTTP listen: %w", err)
	}
	s.httpListener = listener

	// Update addr with actual address (important for ephemeral ports)
	s.addr = listener.Addr().String()

	s.unsubscribe = s.backend.Subscribe(s.feed.Handler())

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("WARN: web server: %v", err)
		}
	}()

	return nil
}

// Stop performs graceful shutdown.
// - Detaches from the backend event stream
// - Closes the SSE feed, which ends open streams
// - Shuts down the HTTP server with the context deadline
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.feed.Close()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Feed returns the SSE feed.
func (s *Server) Feed() *Feed {
	return s.feed
}

package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

// GRPCServer implements the siren.v1.Siren control API
type GRPCServer struct {
	service   *Service
	version   string
	startedAt time.Time
	onStop    func()

	// Shutdown coordination
	mu           sync.RWMutex
	shuttingDown bool
	shutdownCh   chan struct{}
}

// NewGRPCServer creates a new gRPC server instance. onShutdown is called
// by the Shutdown RPC and may be nil.
func NewGRPCServer(service *Service, version string, onShutdown func()) *GRPCServer {
	return &GRPCServer{
		service:    service,
		version:    version,
		startedAt:  time.Now(),
		onStop:     onShutdown,
		shutdownCh: make(chan struct{}),
	}
}

// isShuttingDown returns true if the server is in shutdown mode
func (s *GRPCServer) isShuttingDown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuttingDown
}

// setShuttingDown marks the server as shutting down and ends Watch streams
func (s *GRPCServer) setShuttingDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}
	s.shuttingDown = true
	close(s.shutdownCh)
}

// CreateSession starts a new safety session
func (s *GRPCServer) CreateSession(ctx context.Context, req *apiv1.CreateSessionRequest) (*apiv1.CreateSessionResponse, error) {
	if s.isShuttingDown() {
		return nil, status.Errorf(codes.Unavailable, "daemon is shutting down")
	}

	cfg, err := createRequestFromAPI(req)
	if err != nil {
		return nil, toStatus(err)
	}

	snap, warnings, err := s.service.CreateSession(ctx, cfg)
	if err != nil {
		return nil, toStatus(err)
	}

	return &apiv1.CreateSessionResponse{
		Session:  snapshotToAPI(snap),
		Warnings: warnings,
	}, nil
}

// Acknowledge records "I'm safe" for a session
func (s *GRPCServer) Acknowledge(ctx context.Context, req *apiv1.SessionRequest) (*apiv1.SessionResponse, error) {
	return s.sessionCall(req, s.service.Acknowledge)
}

// Trigger injects a trigger event
func (s *GRPCServer) Trigger(ctx context.Context, req *apiv1.TriggerRequest) (*apiv1.SessionResponse, error) {
	if req.SessionID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "session_id is required")
	}
	kind, err := escalation.ParseTriggerKind(req.Kind)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	snap, err := s.service.Trigger(req.SessionID, kind, req.Value)
	if err != nil {
		return nil, toStatus(err)
	}
	return &apiv1.SessionResponse{Session: snapshotToAPI(snap)}, nil
}

// Complete resolves a session
func (s *GRPCServer) Complete(ctx context.Context, req *apiv1.SessionRequest) (*apiv1.SessionResponse, error) {
	return s.sessionCall(req, s.service.Complete)
}

// Cancel cancels a session
func (s *GRPCServer) Cancel(ctx context.Context, req *apiv1.SessionRequest) (*apiv1.SessionResponse, error) {
	return s.sessionCall(req, s.service.Cancel)
}

// GetSession returns the current state of a session
func (s *GRPCServer) GetSession(ctx context.Context, req *apiv1.SessionRequest) (*apiv1.SessionResponse, error) {
	return s.sessionCall(req, s.service.Session)
}

// ListSessions returns sessions, optionally only the live ones
func (s *GRPCServer) ListSessions(ctx context.Context, req *apiv1.ListSessionsRequest) (*apiv1.ListSessionsResponse, error) {
	list, err := s.service.Sessions(req.ActiveOnly)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to list sessions: %v", err)
	}

	resp := &apiv1.ListSessionsResponse{Sessions: []apiv1.Session{}}
	for _, snap := range list {
		resp.Sessions = append(resp.Sessions, snapshotToAPI(snap))
	}
	return resp, nil
}

// Shutdown stops the daemon; live sessions are cancelled
func (s *GRPCServer) Shutdown(ctx context.Context, req *apiv1.ShutdownRequest) (*apiv1.ShutdownResponse, error) {
	active := s.service.ActiveCount()
	s.setShuttingDown()
	if s.onStop != nil {
		go s.onStop()
	}
	return &apiv1.ShutdownResponse{ActiveSessions: active}, nil
}

// Health reports daemon liveness
func (s *GRPCServer) Health(ctx context.Context, req *apiv1.HealthRequest) (*apiv1.HealthResponse, error) {
	return &apiv1.HealthResponse{
		Healthy:        !s.isShuttingDown(),
		Version:        s.version,
		ActiveSessions: s.service.ActiveCount(),
		StartedAt:      s.startedAt,
	}, nil
}

// Watch streams events until the client disconnects or the daemon stops.
// With Replay set, stored history for the session is sent first.
func (s *GRPCServer) Watch(req *apiv1.WatchRequest, stream apiv1.WatchServer) error {
	if req.SessionID != "" {
		if _, err := s.service.Session(req.SessionID); err != nil {
			return toStatus(err)
		}
	}

	// Subscribe before replaying so nothing falls between the two
	live := make(chan events.Event, 256)
	handler := func(e events.Event) {
		select {
		case live <- e:
		default:
			// Slow watcher: drop rather than stall the bus
		}
	}
	if req.SessionID != "" {
		handler = events.SessionHandler(handler, req.SessionID)
	}
	unsubscribe := s.service.Subscribe(handler)
	defer unsubscribe()

	if req.Replay && req.SessionID != "" {
		history, err := s.service.History(req.SessionID, req.FromSequence)
		if err != nil {
			return status.Errorf(codes.Internal, "failed to load history: %v", err)
		}
		for _, rec := range history {
			if err := stream.Send(recordToAPI(rec)); err != nil {
				return err
			}
		}
	}

	for {
		select {
		case e := <-live:
			if err := stream.Send(eventToAPI(e)); err != nil {
				// Client disconnected or stream error
				return err
			}

		case <-stream.Context().Done():
			return stream.Context().Err()

		case <-s.shutdownCh:
			return status.Errorf(codes.Unavailable, "daemon is shutting down")
		}
	}
}

func (s *GRPCServer) sessionCall(req *apiv1.SessionRequest, call func(string) (escalation.Snapshot, error)) (*apiv1.SessionResponse, error) {
	if req.SessionID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "session_id is required")
	}
	snap, err := call(req.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &apiv1.SessionResponse{Session: snapshotToAPI(snap)}, nil
}

// toStatus maps engine and service errors to gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, escalation.ErrInvalidSession):
		return status.Errorf(codes.NotFound, "%v", err)
	case errors.Is(err, escalation.ErrInvalidConfig):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.Is(err, ErrUnsupportedInput):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case errors.Is(err, escalation.ErrEngineClosed):
		return status.Errorf(codes.Unavailable, "%v", err)
	}
	return status.Errorf(codes.Internal, "%v", err)
}

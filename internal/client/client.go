package client

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

// Client wraps gRPC connection and service stub for daemon communication
type Client struct {
	conn   *grpc.ClientConn
	daemon apiv1.SirenClient
}

// New creates a client connected to the daemon Unix socket.
// The socketPath should be the full path to the daemon socket
// (typically ~/.siren/daemon.sock).
//
// The connection uses insecure credentials since Unix sockets
// are protected by filesystem permissions.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(apiv1.CodecName)),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		conn:   conn,
		daemon: apiv1.NewSirenClient(conn),
	}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// StartSession creates a session and arms it
func (c *Client) StartSession(ctx context.Context, opts SessionOptions) (*Created, error) {
	resp, err := c.daemon.CreateSession(ctx, optionsToRequest(opts))
	if err != nil {
		return nil, err
	}
	return &Created{Session: apiToSession(resp.Session), Warnings: resp.Warnings}, nil
}

// Acknowledge tells the daemon the user is safe
func (c *Client) Acknowledge(ctx context.Context, id string) (*Session, error) {
	return sessionResult(c.daemon.Acknowledge(ctx, &apiv1.SessionRequest{SessionID: id}))
}

// Trigger injects a trigger event into a session
func (c *Client) Trigger(ctx context.Context, id string, kind escalation.TriggerKind, value float64) (*Session, error) {
	return sessionResult(c.daemon.Trigger(ctx, &apiv1.TriggerRequest{
		SessionID: id,
		Kind:      string(kind),
		Value:     value,
	}))
}

// Complete resolves a session
func (c *Client) Complete(ctx context.Context, id string) (*Session, error) {
	return sessionResult(c.daemon.Complete(ctx, &apiv1.SessionRequest{SessionID: id}))
}

// Cancel stops monitoring a session
func (c *Client) Cancel(ctx context.Context, id string) (*Session, error) {
	return sessionResult(c.daemon.Cancel(ctx, &apiv1.SessionRequest{SessionID: id}))
}

// GetSession returns the current state of a session.
// Returns an error wrapping escalation.ErrInvalidSession if it does not exist.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	return sessionResult(c.daemon.GetSession(ctx, &apiv1.SessionRequest{SessionID: id}))
}

// ListSessions returns sessions oldest first, optionally only live ones
func (c *Client) ListSessions(ctx context.Context, activeOnly bool) ([]*Session, error) {
	resp, err := c.daemon.ListSessions(ctx, &apiv1.ListSessionsRequest{ActiveOnly: activeOnly})
	if err != nil {
		return nil, err
	}
	return apiToSessions(resp.Sessions), nil
}

// Health checks daemon health and returns version info.
// This is a lightweight call suitable for polling.
func (c *Client) Health(ctx context.Context) (*HealthInfo, error) {
	resp, err := c.daemon.Health(ctx, &apiv1.HealthRequest{})
	if err != nil {
		return nil, err
	}
	return apiToHealthInfo(resp), nil
}

// Shutdown requests daemon termination. Live sessions are cancelled.
// Returns how many sessions were active.
func (c *Client) Shutdown(ctx context.Context) (int, error) {
	resp, err := c.daemon.Shutdown(ctx, &apiv1.ShutdownRequest{})
	if err != nil {
		return 0, err
	}
	return resp.ActiveSessions, nil
}

// WatchOptions selects what Watch streams
type WatchOptions struct {
	SessionID    string // Empty watches every session
	Replay       bool   // Send stored history first
	FromSequence int    // Replay events after this sequence
}

// Watch streams events, calling handler for each event received.
// Blocks until the stream ends (returns nil), the context is cancelled
// (returns the context error) or the daemon goes away.
func (c *Client) Watch(ctx context.Context, opts WatchOptions, handler func(events.Event)) error {
	stream, err := c.daemon.Watch(ctx, &apiv1.WatchRequest{
		SessionID:    opts.SessionID,
		Replay:       opts.Replay,
		FromSequence: opts.FromSequence,
	})
	if err != nil {
		return err
	}

	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		handler(apiToEvent(event))
	}
}

// sessionResult converts a session RPC result, mapping NotFound back to
// escalation.ErrInvalidSession
func sessionResult(resp *apiv1.SessionResponse, err error) (*Session, error) {
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, &notFoundError{msg: status.Convert(err).Message()}
		}
		return nil, err
	}
	return apiToSession(resp.Session), nil
}

// notFoundError carries the daemon's message and matches
// escalation.ErrInvalidSession with errors.Is
type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return escalation.ErrInvalidSession }

// IsUnavailable reports whether err means the daemon is not reachable
func IsUnavailable(err error) bool {
	return status.Code(err) == codes.Unavailable
}

package apiv1

import (
	"context"

	"google.golang.org/grpc"
)

// SirenClient is the client side of the control API
type SirenClient interface {
	CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error)
	Acknowledge(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	Trigger(ctx context.Context, in *TriggerRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	Complete(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	Cancel(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	GetSession(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error)
	Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error)
	Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error)
	Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (WatchClient, error)
}

// WatchClient receives streamed events
type WatchClient interface {
	Recv() (*Event, error)
	grpc.ClientStream
}

type sirenClient struct {
	cc grpc.ClientConnInterface
}

// NewSirenClient creates a client over cc
func NewSirenClient(cc grpc.ClientConnInterface) SirenClient {
	return &sirenClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sirenClient) CreateSession(ctx context.Context, in *CreateSessionRequest, opts ...grpc.CallOption) (*CreateSessionResponse, error) {
	return invoke[CreateSessionResponse](ctx, c.cc, "CreateSession", in, opts)
}

func (c *sirenClient) Acknowledge(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "Acknowledge", in, opts)
}

func (c *sirenClient) Trigger(ctx context.Context, in *TriggerRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "Trigger", in, opts)
}

func (c *sirenClient) Complete(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "Complete", in, opts)
}

func (c *sirenClient) Cancel(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "Cancel", in, opts)
}

func (c *sirenClient) GetSession(ctx context.Context, in *SessionRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, "GetSession", in, opts)
}

func (c *sirenClient) ListSessions(ctx context.Context, in *ListSessionsRequest, opts ...grpc.CallOption) (*ListSessionsResponse, error) {
	return invoke[ListSessionsResponse](ctx, c.cc, "ListSessions", in, opts)
}

func (c *sirenClient) Shutdown(ctx context.Context, in *ShutdownRequest, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	return invoke[ShutdownResponse](ctx, c.cc, "Shutdown", in, opts)
}

func (c *sirenClient) Health(ctx context.Context, in *HealthRequest, opts ...grpc.CallOption) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c.cc, "Health", in, opts)
}

func (c *sirenClient) Watch(ctx context.Context, in *WatchRequest, opts ...grpc.CallOption) (WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Watch", opts...)
	if err != nil {
		return nil, err
	}
	w := &watchClient{stream}
	if err := w.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := w.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return w, nil
}

type watchClient struct {
	grpc.ClientStream
}

func (w *watchClient) Recv() (*Event, error) {
	e := new(Event)
	if err := w.ClientStream.RecvMsg(e); err != nil {
		return nil, err
	}
	return e, nil
}

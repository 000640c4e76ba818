package apiv1

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "siren.v1.Siren"

// SirenServer is the daemon side of the control API
type SirenServer interface {
	CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error)
	Acknowledge(context.Context, *SessionRequest) (*SessionResponse, error)
	Trigger(context.Context, *TriggerRequest) (*SessionResponse, error)
	Complete(context.Context, *SessionRequest) (*SessionResponse, error)
	Cancel(context.Context, *SessionRequest) (*SessionResponse, error)
	GetSession(context.Context, *SessionRequest) (*SessionResponse, error)
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
	Watch(*WatchRequest, WatchServer) error
}

// WatchServer is the server side of the Watch stream
type WatchServer interface {
	Send(*Event) error
	grpc.ServerStream
}

// ServiceDesc describes siren.v1.Siren for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SirenServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateSession", SirenServer.CreateSession),
		unary("Acknowledge", SirenServer.Acknowledge),
		unary("Trigger", SirenServer.Trigger),
		unary("Complete", SirenServer.Complete),
		unary("Cancel", SirenServer.Cancel),
		unary("GetSession", SirenServer.GetSession),
		unary("ListSessions", SirenServer.ListSessions),
		unary("Shutdown", SirenServer.Shutdown),
		unary("Health", SirenServer.Health),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "siren/v1/siren.json",
}

// RegisterSirenServer registers srv on s
func RegisterSirenServer(s grpc.ServiceRegistrar, srv SirenServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(SirenServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SirenServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(SirenServer), ctx, req.(*Req))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SirenServer).Watch(in, &watchServer{stream})
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(e *Event) error {
	return w.ServerStream.SendMsg(e)
}

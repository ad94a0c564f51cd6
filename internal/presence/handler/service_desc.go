package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "presence.v1.PresenceService"

// Full method names, as seen by interceptors.
const (
	MethodHeartbeat        = "/" + ServiceName + "/Heartbeat"
	MethodIsOnline         = "/" + ServiceName + "/IsOnline"
	MethodGetLastSeen      = "/" + ServiceName + "/GetLastSeen"
	MethodListOnlineUsers  = "/" + ServiceName + "/ListOnlineUsers"
	MethodCountOnlineUsers = "/" + ServiceName + "/CountOnlineUsers"
	MethodNotifyLogin      = "/" + ServiceName + "/NotifyLogin"
	MethodNotifyLogout     = "/" + ServiceName + "/NotifyLogout"
)

// PresenceServiceServer is the server API for presence.v1.PresenceService.
// Messages are protobuf well-known types so the service needs no generated code.
type PresenceServiceServer interface {
	Heartbeat(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IsOnline(context.Context, *wrapperspb.Int64Value) (*wrapperspb.BoolValue, error)
	GetLastSeen(context.Context, *wrapperspb.Int64Value) (*timestamppb.Timestamp, error)
	ListOnlineUsers(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	CountOnlineUsers(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	NotifyLogin(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	NotifyLogout(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterPresenceServiceServer registers srv on s.
func RegisterPresenceServiceServer(s grpc.ServiceRegistrar, srv PresenceServiceServer) {
	s.RegisterService(&PresenceService_ServiceDesc, srv)
}

// unaryHandler adapts a PresenceServiceServer method expression to a grpc.MethodHandler.
func unaryHandler[Req, Resp any](fullMethod string, newReq func() Req,
	call func(PresenceServiceServer, context.Context, Req) (Resp, error)) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PresenceServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(PresenceServiceServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }

func newInt64() *wrapperspb.Int64Value { return new(wrapperspb.Int64Value) }

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

// PresenceService_ServiceDesc is the grpc.ServiceDesc for presence.v1.PresenceService.
var PresenceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PresenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Heartbeat", Handler: unaryHandler(MethodHeartbeat, newStruct, PresenceServiceServer.Heartbeat)},
		{MethodName: "IsOnline", Handler: unaryHandler(MethodIsOnline, newInt64, PresenceServiceServer.IsOnline)},
		{MethodName: "GetLastSeen", Handler: unaryHandler(MethodGetLastSeen, newInt64, PresenceServiceServer.GetLastSeen)},
		{MethodName: "ListOnlineUsers", Handler: unaryHandler(MethodListOnlineUsers, newEmpty, PresenceServiceServer.ListOnlineUsers)},
		{MethodName: "CountOnlineUsers", Handler: unaryHandler(MethodCountOnlineUsers, newEmpty, PresenceServiceServer.CountOnlineUsers)},
		{MethodName: "NotifyLogin", Handler: unaryHandler(MethodNotifyLogin, newEmpty, PresenceServiceServer.NotifyLogin)},
		{MethodName: "NotifyLogout", Handler: unaryHandler(MethodNotifyLogout, newEmpty, PresenceServiceServer.NotifyLogout)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "presence/v1/presence.proto",
}

// PresenceServiceClient is the client API for presence.v1.PresenceService.
type PresenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPresenceServiceClient returns a client over cc.
func NewPresenceServiceClient(cc grpc.ClientConnInterface) *PresenceServiceClient {
	return &PresenceServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PresenceServiceClient) Heartbeat(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, MethodHeartbeat, in, opts)
}

func (c *PresenceServiceClient) IsOnline(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	return invoke[wrapperspb.BoolValue](ctx, c.cc, MethodIsOnline, in, opts)
}

func (c *PresenceServiceClient) GetLastSeen(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*timestamppb.Timestamp, error) {
	return invoke[timestamppb.Timestamp](ctx, c.cc, MethodGetLastSeen, in, opts)
}

func (c *PresenceServiceClient) ListOnlineUsers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, MethodListOnlineUsers, in, opts)
}

func (c *PresenceServiceClient) CountOnlineUsers(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	return invoke[wrapperspb.Int64Value](ctx, c.cc, MethodCountOnlineUsers, in, opts)
}

func (c *PresenceServiceClient) NotifyLogin(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodNotifyLogin, in, opts)
}

func (c *PresenceServiceClient) NotifyLogout(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, MethodNotifyLogout, in, opts)
}

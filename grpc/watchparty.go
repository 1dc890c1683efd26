// Package pb holds the gRPC contract of the yumekai.watchparty.v1.WatchParty
// service. Messages are google.protobuf.Struct values; their fields are
// described in wire.go.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "yumekai.watchparty.v1.WatchParty"

	WatchParty_ListRooms_FullMethodName = "/" + ServiceName + "/ListRooms"
	WatchParty_Session_FullMethodName   = "/" + ServiceName + "/Session"
)

// WatchPartyClient is the client API for the WatchParty service.
type WatchPartyClient interface {
	ListRooms(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (WatchParty_ListRoomsClient, error)
	Session(ctx context.Context, opts ...grpc.CallOption) (WatchParty_SessionClient, error)
}

type watchPartyClient struct {
	cc grpc.ClientConnInterface
}

func NewWatchPartyClient(cc grpc.ClientConnInterface) WatchPartyClient {
	return &watchPartyClient{cc}
}

func (c *watchPartyClient) ListRooms(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (WatchParty_ListRoomsClient, error) {
	stream, err := c.cc.NewStream(ctx, &WatchParty_ServiceDesc.Streams[0], WatchParty_ListRooms_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &watchPartyListRoomsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type WatchParty_ListRoomsClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type watchPartyListRoomsClient struct {
	grpc.ClientStream
}

func (x *watchPartyListRoomsClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *watchPartyClient) Session(ctx context.Context, opts ...grpc.CallOption) (WatchParty_SessionClient, error) {
	stream, err := c.cc.NewStream(ctx, &WatchParty_ServiceDesc.Streams[1], WatchParty_Session_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &watchPartySessionClient{stream}, nil
}

type WatchParty_SessionClient interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type watchPartySessionClient struct {
	grpc.ClientStream
}

func (x *watchPartySessionClient) Send(m *structpb.Struct) error {
	return x.ClientStream.SendMsg(m)
}

func (x *watchPartySessionClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WatchPartyServer is the server API for the WatchParty service.
type WatchPartyServer interface {
	ListRooms(*structpb.Struct, WatchParty_ListRoomsServer) error
	Session(WatchParty_SessionServer) error
}

// UnimplementedWatchPartyServer can be embedded for forward compatibility.
type UnimplementedWatchPartyServer struct{}

func (UnimplementedWatchPartyServer) ListRooms(*structpb.Struct, WatchParty_ListRoomsServer) error {
	return status.Errorf(codes.Unimplemented, "method ListRooms not implemented")
}

func (UnimplementedWatchPartyServer) Session(WatchParty_SessionServer) error {
	return status.Errorf(codes.Unimplemented, "method Session not implemented")
}

func RegisterWatchPartyServer(s grpc.ServiceRegistrar, srv WatchPartyServer) {
	s.RegisterService(&WatchParty_ServiceDesc, srv)
}

func _WatchParty_ListRooms_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WatchPartyServer).ListRooms(m, &watchPartyListRoomsServer{stream})
}

type WatchParty_ListRoomsServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchPartyListRoomsServer struct {
	grpc.ServerStream
}

func (x *watchPartyListRoomsServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func _WatchParty_Session_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(WatchPartyServer).Session(&watchPartySessionServer{stream})
}

type WatchParty_SessionServer interface {
	Send(*structpb.Struct) error
	Recv() (*structpb.Struct, error)
	grpc.ServerStream
}

type watchPartySessionServer struct {
	grpc.ServerStream
}

func (x *watchPartySessionServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func (x *watchPartySessionServer) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

var WatchParty_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WatchPartyServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ListRooms",
			Handler:       _WatchParty_ListRooms_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "Session",
			Handler:       _WatchParty_Session_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "yumekai/watchparty/v1/watchparty.proto",
}

// gRPC API for messages. Requests and responses are google.protobuf.Struct
// values shaped like the HTTP JSON bodies.
package server

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/msgstore/pkg/message"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "msgstore.v1.MessageService"

// MessageServiceServer is the server API for msgstore.v1.MessageService
type MessageServiceServer interface {
	GetMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(MessageServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MessageServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MessageServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MessageServiceDesc describes msgstore.v1.MessageService for grpc.Server
var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MessageServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMessage", Handler: unaryHandler("GetMessage", MessageServiceServer.GetMessage)},
		{MethodName: "FindMessages", Handler: unaryHandler("FindMessages", MessageServiceServer.FindMessages)},
		{MethodName: "CreateMessage", Handler: unaryHandler("CreateMessage", MessageServiceServer.CreateMessage)},
		{MethodName: "UpdateMessage", Handler: unaryHandler("UpdateMessage", MessageServiceServer.UpdateMessage)},
		{MethodName: "DeleteMessage", Handler: unaryHandler("DeleteMessage", MessageServiceServer.DeleteMessage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "msgstore/v1/message_service.proto",
}

// RegisterMessageServiceServer registers srv with s
func RegisterMessageServiceServer(s grpc.ServiceRegistrar, srv MessageServiceServer) {
	s.RegisterService(&MessageServiceDesc, srv)
}

// MessageServiceClient is a client for msgstore.v1.MessageService
type MessageServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMessageServiceClient creates a client on cc
func NewMessageServiceClient(cc grpc.ClientConnInterface) *MessageServiceClient {
	return &MessageServiceClient{cc: cc}
}

func (c *MessageServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetMessage calls MessageService.GetMessage
func (c *MessageServiceClient) GetMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetMessage", in, opts...)
}

// FindMessages calls MessageService.FindMessages
func (c *MessageServiceClient) FindMessages(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "FindMessages", in, opts...)
}

// CreateMessage calls MessageService.CreateMessage
func (c *MessageServiceClient) CreateMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "CreateMessage", in, opts...)
}

// UpdateMessage calls MessageService.UpdateMessage
func (c *MessageServiceClient) UpdateMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateMessage", in, opts...)
}

// DeleteMessage calls MessageService.DeleteMessage
func (c *MessageServiceClient) DeleteMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "DeleteMessage", in, opts...)
}

// grpcService adapts Server to MessageServiceServer
type grpcService struct {
	srv *Server
}

// NewGRPCServer creates a gRPC server exposing the message service, the
// standard health service and reflection
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(GrpcMetricsInterceptor(s.metrics, s.log)),
		grpc.MaxRecvMsgSize(maxBodyBytes),
		grpc.MaxSendMsgSize(maxBodyBytes),
	}
	gs := grpc.NewServer(append(base, opts...)...)

	RegisterMessageServiceServer(gs, &grpcService{srv: s})

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	// Register reflection service for grpcurl/grpcui
	reflection.Register(gs)
	return gs
}

func (g *grpcService) GetMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := g.srv.GetMessage(ctx, stringField(in, message.FieldID))
	if err != nil {
		return nil, g.fail(err)
	}
	return g.respond(messageValue(msg))
}

func (g *grpcService) FindMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msgs, err := g.srv.FindMessages(ctx, stringField(in, "query"))
	if err != nil {
		return nil, g.fail(err)
	}

	list := make([]any, len(msgs))
	for i, m := range msgs {
		list[i] = messageValue(m)
	}
	return g.respond(map[string]any{"messages": list})
}

func (g *grpcService) CreateMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	ids, err := g.srv.CreateMessages(ctx, []map[string]any{in.AsMap()})
	if err != nil {
		return nil, g.fail(err)
	}

	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	return g.respond(map[string]any{"inserted_ids": list})
}

func (g *grpcService) UpdateMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()
	id, _ := fields[message.FieldID].(string)
	delete(fields, message.FieldID)

	n, err := g.srv.UpdateMessage(ctx, id, fields)
	if err != nil {
		return nil, g.fail(err)
	}
	return g.respond(map[string]any{"modified_count": n})
}

func (g *grpcService) DeleteMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	n, err := g.srv.DeleteMessage(ctx, stringField(in, message.FieldID))
	if err != nil {
		return nil, g.fail(err)
	}
	return g.respond(map[string]any{"deleted_count": n})
}

func (g *grpcService) fail(err error) error {
	g.srv.recordError(err)
	return grpcError(err)
}

func (g *grpcService) respond(v map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(v)
	if err != nil {
		return nil, g.fail(err)
	}
	return out, nil
}

// stringField returns a string field of in, or "" when it is absent or not
// a string.
func stringField(in *structpb.Struct, name string) string {
	v, ok := in.GetFields()[name]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// messageValue renders a message the way the HTTP API does.
func messageValue(m *message.Message) map[string]any {
	v := map[string]any{
		message.FieldID:           m.ID,
		message.FieldText:         m.Text,
		message.FieldSize:         m.Size,
		message.FieldCreatedAt:    m.CreatedAt.Format(time.RFC3339Nano),
		message.FieldLastModified: m.LastModified.Format(time.RFC3339Nano),
	}
	if m.Title != nil {
		v[message.FieldTitle] = *m.Title
	}
	return v
}

var _ MessageServiceServer = (*grpcService)(nil)

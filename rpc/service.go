// Package rpc exposes the assistant as a gRPC service.
//
// The service uses only protobuf well-known types, so no generated code or
// .proto compilation is needed:
//
//	service nim.v1.Assistant {
//	  rpc Ask(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	  rpc ListTools(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	}
//
// Ask replies with {"response", "action", "error"}. Upstream failures are
// returned as Unavailable, or DeadlineExceeded when the upstream timed out.
package rpc

import (
	"context"
	"log"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/becomeliminal/nim-orchestrator/assistant"
	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/tools"
)

const (
	serviceName = "nim.v1.Assistant"

	askMethod       = "/" + serviceName + "/Ask"
	listToolsMethod = "/" + serviceName + "/ListTools"
)

// AssistantServer is the server API for the nim.v1.Assistant service.
type AssistantServer interface {
	Ask(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListTools(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
}

// ServiceDesc is the grpc.ServiceDesc for nim.v1.Assistant.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AssistantServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Ask",
			Handler:    askHandler,
		},
		{
			MethodName: "ListTools",
			Handler:    listToolsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nim/v1/assistant.proto",
}

func askHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).Ask(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: askMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).Ask(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listToolsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AssistantServer).ListTools(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: listToolsMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AssistantServer).ListTools(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// Lister returns the current capability snapshot. *tools.Catalog satisfies it.
type Lister interface {
	Snapshot() []core.ToolDescriptor
}

// Service implements AssistantServer on top of an Assistant.
type Service struct {
	assistant *assistant.Assistant
	catalog   Lister
}

// NewService creates the service. catalog may be nil, in which case the
// engine's registry is scanned for every ListTools call.
func NewService(a *assistant.Assistant, catalog Lister) *Service {
	return &Service{assistant: a, catalog: catalog}
}

// Register adds the service to s.
func Register(s *grpc.Server, svc *Service) {
	s.RegisterService(&ServiceDesc, svc)
}

// Ask runs one turn.
func (s *Service) Ask(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	prompt := strings.TrimSpace(in.GetValue())
	if prompt == "" {
		return nil, status.Error(codes.InvalidArgument, "prompt is required")
	}

	out, err := s.assistant.HandleText(ctx, prompt)
	if err != nil {
		return nil, statusFor(err)
	}

	reply := map[string]any{
		"response": out.Text,
		"action":   string(out.Action),
	}
	if out.Error != nil {
		reply["error"] = out.Error.Error()
	}
	return structpb.NewStruct(reply)
}

// ListTools returns one {"name", "metadata", "builtin"} entry per capability.
func (s *Service) ListTools(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	var snapshot []core.ToolDescriptor
	if s.catalog != nil {
		snapshot = s.catalog.Snapshot()
	} else {
		var err error
		snapshot, err = s.assistant.Engine().Registry().Discover(ctx)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "discover capabilities: %v", err)
		}
	}

	entries := make([]any, 0, len(snapshot))
	for _, d := range snapshot {
		entries = append(entries, map[string]any{
			"name":     d.Name,
			"metadata": tools.MetadataFor(d),
			"builtin":  d.Builtin,
		})
	}
	list, err := structpb.NewList(entries)
	if err != nil {
		log.Printf("[GRPC] Failed to encode capability list: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return list, nil
}

func statusFor(err error) error {
	switch {
	case core.IsTimeout(err):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case core.IsRetryable(err):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Reply is the decoded result of Ask.
type Reply struct {
	Response string
	Action   string
	Error    string
}

// Client calls a remote nim.v1.Assistant service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Ask sends prompt and returns the reply.
func (c *Client) Ask(ctx context.Context, prompt string, opts ...grpc.CallOption) (*Reply, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, askMethod, wrapperspb.String(prompt), out, opts...); err != nil {
		return nil, err
	}
	fields := out.GetFields()
	return &Reply{
		Response: fields["response"].GetStringValue(),
		Action:   fields["action"].GetStringValue(),
		Error:    fields["error"].GetStringValue(),
	}, nil
}

// ListTools returns the raw capability entries.
func (c *Client) ListTools(ctx context.Context, opts ...grpc.CallOption) ([]map[string]any, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listToolsMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	entries := make([]map[string]any, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		entries = append(entries, v.GetStructValue().AsMap())
	}
	return entries, nil
}

package rpcproto

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
	"github.com/xmv-solutions/talos-client-go/internal/transport"
)

// rawMessage carries already-marshalled bytes through grpc.ClientConn
// without protobuf-generated stubs, via rawCodec below. The caller hands
// us bytes, we hand back bytes, and grpc-go never has to know the
// concrete message type.
type rawMessage struct{ data []byte }

// rawCodec implements encoding.Codec over rawMessage, forwarding bytes
// verbatim instead of marshalling/unmarshalling a protobuf message.
type rawCodec struct{}

func (rawCodec) Name() string { return "raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(*rawMessage)
	if !ok {
		return nil, fmt.Errorf("rpcproto: rawCodec.Marshal expects *rawMessage, got %T", v)
	}
	return msg.data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("rpcproto: rawCodec.Unmarshal expects *rawMessage, got %T", v)
	}
	msg.data = append([]byte(nil), data...)
	return nil
}

// GRPCInvoker implements Invoker over a single connected transport.Channel.
type GRPCInvoker struct {
	channel transport.Channel
}

func NewGRPCInvoker(channel transport.Channel) *GRPCInvoker {
	return &GRPCInvoker{channel: channel}
}

func fullMethod(serviceID, methodID string) string {
	return fmt.Sprintf("/%s/%s", serviceID, methodID)
}

// Invoke performs one unary RPC, translating gRPC status errors into the
// errs taxonomy at the boundary, exactly once.
func (g *GRPCInvoker) Invoke(ctx context.Context, serviceID, methodID string, request []byte) ([]byte, error) {
	req := &rawMessage{data: request}
	resp := &rawMessage{}
	err := g.channel.Conn().Invoke(ctx, fullMethod(serviceID, methodID), req, resp, grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return nil, classifyGRPCError(g.channel.Endpoint(), err)
	}
	return resp.data, nil
}

// InvokeStream opens a server-streaming RPC and returns a StreamReceiver
// that surfaces transport errors as TransportError on the first failing
// Recv.
func (g *GRPCInvoker) InvokeStream(ctx context.Context, serviceID, methodID string, request []byte) (StreamReceiver, error) {
	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := g.channel.Conn().NewStream(ctx, desc, fullMethod(serviceID, methodID), grpc.ForceCodec(rawCodec{}))
	if err != nil {
		return nil, classifyGRPCError(g.channel.Endpoint(), err)
	}
	if err := stream.SendMsg(&rawMessage{data: request}); err != nil {
		return nil, classifyGRPCError(g.channel.Endpoint(), err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, classifyGRPCError(g.channel.Endpoint(), err)
	}
	return &grpcStreamReceiver{endpoint: g.channel.Endpoint(), stream: stream}, nil
}

// grpcStreamReceiver decodes each wire frame into a Chunk: a
// length-prefixed hostname string, a length-prefixed error string, then
// the payload bytes.
type grpcStreamReceiver struct {
	endpoint string
	stream   grpc.ClientStream
}

func (r *grpcStreamReceiver) Recv(ctx context.Context) (*Chunk, error) {
	msg := &rawMessage{}
	if err := r.stream.RecvMsg(msg); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, classifyGRPCError(r.endpoint, err)
	}
	return decodeChunkFrame(msg.data), nil
}

func classifyGRPCError(endpoint string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return errs.NewTransportError(endpoint, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Unknown:
		return errs.NewTransportError(endpoint, err)
	default:
		return errs.NewAPIError(uint32(st.Code()), st.Message())
	}
}

// Package rpcproto defines the opaque (serviceID, methodID, requestBytes)
// -> responseBytes | stream<chunk> surface the typed adapters call
// through. Every adapter in internal/adapters goes through an Invoker
// rather than a generated protobuf client stub, so the resilience fabric
// (pool/circuit/retry) never needs to know what a Bootstrap request looks
// like on the wire.
package rpcproto

import (
	"context"
)

// ChunkMetadata is the small envelope a streamed chunk may carry: an
// origin hostname and an inline error string.
type ChunkMetadata struct {
	Hostname string
	Error    string
}

// Chunk is one element of a server-streaming response.
type Chunk struct {
	Metadata *ChunkMetadata
	Bytes    []byte
}

// StreamReceiver is a finite, non-restartable sequence of Chunks — the
// contract internal/stream.Assemble consumes. Recv returns io.EOF once the
// stream is exhausted.
type StreamReceiver interface {
	Recv(ctx context.Context) (*Chunk, error)
}

// Invoker is the opaque RPC surface every typed adapter calls through.
// serviceID/methodID identify the RPC (e.g. "machine.MachineService",
// "Version"); request/response are already-marshalled bytes, since the
// concrete schema is out of this module's scope.
type Invoker interface {
	Invoke(ctx context.Context, serviceID, methodID string, request []byte) ([]byte, error)
	InvokeStream(ctx context.Context, serviceID, methodID string, request []byte) (StreamReceiver, error)
}

// Recv implementations return io.EOF once all chunks have been delivered.

// Package stream assembles a server-streaming RPC into a single in-memory
// result, for callers that want one answer rather than a channel of chunks.
package stream

import (
	"bytes"
	"context"
	"io"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
)

// Result is the concatenation of every chunk's payload plus the origin
// hostname, if any chunk carried one.
type Result struct {
	Bytes      []byte
	OriginHost string
}

// Assemble drains receiver to completion, failing fast the moment any chunk
// carries a non-empty Metadata.Error — a node reporting its own failure
// inline rather than breaking the transport. The origin hostname is taken
// from the first chunk that sets one; later chunks may leave it blank.
func Assemble(ctx context.Context, receiver rpcproto.StreamReceiver) (Result, error) {
	var buf bytes.Buffer
	var originHost string

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, errs.NewTransportError("", err)
		}

		chunk, err := receiver.Recv(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, err
		}

		if chunk.Metadata != nil {
			if chunk.Metadata.Error != "" {
				return Result{}, errs.NewAPIError(0, chunk.Metadata.Error)
			}
			if originHost == "" && chunk.Metadata.Hostname != "" {
				originHost = chunk.Metadata.Hostname
			}
		}

		buf.Write(chunk.Bytes)
	}

	return Result{Bytes: buf.Bytes(), OriginHost: originHost}, nil
}

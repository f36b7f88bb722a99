package rpcproto

import (
	"context"
	"io"
	"sync"
)

// MockResponse is one canned reply a MockInvoker hands back for a unary
// call, or one error to return in its place.
type MockResponse struct {
	Bytes []byte
	Err   error
}

// MockStream is a canned sequence of chunks for a streaming call.
type MockStream struct {
	Chunks []*Chunk
	Err    error // returned from InvokeStream itself, before any Recv
}

// MockInvoker is an in-memory Invoker double for adapter tests: no network,
// no transport.Channel, just pre-programmed responses keyed by
// "serviceID/methodID".
type MockInvoker struct {
	mu        sync.Mutex
	responses map[string]MockResponse
	streams   map[string]MockStream
	calls     []MockCall
}

// MockCall records one invocation for assertions.
type MockCall struct {
	ServiceID, MethodID string
	Request             []byte
	Streaming           bool
}

func NewMockInvoker() *MockInvoker {
	return &MockInvoker{
		responses: make(map[string]MockResponse),
		streams:   make(map[string]MockStream),
	}
}

func key(serviceID, methodID string) string { return serviceID + "/" + methodID }

// OnInvoke programs the response for a future unary Invoke call.
func (m *MockInvoker) OnInvoke(serviceID, methodID string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key(serviceID, methodID)] = resp
}

// OnInvokeStream programs the response for a future InvokeStream call.
func (m *MockInvoker) OnInvokeStream(serviceID, methodID string, stream MockStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streams[key(serviceID, methodID)] = stream
}

func (m *MockInvoker) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

func (m *MockInvoker) Invoke(_ context.Context, serviceID, methodID string, request []byte) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{ServiceID: serviceID, MethodID: methodID, Request: request})
	resp, ok := m.responses[key(serviceID, methodID)]
	m.mu.Unlock()

	if !ok {
		return nil, NewErrNoMockResponse(serviceID, methodID)
	}
	return resp.Bytes, resp.Err
}

func (m *MockInvoker) InvokeStream(_ context.Context, serviceID, methodID string, request []byte) (StreamReceiver, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{ServiceID: serviceID, MethodID: methodID, Request: request, Streaming: true})
	stream, ok := m.streams[key(serviceID, methodID)]
	m.mu.Unlock()

	if !ok {
		return nil, NewErrNoMockResponse(serviceID, methodID)
	}
	if stream.Err != nil {
		return nil, stream.Err
	}
	return &mockStreamReceiver{chunks: stream.Chunks}, nil
}

type mockStreamReceiver struct {
	mu     sync.Mutex
	chunks []*Chunk
	pos    int
}

func (r *mockStreamReceiver) Recv(_ context.Context) (*Chunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.chunks) {
		return nil, io.EOF
	}
	chunk := r.chunks[r.pos]
	r.pos++
	return chunk, nil
}

// ErrNoMockResponse reports a call to a (serviceID, methodID) pair the test
// never programmed a response for.
type ErrNoMockResponse struct {
	ServiceID, MethodID string
}

func (e *ErrNoMockResponse) Error() string {
	return "rpcproto: no mock response programmed for " + key(e.ServiceID, e.MethodID)
}

func NewErrNoMockResponse(serviceID, methodID string) *ErrNoMockResponse {
	return &ErrNoMockResponse{ServiceID: serviceID, MethodID: methodID}
}

package metrics

import (
	"time"

	"github.com/google/uuid"
)

// Span records one RPC's lifecycle: independent of the metrics counters
// and emittable with no external tracing infrastructure. Callers can log
// it, forward it to OpenTelemetry, or both.
type Span struct {
	ID            string // unique per attempt, correlates log lines across layers
	RPCSystem     string // always "grpc"
	RPCService    string
	RPCMethod     string
	ServerAddress string

	startedAt time.Time
	ended     bool

	StatusCode   uint32 // rpc.grpc.status_code, valid once Ended
	OTelStatus   string // "OK" or "ERROR", valid once Ended
	DurationMS   float64
	ErrorMessage string
}

// NewSpan starts a span for one RPC attempt.
func NewSpan(service, method, serverAddress string) *Span {
	return &Span{
		ID:            uuid.NewString(),
		RPCSystem:     "grpc",
		RPCService:    service,
		RPCMethod:     method,
		ServerAddress: serverAddress,
		startedAt:     time.Now(),
	}
}

// End closes the span, recording the elapsed duration and classifying the
// outcome. code is the gRPC status code (0 = OK) the call finished with.
func (s *Span) End(code uint32, err error) {
	if s.ended {
		return
	}
	s.ended = true
	s.DurationMS = float64(time.Since(s.startedAt)) / float64(time.Millisecond)
	s.StatusCode = code
	if err != nil {
		s.OTelStatus = "ERROR"
		s.ErrorMessage = err.Error()
		return
	}
	s.OTelStatus = "OK"
}

// Fields renders the span as a flat attribute list suitable for
// structured-logging helpers such as logger.StyledLogger.With.
func (s *Span) Fields() []any {
	fields := []any{
		"span.id", s.ID,
		"rpc.system", s.RPCSystem,
		"rpc.service", s.RPCService,
		"rpc.method", s.RPCMethod,
		"server.address", s.ServerAddress,
	}
	if s.ended {
		fields = append(fields,
			"rpc.grpc.status_code", s.StatusCode,
			"otel.status_code", s.OTelStatus,
			"duration_ms", s.DurationMS,
		)
		if s.ErrorMessage != "" {
			fields = append(fields, "error.message", s.ErrorMessage)
		}
	}
	return fields
}

// Package errs implements the closed error taxonomy every higher layer of
// the client produces or translates into: ConfigError, TransportError,
// ApiError, ValidationError, ConnectionError, CircuitOpenError and Unknown.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies which branch of the taxonomy an error belongs to. The
// retry engine dispatches on Kind rather than on concrete error types.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindAPI
	KindValidation
	KindConnection
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindTransport:
		return "TransportError"
	case KindAPI:
		return "ApiError"
	case KindValidation:
		return "ValidationError"
	case KindConnection:
		return "ConnectionError"
	case KindCircuitOpen:
		return "CircuitOpen"
	default:
		return "Unknown"
	}
}

// ConfigError reports a bad URL, an unreadable or malformed PEM, an invalid
// key, or a missing active context when one was required. Fatal to the
// operation; never retried.
type ConfigError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("config error in %s: %s", e.Operation, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(operation, reason string, err error) *ConfigError {
	return &ConfigError{Operation: operation, Reason: reason, Err: err}
}

// TransportError reports a TCP/TLS connect failure, a handshake failure, or
// a connection broken mid-stream. Retried under the default retry policy.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error talking to %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(endpoint string, err error) *TransportError {
	return &TransportError{Endpoint: endpoint, Err: err}
}

// ApiError reports a server-returned status from the closed set of standard
// gRPC codes. Whether it is retried is delegated to the retry policy.
type ApiError struct {
	Code    uint32
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("api error (code=%d): %s", e.Code, e.Message)
}

func NewAPIError(code uint32, message string) *ApiError {
	return &ApiError{Code: code, Message: message}
}

// ValidationError reports caller-side input that failed local checks.
// Fatal; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// ConnectionError reports that the pool has no healthy endpoints left after
// a reconnect sweep. Retried under the default retry policy.
type ConnectionError struct {
	Reason string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %s", e.Reason)
}

func NewConnectionError(reason string) *ConnectionError {
	return &ConnectionError{Reason: reason}
}

// CircuitOpenError reports a breaker in Open (or a saturated HalfOpen).
// Terminal by default; callers may wrap it in an outer retry of their own.
type CircuitOpenError struct {
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open, retry after %v", e.RetryAfter)
}

func NewCircuitOpenError(retryAfter time.Duration) *CircuitOpenError {
	return &CircuitOpenError{RetryAfter: retryAfter}
}

// UnknownError wraps anything that doesn't classify into the taxonomy above.
// Retried conservatively by the default policy.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("unknown error: %v", e.Err)
}

func (e *UnknownError) Unwrap() error { return e.Err }

func NewUnknownError(err error) *UnknownError {
	return &UnknownError{Err: err}
}

// Classify maps any error produced by this module into its taxonomy Kind,
// walking the Unwrap chain so a wrapped taxonomy error is still recognised.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var cfg *ConfigError
	var transport *TransportError
	var api *ApiError
	var validation *ValidationError
	var conn *ConnectionError
	var circuitOpen *CircuitOpenError
	switch {
	case errors.As(err, &cfg):
		return KindConfig
	case errors.As(err, &transport):
		return KindTransport
	case errors.As(err, &api):
		return KindAPI
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conn):
		return KindConnection
	case errors.As(err, &circuitOpen):
		return KindCircuitOpen
	default:
		return KindUnknown
	}
}

package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout           = errors.New("operation timed out")
	ErrDirectionMismatch = errors.New("stream direction mismatch")
	ErrState             = errors.New("invalid state")
	// ErrClosed is an ErrState: the socket or stream was already closed.
	ErrClosed = fmt.Errorf("already closed: %w", ErrState)
	// ErrChannel means the runtime is gone or never answered.
	ErrChannel = errors.New("runtime unavailable")
)

// ConfigError reports a malformed or missing configuration value.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BindError reports a failure to bind or listen on a local address.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// HandshakeError reports a connection that could not be established.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Timeout wraps err so that it matches ErrTimeout as well as the cause.
func Timeout(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTimeout, err)
}

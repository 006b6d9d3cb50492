// Package handle provides blocking handles over the tasks of a runtime.
// Every method sends one command and waits for its reply; once the task
// behind a handle has finished, methods fail with protocol.ErrClosed.
// Handles are cheap to copy and safe for concurrent use.
package handle

import (
	"net"
	"time"

	"github.com/fr13n8/centaurus/protocol"
)

type Socket struct {
	ref *protocol.SocketRef
}

func NewSocket(ref *protocol.SocketRef) *Socket {
	return &Socket{ref: ref}
}

func (s *Socket) ID() string { return s.ref.ID }

func (s *Socket) Role() protocol.Role { return s.ref.Role }

// Owner is the identity told about streams opened by the peer.
func (s *Socket) Owner() string { return s.ref.Owner }

func (s *Socket) LocalAddr() net.Addr { return s.ref.LocalAddr }

// Done is closed when the socket task has finished.
func (s *Socket) Done() <-chan struct{} { return s.ref.Lifetime.Done() }

// Err is the reason the socket finished, nil while it is alive or after an
// orderly close.
func (s *Socket) Err() error { return s.ref.Lifetime.Err() }

// Listen confirms that a server socket is accepting connections.
func (s *Socket) Listen() error {
	ev := &protocol.Listen{Reply: protocol.NewResponder[struct{}]()}
	_, err := callSocket(s, ev, ev.Reply)
	return err
}

// Accept waits for the next inbound connection and returns its own socket.
// A zero timeout waits indefinitely. After a timeout the socket keeps
// listening and Accept may be called again.
func (s *Socket) Accept(timeout time.Duration) (*Socket, error) {
	ev := &protocol.Accept{Timeout: timeout, Reply: protocol.NewResponder[*protocol.SocketRef]()}
	ref, err := callSocket(s, ev, ev.Reply)
	if err != nil {
		return nil, err
	}
	return NewSocket(ref), nil
}

// Connect dials addr and waits for the handshake. A failed or timed out
// connect may be retried.
func (s *Socket) Connect(addr string, timeout time.Duration) error {
	ev := &protocol.Connect{Addr: addr, Timeout: timeout, Reply: protocol.NewResponder[struct{}]()}
	_, err := callSocket(s, ev, ev.Reply)
	return err
}

func (s *Socket) OpenStream(dir protocol.Direction) (*Stream, error) {
	ev := &protocol.OpenStream{Direction: dir, Reply: protocol.NewResponder[*protocol.StreamRef]()}
	ref, err := callSocket(s, ev, ev.Reply)
	if err != nil {
		return nil, err
	}
	return NewStream(ref), nil
}

// Close closes the connection with an application error code and ends the
// socket task. Closing again fails with protocol.ErrClosed.
func (s *Socket) Close(code uint64, reason string) error {
	ev := &protocol.CloseSocket{Code: code, Reason: reason, Reply: protocol.NewResponder[struct{}]()}
	_, err := callSocket(s, ev, ev.Reply)
	return err
}

func callSocket[T any](s *Socket, ev protocol.SocketEvent, reply protocol.Responder[T]) (T, error) {
	if s == nil || s.ref == nil {
		var zero T
		return zero, protocol.ErrChannel
	}
	return protocol.Call(s.ref.Commands, s.ref.Lifetime, ev, reply)
}

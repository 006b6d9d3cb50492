package handle

import (
	"time"

	"github.com/fr13n8/centaurus/protocol"
)

type Stream struct {
	ref *protocol.StreamRef
}

func NewStream(ref *protocol.StreamRef) *Stream {
	return &Stream{ref: ref}
}

func (s *Stream) ID() string { return s.ref.ID }

// SocketID is the ID of the socket the stream belongs to.
func (s *Stream) SocketID() string { return s.ref.SocketID }

func (s *Stream) Direction() protocol.Direction { return s.ref.Direction }

func (s *Stream) Origin() protocol.Origin { return s.ref.Origin }

func (s *Stream) Done() <-chan struct{} { return s.ref.Lifetime.Done() }

func (s *Stream) Err() error { return s.ref.Lifetime.Err() }

// Read performs one read of at most capacity bytes and returns the number
// of bytes read with a buffer of which only buf[:n] is meaningful. The end
// of the stream is reported as io.EOF. A zero timeout waits indefinitely.
func (s *Stream) Read(capacity int, timeout time.Duration) (n int, buf []byte, err error) {
	ev := &protocol.Read{Capacity: capacity, Timeout: timeout, Reply: protocol.NewResponder[protocol.ReadResult]()}
	res, err := callStream(s, ev, ev.Reply)
	return res.N, res.Buf, err
}

// Write sends all of buf. Writes on one stream reach the peer in order.
func (s *Stream) Write(buf []byte) error {
	ev := &protocol.Write{Buf: buf, Reply: protocol.NewResponder[struct{}]()}
	_, err := callStream(s, ev, ev.Reply)
	return err
}

// Close stops the receive half with code, finishes the send half and ends
// the stream task.
func (s *Stream) Close(code uint64, reason string) error {
	ev := &protocol.CloseStream{Code: code, Reason: reason, Reply: protocol.NewResponder[struct{}]()}
	_, err := callStream(s, ev, ev.Reply)
	return err
}

func callStream[T any](s *Stream, ev protocol.StreamEvent, reply protocol.Responder[T]) (T, error) {
	if s == nil || s.ref == nil {
		var zero T
		return zero, protocol.ErrChannel
	}
	return protocol.Call(s.ref.Commands, s.ref.Lifetime, ev, reply)
}

package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/transport"
	"github.com/rs/zerolog/log"
)

// StreamState is one of Pending, Open or StreamClosed.
type StreamState interface {
	streamState()
	String() string
}

// Opener completes an outgoing stream open. Exactly the halves of the
// stream kind are returned.
type Opener func(ctx context.Context) (transport.SendStream, transport.ReceiveStream, error)

// Pending is a locally opened stream waiting for the peer's flow control.
type Pending struct {
	Open Opener
}

// Open holds the halves of a usable stream. Bidirectional streams have
// both, unidirectional ones exactly one.
type Open struct {
	Send transport.SendStream
	Recv transport.ReceiveStream
}

type StreamClosed struct {
	Err error
}

func (Pending) streamState()      {}
func (Open) streamState()         {}
func (StreamClosed) streamState() {}

func (Pending) String() string      { return "pending" }
func (Open) String() string         { return "open" }
func (StreamClosed) String() string { return "closed" }

// Stream serializes access to the state of one stream.
type Stream struct {
	mu        sync.Mutex
	direction protocol.Direction
	origin    protocol.Origin
	state     StreamState
}

// NewPending returns a locally opened stream to be resolved.
func NewPending(dir protocol.Direction, open Opener) *Stream {
	return &Stream{
		direction: dir,
		origin:    protocol.OriginLocal,
		state:     Pending{Open: open},
	}
}

// NewOpen wraps halves that already exist, as for peer streams.
func NewOpen(dir protocol.Direction, origin protocol.Origin, send transport.SendStream, recv transport.ReceiveStream) (*Stream, error) {
	s := &Stream{direction: dir, origin: origin}
	if err := s.check(send, recv); err != nil {
		return nil, err
	}
	s.state = Open{Send: send, Recv: recv}
	return s, nil
}

func (s *Stream) Direction() protocol.Direction { return s.direction }

func (s *Stream) Origin() protocol.Origin { return s.origin }

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Resolve completes a Pending stream. A failed open moves the stream to
// StreamClosed with the cause. Resolving a stream that is not pending is a
// no-op.
func (s *Stream) Resolve(ctx context.Context) error {
	s.mu.Lock()
	pending, ok := s.state.(Pending)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	send, recv, err := pending.Open(ctx)
	if err == nil {
		err = s.check(send, recv)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.(Pending); !ok {
		// closed while opening
		cancelHalves(send, recv, protocol.ApplicationOK)
		return protocol.ErrClosed
	}
	if err != nil {
		cancelHalves(send, recv, protocol.ApplicationOK)
		s.state = StreamClosed{Err: err}
		return err
	}
	s.state = Open{Send: send, Recv: recv}
	return nil
}

// Send returns the send half.
func (s *Stream) Send() (transport.SendStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Open:
		if cur.Send == nil {
			return nil, fmt.Errorf("write on receive-only stream: %w", protocol.ErrDirectionMismatch)
		}
		return cur.Send, nil
	case StreamClosed:
		return nil, protocol.ErrClosed
	default:
		return nil, fmt.Errorf("stream is %s: %w", s.state, protocol.ErrState)
	}
}

// Recv returns the receive half.
func (s *Stream) Recv() (transport.ReceiveStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Open:
		if cur.Recv == nil {
			return nil, fmt.Errorf("read on send-only stream: %w", protocol.ErrDirectionMismatch)
		}
		return cur.Recv, nil
	case StreamClosed:
		return nil, protocol.ErrClosed
	default:
		return nil, fmt.Errorf("stream is %s: %w", s.state, protocol.ErrState)
	}
}

// Close stops the receive half with code and finishes the send half,
// whichever are present. Closing twice fails with ErrClosed.
func (s *Stream) Close(code uint64, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch cur := s.state.(type) {
	case StreamClosed:
		return protocol.ErrClosed
	case Open:
		if cur.Recv != nil {
			cur.Recv.CancelRead(code)
		}
		if cur.Send != nil {
			err = cur.Send.Close()
		}
	}

	log.Trace().Str("from", s.state.String()).Uint64("code", code).Err(cause).Msg("stream closed")
	s.state = StreamClosed{Err: cause}
	return err
}

// Abort resets both halves with code, dropping unsent data.
func (s *Stream) Abort(code uint64, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.state.(Open); ok {
		cancelHalves(cur.Send, cur.Recv, code)
	}
	if _, ok := s.state.(StreamClosed); !ok {
		s.state = StreamClosed{Err: cause}
	}
}

func (s *Stream) check(send transport.SendStream, recv transport.ReceiveStream) error {
	wantSend := protocol.CanSend(s.direction, s.origin)
	wantRecv := protocol.CanRecv(s.direction, s.origin)
	if (send != nil) != wantSend || (recv != nil) != wantRecv {
		return fmt.Errorf("%s %s stream with send=%t recv=%t: %w",
			s.origin, s.direction, send != nil, recv != nil, protocol.ErrState)
	}
	return nil
}

func cancelHalves(send transport.SendStream, recv transport.ReceiveStream, code uint64) {
	if send != nil {
		send.CancelWrite(code)
	}
	if recv != nil {
		recv.CancelRead(code)
	}
}

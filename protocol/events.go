package protocol

import (
	"time"

	"github.com/fr13n8/centaurus/config"
	"github.com/rs/zerolog/log"
)

// Reply is the outcome of one request.
type Reply[T any] struct {
	Value T
	Err   error
}

// Responder carries exactly one Reply back to the requester.
type Responder[T any] chan Reply[T]

func NewResponder[T any]() Responder[T] {
	return make(Responder[T], 1)
}

// Send delivers the reply. A second reply is a bug and is dropped.
func (r Responder[T]) Send(v T, err error) {
	select {
	case r <- Reply[T]{Value: v, Err: err}:
	default:
		log.Error().Err(err).Msg("responder already answered, reply dropped")
	}
}

// Fail replies with err and a zero value.
func (r Responder[T]) Fail(err error) {
	var zero T
	r.Send(zero, err)
}

// OpenSocket asks the runtime to bind a new socket.
type OpenSocket struct {
	Role   Role
	Config config.Socket
	Reply  Responder[*SocketRef]
}

// SocketEvent is a command served by a connection task.
type SocketEvent interface {
	// Fail answers the command without running it.
	Fail(err error)
}

// Listen starts accepting connections. Sockets opened as servers already
// listen, so this only confirms the role and state.
type Listen struct {
	Reply Responder[struct{}]
}

// Accept waits for the next inbound connection. A zero Timeout waits
// indefinitely.
type Accept struct {
	Timeout time.Duration
	Reply   Responder[*SocketRef]
}

// Connect dials Addr and completes the handshake.
type Connect struct {
	Addr    string
	Timeout time.Duration
	Reply   Responder[struct{}]
}

type OpenStream struct {
	Direction Direction
	Reply     Responder[*StreamRef]
}

// CloseSocket closes the connection with an application error code.
type CloseSocket struct {
	Code   uint64
	Reason string
	Reply  Responder[struct{}]
}

func (e *Listen) Fail(err error)      { e.Reply.Fail(err) }
func (e *Accept) Fail(err error)      { e.Reply.Fail(err) }
func (e *Connect) Fail(err error)     { e.Reply.Fail(err) }
func (e *OpenStream) Fail(err error)  { e.Reply.Fail(err) }
func (e *CloseSocket) Fail(err error) { e.Reply.Fail(err) }

// StreamEvent is a command served by a stream task.
type StreamEvent interface {
	Fail(err error)
}

// ReadResult holds up to Capacity bytes; only Buf[:N] is meaningful.
type ReadResult struct {
	N   int
	Buf []byte
}

// Read performs a single read of at most Capacity bytes. A zero Timeout
// waits indefinitely.
type Read struct {
	Capacity int
	Timeout  time.Duration
	Reply    Responder[ReadResult]
}

// Write sends the whole buffer.
type Write struct {
	Buf   []byte
	Reply Responder[struct{}]
}

type CloseStream struct {
	Code   uint64
	Reason string
	Reply  Responder[struct{}]
}

func (e *Read) Fail(err error)        { e.Reply.Fail(err) }
func (e *Write) Fail(err error)       { e.Reply.Fail(err) }
func (e *CloseStream) Fail(err error) { e.Reply.Fail(err) }

// Package centaurus is the operation surface for embedding the runtime:
// plain functions over explicit runtime, socket and stream handles, with
// optional timeouts in milliseconds where nil waits indefinitely.
//
//	rt := centaurus.Init(engine.Options{Notifier: n})
//	defer rt.Shutdown(ctx)
//
//	srv, err := centaurus.OpenSocket(rt, centaurus.Server, conf)
//	conn, err := centaurus.Accept(srv, nil)
package centaurus

import (
	"fmt"
	"time"

	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/engine"
	"github.com/fr13n8/centaurus/handle"
	"github.com/fr13n8/centaurus/protocol"
)

type (
	Runtime   = engine.Runtime
	Socket    = handle.Socket
	Stream    = handle.Stream
	Role      = protocol.Role
	Direction = protocol.Direction
)

const (
	Server = protocol.RoleServer
	Client = protocol.RoleClient

	Bi  = protocol.Bidirectional
	Uni = protocol.Unidirectional
)

var (
	ErrTimeout           = protocol.ErrTimeout
	ErrDirectionMismatch = protocol.ErrDirectionMismatch
	ErrState             = protocol.ErrState
	ErrClosed            = protocol.ErrClosed
	ErrChannel           = protocol.ErrChannel
)

// Init creates and starts a runtime. The caller owns it and must call
// Shutdown.
func Init(opts engine.Options) *Runtime {
	rt := engine.New(opts)
	rt.Start()
	return rt
}

func OpenSocket(rt *Runtime, role Role, conf config.Socket) (*Socket, error) {
	if rt == nil {
		return nil, ErrChannel
	}
	return rt.OpenSocket(role, conf)
}

// Listen confirms a server socket is accepting. Server sockets listen from
// the moment they are opened, so calling it is optional and idempotent.
func Listen(s *Socket) error {
	return s.Listen()
}

func Accept(s *Socket, timeoutMs *uint64) (*Socket, error) {
	return s.Accept(millis(timeoutMs))
}

func Connect(s *Socket, addr string, timeoutMs *uint64) error {
	return s.Connect(addr, millis(timeoutMs))
}

func OpenStream(s *Socket, dir Direction) (*Stream, error) {
	return s.OpenStream(dir)
}

// Read returns the number of bytes read and a buffer of which only the
// first n bytes are meaningful.
func Read(s *Stream, capacity uint, timeoutMs *uint64) (n int, buf []byte, err error) {
	if capacity > protocol.MaxReadCapacity {
		return 0, nil, &protocol.ConfigError{
			Field: "read capacity",
			Err:   fmt.Errorf("%d exceeds %d", capacity, protocol.MaxReadCapacity),
		}
	}
	return s.Read(int(capacity), millis(timeoutMs))
}

func Write(s *Stream, buf []byte) error {
	return s.Write(buf)
}

func CloseStream(s *Stream, code uint64, reason *string) error {
	return s.Close(code, deref(reason))
}

func CloseSocket(s *Socket, code uint64, reason *string) error {
	return s.Close(code, deref(reason))
}

func millis(ms *uint64) time.Duration {
	if ms == nil {
		return 0
	}
	if *ms == 0 {
		// zero would mean no timeout downstream
		return time.Nanosecond
	}
	return time.Duration(*ms) * time.Millisecond
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

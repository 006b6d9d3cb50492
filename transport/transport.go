package transport

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// ReceiveStream is the receiving half of a stream.
type ReceiveStream interface {
	StreamID() int64
	Read(b []byte) (n int, err error)
	// CancelRead asks the peer to stop sending.
	CancelRead(code uint64)
	SetReadDeadline(t time.Time) error
}

// SendStream is the sending half of a stream.
type SendStream interface {
	StreamID() int64
	Write(b []byte) (n int, err error)
	// Close finishes the send half; data already written is still delivered.
	Close() error
	CancelWrite(code uint64)
}

// Stream represents a bidirectional stream.
type Stream interface {
	ReceiveStream
	SendStream
}

// Conn represents an established connection that can open or accept streams.
type Conn interface {
	OpenStream(ctx context.Context) (Stream, error)
	OpenUniStream(ctx context.Context) (SendStream, error)
	AcceptStream(ctx context.Context) (Stream, error)
	AcceptUniStream(ctx context.Context) (ReceiveStream, error)
	CloseWithError(code uint64, reason string) error
	// Context is done once the connection is closed, locally or by the peer.
	Context() context.Context
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// Listener represents a listener that accepts Conn instances.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

// Endpoint is a bound local socket able to listen or dial. It is reference
// counted: Retain adds a user, Close drops one and the socket is released
// with the last.
type Endpoint interface {
	Listen(tlsConf *tls.Config) (Listener, error)
	Dial(ctx context.Context, addr string, tlsConf *tls.Config) (Conn, error)
	LocalAddr() net.Addr
	Retain()
	Close() error
}

// Transport binds endpoints.
type Transport interface {
	Bind(addr *net.UDPAddr) (Endpoint, error)
}

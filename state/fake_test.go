package state

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fr13n8/centaurus/transport"
)

var errBind = errors.New("address already in use")

type fakeTransport struct {
	failBind bool
	endpoint *fakeEndpoint
}

func (t *fakeTransport) Bind(addr *net.UDPAddr) (transport.Endpoint, error) {
	if t.failBind {
		return nil, errBind
	}
	t.endpoint = &fakeEndpoint{addr: addr, refs: 1}
	return t.endpoint, nil
}

type fakeEndpoint struct {
	mu       sync.Mutex
	addr     *net.UDPAddr
	refs     int
	listener *fakeListener
	tls      *tls.Config
}

func (e *fakeEndpoint) Listen(tlsConf *tls.Config) (transport.Listener, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tls = tlsConf
	e.listener = &fakeListener{addr: e.addr}
	return e.listener, nil
}

func (e *fakeEndpoint) Dial(context.Context, string, *tls.Config) (transport.Conn, error) {
	return &fakeConn{}, nil
}

func (e *fakeEndpoint) LocalAddr() net.Addr { return e.addr }

func (e *fakeEndpoint) Retain() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs++
}

func (e *fakeEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refs--
	return nil
}

func (e *fakeEndpoint) references() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.refs
}

type fakeListener struct {
	mu     sync.Mutex
	addr   net.Addr
	closed bool
}

func (l *fakeListener) Accept(ctx context.Context) (transport.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (l *fakeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	return nil
}

func (l *fakeListener) Addr() net.Addr { return l.addr }

func (l *fakeListener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.closed
}

type fakeConn struct {
	closedWith *uint64
	reason     string
}

func (c *fakeConn) OpenStream(context.Context) (transport.Stream, error) {
	return &fakeStream{}, nil
}

func (c *fakeConn) OpenUniStream(context.Context) (transport.SendStream, error) {
	return &fakeStream{}, nil
}

func (c *fakeConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConn) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *fakeConn) CloseWithError(code uint64, reason string) error {
	c.closedWith = &code
	c.reason = reason
	return nil
}

func (c *fakeConn) Context() context.Context { return context.Background() }

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4433}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5555}
}

type fakeStream struct {
	readCancelled  *uint64
	writeCancelled *uint64
	finished       bool
}

func (s *fakeStream) StreamID() int64                 { return 0 }
func (s *fakeStream) Read([]byte) (int, error)        { return 0, nil }
func (s *fakeStream) Write(b []byte) (int, error)     { return len(b), nil }
func (s *fakeStream) SetReadDeadline(time.Time) error { return nil }

func (s *fakeStream) CancelRead(code uint64)  { s.readCancelled = &code }
func (s *fakeStream) CancelWrite(code uint64) { s.writeCancelled = &code }

func (s *fakeStream) Close() error {
	s.finished = true
	return nil
}

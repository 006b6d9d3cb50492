package quic

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/relay"
	"github.com/fr13n8/centaurus/transport"
	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"
)

// QUICTransport implements the Transport interface for QUIC.
type QUICTransport struct {
	quicConfig *quic.Config
}

var _ transport.Transport = (*QUICTransport)(nil)

// NewQUICTransport creates a new QUICTransport instance.
func NewQUICTransport(opts config.Options) *QUICTransport {
	return &QUICTransport{quicConfig: NewConfig(opts)}
}

// Bind opens a UDP socket on addr and wraps it into a QUIC endpoint.
func (t *QUICTransport) Bind(addr *net.UDPAddr) (transport.Endpoint, error) {
	udpConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	e := &QUICEndpoint{
		udpConn:    udpConn,
		tr:         &quic.Transport{Conn: udpConn},
		quicConfig: t.quicConfig,
	}
	e.refs.Store(1)

	log.Trace().Str("addr", udpConn.LocalAddr().String()).Msg("endpoint bound")
	return e, nil
}

// QUICEndpoint is a bound UDP socket shared by a listener and the
// connections it accepted, or owned by a single client connection.
type QUICEndpoint struct {
	udpConn    *net.UDPConn
	tr         *quic.Transport
	quicConfig *quic.Config
	refs       atomic.Int32
}

func (e *QUICEndpoint) Listen(tlsConf *tls.Config) (transport.Listener, error) {
	l, err := e.tr.Listen(withNextProto(tlsConf), e.quicConfig)
	if err != nil {
		return nil, err
	}
	return &QUICStreamListener{listener: l}, nil
}

func (e *QUICEndpoint) Dial(ctx context.Context, addr string, tlsConf *tls.Config) (transport.Conn, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("invalid remote address %q: %w", addr, err)
	}

	conn, err := e.tr.Dial(ctx, raddr, withNextProto(tlsConf), e.quicConfig)
	if err != nil {
		return nil, err
	}
	return &QUICStreamConn{conn: conn}, nil
}

func (e *QUICEndpoint) LocalAddr() net.Addr {
	return e.udpConn.LocalAddr()
}

func (e *QUICEndpoint) Retain() {
	e.refs.Add(1)
}

func (e *QUICEndpoint) Close() error {
	if e.refs.Add(-1) != 0 {
		return nil
	}

	log.Trace().Str("addr", e.udpConn.LocalAddr().String()).Msg("releasing endpoint")
	errTr := e.tr.Close()
	errConn := e.udpConn.Close()
	if relay.IsUseOfClosedNetworkError(errConn) {
		errConn = nil
	}
	return errors.Join(errTr, errConn)
}

func withNextProto(tlsConf *tls.Config) *tls.Config {
	tlsConf = tlsConf.Clone()
	if len(tlsConf.NextProtos) == 0 {
		tlsConf.NextProtos = []string{NextProto}
	}
	return tlsConf
}

// QUICStreamConn wraps a quic.Connection as a transport.Conn.
type QUICStreamConn struct {
	conn quic.Connection
}

func (c *QUICStreamConn) OpenStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICStream{Stream: s}, nil
}

func (c *QUICStreamConn) OpenUniStream(ctx context.Context) (transport.SendStream, error) {
	s, err := c.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICSendStream{SendStream: s}, nil
}

func (c *QUICStreamConn) AcceptStream(ctx context.Context) (transport.Stream, error) {
	s, err := c.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICStream{Stream: s}, nil
}

func (c *QUICStreamConn) AcceptUniStream(ctx context.Context) (transport.ReceiveStream, error) {
	s, err := c.conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICReceiveStream{ReceiveStream: s}, nil
}

func (c *QUICStreamConn) CloseWithError(code uint64, reason string) error {
	return c.conn.CloseWithError(quic.ApplicationErrorCode(code), reason)
}

func (c *QUICStreamConn) Context() context.Context {
	return c.conn.Context()
}

func (c *QUICStreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *QUICStreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// QUICStreamListener wraps a quic.Listener as a transport.Listener.
type QUICStreamListener struct {
	listener *quic.Listener
}

func (l *QUICStreamListener) Accept(ctx context.Context) (transport.Conn, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &QUICStreamConn{conn: conn}, nil
}

func (l *QUICStreamListener) Close() error {
	return l.listener.Close()
}

func (l *QUICStreamListener) Addr() net.Addr {
	return l.listener.Addr()
}

// QUICStream adapts quic.Stream error codes and IDs to plain integers.
type QUICStream struct {
	quic.Stream
}

func (s *QUICStream) StreamID() int64 {
	return int64(s.Stream.StreamID())
}

func (s *QUICStream) CancelRead(code uint64) {
	s.Stream.CancelRead(quic.StreamErrorCode(code))
}

func (s *QUICStream) CancelWrite(code uint64) {
	s.Stream.CancelWrite(quic.StreamErrorCode(code))
}

type QUICSendStream struct {
	quic.SendStream
}

func (s *QUICSendStream) StreamID() int64 {
	return int64(s.SendStream.StreamID())
}

func (s *QUICSendStream) CancelWrite(code uint64) {
	s.SendStream.CancelWrite(quic.StreamErrorCode(code))
}

type QUICReceiveStream struct {
	quic.ReceiveStream
}

func (s *QUICReceiveStream) StreamID() int64 {
	return int64(s.ReceiveStream.StreamID())
}

func (s *QUICReceiveStream) CancelRead(code uint64) {
	s.ReceiveStream.CancelRead(quic.StreamErrorCode(code))
}

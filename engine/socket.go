package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fr13n8/centaurus/metrics"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/relay"
	"github.com/fr13n8/centaurus/state"
	"github.com/fr13n8/centaurus/transport"
	"github.com/rs/zerolog/log"
)

type acceptResult struct {
	listener transport.Listener
	conn     transport.Conn
	err      error
}

type connectResult struct {
	addr string
	conn transport.Conn
	err  error
}

type peerStream struct {
	dir  protocol.Direction
	send transport.SendStream
	recv transport.ReceiveStream
}

type pendingOp[T any] struct {
	reply  protocol.Responder[T]
	cancel context.CancelFunc
}

// socketTask serves the commands of one socket. Accept and connect run on
// helper goroutines and report back through acceptDone and connectDone so
// the task keeps serving commands and peer streams meanwhile.
type socketTask struct {
	rt       *Runtime
	ref      *protocol.SocketRef
	sock     *state.Socket
	commands chan protocol.SocketEvent

	accepting   *pendingOp[*protocol.SocketRef]
	acceptDone  chan acceptResult
	connecting  *pendingOp[struct{}]
	connectDone chan connectResult

	peer     chan peerStream
	connDone <-chan struct{}
	conn     transport.Conn
}

func (t *socketTask) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if conn, err := t.sock.Conn(); err == nil {
		t.established(ctx, conn)
	}

	for {
		select {
		case ev := <-t.commands:
			if closing, ok := ev.(*protocol.CloseSocket); ok {
				t.close(closing)
				return
			}
			t.serve(ctx, ev)

		case res := <-t.acceptDone:
			t.accepted(res)

		case res := <-t.connectDone:
			t.connected(ctx, res)

		case p := <-t.peer:
			t.peerOpened(ctx, p)

		case <-t.connDone:
			cause := context.Cause(t.conn.Context())
			if relay.IsApplicationClose(cause) {
				log.Debug().Str("socket", t.ref.ID).Msg("connection closed by peer")
				cause = nil
			} else {
				log.Debug().Err(cause).Str("socket", t.ref.ID).Msg("connection lost")
			}
			t.teardown(protocol.ApplicationOK, "", cause, nil)
			return

		case <-ctx.Done():
			t.teardown(protocol.ApplicationOK, "runtime shutdown", nil, nil)
			return
		}
	}
}

func (t *socketTask) serve(ctx context.Context, ev protocol.SocketEvent) {
	switch ev := ev.(type) {
	case *protocol.Listen:
		log.Trace().Str("socket", t.ref.ID).Msg("listen")
		err := t.listen()
		metrics.Observe("listen", err)
		ev.Reply.Send(struct{}{}, err)

	case *protocol.Accept:
		log.Trace().Str("socket", t.ref.ID).Dur("timeout", ev.Timeout).Msg("accept")
		if err := t.accept(ctx, ev); err != nil {
			metrics.Observe("accept", err)
			ev.Fail(err)
		}

	case *protocol.Connect:
		log.Trace().Str("socket", t.ref.ID).Str("addr", ev.Addr).Dur("timeout", ev.Timeout).Msg("connect")
		if err := t.connect(ctx, ev); err != nil {
			metrics.Observe("connect", err)
			ev.Fail(err)
		}

	case *protocol.OpenStream:
		log.Trace().Str("socket", t.ref.ID).Str("direction", ev.Direction.String()).Msg("open stream")
		ref, err := t.openStream(ctx, ev.Direction)
		metrics.Observe("open_stream", err)
		ev.Reply.Send(ref, err)

	default:
		log.Error().Str("socket", t.ref.ID).Msgf("unexpected socket event %T", ev)
		ev.Fail(fmt.Errorf("unexpected event %T: %w", ev, protocol.ErrState))
	}
}

func (t *socketTask) listen() error {
	if t.ref.Role != protocol.RoleServer {
		return fmt.Errorf("listen on a %s socket: %w", t.ref.Role, protocol.ErrState)
	}
	if _, ok := t.sock.State().(state.Listening); !ok {
		return fmt.Errorf("listen on an %s socket: %w", t.sock.State(), protocol.ErrState)
	}
	return nil
}

func (t *socketTask) accept(ctx context.Context, ev *protocol.Accept) error {
	if t.ref.Role != protocol.RoleServer {
		return fmt.Errorf("accept on a %s socket: %w", t.ref.Role, protocol.ErrState)
	}
	if t.accepting != nil {
		return fmt.Errorf("accept already in progress: %w", protocol.ErrState)
	}

	listener, err := t.sock.TakeIncoming()
	if err != nil {
		return err
	}

	actx, cancel := withTimeout(ctx, ev.Timeout)
	t.accepting = &pendingOp[*protocol.SocketRef]{reply: ev.Reply, cancel: cancel}

	t.rt.g.Go(func() error {
		conn, err := listener.Accept(actx)
		t.acceptDone <- acceptResult{listener: listener, conn: conn, err: err}
		return nil
	})
	return nil
}

func (t *socketTask) accepted(res acceptResult) {
	op := t.accepting
	t.accepting = nil
	op.cancel()

	if err := t.sock.RestoreIncoming(res.listener); err != nil {
		log.Error().Err(err).Str("socket", t.ref.ID).Msg("failed to restore listener")
	}

	if res.err != nil {
		err := res.err
		switch {
		case relay.IsTimeout(err):
			err = protocol.Timeout(err)
		case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed), relay.IsApplicationClose(err):
			err = fmt.Errorf("accept aborted: %w", protocol.ErrClosed)
		}
		metrics.Observe("accept", err)
		op.reply.Fail(err)
		return
	}

	sock, err := t.sock.Establish(res.conn)
	if err != nil {
		res.conn.CloseWithError(protocol.ApplicationOK, "")
		metrics.Observe("accept", err)
		op.reply.Fail(err)
		return
	}

	ref := t.rt.spawnSocket(sock, t.ref.Owner)
	log.Info().Str("socket", ref.ID).Str("listener", t.ref.ID).Str("remote", res.conn.RemoteAddr().String()).Msg("connection accepted")
	metrics.Observe("accept", nil)
	op.reply.Send(ref, nil)
}

func (t *socketTask) connect(ctx context.Context, ev *protocol.Connect) error {
	if t.ref.Role != protocol.RoleClient {
		return fmt.Errorf("connect on a %s socket: %w", t.ref.Role, protocol.ErrState)
	}
	if t.connecting != nil {
		return fmt.Errorf("connect already in progress: %w", protocol.ErrState)
	}

	endpoint, tlsConf, err := t.sock.Dialer()
	if err != nil {
		return err
	}
	if tlsConf.ServerName == "" {
		host, _, err := net.SplitHostPort(ev.Addr)
		if err != nil {
			return &protocol.ConfigError{Field: "remote address", Err: err}
		}
		tlsConf = tlsConf.Clone()
		tlsConf.ServerName = host
	}

	dctx, cancel := withTimeout(ctx, ev.Timeout)
	t.connecting = &pendingOp[struct{}]{reply: ev.Reply, cancel: cancel}

	addr := ev.Addr
	t.rt.g.Go(func() error {
		conn, err := endpoint.Dial(dctx, addr, tlsConf)
		t.connectDone <- connectResult{addr: addr, conn: conn, err: err}
		return nil
	})
	return nil
}

func (t *socketTask) connected(ctx context.Context, res connectResult) {
	op := t.connecting
	t.connecting = nil
	op.cancel()

	if res.err != nil {
		var err error = &protocol.HandshakeError{Addr: res.addr, Err: res.err}
		switch {
		case relay.IsTimeout(res.err):
			err = protocol.Timeout(err)
		case errors.Is(res.err, context.Canceled):
			err = fmt.Errorf("connect aborted: %w", protocol.ErrClosed)
		}
		log.Debug().Err(err).Str("socket", t.ref.ID).Msg("connect failed")
		metrics.Observe("connect", err)
		op.reply.Fail(err)
		return
	}

	if _, err := t.sock.Establish(res.conn); err != nil {
		res.conn.CloseWithError(protocol.ApplicationOK, "")
		metrics.Observe("connect", err)
		op.reply.Fail(err)
		return
	}

	t.established(ctx, res.conn)
	log.Info().Str("socket", t.ref.ID).Str("remote", res.addr).Msg("connection established")
	metrics.Observe("connect", nil)
	op.reply.Send(struct{}{}, nil)
}

func (t *socketTask) openStream(ctx context.Context, dir protocol.Direction) (*protocol.StreamRef, error) {
	conn, err := t.sock.Conn()
	if err != nil {
		return nil, err
	}

	var open state.Opener
	switch dir {
	case protocol.Bidirectional:
		open = func(ctx context.Context) (transport.SendStream, transport.ReceiveStream, error) {
			s, err := conn.OpenStream(ctx)
			if err != nil {
				return nil, nil, err
			}
			return s, s, nil
		}
	case protocol.Unidirectional:
		open = func(ctx context.Context) (transport.SendStream, transport.ReceiveStream, error) {
			s, err := conn.OpenUniStream(ctx)
			if err != nil {
				return nil, nil, err
			}
			return s, nil, nil
		}
	default:
		return nil, &protocol.ConfigError{Field: "direction", Err: fmt.Errorf("unknown direction %s", dir)}
	}

	return t.rt.spawnStream(ctx, t.ref.ID, state.NewPending(dir, open)), nil
}

// established starts watching the connection for its end and for streams
// opened by the peer.
func (t *socketTask) established(ctx context.Context, conn transport.Conn) {
	t.conn = conn
	t.connDone = conn.Context().Done()

	t.rt.g.Go(func() error {
		for {
			s, err := conn.AcceptStream(ctx)
			if err != nil {
				return nil
			}
			select {
			case t.peer <- peerStream{dir: protocol.Bidirectional, send: s, recv: s}:
			case <-ctx.Done():
				s.CancelRead(protocol.ApplicationOK)
				s.CancelWrite(protocol.ApplicationOK)
				return nil
			}
		}
	})

	t.rt.g.Go(func() error {
		for {
			s, err := conn.AcceptUniStream(ctx)
			if err != nil {
				return nil
			}
			select {
			case t.peer <- peerStream{dir: protocol.Unidirectional, recv: s}:
			case <-ctx.Done():
				s.CancelRead(protocol.ApplicationOK)
				return nil
			}
		}
	})
}

func (t *socketTask) peerOpened(ctx context.Context, p peerStream) {
	st, err := state.NewOpen(p.dir, protocol.OriginPeer, p.send, p.recv)
	if err != nil {
		log.Error().Err(err).Str("socket", t.ref.ID).Msg("dropping peer stream")
		return
	}

	ref := t.rt.spawnStream(ctx, t.ref.ID, st)
	log.Debug().Str("socket", t.ref.ID).Str("stream", ref.ID).Str("direction", p.dir.String()).Msg("peer opened stream")
	metrics.Observe("peer_stream", nil)
	t.rt.notify(t.ref.Owner, ref)
}

func (t *socketTask) close(ev *protocol.CloseSocket) {
	log.Debug().Str("socket", t.ref.ID).Uint64("code", ev.Code).Str("reason", ev.Reason).Msg("closing socket")
	t.teardown(ev.Code, ev.Reason, nil, ev)
}

// teardown closes the socket, answers everything still outstanding and
// ends the task. The reply to a close command is sent before the lifetime
// ends so its caller never sees ErrClosed for its own close.
func (t *socketTask) teardown(code uint64, reason string, cause error, closing *protocol.CloseSocket) {
	if t.accepting != nil {
		t.accepting.cancel()
	}
	if t.connecting != nil {
		t.connecting.cancel()
	}

	err := t.sock.Close(code, reason, cause)
	if err != nil && !relay.IsOKNetworkError(err) {
		log.Error().Err(err).Str("socket", t.ref.ID).Msg("error closing socket")
		t.rt.recordErr(fmt.Errorf("socket %s: %w", t.ref.ID, err))
	}

	if t.accepting != nil {
		res := <-t.acceptDone
		res.listener.Close()
		if res.conn != nil {
			res.conn.CloseWithError(protocol.ApplicationOK, "listener closed")
		}
		t.accepting.reply.Fail(fmt.Errorf("accept aborted: %w", protocol.ErrClosed))
		t.accepting = nil
	}
	if t.connecting != nil {
		res := <-t.connectDone
		if res.conn != nil {
			res.conn.CloseWithError(protocol.ApplicationOK, "socket closed")
		}
		t.connecting.reply.Fail(fmt.Errorf("connect aborted: %w", protocol.ErrClosed))
		t.connecting = nil
	}

	if closing != nil {
		if relay.IsOKNetworkError(err) {
			err = nil
		}
		metrics.Observe("close_socket", err)
		closing.Reply.Send(struct{}{}, err)
	}

	t.ref.Lifetime.End(cause)
drain:
	for {
		select {
		case ev := <-t.commands:
			ev.Fail(protocol.ErrClosed)
		default:
			break drain
		}
	}

	t.rt.registry.RemoveSocket(t.ref.ID)
	metrics.Sockets.WithLabelValues(t.ref.Role.String()).Dec()
	log.Debug().Str("socket", t.ref.ID).Err(cause).Msg("socket task finished")
}

// withTimeout bounds ctx by d unless d is zero.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/handle"
	"github.com/fr13n8/centaurus/metrics"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/relay"
	"github.com/fr13n8/centaurus/state"
	"github.com/fr13n8/centaurus/transport"
	"github.com/fr13n8/centaurus/transport/quic"
	"github.com/hashicorp/go-multierror"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// commandBuffer is the capacity of every task's command channel.
const commandBuffer = 16

// Options configures a Runtime. The zero value is usable.
type Options struct {
	// Transport binds endpoints, QUIC over UDP when nil.
	Transport transport.Transport
	// QUIC tunes the default transport.
	QUIC config.Options
	// Notifier is told about peer-initiated streams.
	Notifier Notifier
	// NotifyWorkers bounds concurrent notifications, config.NotifyWorkers
	// when zero.
	NotifyWorkers int
}

// Runtime owns every socket and stream task. All tasks run in one errgroup
// and end when Shutdown is called.
type Runtime struct {
	transport transport.Transport
	notifier  Notifier
	pool      *WorkerPool
	registry  *Registry

	events chan protocol.OpenSocket
	life   *protocol.Lifetime

	ctx    context.Context
	cancel context.CancelFunc
	g      errgroup.Group

	started  atomic.Bool
	stopOnce sync.Once

	errMu sync.Mutex
	errs  *multierror.Error
}

func New(opts Options) *Runtime {
	tr := opts.Transport
	if tr == nil {
		tr = quic.NewQUICTransport(opts.QUIC)
	}
	workers := opts.NotifyWorkers
	if workers <= 0 {
		workers = config.NotifyWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		transport: tr,
		notifier:  opts.Notifier,
		pool:      NewWorkerPool(1, workers, 30*time.Second),
		registry:  NewRegistry(),
		events:    make(chan protocol.OpenSocket, commandBuffer),
		life:      protocol.NewLifetime(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the dispatcher. Calling it more than once has no effect.
func (r *Runtime) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	r.pool.Start()
	r.g.Go(func() error {
		r.dispatch()
		return nil
	})
	log.Debug().Msg("runtime started")
}

// Shutdown closes every socket and stream, then waits for their tasks
// until ctx is done. Errors met while tearing down are aggregated.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() {
		log.Debug().Int("sockets", len(r.registry.Sockets())).Msg("runtime shutting down")
		r.cancel()

		done := make(chan error, 1)
		go func() {
			done <- r.g.Wait()
		}()

		select {
		case err := <-done:
			r.recordErr(err)
		case <-ctx.Done():
			r.recordErr(fmt.Errorf("waiting for tasks: %w", ctx.Err()))
		}

		r.pool.Stop()
		r.life.End(nil)
	})

	r.errMu.Lock()
	defer r.errMu.Unlock()

	return r.errs.ErrorOrNil()
}

// OpenSocket binds a socket. A server socket is listening when this
// returns; a client socket is ready to connect.
func (r *Runtime) OpenSocket(role protocol.Role, conf config.Socket) (*handle.Socket, error) {
	if !r.started.Load() {
		return nil, fmt.Errorf("runtime not started: %w", protocol.ErrChannel)
	}

	ev := protocol.OpenSocket{Role: role, Config: conf, Reply: protocol.NewResponder[*protocol.SocketRef]()}
	ref, err := protocol.Call(r.events, r.life, ev, ev.Reply)
	if errors.Is(err, protocol.ErrClosed) {
		return nil, fmt.Errorf("runtime stopped: %w", protocol.ErrChannel)
	}
	if err != nil {
		return nil, err
	}
	return handle.NewSocket(ref), nil
}

// Sockets returns handles to the live sockets, oldest first.
func (r *Runtime) Sockets() []*handle.Socket {
	refs := r.registry.Sockets()
	socks := make([]*handle.Socket, len(refs))
	for i, ref := range refs {
		socks[i] = handle.NewSocket(ref)
	}
	return socks
}

// Socket returns a handle to the live socket with the given id.
func (r *Runtime) Socket(id string) (*handle.Socket, bool) {
	ref := r.registry.GetSocket(id)
	if ref == nil {
		return nil, false
	}
	return handle.NewSocket(ref), true
}

// Streams returns handles to the live streams of a socket.
func (r *Runtime) Streams(socketID string) []*handle.Stream {
	refs := r.registry.Streams(socketID)
	streams := make([]*handle.Stream, len(refs))
	for i, ref := range refs {
		streams[i] = handle.NewStream(ref)
	}
	return streams
}

func (r *Runtime) dispatch() {
	for {
		select {
		case ev := <-r.events:
			r.openSocket(ev)
		case <-r.ctx.Done():
			r.life.End(nil)
			for {
				select {
				case ev := <-r.events:
					ev.Reply.Fail(protocol.ErrChannel)
				default:
					return
				}
			}
		}
	}
}

func (r *Runtime) openSocket(ev protocol.OpenSocket) {
	log.Trace().Str("role", ev.Role.String()).Msg("open socket")

	sock := state.New(ev.Role, r.transport, ev.Config)
	if err := sock.Bind(); err != nil {
		log.Error().Err(err).Str("role", ev.Role.String()).Msg("failed to open socket")
		metrics.Observe("open_socket", err)
		ev.Reply.Fail(err)
		return
	}
	metrics.Observe("open_socket", nil)

	ev.Reply.Send(r.spawnSocket(sock, ev.Config.Owner()), nil)
}

// spawnSocket starts the task serving sock and returns its reference.
func (r *Runtime) spawnSocket(sock *state.Socket, owner string) *protocol.SocketRef {
	commands := make(chan protocol.SocketEvent, commandBuffer)
	ref := &protocol.SocketRef{
		ID:        shortuuid.New(),
		Role:      sock.Role(),
		Owner:     owner,
		LocalAddr: sock.LocalAddr(),
		Commands:  commands,
		Lifetime:  protocol.NewLifetime(),
	}

	t := &socketTask{
		rt:          r,
		ref:         ref,
		sock:        sock,
		commands:    commands,
		acceptDone:  make(chan acceptResult, 1),
		connectDone: make(chan connectResult, 1),
		peer:        make(chan peerStream),
	}

	r.registry.AddSocket(ref)
	metrics.Sockets.WithLabelValues(ref.Role.String()).Inc()
	log.Debug().Str("socket", ref.ID).Str("role", ref.Role.String()).Str("state", sock.State().String()).Msg("socket task started")

	r.g.Go(func() error {
		t.run(r.ctx)
		return nil
	})
	return ref
}

// spawnStream starts the task serving st on the given socket context.
func (r *Runtime) spawnStream(ctx context.Context, socketID string, st *state.Stream) *protocol.StreamRef {
	commands := make(chan protocol.StreamEvent, commandBuffer)
	ref := &protocol.StreamRef{
		ID:        shortuuid.New(),
		SocketID:  socketID,
		Direction: st.Direction(),
		Origin:    st.Origin(),
		Commands:  commands,
		Lifetime:  protocol.NewLifetime(),
	}

	t := &streamTask{
		rt:       r,
		ref:      ref,
		st:       st,
		commands: commands,
	}

	r.registry.AddStream(ref)
	metrics.Streams.WithLabelValues(ref.Direction.String(), ref.Origin.String()).Inc()
	log.Trace().Str("socket", socketID).Str("stream", ref.ID).Str("direction", ref.Direction.String()).Str("origin", ref.Origin.String()).Msg("stream task started")

	r.g.Go(func() error {
		t.run(ctx)
		return nil
	})
	return ref
}

// notify hands a peer stream to the owner of its socket. Failures are
// logged and counted; the connection is not affected.
func (r *Runtime) notify(owner string, ref *protocol.StreamRef) {
	report := func(err error) {
		metrics.NotifyFailures.Inc()
		log.Warn().Err(err).Str("owner", owner).Str("stream", ref.ID).Msg("failed to notify peer stream")
	}

	if r.notifier == nil {
		report(errors.New("no notifier configured"))
		return
	}

	submitted := r.pool.Submit(func() {
		if err := r.notifier.NotifyPeerStream(owner, handle.NewStream(ref)); err != nil {
			report(err)
		}
	})
	if !submitted {
		report(errors.New("notification pool stopped"))
	}
}

func (r *Runtime) recordErr(err error) {
	if err == nil || relay.IsOKNetworkError(err) {
		return
	}
	r.errMu.Lock()
	defer r.errMu.Unlock()

	r.errs = multierror.Append(r.errs, err)
}

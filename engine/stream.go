package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fr13n8/centaurus/metrics"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/relay"
	"github.com/fr13n8/centaurus/state"
	"github.com/rs/zerolog/log"
)

// errSocketClosed ends the streams of a socket that went away.
var errSocketClosed = fmt.Errorf("socket closed: %w", protocol.ErrClosed)

// streamTask serves the commands of one stream strictly in order. A locally
// opened stream keeps serving commands while the open is in flight.
type streamTask struct {
	rt       *Runtime
	ref      *protocol.StreamRef
	st       *state.Stream
	commands chan protocol.StreamEvent

	// opening reports the result of a pending open, nil once resolved
	opening    chan error
	cancelOpen context.CancelFunc
	openErr    error
}

func (t *streamTask) run(ctx context.Context) {
	// Unblocks a pending open, read or write when the socket goes away.
	stop := context.AfterFunc(ctx, func() {
		t.st.Abort(protocol.ApplicationOK, errSocketClosed)
	})
	defer stop()

	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()
	t.cancelOpen = cancelOpen

	if _, ok := t.st.State().(state.Pending); ok {
		opened := make(chan error, 1)
		t.opening = opened
		t.rt.g.Go(func() error {
			opened <- t.st.Resolve(openCtx)
			return nil
		})
	}

	for {
		select {
		case err := <-t.opening:
			t.opening = nil
			if err != nil {
				t.openFailed(ctx, err)
				return
			}

		case ev := <-t.commands:
			switch ev := ev.(type) {
			case *protocol.Read:
				res, err := t.read(ctx, ev.Capacity, ev.Timeout)
				metrics.Observe("read", ignoreEOF(err))
				ev.Reply.Send(res, err)
			case *protocol.Write:
				err := t.write(ctx, ev.Buf)
				metrics.Observe("write", err)
				ev.Reply.Send(struct{}{}, err)
			case *protocol.CloseStream:
				t.close(ev)
				return
			default:
				log.Error().Str("stream", t.ref.ID).Msgf("unexpected stream event %T", ev)
				ev.Fail(fmt.Errorf("unexpected event %T: %w", ev, protocol.ErrState))
			}
			if t.openErr != nil {
				t.openFailed(ctx, t.openErr)
				return
			}

		case <-ctx.Done():
			t.st.Abort(protocol.ApplicationOK, errSocketClosed)
			t.finish(errSocketClosed, nil)
			return
		}
	}
}

// awaitOpen waits for a pending open until deadline, or indefinitely when
// deadline is zero. The stream stays pending after a timeout.
func (t *streamTask) awaitOpen(ctx context.Context, deadline time.Time) error {
	if t.opening == nil {
		return nil
	}

	var expired <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-t.opening:
		t.opening = nil
		if err != nil {
			t.openErr = err
			if ctx.Err() != nil {
				return errSocketClosed
			}
			return fmt.Errorf("open stream: %w", err)
		}
		return nil
	case <-expired:
		return protocol.Timeout(errors.New("stream is still opening"))
	case <-ctx.Done():
		return errSocketClosed
	}
}

func (t *streamTask) openFailed(ctx context.Context, err error) {
	log.Debug().Err(err).Str("stream", t.ref.ID).Msg("failed to open stream")
	if ctx.Err() != nil {
		err = errSocketClosed
	}
	t.finish(err, nil)
}

// read performs a single read into a fresh buffer. The end of the stream
// is reported as io.EOF once all data was returned.
func (t *streamTask) read(ctx context.Context, capacity int, timeout time.Duration) (protocol.ReadResult, error) {
	if capacity < 0 || capacity > protocol.MaxReadCapacity {
		return protocol.ReadResult{}, &protocol.ConfigError{
			Field: "read capacity",
			Err:   fmt.Errorf("%d is outside [0, %d]", capacity, protocol.MaxReadCapacity),
		}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := t.awaitOpen(ctx, deadline); err != nil {
		return protocol.ReadResult{}, err
	}

	recv, err := t.st.Recv()
	if err != nil {
		return protocol.ReadResult{}, err
	}

	if !deadline.IsZero() {
		recv.SetReadDeadline(deadline)
		defer recv.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, capacity)
	n, err := recv.Read(buf)
	metrics.BytesRead.Add(float64(n))
	log.Trace().Str("stream", t.ref.ID).Int("bytes", n).Err(err).Msg("read")

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if n > 0 {
			// data first, the end of stream is reported by the next read
			err = nil
		}
	case relay.IsTimeout(err):
		err = protocol.Timeout(err)
	case t.aborted():
		err = errSocketClosed
	}
	return protocol.ReadResult{N: n, Buf: buf}, err
}

func (t *streamTask) write(ctx context.Context, buf []byte) error {
	if err := t.awaitOpen(ctx, time.Time{}); err != nil {
		return err
	}

	send, err := t.st.Send()
	if err != nil {
		return err
	}

	n, err := send.Write(buf)
	metrics.BytesWritten.Add(float64(n))
	log.Trace().Str("stream", t.ref.ID).Int("bytes", n).Err(err).Msg("write")
	if err != nil && t.aborted() {
		return errSocketClosed
	}
	return err
}

func (t *streamTask) close(ev *protocol.CloseStream) {
	log.Debug().Str("stream", t.ref.ID).Uint64("code", ev.Code).Str("reason", ev.Reason).Msg("closing stream")

	// Marked closed before the open is cancelled, so a pending open
	// resets its halves instead of failing the stream.
	err := t.st.Close(ev.Code, nil)
	t.cancelOpen()
	if relay.IsOKNetworkError(err) {
		err = nil
	}
	metrics.Observe("close_stream", err)
	t.finish(nil, func() { ev.Reply.Send(struct{}{}, err) })
}

// finish ends the task. reply runs before the lifetime ends.
func (t *streamTask) finish(cause error, reply func()) {
	if reply != nil {
		reply()
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

	t.rt.registry.RemoveStream(t.ref.ID)
	metrics.Streams.WithLabelValues(t.ref.Direction.String(), t.ref.Origin.String()).Dec()
	log.Trace().Str("stream", t.ref.ID).Err(cause).Msg("stream task finished")
}

func (t *streamTask) aborted() bool {
	_, closed := t.st.State().(state.StreamClosed)
	return closed
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

package protocol

import (
	"net"
	"sync"
)

// Lifetime is closed when the task behind a reference finishes.
type Lifetime struct {
	done chan struct{}
	once sync.Once
	err  error
}

func NewLifetime() *Lifetime {
	return &Lifetime{done: make(chan struct{})}
}

// End records the terminal cause, nil for a clean close. Only the first
// call has an effect.
func (l *Lifetime) End(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.done)
	})
}

func (l *Lifetime) Done() <-chan struct{} {
	return l.done
}

// Err returns the terminal cause once Done is closed.
func (l *Lifetime) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// SocketRef is the capability to send commands to a connection task.
// Copies share the task.
type SocketRef struct {
	ID        string
	Role      Role
	Owner     string
	LocalAddr net.Addr
	Commands  chan<- SocketEvent
	Lifetime  *Lifetime
}

// StreamRef is the capability to send commands to a stream task.
type StreamRef struct {
	ID        string
	SocketID  string
	Direction Direction
	Origin    Origin
	Commands  chan<- StreamEvent
	Lifetime  *Lifetime
}

// Call sends ev to a task and waits for its reply. When the task is gone
// the call fails with ErrClosed instead of blocking.
func Call[E any, T any](commands chan<- E, life *Lifetime, ev E, reply Responder[T]) (T, error) {
	var zero T
	if commands == nil || life == nil {
		return zero, ErrChannel
	}

	select {
	case commands <- ev:
	case <-life.Done():
		return zero, ErrClosed
	}

	select {
	case r := <-reply:
		return r.Value, r.Err
	case <-life.Done():
		// Replies are sent before the lifetime ends.
		select {
		case r := <-reply:
			return r.Value, r.Err
		default:
			return zero, ErrClosed
		}
	}
}

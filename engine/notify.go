package engine

import (
	"errors"
	"fmt"

	"github.com/fr13n8/centaurus/handle"
)

// ErrNoOwner is returned when a peer stream arrives for a socket whose
// owner nobody listens for.
var ErrNoOwner = errors.New("no receiver for owner")

// Notifier is told about streams opened by the peer. owner is the value
// the socket configuration returned from Owner. A failed notification is
// logged and the stream stays open until its socket closes.
type Notifier interface {
	NotifyPeerStream(owner string, s *handle.Stream) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(owner string, s *handle.Stream) error

func (f NotifierFunc) NotifyPeerStream(owner string, s *handle.Stream) error {
	return f(owner, s)
}

// ChanNotifier delivers peer streams on a channel without blocking.
type ChanNotifier chan *handle.Stream

func (c ChanNotifier) NotifyPeerStream(owner string, s *handle.Stream) error {
	select {
	case c <- s:
		return nil
	default:
		return fmt.Errorf("owner %q is not receiving: channel full", owner)
	}
}

// OwnerNotifier routes peer streams to a per-owner notifier.
type OwnerNotifier map[string]Notifier

func (m OwnerNotifier) NotifyPeerStream(owner string, s *handle.Stream) error {
	n, ok := m[owner]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoOwner, owner)
	}
	return n.NotifyPeerStream(owner, s)
}

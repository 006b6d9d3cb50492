package protocol

import (
	"errors"
	"os"
	"testing"
	"time"
)

func TestStreamHalves(t *testing.T) {
	tests := []struct {
		name     string
		dir      Direction
		origin   Origin
		wantSend bool
		wantRecv bool
	}{
		{"local bi", Bidirectional, OriginLocal, true, true},
		{"peer bi", Bidirectional, OriginPeer, true, true},
		{"local uni", Unidirectional, OriginLocal, true, false},
		{"peer uni", Unidirectional, OriginPeer, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanSend(tt.dir, tt.origin); got != tt.wantSend {
				t.Errorf("CanSend() = %v, want %v", got, tt.wantSend)
			}
			if got := CanRecv(tt.dir, tt.origin); got != tt.wantRecv {
				t.Errorf("CanRecv() = %v, want %v", got, tt.wantRecv)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"closed is a state error", ErrClosed, ErrState},
		{"config error unwraps", &ConfigError{Field: "address", Err: cause}, cause},
		{"bind error unwraps", &BindError{Addr: "127.0.0.1:1", Err: cause}, cause},
		{"handshake error unwraps", &HandshakeError{Addr: "127.0.0.1:1", Err: cause}, cause},
		{"timeout keeps cause", Timeout(os.ErrDeadlineExceeded), os.ErrDeadlineExceeded},
		{"timeout matches sentinel", Timeout(os.ErrDeadlineExceeded), ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}

	var hsErr *HandshakeError
	if !errors.As(Timeout(&HandshakeError{Addr: "x", Err: cause}), &hsErr) {
		t.Error("Timeout() should preserve typed errors")
	}
	if Timeout(nil) != nil {
		t.Error("Timeout(nil) should be nil")
	}
}

func TestResponderAnswersOnce(t *testing.T) {
	r := NewResponder[int]()
	r.Send(1, nil)
	r.Send(2, nil)
	r.Fail(ErrState)

	got := <-r
	if got.Value != 1 || got.Err != nil {
		t.Errorf("first reply = %+v, want value 1", got)
	}
	select {
	case extra := <-r:
		t.Errorf("unexpected second reply %+v", extra)
	default:
	}
}

func TestLifetime(t *testing.T) {
	l := NewLifetime()
	if l.Err() != nil {
		t.Error("Err() before End should be nil")
	}

	cause := errors.New("connection lost")
	l.End(cause)
	l.End(nil)

	select {
	case <-l.Done():
	default:
		t.Fatal("Done() should be closed")
	}
	if !errors.Is(l.Err(), cause) {
		t.Errorf("Err() = %v, want %v", l.Err(), cause)
	}
}

func TestCall(t *testing.T) {
	t.Run("reply", func(t *testing.T) {
		commands := make(chan StreamEvent, 1)
		life := NewLifetime()
		go func() {
			ev := (<-commands).(*Write)
			ev.Reply.Send(struct{}{}, nil)
		}()

		ev := &Write{Buf: []byte("x"), Reply: NewResponder[struct{}]()}
		if _, err := Call[StreamEvent](commands, life, StreamEvent(ev), ev.Reply); err != nil {
			t.Errorf("Call() error = %v", err)
		}
	})

	t.Run("task already finished", func(t *testing.T) {
		commands := make(chan StreamEvent)
		life := NewLifetime()
		life.End(nil)

		ev := &Write{Reply: NewResponder[struct{}]()}
		if _, err := Call[StreamEvent](commands, life, StreamEvent(ev), ev.Reply); !errors.Is(err, ErrClosed) {
			t.Errorf("Call() error = %v, want ErrClosed", err)
		}
	})

	t.Run("task finishes without answering", func(t *testing.T) {
		commands := make(chan StreamEvent, 1)
		life := NewLifetime()
		go func() {
			<-commands
			time.Sleep(10 * time.Millisecond)
			life.End(errors.New("reset"))
		}()

		ev := &Write{Reply: NewResponder[struct{}]()}
		if _, err := Call[StreamEvent](commands, life, StreamEvent(ev), ev.Reply); !errors.Is(err, ErrClosed) {
			t.Errorf("Call() error = %v, want ErrClosed", err)
		}
	})

	t.Run("reply before finishing wins", func(t *testing.T) {
		for range 100 {
			commands := make(chan StreamEvent, 1)
			life := NewLifetime()
			go func() {
				ev := (<-commands).(*CloseStream)
				ev.Reply.Send(struct{}{}, nil)
				life.End(nil)
			}()

			ev := &CloseStream{Reply: NewResponder[struct{}]()}
			if _, err := Call[StreamEvent](commands, life, StreamEvent(ev), ev.Reply); err != nil {
				t.Fatalf("Call() error = %v", err)
			}
		}
	})

	t.Run("zero reference", func(t *testing.T) {
		var ref StreamRef
		ev := &Read{Reply: NewResponder[ReadResult]()}
		if _, err := Call[StreamEvent](ref.Commands, ref.Lifetime, StreamEvent(ev), ev.Reply); !errors.Is(err, ErrChannel) {
			t.Errorf("Call() error = %v, want ErrChannel", err)
		}
	})
}

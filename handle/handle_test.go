package handle

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fr13n8/centaurus/protocol"
)

// fakeStreamTask serves stream commands from an in-memory buffer.
func fakeStreamTask(t *testing.T, dir protocol.Direction, origin protocol.Origin, data []byte) (*Stream, *bytes.Buffer) {
	t.Helper()

	commands := make(chan protocol.StreamEvent, 4)
	life := protocol.NewLifetime()
	written := &bytes.Buffer{}
	ref := &protocol.StreamRef{
		ID:        "stream",
		SocketID:  "socket",
		Direction: dir,
		Origin:    origin,
		Commands:  commands,
		Lifetime:  life,
	}

	go func() {
		for ev := range commands {
			switch ev := ev.(type) {
			case *protocol.Read:
				if !protocol.CanRecv(dir, origin) {
					ev.Fail(protocol.ErrDirectionMismatch)
					continue
				}
				buf := make([]byte, ev.Capacity)
				n := copy(buf, data)
				data = data[n:]
				if n == 0 {
					ev.Reply.Send(protocol.ReadResult{Buf: buf}, io.EOF)
					continue
				}
				ev.Reply.Send(protocol.ReadResult{N: n, Buf: buf}, nil)
			case *protocol.Write:
				if !protocol.CanSend(dir, origin) {
					ev.Fail(protocol.ErrDirectionMismatch)
					continue
				}
				written.Write(ev.Buf)
				ev.Reply.Send(struct{}{}, nil)
			case *protocol.CloseStream:
				ev.Reply.Send(struct{}{}, nil)
				life.End(nil)
				return
			}
		}
	}()

	return NewStream(ref), written
}

func TestStream(t *testing.T) {
	tests := []struct {
		name     string
		dir      protocol.Direction
		origin   protocol.Origin
		readErr  error
		writeErr error
	}{
		{"bidirectional", protocol.Bidirectional, protocol.OriginLocal, nil, nil},
		{"local uni", protocol.Unidirectional, protocol.OriginLocal, protocol.ErrDirectionMismatch, nil},
		{"peer uni", protocol.Unidirectional, protocol.OriginPeer, nil, protocol.ErrDirectionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, written := fakeStreamTask(t, tt.dir, tt.origin, []byte("pong"))

			n, buf, err := s.Read(16, 0)
			if !errors.Is(err, tt.readErr) {
				t.Errorf("Read() error = %v, want %v", err, tt.readErr)
			}
			if err == nil && string(buf[:n]) != "pong" {
				t.Errorf("Read() = %q, want pong", buf[:n])
			}

			err = s.Write([]byte("ping"))
			if !errors.Is(err, tt.writeErr) {
				t.Errorf("Write() error = %v, want %v", err, tt.writeErr)
			}
			if err == nil && written.String() != "ping" {
				t.Errorf("written = %q, want ping", written.String())
			}

			if err := s.Close(protocol.ApplicationOK, ""); err != nil {
				t.Fatalf("Close() error = %v", err)
			}
			<-s.Done()
			if s.Err() != nil {
				t.Errorf("Err() = %v, want nil", s.Err())
			}
			if err := s.Close(protocol.ApplicationOK, ""); !errors.Is(err, protocol.ErrClosed) {
				t.Errorf("second Close() error = %v, want ErrClosed", err)
			}
			if _, _, err := s.Read(1, 0); !errors.Is(err, protocol.ErrState) {
				t.Errorf("Read() after close error = %v, want a state error", err)
			}
		})
	}
}

func TestConn(t *testing.T) {
	s, written := fakeStreamTask(t, protocol.Bidirectional, protocol.OriginPeer, []byte("hello world"))
	c := NewConn(s)

	got, err := io.ReadAll(c)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("read %q, want hello world", got)
	}

	if n, err := c.Write([]byte("bye")); err != nil || n != 3 {
		t.Errorf("Write() = %d, %v", n, err)
	}
	if written.String() != "bye" {
		t.Errorf("written = %q, want bye", written.String())
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := c.Write([]byte("late")); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("Write() after close error = %v, want ErrClosed", err)
	}
}

func TestSocket(t *testing.T) {
	commands := make(chan protocol.SocketEvent, 1)
	life := protocol.NewLifetime()
	s := NewSocket(&protocol.SocketRef{
		ID:       "listener",
		Role:     protocol.RoleServer,
		Commands: commands,
		Lifetime: life,
	})

	go func() {
		for ev := range commands {
			switch ev := ev.(type) {
			case *protocol.Listen:
				ev.Reply.Send(struct{}{}, nil)
			case *protocol.Accept:
				if ev.Timeout < time.Second {
					ev.Fail(protocol.Timeout(errors.New("no connection")))
					continue
				}
				ev.Reply.Send(&protocol.SocketRef{ID: "accepted", Role: protocol.RoleServer}, nil)
			case *protocol.Connect:
				ev.Fail(protocol.ErrState)
			case *protocol.OpenStream:
				ev.Fail(protocol.ErrState)
			case *protocol.CloseSocket:
				ev.Reply.Send(struct{}{}, nil)
				life.End(nil)
				return
			}
		}
	}()

	if err := s.Listen(); err != nil {
		t.Errorf("Listen() error = %v", err)
	}
	if _, err := s.Accept(time.Millisecond); !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("Accept() error = %v, want ErrTimeout", err)
	}
	accepted, err := s.Accept(time.Minute)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if accepted.ID() != "accepted" {
		t.Errorf("accepted ID = %q", accepted.ID())
	}
	if err := s.Connect("127.0.0.1:1", 0); !errors.Is(err, protocol.ErrState) {
		t.Errorf("Connect() error = %v, want ErrState", err)
	}
	if _, err := s.OpenStream(protocol.Bidirectional); !errors.Is(err, protocol.ErrState) {
		t.Errorf("OpenStream() error = %v, want ErrState", err)
	}
	if err := s.Close(protocol.ApplicationOK, "done"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(protocol.ApplicationOK, "done"); !errors.Is(err, protocol.ErrClosed) {
		t.Errorf("second Close() error = %v, want ErrClosed", err)
	}
}

func TestZeroHandles(t *testing.T) {
	var s *Socket
	if err := s.Listen(); !errors.Is(err, protocol.ErrChannel) {
		t.Errorf("Listen() on nil socket error = %v, want ErrChannel", err)
	}
	if err := NewStream(nil).Write(nil); !errors.Is(err, protocol.ErrChannel) {
		t.Errorf("Write() on empty stream error = %v, want ErrChannel", err)
	}
}

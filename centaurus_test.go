package centaurus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/engine"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/utils/certs"
)

func ptr[T any](v T) *T { return &v }

func TestRoundTrip(t *testing.T) {
	b, err := certs.Generate("localhost")
	if err != nil {
		t.Fatal(err)
	}
	peers := make(engine.ChanNotifier, 4)
	rt := Init(engine.Options{Notifier: peers})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rt.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	}()

	srv, err := OpenSocket(rt, Server, &config.Static{Addr: "127.0.0.1:0", Chain: b.Chain(), Key: b.Key, OwnerID: "srv"})
	if err != nil {
		t.Fatalf("OpenSocket(server) error = %v", err)
	}
	if err := Listen(srv); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	cli, err := OpenSocket(rt, Client, &config.Static{Addr: "127.0.0.1:0", Name: "localhost", Chain: b.Chain()})
	if err != nil {
		t.Fatalf("OpenSocket(client) error = %v", err)
	}

	connected := make(chan error, 1)
	go func() {
		connected <- Connect(cli, srv.LocalAddr().String(), ptr[uint64](5000))
	}()
	if _, err := Accept(srv, nil); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if err := <-connected; err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	s, err := OpenStream(cli, Bi)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(s, []byte("ping")); err != nil {
		t.Fatal(err)
	}

	var peer *Stream
	select {
	case peer = <-peers:
	case <-time.After(5 * time.Second):
		t.Fatal("no peer stream")
	}
	n, buf, err := Read(peer, 16, ptr[uint64](5000))
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("Read() = %q, %v", buf[:n], err)
	}
	if err := Write(peer, []byte("pong")); err != nil {
		t.Fatal(err)
	}
	n, buf, err = Read(s, 16, nil)
	if err != nil || string(buf[:n]) != "pong" {
		t.Fatalf("Read() = %q, %v", buf[:n], err)
	}

	if err := CloseStream(s, 0, nil); err != nil {
		t.Errorf("CloseStream() error = %v", err)
	}
	if err := CloseSocket(cli, 0, ptr("done")); err != nil {
		t.Errorf("CloseSocket() error = %v", err)
	}
	if err := CloseSocket(cli, 0, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("second CloseSocket() error = %v, want ErrClosed", err)
	}
}

func TestOpenSocketWithoutRuntime(t *testing.T) {
	if _, err := OpenSocket(nil, Client, &config.Static{}); !errors.Is(err, ErrChannel) {
		t.Errorf("OpenSocket(nil) error = %v, want ErrChannel", err)
	}
}

func TestReadCapacityTooLarge(t *testing.T) {
	tests := []struct {
		name     string
		capacity uint
	}{
		{"above limit", protocol.MaxReadCapacity + 1},
		{"overflows int", ^uint(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// rejected before the stream is touched
			_, _, err := Read(nil, tt.capacity, nil)
			var confErr *protocol.ConfigError
			if !errors.As(err, &confErr) || confErr.Field != "read capacity" {
				t.Errorf("Read(%d) error = %v, want read capacity ConfigError", tt.capacity, err)
			}
		})
	}
}

func TestMillis(t *testing.T) {
	tests := []struct {
		name string
		ms   *uint64
		want time.Duration
	}{
		{"none", nil, 0},
		{"zero expires at once", ptr[uint64](0), time.Nanosecond},
		{"milliseconds", ptr[uint64](250), 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := millis(tt.ms); got != tt.want {
				t.Errorf("millis() = %v, want %v", got, tt.want)
			}
		})
	}
}

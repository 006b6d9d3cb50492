package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/quic-go/quic-go"
)

func TestIsUseOfClosedNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "network closed error",
			err:  net.ErrClosed,
			want: true,
		},
		{
			name: "use of closed network connection error string",
			err:  errors.New("use of closed network connection"),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUseOfClosedNetworkError(tt.err); got != tt.want {
				t.Errorf("IsUseOfClosedNetworkError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFailedToSendCloseNotifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "close notify error",
			err:  errors.New("tls: failed to send closeNotify alert (but connection was closed anyway)"),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFailedToSendCloseNotifyError(tt.err); got != tt.want {
				t.Errorf("IsFailedToSendCloseNotifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsOKNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "EOF error",
			err:  io.EOF,
			want: true,
		},
		{
			name: "network closed error",
			err:  net.ErrClosed,
			want: true,
		},
		{
			name: "close notify error",
			err:  errors.New("tls: failed to send closeNotify alert (but connection was closed anyway)"),
			want: true,
		},
		{
			name: "close after peer stopped sending",
			err:  fmt.Errorf("close called for canceled stream %d", 4),
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOKNetworkError(tt.err); got != tt.want {
				t.Errorf("IsOKNetworkError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHostResponded(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "connection refused",
			err:  syscall.ECONNREFUSED,
			want: true,
		},
		{
			name: "connection reset",
			err:  syscall.ECONNRESET,
			want: true,
		},
		{
			name: "connection aborted",
			err:  syscall.ECONNABORTED,
			want: true,
		},
		{
			name: "other error",
			err:  errors.New("some other error"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHostResponded(tt.err); got != tt.want {
				t.Errorf("IsHostResponded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsApplicationClose(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "remote close with ok code",
			err:  &quic.ApplicationError{Remote: true, ErrorCode: ApplicationOK},
			want: true,
		},
		{
			name: "wrapped local close with ok code",
			err:  fmt.Errorf("connection: %w", &quic.ApplicationError{ErrorCode: ApplicationOK}),
			want: true,
		},
		{
			name: "close with error code",
			err:  &quic.ApplicationError{Remote: true, ErrorCode: 42},
			want: false,
		},
		{
			name: "stream reset with ok code",
			err:  &quic.StreamError{StreamID: 4, ErrorCode: ApplicationOK, Remote: true},
			want: true,
		},
		{
			name: "stream reset with error code",
			err:  &quic.StreamError{StreamID: 4, ErrorCode: 7, Remote: true},
			want: false,
		},
		{
			name: "server closed",
			err:  quic.ErrServerClosed,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsApplicationClose(tt.err); got != tt.want {
				t.Errorf("IsApplicationClose() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "read deadline",
			err:  os.ErrDeadlineExceeded,
			want: true,
		},
		{
			name: "context deadline",
			err:  fmt.Errorf("dial: %w", context.DeadlineExceeded),
			want: true,
		},
		{
			name: "idle timeout",
			err:  &quic.IdleTimeoutError{},
			want: true,
		},
		{
			name: "handshake timeout",
			err:  &quic.HandshakeTimeoutError{},
			want: true,
		},
		{
			name: "cancelled",
			err:  context.Canceled,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}

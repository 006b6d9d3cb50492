package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/quic-go/quic-go"
)

var (
	// UseOfClosedNetworkConnection is a special string some parts of
	// go standard lib are using that is the only way to identify some errors
	UseOfClosedNetworkConnection = "use of closed network connection"
	// FailedToSendCloseNotify is an error message from Go net package
	// indicating that the connection was closed by the server.
	FailedToSendCloseNotify = "tls: failed to send closeNotify alert (but connection was closed anyway)"
	// CanceledStreamClose is returned by quic-go when a send stream the
	// peer already stopped is closed.
	CanceledStreamClose = "close called for canceled stream"
)

// ApplicationOK is the application error code of an orderly close.
const ApplicationOK = 0

// IsUseOfClosedNetworkError returns true if the specified error
// indicates the use of a closed network connection.
func IsUseOfClosedNetworkError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, net.ErrClosed) || strings.Contains(err.Error(), UseOfClosedNetworkConnection)
}

// IsFailedToSendCloseNotifyError returns true if the provided error is the
// "tls: failed to send closeNotify".
func IsFailedToSendCloseNotifyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), FailedToSendCloseNotify)
}

// IsCanceledStreamCloseError returns true if err reports closing a stream
// whose sending was already cancelled.
func IsCanceledStreamCloseError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), CanceledStreamClose)
}

// IsOKNetworkError returns true if the provided error received from a network
// operation is one of those that usually indicate normal connection close.
func IsOKNetworkError(err error) bool {
	// Unwrap and check if the error is wrapped or contains multiple errors.
	unwrappedErr := errors.Unwrap(err)
	if unwrappedErr != nil {
		if multiErr, ok := unwrappedErr.(interface{ Errors() []error }); ok {
			for _, e := range multiErr.Errors() {
				if !IsOKNetworkError(e) {
					return false
				}
			}
			return true
		}
	}

	return errors.Is(err, io.EOF) || IsUseOfClosedNetworkError(err) || IsFailedToSendCloseNotifyError(err) || IsCanceledStreamCloseError(err) || IsApplicationClose(err)
}

// IsApplicationClose reports whether err is a QUIC connection or stream
// close carrying ApplicationOK, whichever side sent it.
func IsApplicationClose(err error) bool {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.ErrorCode == ApplicationOK
	}
	var streamErr *quic.StreamError
	if errors.As(err, &streamErr) {
		return streamErr.ErrorCode == ApplicationOK
	}
	return errors.Is(err, quic.ErrServerClosed)
}

// IsTimeout reports whether err is a deadline or idle expiry.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsHostResponded(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errors.Is(errno, syscall.ECONNREFUSED) || errors.Is(errno, syscall.ECONNRESET) || errors.Is(errno, syscall.ECONNABORTED)
	}
	return false
}

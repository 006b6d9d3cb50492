package handle

import (
	"io"
	"time"

	"github.com/fr13n8/centaurus/protocol"
)

// Conn adapts a Stream to io.ReadWriteCloser.
type Conn struct {
	s *Stream
	// ReadTimeout bounds each Read, zero waits indefinitely.
	ReadTimeout time.Duration
}

var _ io.ReadWriteCloser = (*Conn)(nil)

func NewConn(s *Stream) *Conn {
	return &Conn{s: s}
}

func (c *Conn) Stream() *Stream { return c.s }

func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, buf, err := c.s.Read(len(p), c.ReadTimeout)
	copy(p, buf[:n])
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	if err := c.s.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close closes the stream with protocol.ApplicationOK.
func (c *Conn) Close() error {
	return c.s.Close(protocol.ApplicationOK, "")
}

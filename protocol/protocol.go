package protocol

import "fmt"

const (
	Name = "centaurus"
)

// Constants representing QUIC application error codes.
const (
	ApplicationOK = 0x0
)

// MaxReadCapacity bounds the buffer a single read may ask for.
const MaxReadCapacity = 16 << 20

// Role selects whether a socket listens for or dials connections.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Direction is the kind of a stream.
type Direction uint8

const (
	Bidirectional Direction = iota
	Unidirectional
)

func (d Direction) String() string {
	switch d {
	case Bidirectional:
		return "bi"
	case Unidirectional:
		return "uni"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Origin tells who opened a stream. A unidirectional stream opened locally
// is send-only, one opened by the peer is receive-only.
type Origin uint8

const (
	OriginLocal Origin = iota
	OriginPeer
)

func (o Origin) String() string {
	if o == OriginPeer {
		return "peer"
	}
	return "local"
}

// CanSend reports whether a stream of this kind has a send half.
func CanSend(d Direction, o Origin) bool {
	return d == Bidirectional || o == OriginLocal
}

// CanRecv reports whether a stream of this kind has a receive half.
func CanRecv(d Direction, o Origin) bool {
	return d == Bidirectional || o == OriginPeer
}

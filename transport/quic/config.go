package quic

import (
	"github.com/fr13n8/centaurus/config"
	"github.com/quic-go/quic-go"
)

// NextProto is the ALPN identifier negotiated by both roles.
const NextProto = "centaurus"

// NewConfig converts runtime options into a quic-go configuration.
func NewConfig(o config.Options) *quic.Config {
	o.ApplyDefaults()

	return &quic.Config{
		HandshakeIdleTimeout:       o.HandshakeIdleTimeout,
		MaxIdleTimeout:             o.MaxIdleTimeout,
		KeepAlivePeriod:            o.KeepAlivePeriod,
		MaxIncomingStreams:         o.MaxIncomingStreams,
		MaxIncomingUniStreams:      o.MaxIncomingUniStreams,
		MaxConnectionReceiveWindow: o.MaxConnectionReceiveWindow,
		MaxStreamReceiveWindow:     o.MaxStreamReceiveWindow,
	}
}

package config

import "time"

// Options tunes the QUIC endpoints opened by a runtime.
type Options struct {
	HandshakeIdleTimeout       time.Duration `toml:"handshake_idle_timeout"`
	MaxIdleTimeout             time.Duration `toml:"max_idle_timeout"`
	KeepAlivePeriod            time.Duration `toml:"keep_alive_period"`
	MaxIncomingStreams         int64         `toml:"max_incoming_streams"`
	MaxIncomingUniStreams      int64         `toml:"max_incoming_uni_streams"`
	MaxStreamReceiveWindow     uint64        `toml:"max_stream_receive_window"`
	MaxConnectionReceiveWindow uint64        `toml:"max_connection_receive_window"`
}

// ApplyDefaults fills unset values.
func (o *Options) ApplyDefaults() {
	if o.HandshakeIdleTimeout <= 0 {
		o.HandshakeIdleTimeout = 5 * time.Second
	}
	if o.MaxIdleTimeout <= 0 {
		o.MaxIdleTimeout = 30 * time.Second
	}
	if o.KeepAlivePeriod <= 0 {
		o.KeepAlivePeriod = 5 * time.Second
	}
	if o.MaxIncomingStreams == 0 {
		o.MaxIncomingStreams = 1024
	}
	if o.MaxIncomingUniStreams == 0 {
		o.MaxIncomingUniStreams = 1024
	}
	if o.MaxStreamReceiveWindow == 0 {
		o.MaxStreamReceiveWindow = 6 * (1 << 20) // 6 MB
	}
	if o.MaxConnectionReceiveWindow == 0 {
		o.MaxConnectionReceiveWindow = 30 * (1 << 20) // 30 MB
	}
}

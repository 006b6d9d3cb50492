package config

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ShutdownTimeout = 2 * time.Second
	CentaurusPath   = "/etc/centaurus"

	// NotifyWorkers bounds the goroutines delivering peer stream notifications.
	NotifyWorkers = 16
)

// ErrMissing is returned when a configuration value was never supplied.
var ErrMissing = errors.New("value not configured")

// Socket is what a caller hands to the runtime to open a socket. Every
// getter may fail because the backing data (files, external state) can be
// absent or malformed. Implementations must be safe for concurrent use and
// free of side effects.
type Socket interface {
	// Address is the local address to bind.
	Address() (*net.UDPAddr, error)
	// CertificateChain is the server certificate chain; for clients it is
	// used as additional trust anchors.
	CertificateChain() ([]*x509.Certificate, error)
	// PrivateKey is only required for the server role.
	PrivateKey() (crypto.PrivateKey, error)
	ServerName() (string, error)
	// Owner identifies who is told about peer-initiated streams.
	Owner() string
}

// Static is an in-memory Socket.
type Static struct {
	Addr    string
	Name    string
	Chain   []*x509.Certificate
	Key     crypto.PrivateKey
	OwnerID string
}

var _ Socket = (*Static)(nil)

func (s *Static) Address() (*net.UDPAddr, error) {
	if s.Addr == "" {
		return nil, fmt.Errorf("address: %w", ErrMissing)
	}
	addr, err := net.ResolveUDPAddr("udp", s.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", s.Addr, err)
	}
	return addr, nil
}

func (s *Static) CertificateChain() ([]*x509.Certificate, error) {
	if len(s.Chain) == 0 {
		return nil, fmt.Errorf("certificate chain: %w", ErrMissing)
	}
	return s.Chain, nil
}

func (s *Static) PrivateKey() (crypto.PrivateKey, error) {
	if s.Key == nil {
		return nil, fmt.Errorf("private key: %w", ErrMissing)
	}
	return s.Key, nil
}

func (s *Static) ServerName() (string, error) {
	if s.Name == "" {
		return "", fmt.Errorf("server name: %w", ErrMissing)
	}
	return s.Name, nil
}

func (s *Static) Owner() string {
	return s.OwnerID
}

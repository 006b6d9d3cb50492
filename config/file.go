package config

import (
	"crypto"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
	"github.com/fr13n8/centaurus/utils/certs"
)

// File is a Socket backed by certificate and key files on disk. The files
// are read on every call so replaced certificates are picked up by the next
// socket that is opened.
type File struct {
	Addr     string `toml:"address"`
	Name     string `toml:"server_name"`
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`
	OwnerID  string `toml:"owner"`
}

var _ Socket = (*File)(nil)

// Runtime groups the settings of the command line tool.
type Runtime struct {
	Socket      File    `toml:"socket"`
	Options     Options `toml:"quic"`
	MetricsAddr string  `toml:"metrics_address"`
	// Forward is a TCP address peer streams are piped to instead of being
	// echoed back.
	Forward     string  `toml:"forward_address"`
}

// LoadFile decodes a TOML configuration.
func LoadFile(path string) (*Runtime, error) {
	var conf Runtime
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return nil, fmt.Errorf("failed to decode config %q: %w", path, err)
	}
	conf.Options.ApplyDefaults()
	return &conf, nil
}

func (f *File) Address() (*net.UDPAddr, error) {
	if f.Addr == "" {
		return nil, fmt.Errorf("address: %w", ErrMissing)
	}
	addr, err := net.ResolveUDPAddr("udp", f.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", f.Addr, err)
	}
	return addr, nil
}

func (f *File) CertificateChain() ([]*x509.Certificate, error) {
	if f.CertFile == "" {
		return nil, fmt.Errorf("certificate chain: %w", ErrMissing)
	}
	return certs.LoadChain(f.CertFile)
}

func (f *File) PrivateKey() (crypto.PrivateKey, error) {
	if f.KeyFile == "" {
		return nil, fmt.Errorf("private key: %w", ErrMissing)
	}
	return certs.LoadKey(f.KeyFile)
}

func (f *File) ServerName() (string, error) {
	if f.Name == "" {
		return "", fmt.Errorf("server name: %w", ErrMissing)
	}
	return f.Name, nil
}

func (f *File) Owner() string {
	return f.OwnerID
}

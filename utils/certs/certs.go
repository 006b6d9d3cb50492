package certs

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CertManager defines the interface for managing TLS configuration
type CertManager interface {
	GetTLSConfig() (*tls.Config, error)
}

// Bundle is a generated certificate together with its private key.
type Bundle struct {
	DER  []byte
	Leaf *x509.Certificate
	Key  *rsa.PrivateKey
}

// Chain returns the bundle as a one-element certificate chain.
func (b *Bundle) Chain() []*x509.Certificate {
	return []*x509.Certificate{b.Leaf}
}

// TLSCertificate converts the bundle into a tls.Certificate.
func (b *Bundle) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{b.DER},
		PrivateKey:  b.Key,
		Leaf:        b.Leaf,
	}
}

// Generate creates a self-signed certificate for host valid for the
// loopback addresses as well.
func Generate(host string) (*Bundle, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour) // 1-year validity

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, ip := range []string{"127.0.0.1", "::1"} {
		ips = append(ips, net.ParseIP(ip))
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: host,
		},
		DNSNames:    []string{host},
		IPAddresses: ips,
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &Bundle{DER: der, Leaf: leaf, Key: priv}, nil
}

// Fingerprint returns the SHA-256 hash of a DER encoded certificate.
func Fingerprint(der []byte) []byte {
	sum := sha256.Sum256(der)
	return sum[:]
}

// SelfSignedCertManager handles self-signed certificate generation
type SelfSignedCertManager struct {
	Host     string
	CertDir  string
	CertPath string
	KeyPath  string
	certDER  []byte // Store the generated cert in DER format
}

// NewSelfSignedCertManager creates a new manager for self-signed certificates
func NewSelfSignedCertManager(host, certDir string) *SelfSignedCertManager {
	certFileName := fmt.Sprintf("%s_cert.pem", host)
	keyFileName := fmt.Sprintf("%s_key.pem", host)

	return &SelfSignedCertManager{
		Host:     host,
		CertDir:  certDir,
		CertPath: filepath.Join(certDir, certFileName),
		KeyPath:  filepath.Join(certDir, keyFileName),
	}
}

func (cm *SelfSignedCertManager) GetCertHash() ([]byte, error) {
	if cm.certDER == nil {
		if !certExists(cm.CertPath, cm.KeyPath) {
			if _, err := cm.generateSelfSignedCert(); err != nil {
				return nil, err
			}
		} else {
			chain, err := LoadChain(cm.CertPath)
			if err != nil {
				return nil, err
			}
			cm.certDER = chain[0].Raw
		}
	}

	return Fingerprint(cm.certDER), nil
}

// GetTLSConfig generates or loads a self-signed certificate and returns a tls.Config
func (cm *SelfSignedCertManager) GetTLSConfig() (*tls.Config, error) {
	cert, err := cm.GetCertificate()
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// GetCertificate loads or generates a self-signed certificate
func (cm *SelfSignedCertManager) GetCertificate() (*tls.Certificate, error) {
	if certExists(cm.CertPath, cm.KeyPath) {
		return loadCertificate(cm.CertPath, cm.KeyPath)
	}
	return cm.generateSelfSignedCert()
}

// generateSelfSignedCert generates and saves a self-signed certificate
func (cm *SelfSignedCertManager) generateSelfSignedCert() (*tls.Certificate, error) {
	b, err := Generate(cm.Host)
	if err != nil {
		return nil, err
	}
	cm.certDER = b.DER

	if err := os.MkdirAll(cm.CertDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cert directory: %w", err)
	}

	if err := writePEM(cm.CertPath, "CERTIFICATE", b.DER, 0644); err != nil {
		return nil, err
	}
	if err := writePEM(cm.KeyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(b.Key), 0600); err != nil {
		return nil, err
	}

	return loadCertificate(cm.CertPath, cm.KeyPath)
}

// LoadChain reads a certificate chain from path. Files with a ".der"
// extension hold a single DER certificate, anything else is parsed as PEM.
func LoadChain(path string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("certificate file not found: %w", err)
	}

	if isDER(path) {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid der certificate: %w", err)
		}
		return []*x509.Certificate{cert}, nil
	}

	var chain []*x509.Certificate
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid pem certificate: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("failed to decode PEM block containing certificate")
	}

	return chain, nil
}

// LoadKey reads a private key from path, PEM or DER by extension.
func LoadKey(path string) (crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("private key file not found: %w", err)
	}

	if !isDER(path) {
		block, _ := pem.Decode(raw)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block containing private key")
		}
		raw = block.Bytes
	}

	return parseKey(raw)
}

func parseKey(der []byte) (crypto.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		switch key := key.(type) {
		case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("unsupported private key type %T", key)
		}
	}
	if key, err := x509.ParseECPrivateKey(der); err == nil {
		return key, nil
	}

	return nil, errors.New("invalid private key")
}

func isDER(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".der")
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	return pem.Encode(out, &pem.Block{Type: blockType, Bytes: der})
}

// Helper functions
func certExists(certPath, keyPath string) bool {
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return false
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return false
	}
	return true
}

func loadCertificate(certPath, keyPath string) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

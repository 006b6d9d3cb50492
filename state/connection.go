package state

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/transport"
	"github.com/rs/zerolog/log"
)

// ConnectionState is one of Configuring, Listening, Connecting,
// Established or Closed.
type ConnectionState interface {
	connectionState()
	String() string
}

// Configuring holds what is needed to bind, nothing is bound yet.
type Configuring struct {
	Transport transport.Transport
	Config    config.Socket
}

// Listening is a bound server endpoint. Incoming is nil while an accept
// holds it.
type Listening struct {
	Endpoint transport.Endpoint
	Incoming transport.Listener
}

// Connecting is a bound client endpoint that has not completed a handshake.
type Connecting struct {
	Endpoint transport.Endpoint
	TLS      *tls.Config
}

// Established is a live connection. Peer streams are accepted from Conn.
type Established struct {
	Endpoint transport.Endpoint
	Conn     transport.Conn
}

// Closed is terminal. Err is nil after an orderly close.
type Closed struct {
	Err error
}

func (Configuring) connectionState() {}
func (Listening) connectionState()   {}
func (Connecting) connectionState()  {}
func (Established) connectionState() {}
func (Closed) connectionState()      {}

func (Configuring) String() string { return "configuring" }
func (Listening) String() string   { return "listening" }
func (Connecting) String() string  { return "connecting" }
func (Established) String() string { return "established" }
func (Closed) String() string      { return "closed" }

// Socket serializes access to the state of one connection.
type Socket struct {
	mu    sync.Mutex
	role  protocol.Role
	state ConnectionState
}

// New returns a socket in the Configuring state.
func New(role protocol.Role, tr transport.Transport, conf config.Socket) *Socket {
	return &Socket{
		role:  role,
		state: Configuring{Transport: tr, Config: conf},
	}
}

func (s *Socket) Role() protocol.Role {
	return s.role
}

// State returns a snapshot of the current state.
func (s *Socket) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// LocalAddr is the bound address, nil before Bind and after Close.
func (s *Socket) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Listening:
		return cur.Endpoint.LocalAddr()
	case Connecting:
		return cur.Endpoint.LocalAddr()
	case Established:
		return cur.Conn.LocalAddr()
	}
	return nil
}

// Bind binds the configured address. A server also installs its
// certificate and starts listening; a client prepares its trust roots.
func (s *Socket) Bind() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.state.(Configuring)
	if !ok {
		return fmt.Errorf("bind in state %s: %w", s.state, protocol.ErrState)
	}

	addr, err := cur.Config.Address()
	if err != nil {
		return &protocol.ConfigError{Field: "address", Err: err}
	}

	var tlsConf *tls.Config
	switch s.role {
	case protocol.RoleServer:
		tlsConf, err = serverTLS(cur.Config)
	case protocol.RoleClient:
		tlsConf, err = clientTLS(cur.Config)
	default:
		err = &protocol.ConfigError{Field: "role", Err: fmt.Errorf("unknown role %s", s.role)}
	}
	if err != nil {
		return err
	}

	endpoint, err := cur.Transport.Bind(addr)
	if err != nil {
		return &protocol.BindError{Addr: addr.String(), Err: err}
	}

	if s.role == protocol.RoleClient {
		s.state = Connecting{Endpoint: endpoint, TLS: tlsConf}
		log.Trace().Str("addr", endpoint.LocalAddr().String()).Msg("socket connecting")
		return nil
	}

	incoming, err := endpoint.Listen(tlsConf)
	if err != nil {
		endpoint.Close()
		return &protocol.BindError{Addr: addr.String(), Err: err}
	}
	s.state = Listening{Endpoint: endpoint, Incoming: incoming}
	log.Trace().Str("addr", endpoint.LocalAddr().String()).Msg("socket listening")
	return nil
}

// Establish records a handshaked connection. From Connecting the socket
// itself becomes Established. From Listening the socket keeps listening and
// a new Established socket sharing the endpoint is returned. Any other
// state is a misuse and fails with ErrState.
func (s *Socket) Establish(conn transport.Conn) (*Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Connecting:
		s.state = Established{Endpoint: cur.Endpoint, Conn: conn}
		log.Trace().Str("remote", conn.RemoteAddr().String()).Msg("socket established")
		return s, nil
	case Listening:
		cur.Endpoint.Retain()
		log.Trace().Str("remote", conn.RemoteAddr().String()).Msg("accepted connection established")
		return &Socket{
			role:  s.role,
			state: Established{Endpoint: cur.Endpoint, Conn: conn},
		}, nil
	default:
		log.Error().Str("state", s.state.String()).Msg("establish called in an invalid state")
		return nil, fmt.Errorf("establish in state %s: %w", s.state, protocol.ErrState)
	}
}

// TakeIncoming removes the listener so that at most one accept is in
// flight. It must be handed back with RestoreIncoming.
func (s *Socket) TakeIncoming() (transport.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Listening:
		if cur.Incoming == nil {
			return nil, fmt.Errorf("accept already in progress: %w", protocol.ErrState)
		}
		l := cur.Incoming
		cur.Incoming = nil
		s.state = cur
		return l, nil
	case Closed:
		return nil, protocol.ErrClosed
	default:
		return nil, fmt.Errorf("accept in state %s: %w", s.state, protocol.ErrState)
	}
}

// RestoreIncoming hands back a listener taken by TakeIncoming. If the
// socket was closed meanwhile the listener is closed instead.
func (s *Socket) RestoreIncoming(l transport.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.state.(Listening)
	if !ok || cur.Incoming != nil {
		l.Close()
		if _, closed := s.state.(Closed); closed {
			return protocol.ErrClosed
		}
		return fmt.Errorf("restore listener in state %s: %w", s.state, protocol.ErrState)
	}
	cur.Incoming = l
	s.state = cur
	return nil
}

// Dialer returns what a connect needs. Only valid while Connecting.
func (s *Socket) Dialer() (transport.Endpoint, *tls.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Connecting:
		return cur.Endpoint, cur.TLS, nil
	case Closed:
		return nil, nil, protocol.ErrClosed
	default:
		return nil, nil, fmt.Errorf("connect in state %s: %w", s.state, protocol.ErrState)
	}
}

// Conn returns the live connection. Only valid while Established.
func (s *Socket) Conn() (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cur := s.state.(type) {
	case Established:
		return cur.Conn, nil
	case Closed:
		return nil, protocol.ErrClosed
	default:
		return nil, fmt.Errorf("connection not established (%s): %w", s.state, protocol.ErrState)
	}
}

// Close moves to Closed from any state, releasing what the state held.
// An established connection is closed with code and reason. Closing twice
// fails with ErrClosed.
func (s *Socket) Close(code uint64, reason string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	switch cur := s.state.(type) {
	case Closed:
		return protocol.ErrClosed
	case Configuring:
	case Listening:
		if cur.Incoming != nil {
			errs = append(errs, cur.Incoming.Close())
		}
		errs = append(errs, cur.Endpoint.Close())
	case Connecting:
		errs = append(errs, cur.Endpoint.Close())
	case Established:
		errs = append(errs, cur.Conn.CloseWithError(code, reason))
		errs = append(errs, cur.Endpoint.Close())
	}

	log.Trace().Str("from", s.state.String()).Err(cause).Msg("socket closed")
	s.state = Closed{Err: cause}
	return errors.Join(errs...)
}

// matchLeaf checks that key belongs to the leaf certificate.
func matchLeaf(key crypto.PrivateKey, leaf *x509.Certificate) error {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return fmt.Errorf("unsupported key type %T", key)
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(leaf.PublicKey) {
		return errors.New("key does not match the leaf certificate")
	}
	return nil
}

func serverTLS(conf config.Socket) (*tls.Config, error) {
	chain, err := conf.CertificateChain()
	if err != nil {
		return nil, &protocol.ConfigError{Field: "certificate chain", Err: err}
	}
	if len(chain) == 0 {
		return nil, &protocol.ConfigError{Field: "certificate chain", Err: config.ErrMissing}
	}
	key, err := conf.PrivateKey()
	if err != nil {
		return nil, &protocol.ConfigError{Field: "private key", Err: err}
	}
	if err := matchLeaf(key, chain[0]); err != nil {
		return nil, &protocol.ConfigError{Field: "private key", Err: err}
	}

	cert := tls.Certificate{PrivateKey: key, Leaf: chain[0]}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}

	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}
	if name, err := conf.ServerName(); err == nil {
		tlsConf.ServerName = name
	} else if !errors.Is(err, config.ErrMissing) {
		return nil, &protocol.ConfigError{Field: "server name", Err: err}
	}
	return tlsConf, nil
}

func clientTLS(conf config.Socket) (*tls.Config, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}

	chain, err := conf.CertificateChain()
	switch {
	case err == nil:
		for _, c := range chain {
			roots.AddCert(c)
		}
	case !errors.Is(err, config.ErrMissing):
		return nil, &protocol.ConfigError{Field: "certificate chain", Err: err}
	}

	tlsConf := &tls.Config{
		RootCAs:    roots,
		MinVersion: tls.VersionTLS13,
	}
	name, err := conf.ServerName()
	switch {
	case err == nil:
		tlsConf.ServerName = name
	case !errors.Is(err, config.ErrMissing):
		return nil, &protocol.ConfigError{Field: "server name", Err: err}
	}
	return tlsConf, nil
}

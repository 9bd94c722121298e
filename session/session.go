// Package session implements the BIO-shuttle engine: a bidirectional,
// encrypted byte stream built on top of crypto/tls and a plaintext
// byte-oriented transport (Source/Sink). It drives the TLS state machine
// through an in-process memConn instead of handing crypto/tls the real
// transport, shuttling ciphertext between memConn and the Source/Sink
// around every handshake/Put/Get call.
package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"sync"

	"tlsshuttle/sslerr"
	"tlsshuttle/tlscontext"
	"tlsshuttle/tlscred"
)

// Role identifies which side of the handshake a Session plays.
type Role = tlscred.Role

const (
	RoleClient = tlscred.RoleClient
	RoleServer = tlscred.RoleServer
)

// Options are the per-session knobs not carried by Credentials.
type Options struct {
	// ServerName is sent as SNI (client role only).
	ServerName string
	// WaitForEOFOnShutdown, if true, makes Shutdown drain and discard
	// application data until EOF after sending close_notify.
	WaitForEOFOnShutdown bool
}

// Session is a single TLS connection driven over a Source/Sink transport.
//
// Invariants: at most one in-flight Source.Get and at most one in-flight
// Sink.Put at a time (enforced by readMu/writeMu); once latchedErr is set,
// every subsequent operation fails with it; once shutdown is true, no new
// writes are accepted.
type Session struct {
	role   Role
	creds  *tlscred.Credentials
	opts   Options
	logger Logger

	readMu  sync.Mutex
	writeMu sync.Mutex

	// bufMu guards inBuf/outBuf/eof directly. readMu/writeMu serialize
	// whole API operations (matching the original's per-direction
	// semaphores), but crypto/tls can trigger an internal Read while a
	// Write is in flight (absorbing a post-handshake message) and vice
	// versa, so the buffers themselves need their own lock independent of
	// which direction's semaphore the calling operation is holding.
	bufMu sync.Mutex

	tlsConn *tls.Conn
	tlsCfg  *tls.Config
	mc      *memConn

	// activeCtx is the context for the Source/Sink call currently being
	// driven by memConn's Read/Write. Session is single-threaded
	// cooperative per direction (see readMu/writeMu), so one field per
	// Session is enough — there is never more than one call in flight per
	// direction needing it, and Handshake takes both locks before running.
	activeCtx context.Context

	source Source
	sink   Sink

	// inBuf/outBuf are the Go-idiomatic in_bio/out_bio: inBuf holds
	// ciphertext pulled from source not yet consumed by crypto/tls; outBuf
	// holds ciphertext crypto/tls wrote not yet pushed to sink. Plain byte
	// slices collapse the original's distinct "pending input buffer" into
	// the BIO itself, since a Go slice has no fixed capacity to overflow.
	inBuf  []byte
	outBuf []byte

	latchedErr error
	eof        bool
	shutdown   bool
	closeOnce  sync.Once

	lastPeerCert *x509.Certificate
}

// New constructs a Session in role, backed by source/sink, authenticated
// per creds, and derives its TLS configuration via tlscontext.New. The
// returned Session has not yet performed a handshake; the first Put/Get/
// Handshake call does that.
func New(role Role, creds *tlscred.Credentials, source Source, sink Sink, opts Options, logger Logger) (*Session, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	sess := &Session{
		role:   role,
		creds:  creds,
		opts:   opts,
		logger: logger,
		source: source,
		sink:   sink,
	}
	sess.mc = &memConn{sess: sess}

	cfg, err := tlscontext.New(role, creds, tlscontext.Options{ServerName: opts.ServerName}, sess)
	if err != nil {
		return nil, err
	}
	sess.tlsCfg = cfg

	switch role {
	case RoleClient:
		sess.tlsConn = tls.Client(sess.mc, cfg)
	case RoleServer:
		sess.tlsConn = tls.Server(sess.mc, cfg)
	default:
		return nil, sslerr.New(sslerr.CodeInvalidSession, "unknown role %v", role)
	}
	return sess, nil
}

// SetLastPeerCertificate implements tlscontext.PeerCertSink. It is called
// from the VerifyPeerCertificate closure tlscontext.New installs for this
// session, resolving the shared, racy last-peer-cert slot the original
// design put on Credentials (DESIGN NOTES §9) by keeping it per-Session
// instead.
func (s *Session) SetLastPeerCertificate(cert *x509.Certificate) {
	s.lastPeerCert = cert
}

func (s *Session) latch(err error) error {
	if s.latchedErr == nil {
		s.latchedErr = err
		s.logger.Log(LevelInfo, "fatal error role=%v: %v", s.role, err)
	}
	return s.latchedErr
}

func (s *Session) connected() bool {
	return s.tlsConn.ConnectionState().HandshakeComplete
}

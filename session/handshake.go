package session

import (
	"context"
	"crypto/tls"
	"errors"
	"io"

	"tlsshuttle/sslerr"
	"tlsshuttle/tlscred"
)

// Handshake performs the TLS handshake if it has not completed yet. It is
// idempotent: calling it again after a successful handshake is a no-op.
//
// Translated from ossl.cc's handshake()/do_handshake(): acquire the read
// semaphore, then the write semaphore, always in that order (so a
// concurrent Get/Put pair taking the locks in the opposite order can never
// deadlock against it), then run doHandshake.
func (s *Session) Handshake(ctx context.Context) error {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.doHandshake(ctx)
}

func (s *Session) doHandshake(ctx context.Context) error {
	if s.latchedErr != nil {
		return s.latchedErr
	}
	if s.connected() {
		return nil
	}
	if s.eof {
		return s.latch(sslerr.ErrNotConnected)
	}

	if s.creds.NeedLoadSystemTrust() {
		pool, err := s.creds.BuildTrustPoolWithSystem()
		if err != nil {
			return s.latch(sslerr.Wrap(sslerr.CodeHandshakeFailure, err, "load system trust"))
		}
		if s.role == tlscred.RoleServer {
			s.tlsCfg.ClientCAs = pool
		} else {
			s.tlsCfg.RootCAs = pool
		}
		s.creds.ConsumeSystemTrust()
	}

	s.activeCtx = ctx
	err := s.tlsConn.HandshakeContext(ctx)
	s.activeCtx = nil

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		// Send whatever alert crypto/tls queued while failing the handshake,
		// so the peer sees the failure instead of waiting for a reply.
		_, _ = s.maybePerformPushWithWait(ctx)
	}

	if err != nil {
		if certErr, ok := certVerificationError(err); ok && s.lastPeerCert == nil && len(certErr.UnverifiedCertificates) > 0 {
			// crypto/tls only runs VerifyPeerCertificate (and hence this
			// session's capture closure) once its own chain verification
			// against the trust store has already succeeded. On a genuine
			// verification failure the rejected certificate never reaches
			// that closure at all; it is carried on the error itself
			// instead, which is the only place verify() can still recover
			// it from below.
			s.lastPeerCert = certErr.UnverifiedCertificates[0]
		} else if !isVerificationError(err) && s.role == tlscred.RoleServer && s.creds.ClientAuth() == tlscred.ClientAuthRequire &&
			len(s.tlsConn.ConnectionState().PeerCertificates) == 0 {
			// A client that presented no certificate at all surfaces here
			// as a plain error, distinct from a client that did present
			// one but failed verification (a *tls.CertificateVerificationError,
			// handled by the isVerificationError branch below instead).
			// Conflating the two would misreport an untrusted or expired
			// client certificate as "no certificate presented by peer".
			return s.latch(&sslerr.VerificationError{Reason: "no certificate presented by peer"})
		}
	}

	switch {
	case err == nil:
		if s.role == tlscred.RoleClient || (s.role == tlscred.RoleServer && s.creds.ClientAuth() != tlscred.ClientAuthNone) {
			if verr := s.verify(nil); verr != nil {
				return s.latch(verr)
			}
		}
		if _, ferr := s.maybePerformPushWithWait(ctx); ferr != nil {
			return ferr
		}
		s.logger.Log(LevelInfo, "handshake completed role=%v", s.role)
		return nil

	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		return nil

	case isVerificationError(err):
		return s.latch(s.verify(err))

	default:
		var sessErr *sslerr.Error
		if errors.As(err, &sessErr) {
			return s.latch(sessErr)
		}
		return s.latch(sslerr.Wrap(sslerr.CodeHandshakeFailure, err, "handshake failed"))
	}
}

func isVerificationError(err error) bool {
	_, ok := certVerificationError(err)
	return ok
}

func certVerificationError(err error) (*tls.CertificateVerificationError, bool) {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return certErr, true
	}
	return nil, false
}

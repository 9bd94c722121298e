// Package tlscontext builds a per-session *tls.Config from a tlscred.
// Credentials value — the Go analogue of constructing an SSL_CTX from a
// certificate_credentials object.
package tlscontext

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"

	"tlsshuttle/tlscred"
)

// PeerCertSink receives the most recently observed peer certificate during
// verification. tlscontext.New installs a closure over one of these per
// session so the last-peer-cert slot lives on the session rather than on
// the shared Credentials (see DESIGN.md, "Shared last-peer-cert slot").
type PeerCertSink interface {
	SetLastPeerCertificate(cert *x509.Certificate)
}

// Options are the non-credential knobs needed to build a context.
type Options struct {
	// ServerName is sent as SNI on client configs. Ignored for servers.
	ServerName string
}

// New builds a *tls.Config for role using creds, installing peerSink's
// SetLastPeerCertificate as the VerifyPeerCertificate callback so the
// owning session captures the peer certificate without a shared,
// racy slot on Credentials.
func New(role tlscred.Role, creds *tlscred.Credentials, opts Options, peerSink PeerCertSink) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}

	switch role {
	case tlscred.RoleServer:
		if creds.Identity() == nil {
			return nil, errors.New("tlscontext: cannot start session without cert/key pair for server")
		}
		cfg.Certificates = []tls.Certificate{*creds.Identity()}
		switch creds.ClientAuth() {
		case tlscred.ClientAuthNone:
			cfg.ClientAuth = tls.NoClientCert
		case tlscred.ClientAuthRequest:
			cfg.ClientAuth = tls.VerifyClientCertIfGiven
		case tlscred.ClientAuthRequire:
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		default:
			return nil, fmt.Errorf("tlscontext: unknown client-auth mode %v", creds.ClientAuth())
		}
		cfg.ClientCAs = creds.TrustPool()

	case tlscred.RoleClient:
		if creds.Identity() != nil {
			cfg.Certificates = []tls.Certificate{*creds.Identity()}
		}
		cfg.RootCAs = creds.TrustPool()
		cfg.ServerName = opts.ServerName
		// crypto/tls exposes renegotiation control only on the client
		// side; Go's server never initiates and rejects a client's
		// renegotiation request, so there is no server-side knob to set
		// here. See DESIGN.md Open Question 2.
		cfg.Renegotiation = tls.RenegotiateFreelyAsClient

	default:
		return nil, fmt.Errorf("tlscontext: unknown role %v", role)
	}

	if priority := creds.Priority(); priority != "" {
		suites, err := parsePriority(priority)
		if err != nil {
			return nil, fmt.Errorf("tlscontext: priority string rejected: %w", err)
		}
		cfg.CipherSuites = suites
	}

	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if len(verifiedChains) > 0 && len(verifiedChains[0]) > 0 {
			peerSink.SetLastPeerCertificate(verifiedChains[0][0])
		} else if len(rawCerts) > 0 {
			if cert, err := x509.ParseCertificate(rawCerts[0]); err == nil {
				peerSink.SetLastPeerCertificate(cert)
			}
		}
		// Purely observational, per spec: the library's own verification
		// result is never overridden here.
		return nil
	}

	return cfg, nil
}

// cipherSuitesByName maps the subset of named priority tokens this factory
// understands onto crypto/tls cipher suite IDs. crypto/tls has no general
// OpenSSL-style priority-string parser, so only an explicit name table is
// supported; anything else is rejected (scenario S4).
var cipherSuitesByName = func() map[string]uint16 {
	names := map[string]uint16{}
	for _, suite := range tls.CipherSuites() {
		names[suite.Name] = suite.ID
	}
	return names
}()

func parsePriority(priority string) ([]uint16, error) {
	var suites []uint16
	for _, name := range splitPriority(priority) {
		id, ok := cipherSuitesByName[name]
		if !ok {
			return nil, fmt.Errorf("unknown cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	if len(suites) == 0 {
		return nil, errors.New("empty priority string")
	}
	return suites, nil
}

func splitPriority(priority string) []string {
	var names []string
	start := 0
	for i := 0; i <= len(priority); i++ {
		if i == len(priority) || priority[i] == ':' {
			if i > start {
				names = append(names, priority[start:i])
			}
			start = i + 1
		}
	}
	return names
}

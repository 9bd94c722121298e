// Package tlscred implements the credentials model backing a TLS session:
// a trust store, an optional identity (certificate/key pair), a client-auth
// policy, an optional cipher priority string, and an optional
// distinguished-name verification callback.
//
// A Credentials value is built once through its Set* methods, then handed
// to tlscontext.New to derive a *tls.Config per session. After a session has
// been created from it, a Credentials value should be treated as read-only;
// nothing in this package prevents further mutation, but concurrent Set*
// calls racing a live session are the caller's problem, same as the
// teacher's config objects.
package tlscred

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"software.sslmate.com/src/go-pkcs12"
)

// Role identifies which side of a session a Credentials value configures.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// ClientAuthMode mirrors the three-way client-certificate policy.
type ClientAuthMode int

const (
	ClientAuthNone ClientAuthMode = iota
	ClientAuthRequest
	ClientAuthRequire
)

// BlobFormat selects how SetTrust/SetCRL/SetKey/SetPKCS12 interpret input
// bytes.
type BlobFormat int

const (
	FormatPEM BlobFormat = iota
	FormatDER
)

// DNCallback is invoked once per successfully verified handshake with the
// peer's formatted subject and issuer distinguished names.
type DNCallback func(role Role, subject, issuer string)

// Credentials holds everything needed to build a per-session *tls.Config:
// a trust store, an optional identity pair, a client-auth policy, an
// optional cipher priority string, and an optional DN callback.
type Credentials struct {
	trustPool *x509.CertPool
	trustCerts []*x509.Certificate
	trustCRLs []*x509.RevocationList

	identity     *tls.Certificate
	clientAuth   ClientAuthMode
	priority     string
	dnCallback   DNCallback
	loadSysTrust bool
	dhParams     DHParams
}

// New returns an empty Credentials with an initialized, empty trust store.
func New() *Credentials {
	return &Credentials{
		trustPool: x509.NewCertPool(),
	}
}

// SetTrust parses one or more trusted certificates from blob and installs
// each into the trust store. PEM input may contain multiple CERTIFICATE
// blocks; DER input is a single certificate. Fails if parsing yields zero
// certificates.
func (c *Credentials) SetTrust(blob []byte, format BlobFormat) error {
	certs, err := parseCertificates(blob, format)
	if err != nil {
		return fmt.Errorf("tlscred: set trust: %w", err)
	}
	if len(certs) == 0 {
		return errors.New("tlscred: set trust: no certificates found")
	}
	for _, cert := range certs {
		c.trustPool.AddCert(cert)
		c.trustCerts = append(c.trustCerts, cert)
	}
	return nil
}

// SetCRL parses one or more certificate revocation lists from blob.
func (c *Credentials) SetCRL(blob []byte, format BlobFormat) error {
	crls, err := parseRevocationLists(blob, format)
	if err != nil {
		return fmt.Errorf("tlscred: set crl: %w", err)
	}
	if len(crls) == 0 {
		return errors.New("tlscred: set crl: no revocation lists found")
	}
	c.trustCRLs = append(c.trustCRLs, crls...)
	return nil
}

// SetKey parses certBlob and keyBlob, verifies the public key in the
// certificate matches the private key, and atomically replaces the
// identity pair.
func (c *Credentials) SetKey(certBlob, keyBlob []byte, format BlobFormat) error {
	var certPEM, keyPEM []byte
	if format == FormatPEM {
		certPEM, keyPEM = certBlob, keyBlob
	} else {
		certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certBlob})
		keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBlob})
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("tlscred: set key: %w", err)
	}
	if err := verifyKeyPairing(cert); err != nil {
		return fmt.Errorf("tlscred: set key: %w", err)
	}
	c.identity = &cert
	return nil
}

// SetPKCS12 parses a PKCS#12 archive, extracts the identity key/cert pair
// and any chain certificates, verifies pairing, and pushes the chain
// certificates into the trust store.
func (c *Credentials) SetPKCS12(blob []byte, password string) error {
	key, cert, chain, err := pkcs12.DecodeChain(blob, password)
	if err != nil {
		return fmt.Errorf("tlscred: set pkcs12: %w", err)
	}
	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}
	for _, chainCert := range chain {
		tlsCert.Certificate = append(tlsCert.Certificate, chainCert.Raw)
	}
	if err := verifyKeyPairing(tlsCert); err != nil {
		return fmt.Errorf("tlscred: set pkcs12: %w", err)
	}
	c.identity = &tlsCert
	for _, chainCert := range chain {
		c.trustPool.AddCert(chainCert)
		c.trustCerts = append(c.trustCerts, chainCert)
	}
	return nil
}

// SetClientAuth sets the client-auth policy used when this Credentials
// configures a server.
func (c *Credentials) SetClientAuth(mode ClientAuthMode) {
	c.clientAuth = mode
}

// SetPriority sets the cipher priority string. An empty string leaves the
// TLS library's default cipher selection in place. Validity is checked at
// tlscontext.New time, not here (pure setter, no I/O per spec).
func (c *Credentials) SetPriority(priority string) {
	c.priority = priority
}

// SetDNVerificationCallback registers fn to be invoked once per
// successfully verified handshake.
func (c *Credentials) SetDNVerificationCallback(fn DNCallback) {
	c.dnCallback = fn
}

// EnableSystemTrust marks that the platform default trust path should also
// be loaded on the first handshake performed against these credentials.
func (c *Credentials) EnableSystemTrust() {
	c.loadSysTrust = true
}

// NeedLoadSystemTrust reports whether system trust loading is still
// pending. Session clears this via ConsumeSystemTrust after the first
// successful load.
func (c *Credentials) NeedLoadSystemTrust() bool {
	return c.loadSysTrust
}

// ConsumeSystemTrust clears the pending system-trust flag. Called by the
// session engine once, after the first handshake has loaded the platform
// trust pool.
func (c *Credentials) ConsumeSystemTrust() {
	c.loadSysTrust = false
}

// TrustPool returns the trust store shared by reference with every TLS
// context derived from these credentials.
func (c *Credentials) TrustPool() *x509.CertPool {
	return c.trustPool
}

// BuildTrustPoolWithSystem returns a new pool containing the platform's
// default trust roots plus every certificate explicitly installed via
// SetTrust/SetPKCS12. x509.CertPool exposes no way to merge two pools or
// enumerate an existing one's members (Subjects is deprecated and does not
// return parsed certificates), so the merge is built the other direction:
// start from the freshly loaded system pool and add the certificates this
// package already tracked in trustCerts.
func (c *Credentials) BuildTrustPoolWithSystem() (*x509.CertPool, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}
	for _, cert := range c.trustCerts {
		pool.AddCert(cert)
	}
	return pool, nil
}

// RevocationLists returns the CRLs installed via SetCRL.
func (c *Credentials) RevocationLists() []*x509.RevocationList {
	return c.trustCRLs
}

// Identity returns the installed certificate/key pair, or nil if none was
// set.
func (c *Credentials) Identity() *tls.Certificate {
	return c.identity
}

// ClientAuth returns the configured client-auth policy.
func (c *Credentials) ClientAuth() ClientAuthMode {
	return c.clientAuth
}

// Priority returns the configured cipher priority string.
func (c *Credentials) Priority() string {
	return c.priority
}

// DNVerificationCallback returns the registered DN verification callback, or nil.
func (c *Credentials) DNVerificationCallback() DNCallback {
	return c.dnCallback
}

func verifyKeyPairing(cert tls.Certificate) error {
	leaf := cert.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return fmt.Errorf("parse leaf certificate: %w", err)
		}
		leaf = parsed
	}
	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
		if !ok || priv.PublicKey.N.Cmp(pub.N) != 0 {
			return errors.New("certificate and key do not match")
		}
	case *ecdsa.PublicKey:
		priv, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
		if !ok || priv.PublicKey.X.Cmp(pub.X) != 0 || priv.PublicKey.Y.Cmp(pub.Y) != 0 {
			return errors.New("certificate and key do not match")
		}
	case ed25519.PublicKey:
		priv, ok := cert.PrivateKey.(ed25519.PrivateKey)
		if !ok || !pub.Equal(priv.Public()) {
			return errors.New("certificate and key do not match")
		}
	default:
		return errors.New("unsupported public key type")
	}
	return nil
}

func parseCertificates(blob []byte, format BlobFormat) ([]*x509.Certificate, error) {
	if format == FormatDER {
		cert, err := x509.ParseCertificate(blob)
		if err != nil {
			return nil, err
		}
		return []*x509.Certificate{cert}, nil
	}
	var certs []*x509.Certificate
	rest := blob
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func parseRevocationLists(blob []byte, format BlobFormat) ([]*x509.RevocationList, error) {
	if format == FormatDER {
		crl, err := x509.ParseRevocationList(blob)
		if err != nil {
			return nil, err
		}
		return []*x509.RevocationList{crl}, nil
	}
	var crls []*x509.RevocationList
	rest := blob
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "X509 CRL" {
			continue
		}
		crl, err := x509.ParseRevocationList(block.Bytes)
		if err != nil {
			return nil, err
		}
		crls = append(crls, crl)
	}
	return crls, nil
}

package session

import (
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"net"

	"tlsshuttle/sslerr"
	"tlsshuttle/tlscred"
)

// DN is a pair of RFC 2253-formatted distinguished names.
type DN struct {
	Subject string
	Issuer  string
}

// SANType tags the kind of a subject alternative name entry.
type SANType int

const (
	SANDNSName SANType = iota
	SANRFC822Name
	SANURI
	SANIPAddress
	SANOtherName
	SANDirName
)

// SAN is one subject alternative name entry. Value holds the textual form
// for DNS/RFC822/URI/OtherName/DirName entries and the raw IP bytes (4 or
// 16) for IPAddress entries.
type SAN struct {
	Type  SANType
	Value string
	IP    net.IP
}

var asn1SubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}

// verify reproduces ossl.cc's verify(): it does not override the TLS
// library's own verification decision (that already happened inside
// HandshakeContext), it only decides what to report given the outcome.
//
// handshakeErr is the error HandshakeContext returned when verification
// failed (a *tls.CertificateVerificationError), or nil when verify is
// called after a successful handshake to confirm the post-handshake
// invariants spec.md §4.8 describes. When non-nil, the stringified cause
// plus whatever peer cert was captured (see doHandshake's recovery of
// CertificateVerificationError.UnverifiedCertificates) become the
// returned VerificationError's Reason/Subject/Issuer, mirroring ossl.cc's
// "not OK → extract DN from captured peer cert, throw" path.
func (s *Session) verify(handshakeErr error) error {
	if handshakeErr != nil {
		verr := &sslerr.VerificationError{Reason: handshakeErr.Error()}
		if s.lastPeerCert != nil {
			dn := dnFromCertificate(s.lastPeerCert)
			verr.Subject = dn.Subject
			verr.Issuer = dn.Issuer
		}
		return verr
	}
	if s.role == tlscred.RoleServer && s.creds.ClientAuth() == tlscred.ClientAuthRequire && s.lastPeerCert == nil {
		return &sslerr.VerificationError{Reason: "no certificate presented by peer"}
	}
	if s.creds.DNVerificationCallback() != nil && s.lastPeerCert != nil {
		dn := dnFromCertificate(s.lastPeerCert)
		s.creds.DNVerificationCallback()(s.role, dn.Subject, dn.Issuer)
	}
	return nil
}

func dnFromCertificate(cert *x509.Certificate) DN {
	return DN{
		Subject: formatName(cert.Subject),
		Issuer:  formatName(cert.Issuer),
	}
}

// formatName renders a pkix.Name as an RFC 2253-flavored string. Go's
// pkix.Name.String() already implements exactly this: comma-plus
// separators, short attribute names (CN, OU, O, L, ST, C, etc.), and
// unknown OIDs dumped as "<dotted-oid>=#<hex DER value>" — no hand-rolled formatter
// is needed (see DESIGN.md).
func formatName(name pkix.Name) string {
	return name.String()
}

// GetDistinguishedName returns the peer certificate's subject/issuer DN,
// or nil if no peer certificate was captured (e.g. an anonymous client).
func (s *Session) GetDistinguishedName(ctx context.Context) (*DN, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.latchedErr != nil {
		return nil, s.latchedErr
	}
	if s.shutdown {
		return nil, sslerr.ErrNotConnected
	}
	if !s.connected() {
		if err := s.doHandshakeLocked(ctx); err != nil {
			return nil, err
		}
	}
	if s.lastPeerCert == nil {
		return nil, nil
	}
	dn := dnFromCertificate(s.lastPeerCert)
	return &dn, nil
}

// GetAltNameInformation returns the peer certificate's subject alternative
// names. If types is non-empty, only entries whose type is in the set are
// returned; unknown GeneralName tags are always skipped.
func (s *Session) GetAltNameInformation(ctx context.Context, types map[SANType]struct{}) ([]SAN, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.latchedErr != nil {
		return nil, s.latchedErr
	}
	if s.shutdown {
		return nil, sslerr.ErrNotConnected
	}
	if !s.connected() {
		if err := s.doHandshakeLocked(ctx); err != nil {
			return nil, err
		}
	}
	if s.lastPeerCert == nil {
		return nil, nil
	}
	return altNamesFromCertificate(s.lastPeerCert, types)
}

// doHandshakeLocked runs doHandshake assuming readMu is already held; it
// additionally takes writeMu itself, matching Handshake()'s lock order.
func (s *Session) doHandshakeLocked(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.doHandshake(ctx)
}

// altNamesFromCertificate builds the SAN list the way ossl.cc's
// do_get_alt_name_information does: crypto/x509.Certificate already
// exposes DNSNames/EmailAddresses/URIs/IPAddresses, which covers four of
// the six GeneralName kinds the original walks by hand. OTHERNAME and
// DIRNAME are not exposed by the stdlib type at all, so those two are
// recovered by re-parsing the raw subjectAltName extension with
// encoding/asn1, mirroring the original's manual GENERAL_NAME walk in
// spirit even though the wire encodings differ in how Go models ASN.1
// choice types.
func altNamesFromCertificate(cert *x509.Certificate, types map[SANType]struct{}) ([]SAN, error) {
	var sans []SAN
	include := func(t SANType) bool {
		if len(types) == 0 {
			return true
		}
		_, ok := types[t]
		return ok
	}

	if include(SANDNSName) {
		for _, name := range cert.DNSNames {
			sans = append(sans, SAN{Type: SANDNSName, Value: name})
		}
	}
	if include(SANRFC822Name) {
		for _, email := range cert.EmailAddresses {
			sans = append(sans, SAN{Type: SANRFC822Name, Value: email})
		}
	}
	if include(SANURI) {
		for _, u := range cert.URIs {
			sans = append(sans, SAN{Type: SANURI, Value: u.String()})
		}
	}
	if include(SANIPAddress) {
		for _, ip := range cert.IPAddresses {
			sans = append(sans, SAN{Type: SANIPAddress, IP: ip})
		}
	}

	if include(SANOtherName) || include(SANDirName) {
		others, dirs, err := rawOtherAndDirNames(cert)
		if err != nil {
			return nil, fmt.Errorf("tlsshuttle/session: parse subjectAltName extension: %w", err)
		}
		if include(SANOtherName) {
			sans = append(sans, others...)
		}
		if include(SANDirName) {
			sans = append(sans, dirs...)
		}
	}
	return sans, nil
}

// generalName ASN.1 tag numbers, from RFC 5280 §4.2.1.6.
const (
	tagOtherName                 = 0
	tagRFC822Name                = 1
	tagDNSName                   = 2
	tagX400Address               = 3
	tagDirectoryName             = 4
	tagEDIPartyName              = 5
	tagUniformResourceIdentifier = 6
	tagIPAddress                 = 7
	tagRegisteredID              = 8
)

func rawOtherAndDirNames(cert *x509.Certificate) (others, dirs []SAN, err error) {
	var ext []byte
	for _, e := range cert.Extensions {
		if e.Id.Equal(asn1SubjectAltName) {
			ext = e.Value
			break
		}
	}
	if ext == nil {
		return nil, nil, nil
	}

	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(ext, &seq); err != nil {
		return nil, nil, err
	}
	rest := seq.Bytes
	for len(rest) > 0 {
		var gn asn1.RawValue
		rest, err = asn1.Unmarshal(rest, &gn)
		if err != nil {
			return nil, nil, err
		}
		switch gn.Tag {
		case tagOtherName:
			others = append(others, SAN{Type: SANOtherName, Value: fmt.Sprintf("%x", gn.Bytes)})
		case tagDirectoryName:
			var rdn pkix.RDNSequence
			if _, err := asn1.Unmarshal(gn.Bytes, &rdn); err != nil {
				return nil, nil, err
			}
			var name pkix.Name
			name.FillFromRDNSequence(&rdn)
			dirs = append(dirs, SAN{Type: SANDirName, Value: name.String()})
		}
	}
	return others, dirs, nil
}

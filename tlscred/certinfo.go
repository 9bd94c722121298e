package tlscred

import "crypto/x509"

// maxSerialBytes is the serial-number truncation limit carried over from
// ossl.cc's get_x509_info: a serial longer than this is truncated, never
// rejected.
const maxSerialBytes = 160

// CertInfo is a certificate's serial number and expiry, as reported by
// Credentials.CertInfo and Credentials.TrustListInfo.
type CertInfo struct {
	// Serial is the certificate's serial number, truncated to
	// maxSerialBytes if longer.
	Serial []byte
	// Expiry is the certificate's NotAfter time as seconds since the Unix
	// epoch, or -1 if the certificate has no identity to report.
	Expiry int64
}

func certInfoFromCertificate(cert *x509.Certificate) CertInfo {
	serial := cert.SerialNumber.Bytes()
	if len(serial) > maxSerialBytes {
		serial = serial[:maxSerialBytes]
	}
	return CertInfo{
		Serial: serial,
		Expiry: cert.NotAfter.Unix(),
	}
}

// CertInfo returns the identity certificate's serial number and expiry.
// Returns Expiry -1 and a nil Serial if no identity is installed.
//
// Supplemented from original_source/src/net/ossl.cc's get_x509_info.
func (c *Credentials) CertInfo() CertInfo {
	if c.identity == nil || len(c.identity.Certificate) == 0 {
		return CertInfo{Expiry: -1}
	}
	leaf := c.identity.Leaf
	if leaf == nil {
		parsed, err := x509.ParseCertificate(c.identity.Certificate[0])
		if err != nil {
			return CertInfo{Expiry: -1}
		}
		leaf = parsed
	}
	return certInfoFromCertificate(leaf)
}

// TrustListInfo returns the serial number and expiry of every X.509
// certificate currently installed in the trust store, not just CA roots.
//
// Supplemented from original_source/src/net/ossl.cc's
// get_x509_trust_list_info, which iterates X509_STORE_get0_objects;
// *x509.CertPool does not expose its underlying certificate list, so the
// trust store additionally tracks installed certificates in trustCerts for
// this purpose.
func (c *Credentials) TrustListInfo() []CertInfo {
	infos := make([]CertInfo, 0, len(c.trustCerts))
	for _, cert := range c.trustCerts {
		infos = append(infos, certInfoFromCertificate(cert))
	}
	return infos
}

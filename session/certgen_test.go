package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type genCert struct {
	certPEM []byte
	keyPEM  []byte
	cert    *x509.Certificate
	priv    *ecdsa.PrivateKey
}

func generateCA(t *testing.T, commonName string, serial int64) genCert {
	t.Helper()
	return generateCAWithSubject(t, pkix.Name{CommonName: commonName}, serial, []string{commonName})
}

// generateCAWithSubject builds a self-signed CA certificate with a fully
// populated subject, for tests that need more than a bare CommonName (e.g.
// DN formatting coverage).
func generateCAWithSubject(t *testing.T, subject pkix.Name, serial int64, dnsNames []string) genCert {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               subject,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              dnsNames,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return toGenCert(t, der, priv, cert)
}

func generateLeaf(t *testing.T, commonName string, serial int64, parent genCert, dnsNames []string) genCert {
	t.Helper()
	return generateLeafWithTemplate(t, &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     dnsNames,
	}, parent)
}

// generateLeafWithSubject builds a leaf certificate with a fully populated
// subject, for tests that need more than a bare CommonName (e.g. DN
// formatting coverage).
func generateLeafWithSubject(t *testing.T, subject pkix.Name, serial int64, parent genCert, dnsNames []string) genCert {
	t.Helper()
	return generateLeafWithTemplate(t, &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      subject,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     dnsNames,
	}, parent)
}

func generateLeafWithTemplate(t *testing.T, template *x509.Certificate, parent genCert) genCert {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.CreateCertificate(rand.Reader, template, parent.cert, &priv.PublicKey, parent.priv)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return toGenCert(t, der, priv, cert)
}

func toGenCert(t *testing.T, der []byte, priv *ecdsa.PrivateKey, cert *x509.Certificate) genCert {
	t.Helper()
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	return genCert{certPEM: certPEM, keyPEM: keyPEM, cert: cert, priv: priv}
}

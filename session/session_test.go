package session

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"

	"tlsshuttle/tlscred"
)

func newSessionPair(t *testing.T, clientCreds, serverCreds *tlscred.Credentials, clientOpts, serverOpts Options) (*Session, *Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	clientSess, err := New(RoleClient, clientCreds, newPipeTransport(clientConn), newPipeTransport(clientConn), clientOpts, nil)
	require.NoError(t, err)
	serverSess, err := New(RoleServer, serverCreds, newPipeTransport(serverConn), newPipeTransport(serverConn), serverOpts, nil)
	require.NoError(t, err)
	return clientSess, serverSess
}

func handshakeBoth(t *testing.T, client, server *Session) (clientErr, serverErr error) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() {
		defer wg.Done()
		clientErr = client.Handshake(ctx)
	}()
	go func() {
		defer wg.Done()
		serverErr = server.Handshake(ctx)
	}()
	wg.Wait()
	return
}

// S1: client handshake, payload, close.
func TestScenarioS1ClientHandshakePayloadClose(t *testing.T) {
	serverCA := generateCA(t, "server-root", 1)

	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(serverCA.certPEM, tlscred.FormatPEM))

	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(serverCA.certPEM, serverCA.keyPEM, tlscred.FormatPEM))

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "server-root"}, Options{})

	clientErr, serverErr := handshakeBoth(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	ctx := context.Background()
	var putErr, getErr error
	var got []byte
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		putErr = client.Put(ctx, []byte("hello"))
	}()
	go func() {
		defer wg.Done()
		got, getErr = server.Get(ctx)
	}()
	wg.Wait()
	require.NoError(t, putErr)
	require.NoError(t, getErr)
	require.Equal(t, "hello", string(got))

	client.Close()
	server.Close()
	time.Sleep(50 * time.Millisecond)
}

// S2: client-auth REQUIRE with a valid client cert; server's DN callback
// fires once with the client's subject/issuer.
func TestScenarioS2ClientAuthRequireSucceeds(t *testing.T) {
	root := generateCA(t, "shared-root", 1)
	serverLeaf := generateLeaf(t, "server-leaf", 2, root, []string{"server-leaf"})
	clientLeaf := generateLeaf(t, "client-leaf", 3, root, nil)

	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(root.certPEM, tlscred.FormatPEM))
	require.NoError(t, clientCreds.SetKey(clientLeaf.certPEM, clientLeaf.keyPEM, tlscred.FormatPEM))

	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(serverLeaf.certPEM, serverLeaf.keyPEM, tlscred.FormatPEM))
	require.NoError(t, serverCreds.SetTrust(root.certPEM, tlscred.FormatPEM))
	serverCreds.SetClientAuth(tlscred.ClientAuthRequire)

	var callbackCount int
	var gotSubject string
	serverCreds.SetDNVerificationCallback(func(role tlscred.Role, subject, issuer string) {
		callbackCount++
		gotSubject = subject
	})

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "server-leaf"}, Options{})
	clientErr, serverErr := handshakeBoth(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.Equal(t, 1, callbackCount)
	require.Contains(t, gotSubject, "client-leaf")
}

// S3: client-auth REQUIRE, client presents no cert; server's verify fails
// with a message containing "no certificate presented by peer".
func TestScenarioS3ClientAuthRequireNoCert(t *testing.T) {
	root := generateCA(t, "shared-root", 1)
	serverLeaf := generateLeaf(t, "server-leaf", 2, root, []string{"server-leaf"})

	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(root.certPEM, tlscred.FormatPEM))

	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(serverLeaf.certPEM, serverLeaf.keyPEM, tlscred.FormatPEM))
	serverCreds.SetClientAuth(tlscred.ClientAuthRequire)

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "server-leaf"}, Options{})
	_, serverErr := handshakeBoth(t, client, server)
	require.Error(t, serverErr)
	require.Contains(t, serverErr.Error(), "no certificate presented by peer")
}

// S4: priority string rejected at session-construction time.
func TestScenarioS4PriorityStringRejected(t *testing.T) {
	creds := tlscred.New()
	creds.SetPriority("NOT-A-CIPHER")
	_, err := New(RoleClient, creds, newPipeTransportPair(t), newPipeTransportPair(t), Options{}, nil)
	require.Error(t, err)
}

// S6: peer abrupt close; Get returns an empty buffer and a subsequent Get
// also returns empty.
func TestScenarioS6PeerAbruptClose(t *testing.T) {
	serverCA := generateCA(t, "server-root", 1)

	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(serverCA.certPEM, tlscred.FormatPEM))
	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(serverCA.certPEM, serverCA.keyPEM, tlscred.FormatPEM))

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "server-root"}, Options{})
	clientErr, serverErr := handshakeBoth(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	server.Close()
	time.Sleep(50 * time.Millisecond)

	ctx := context.Background()
	got, err := client.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got)

	got2, err := client.Get(ctx)
	require.NoError(t, err)
	require.Empty(t, got2)
}

// S7: PKCS#12 load with chain — TrustListInfo sees the chain certs and
// CertInfo reports the identity's serial/expiry. This exercises tlscred
// directly rather than the session engine, since PKCS#12 loading is a
// Credentials-level operation.
func TestScenarioS7PKCS12TrustListInfo(t *testing.T) {
	const password = "s7-test-password"
	root := generateCA(t, "pkcs12-root", 1)
	leaf := generateLeaf(t, "pkcs12-leaf", 2, root, []string{"pkcs12-leaf"})

	pfxData, err := pkcs12.Encode(rand.Reader, leaf.priv, leaf.cert, []*x509.Certificate{root.cert}, password)
	require.NoError(t, err)

	creds := tlscred.New()
	require.NoError(t, creds.SetPKCS12(pfxData, password))

	require.NotNil(t, creds.Identity())
	certInfo := creds.CertInfo()
	require.Equal(t, leaf.cert.SerialNumber.Bytes(), certInfo.Serial)
	require.Equal(t, leaf.cert.NotAfter.Unix(), certInfo.Expiry)

	trustList := creds.TrustListInfo()
	require.Len(t, trustList, 1)
	require.Equal(t, root.cert.SerialNumber.Bytes(), trustList[0].Serial)
	require.Equal(t, root.cert.NotAfter.Unix(), trustList[0].Expiry)
}

// S5: renegotiation smoke test. Go's crypto/tls only supports client-side
// renegotiation (tls.RenegotiateOnceAsClient/RenegotiateFreelyAsClient,
// the latter used by tlscontext), triggered by the server requesting a
// fresh handshake — there is no API to trigger a
// renegotiation from the server side, or to request one explicitly as a
// client. This is a best-effort substitute: it drives several rounds of
// Put/Get over an already-established session to confirm the session stays
// usable across repeated application-data exchanges, which is as much of
// S5 as the stdlib can exercise.
func TestScenarioS5RenegotiationSmokeTest(t *testing.T) {
	serverCA := generateCA(t, "server-root", 1)

	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(serverCA.certPEM, tlscred.FormatPEM))
	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(serverCA.certPEM, serverCA.keyPEM, tlscred.FormatPEM))

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "server-root"}, Options{})
	clientErr, serverErr := handshakeBoth(t, client, server)
	require.NoError(t, clientErr)
	require.NoError(t, serverErr)

	ctx := context.Background()
	for round := 0; round < 3; round++ {
		msg := []byte(fmt.Sprintf("round-%d", round))
		var putErr, getErr error
		var got []byte
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			putErr = client.Put(ctx, msg)
		}()
		go func() {
			defer wg.Done()
			got, getErr = server.Get(ctx)
		}()
		wg.Wait()
		require.NoError(t, putErr)
		require.NoError(t, getErr)
		require.Equal(t, string(msg), string(got))
	}

	client.Close()
	server.Close()
	time.Sleep(50 * time.Millisecond)
}

// Invariant 4: once the error latch is set, every subsequent call
// reproduces the same error.
func TestInvariantLatchedErrorSticky(t *testing.T) {
	serverCA := generateCA(t, "server-root", 1)
	clientCreds := tlscred.New()
	require.NoError(t, clientCreds.SetTrust(serverCA.certPEM, tlscred.FormatPEM))

	// Deliberately wrong server identity: client's trust store will not
	// be able to validate the chain.
	otherCA := generateCA(t, "other-root", 2)
	serverCreds := tlscred.New()
	require.NoError(t, serverCreds.SetKey(otherCA.certPEM, otherCA.keyPEM, tlscred.FormatPEM))

	client, server := newSessionPair(t, clientCreds, serverCreds, Options{ServerName: "other-root"}, Options{})
	clientErr, _ := handshakeBoth(t, client, server)
	require.Error(t, clientErr)

	ctx := context.Background()
	_, getErr := client.Get(ctx)
	require.Equal(t, clientErr, getErr)
	putErr := client.Put(ctx, []byte("x"))
	require.Equal(t, clientErr, putErr)
}

func newPipeTransportPair(t *testing.T) *pipeTransport {
	t.Helper()
	a, _ := net.Pipe()
	return newPipeTransport(a)
}

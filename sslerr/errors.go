// Package sslerr defines the error taxonomy shared by the credentials and
// session packages: a tagged error code, a verification error carrying the
// peer's distinguished names, and the sentinel errors used by the session
// state machine.
package sslerr

import "fmt"

// Code identifies the semantic class of a fatal TLS error. The numbering
// mirrors the shape of an OpenSSL packed reason code (library id in the
// high byte, reason in the low bits) but is assigned locally: this engine
// runs on top of crypto/tls, not OpenSSL, so there is no real SSL_R_* table
// to match bit-for-bit.
type Code uint32

const libSSL = 0x14 // arbitrary "library id", distinct from 0 (unset)

func pack(reason uint32) Code {
	return Code(libSSL<<24) | Code(reason&0xfff)
}

// Error codes. Names follow the public table required by callers that
// match on well known TLS failure classes.
var (
	CodeUnknownCompressionAlgorithm   = pack(1)
	CodeUnknownCipherType             = pack(2)
	CodeInvalidSession                = pack(3)
	CodeUnexpectedHandshakePacket     = pack(4)
	CodeUnknownCipherSuite            = pack(5)
	CodeUnknownAlgorithm              = pack(6)
	CodeUnsupportedSignatureAlgorithm = pack(7)
	CodeSafeRenegotiationFailed       = pack(8)
	CodeUnsafeRenegotiationDenied     = pack(9)
	CodeUnknownSRPUsername            = pack(10)
	CodePrematureTermination          = pack(11)
	CodePush                          = pack(12)
	CodePull                          = pack(13)
	CodeUnexpectedPacket              = pack(14)
	CodeUnsupportedVersion            = pack(15)
	CodeNoCipherSuites                = pack(16)
	CodeDecryptionFailed              = pack(17)
	CodeMACVerifyFailed               = pack(18)

	// CodeHandshakeFailure is not part of the spec's public table; it is
	// the catch-all used when a handshake fails for a reason that maps to
	// none of the named codes above.
	CodeHandshakeFailure = pack(19)
)

// Error is a fatal, latched session error.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that records cause as its underlying reason.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("0x%x %s: %s", uint32(e.Code), e.Message, e.Cause)
	}
	return fmt.Sprintf("0x%x %s", uint32(e.Code), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// VerificationError is raised by the verify step when the TLS library's
// final verification result is not OK, or when a server with client-auth
// REQUIRE sees no peer certificate. It carries the peer's subject/issuer
// distinguished names when they were available at the time of failure.
type VerificationError struct {
	Reason  string
	Subject string
	Issuer  string
}

func (e *VerificationError) Error() string {
	if e.Subject == "" && e.Issuer == "" {
		return e.Reason
	}
	return fmt.Sprintf(`%s (Issuer=["%s"], Subject=["%s"])`, e.Reason, e.Issuer, e.Subject)
}

// Sentinel errors for the session's non-handshake failure paths.
var (
	// ErrBrokenPipe is returned by Put after shutdown has been requested.
	ErrBrokenPipe = New(CodePush, "broken pipe")
	// ErrNotConnected is returned by DN/SAN queries after shutdown, and
	// latched when a handshake or Put finds the peer already closed (EOF).
	ErrNotConnected = New(CodePull, "not connected")
)

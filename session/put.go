package session

import (
	"context"
	"errors"
	"io"

	"tlsshuttle/sslerr"
)

// Put writes packet as one TLS application-data unit. Translated from
// ossl.cc's put(): latched error fails immediately; shutdown fails with a
// broken-pipe error; not yet connected triggers a handshake and retries.
func (s *Session) Put(ctx context.Context, packet []byte) error {
	if s.latchedErr != nil {
		return s.latchedErr
	}
	if s.shutdown {
		return sslerr.ErrBrokenPipe
	}
	if !s.connected() {
		if err := s.Handshake(ctx); err != nil {
			return err
		}
		return s.Put(ctx, packet)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.doPut(ctx, packet)
}

// doPut hands packet to crypto/tls.Conn.Write and flushes the resulting
// ciphertext. crypto/tls.Conn.Write is all-or-nothing per call, unlike raw
// SSL_write_ex's partial-write contract, so there is no short-write retry
// loop to drive here — see SPEC_FULL.md §4.5.
func (s *Session) doPut(ctx context.Context, packet []byte) error {
	if len(packet) == 0 {
		return nil
	}
	s.activeCtx = ctx
	_, err := s.tlsConn.Write(packet)
	s.activeCtx = nil
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.eof = true
			return s.latch(sslerr.ErrNotConnected)
		}
		var sessErr *sslerr.Error
		if errors.As(err, &sessErr) {
			return s.latch(sessErr)
		}
		return s.latch(sslerr.Wrap(sslerr.CodePush, err, "write failed"))
	}
	if _, ferr := s.maybePerformPushWithWait(ctx); ferr != nil {
		return ferr
	}
	return nil
}

package session

import (
	"context"
	"errors"
	"io"

	"tlsshuttle/sslerr"
)

const readChunkSize = 16 * 1024

// Get reads one buffer of application data. Translated from ossl.cc's
// get(): error fails; shutdown or EOF returns an empty buffer; not
// connected triggers a handshake and retries.
func (s *Session) Get(ctx context.Context) ([]byte, error) {
	if s.latchedErr != nil {
		return nil, s.latchedErr
	}
	if s.shutdown || s.eof {
		return nil, nil
	}
	if !s.connected() {
		if err := s.Handshake(ctx); err != nil {
			return nil, err
		}
		return s.Get(ctx)
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()
	return s.doGet(ctx)
}

func (s *Session) doGet(ctx context.Context) ([]byte, error) {
	buf := make([]byte, readChunkSize)
	s.activeCtx = ctx
	n, err := s.tlsConn.Read(buf)
	s.activeCtx = nil
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		return nil, nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		s.eof = true
		return nil, nil
	}
	var sessErr *sslerr.Error
	if errors.As(err, &sessErr) {
		return nil, s.latch(sessErr)
	}
	return nil, s.latch(sslerr.Wrap(sslerr.CodePull, err, "read failed"))
}

package session

import (
	"context"

	"tlsshuttle/sslerr"
)

// performPush drains memConn's pending output in one chunk and hands it to
// the sink. Named after ossl.cc's perform_push; the original assigns the
// sink.put future to a pending-output slot and returns immediately, with a
// separate wait_for_output awaiting it later. Go has no futures, so push
// and wait collapse into one synchronous call here — the invariant "no
// write is issued while another is in flight" holds trivially because
// nothing in this package calls performPush from more than one goroutine
// at a time (readMu/writeMu serialize every path that reaches it).
func (s *Session) performPush(ctx context.Context) error {
	s.bufMu.Lock()
	chunk := s.outBuf
	s.outBuf = nil
	s.bufMu.Unlock()
	if len(chunk) == 0 {
		return nil
	}
	if err := s.sink.Put(ctx, chunk); err != nil {
		return s.latch(sslerr.Wrap(sslerr.CodePush, err, "push failed"))
	}
	return nil
}

// waitForOutput exists for symmetry with ossl.cc's wait_for_output, which
// awaits the pending-output future separately from issuing it. Since
// performPush is already synchronous, waitForOutput has nothing left to
// wait on; it is kept as its own step so the call sites read the same way
// the original's do, and so a future asynchronous sink implementation has
// an obvious seam to plug into.
func (s *Session) waitForOutput(ctx context.Context) error {
	return nil
}

// performPull feeds one buffer of ciphertext into memConn: if source.Get
// returns an empty buffer, that's EOF; otherwise the bytes are appended to
// inBuf for crypto/tls to consume on its next Read.
func (s *Session) performPull(ctx context.Context) error {
	buf, err := s.source.Get(ctx)
	if err != nil {
		return s.latch(sslerr.Wrap(sslerr.CodePull, err, "pull failed"))
	}
	s.bufMu.Lock()
	if len(buf) == 0 {
		s.eof = true
	} else {
		s.inBuf = append(s.inBuf, buf...)
	}
	s.bufMu.Unlock()
	return nil
}

// maybePerformPushWithWait runs performPush+waitForOutput only if memConn
// has pending output, and reports whether any bytes were sent.
func (s *Session) maybePerformPushWithWait(ctx context.Context) (bool, error) {
	s.bufMu.Lock()
	pending := len(s.outBuf) != 0
	s.bufMu.Unlock()
	if !pending {
		return false, nil
	}
	if err := s.performPush(ctx); err != nil {
		return false, err
	}
	if err := s.waitForOutput(ctx); err != nil {
		return false, err
	}
	return true, nil
}

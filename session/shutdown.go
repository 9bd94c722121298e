package session

import (
	"context"
	"errors"
	"time"

	"tlsshuttle/sslerr"
)

const closeTimeout = 10 * time.Second

// Shutdown sends close_notify and, if WaitForEOFOnShutdown is set, drains
// trailing application data until the peer's own close_notify arrives.
// Translated from ossl.cc's shutdown()/do_shutdown(); Go's
// (*tls.Conn).Close() queues close_notify in one call without waiting for
// the peer's alert, and doShutdown then pushes that alert to the sink,
// replacing the original's explicit 0/WANT_READ/WANT_WRITE retry loop.
func (s *Session) Shutdown(ctx context.Context) error {
	s.writeMu.Lock()
	err := s.doShutdown(ctx)
	s.writeMu.Unlock()
	if err != nil {
		return err
	}
	return s.waitForEOF(ctx)
}

func (s *Session) doShutdown(ctx context.Context) error {
	if s.latchedErr != nil {
		return s.latchedErr
	}
	if !s.connected() {
		return nil
	}
	s.activeCtx = ctx
	err := s.tlsConn.Close()
	s.activeCtx = nil
	if _, perr := s.maybePerformPushWithWait(ctx); perr != nil {
		return perr
	}
	if err == nil {
		return nil
	}
	var sessErr *sslerr.Error
	if errors.As(err, &sessErr) {
		return s.latch(sessErr)
	}
	return s.latch(sslerr.Wrap(sslerr.CodePush, err, "shutdown failed"))
}

// waitForEOF drains and discards application data until EOF, matching
// ossl.cc's wait_for_eof; this is needed because Go's tls.Conn.Close does
// not itself drain trailing application data the peer may still be
// flushing.
func (s *Session) waitForEOF(ctx context.Context) error {
	if !s.opts.WaitForEOFOnShutdown {
		return nil
	}
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for !s.eof {
		if _, err := s.doGet(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush asks the sink to flush its own buffering (Sink.Flush).
func (s *Session) Flush(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.latchedErr != nil {
		return s.latchedErr
	}
	return s.sink.Flush(ctx)
}

// Close tears the session down non-blockingly and idempotently: it flips
// the shutdown flag, then in the background runs Shutdown under a
// 10-second timeout, closes the source, closes the sink, and finally
// reacquires both locks to confirm quiescence before logging completion.
// Any error in this chain is swallowed — Close is infallible from the
// caller's point of view, matching ossl.cc's close(). Go's garbage
// collector removes the need for the original's explicit strong-reference
// trick to keep the session alive during the background chain (DESIGN
// NOTES §9, "Cyclic reference risk in close"): the goroutine's own stack
// keeps s reachable for as long as it runs.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.shutdown = true
		go s.closeChain()
	})
}

func (s *Session) closeChain() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	func() {
		defer func() { recover() }()
		_ = s.Shutdown(ctx)
	}()

	func() {
		defer func() { recover() }()
		_ = s.source.Close(ctx)
	}()
	func() {
		defer func() { recover() }()
		_ = s.sink.Close(ctx)
	}()

	s.readMu.Lock()
	s.writeMu.Lock()
	s.writeMu.Unlock()
	s.readMu.Unlock()

	s.logger.Log(LevelInfo, "shutdown completed role=%v", s.role)
}

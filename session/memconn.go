package session

import (
	"io"
	"net"
	"time"
)

// memConn is the net.Conn crypto/tls is actually given: a pair of
// in-process byte buffers standing in for the original's in_bio/out_bio.
// crypto/tls never touches the real transport directly — every byte it
// reads or writes passes through memConn, and the Session shuttles those
// bytes to/from the real Source/Sink around each call into tls.Conn.
//
// Reads that find the buffer empty flush any pending output first (so a
// handshake message crypto/tls just wrote doesn't sit unsent while we
// block waiting for the peer's reply) and then pull one buffer from the
// real source — mirroring do_handshake's WANT_READ path of "flush pending
// output, then pull one inbound buffer" without needing a distinct
// WANT_READ/WANT_WRITE return code to drive it.
type memConn struct {
	sess *Session
}

var _ net.Conn = (*memConn)(nil)

func (m *memConn) Read(p []byte) (int, error) {
	sess := m.sess
	for {
		sess.bufMu.Lock()
		empty := len(sess.inBuf) == 0
		eof := sess.eof
		if !empty {
			n := copy(p, sess.inBuf)
			sess.inBuf = sess.inBuf[n:]
			sess.bufMu.Unlock()
			return n, nil
		}
		sess.bufMu.Unlock()
		if eof {
			return 0, io.EOF
		}
		if _, err := sess.maybePerformPushWithWait(sess.activeCtx); err != nil {
			return 0, err
		}
		if err := sess.performPull(sess.activeCtx); err != nil {
			return 0, err
		}
	}
}

func (m *memConn) Write(p []byte) (int, error) {
	m.sess.bufMu.Lock()
	m.sess.outBuf = append(m.sess.outBuf, p...)
	m.sess.bufMu.Unlock()
	return len(p), nil
}

func (m *memConn) Close() error                       { return nil }
func (m *memConn) LocalAddr() net.Addr                 { return memAddr{} }
func (m *memConn) RemoteAddr() net.Addr                { return memAddr{} }
func (m *memConn) SetDeadline(t time.Time) error       { return nil }
func (m *memConn) SetReadDeadline(t time.Time) error   { return nil }
func (m *memConn) SetWriteDeadline(t time.Time) error  { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem" }

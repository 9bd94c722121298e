// Package nettransport adapts a real net.Conn to the session.Source/
// session.Sink contract, for running the session engine over an actual
// socket instead of an in-memory or test transport.
//
// Grounded on the teacher's own direct net.Dial/net.Listen usage in
// client.go/server.go; this package is the thin seam the session package
// itself never needed to know about.
package nettransport

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

const readBufferSize = 16 * 1024

// Transport adapts one net.Conn into both a session.Source and a
// session.Sink.
type Transport struct {
	conn net.Conn
}

// New wraps conn as a Transport.
func New(conn net.Conn) *Transport {
	return &Transport{conn: conn}
}

// Get implements session.Source. It honors ctx cancellation by setting the
// connection's read deadline, matching the way the teacher's client/server
// code drives net.Conn timeouts.
func (t *Transport) Get(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, readBufferSize)
	n, err := t.conn.Read(buf)
	if err != nil {
		if isEOF(err) {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

// Put implements session.Sink.
func (t *Transport) Put(ctx context.Context, b []byte) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}
	_, err := t.conn.Write(b)
	return err
}

// Flush is a no-op: net.Conn has no internal application buffering to
// flush.
func (t *Transport) Flush(ctx context.Context) error {
	return nil
}

// Close closes the underlying connection. Safe to call from both the
// Source and Sink half since they share one net.Conn.
func (t *Transport) Close(ctx context.Context) error {
	return t.conn.Close()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

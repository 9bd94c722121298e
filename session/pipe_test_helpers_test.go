package session

import (
	"context"
	"io"
	"net"
)

// pipeTransport adapts one side of a net.Pipe() into the Source/Sink
// contract, for loopback tests that don't need a real socket.
type pipeTransport struct {
	conn net.Conn
}

func newPipeTransport(conn net.Conn) *pipeTransport {
	return &pipeTransport{conn: conn}
}

func (p *pipeTransport) Get(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 4096)
	n, err := p.conn.Read(buf)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

func (p *pipeTransport) Put(ctx context.Context, b []byte) error {
	_, err := p.conn.Write(b)
	return err
}

func (p *pipeTransport) Flush(ctx context.Context) error {
	return nil
}

func (p *pipeTransport) Close(ctx context.Context) error {
	return p.conn.Close()
}

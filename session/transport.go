package session

import "context"

// Source is the inbound half of the plaintext byte-oriented transport a
// Session is built over. Get returns the next available buffer; an empty,
// nil-error buffer signals EOF (the peer closed cleanly).
type Source interface {
	Get(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Sink is the outbound half of the transport. Put delivers one message;
// Flush pushes any buffering the sink itself may be doing (e.g. a
// bufio.Writer) out to the wire.
type Sink interface {
	Put(ctx context.Context, b []byte) error
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
}

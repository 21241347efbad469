package carrier

import (
	"context"
	"net"
	"sync"
)

// SocketCarrier adapts a net.Conn into a Carrier, the duplex counterpart to
// the HTTP adapter: both Send and Recv can be driven from separate
// goroutines the way the teacher's transport/client_transport.go splits a
// writing sender from a reading recvLoop over one net.Conn.
type SocketCarrier struct {
	conn net.Conn

	writeMu sync.Mutex
	readBuf []byte
}

// NewSocketCarrier wraps an already-dialed or already-accepted connection.
func NewSocketCarrier(conn net.Conn) *SocketCarrier {
	return &SocketCarrier{conn: conn, readBuf: make([]byte, 64*1024)}
}

func (c *SocketCarrier) Send(ctx context.Context, chunk []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	_, err := c.conn.Write(chunk)
	return err
}

// Recv has no per-call context of its own — a raw net.Conn carries no
// request object — so it hands back ctx unchanged.
func (c *SocketCarrier) Recv(ctx context.Context) ([]byte, context.Context, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	n, err := c.conn.Read(c.readBuf)
	if err != nil {
		return nil, ctx, err
	}
	out := make([]byte, n)
	copy(out, c.readBuf[:n])
	return out, ctx, nil
}

func (c *SocketCarrier) Close() error { return c.conn.Close() }

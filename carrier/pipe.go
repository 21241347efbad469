package carrier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Pipe is an in-process Carrier backed by two buffered channels — the
// in-memory stand-in the teacher has no equivalent of (its transport is
// always a real net.Conn), built here so client and server can run in the
// same process without a socket in between. Pair two Pipes with
// NewPipePair to wire a client Engine directly to a server Engine.
type Pipe struct {
	out    chan []byte
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewPipePair returns two Pipes, each one's outbound channel the other's
// inbound, so Send on one side is observed by Recv on the other.
func NewPipePair(buffer int) (a, b *Pipe) {
	c1 := make(chan []byte, buffer)
	c2 := make(chan []byte, buffer)
	a = &Pipe{out: c1, in: c2, closed: make(chan struct{})}
	b = &Pipe{out: c2, in: c1, closed: make(chan struct{})}
	return a, b
}

func (p *Pipe) Send(ctx context.Context, chunk []byte) error {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return errors.New("carrier: pipe closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv has no per-call context of its own — a Pipe is an in-process channel,
// not a request/response transport — so it hands back ctx unchanged.
func (p *Pipe) Recv(ctx context.Context) ([]byte, context.Context, error) {
	select {
	case chunk, ok := <-p.in:
		if !ok {
			return nil, ctx, fmt.Errorf("carrier: pipe closed: %w", io.EOF)
		}
		return chunk, ctx, nil
	case <-p.closed:
		return nil, ctx, fmt.Errorf("carrier: pipe closed: %w", io.EOF)
	case <-ctx.Done():
		return nil, ctx, ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

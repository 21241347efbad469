// Package carrier defines the collaborator contract the RPC engine itself
// leaves out of scope: whatever feeds the engine's inbound byte stream and
// drains its outbound one. The interface shape is grounded on
// other_examples/develerltd-capnweb-go__transport.go's Transport interface
// and other_examples/kbirk-scg__transport.go's Connection interface — both
// reduce a carrier to Send/Receive/Close over raw bytes, a contract that
// fits HTTP, WebSocket, and message-port adapters alike.
package carrier

import "context"

// Carrier is any ordered, reliable, bidirectional byte or message
// transport. Send and Recv must be safe to call concurrently with each
// other (one sender goroutine, one receiver goroutine) but each is called
// from at most one goroutine at a time by a duplex.Pipeline.
type Carrier interface {
	// Send transmits one outbound chunk — one encoded frame, or a batch of
	// them flushed together. Delivery must be reliable and ordered.
	Send(ctx context.Context, chunk []byte) error

	// Recv blocks until the next inbound chunk arrives. Chunks need not
	// align with frame boundaries — the frame codec's carry buffer handles
	// re-fragmentation. Recv returns an error (wrapping io.EOF for a clean
	// close) when the carrier is done.
	//
	// The returned context carries whatever per-call value a carrier has
	// to attach (the HTTP adapter's *http.Request, the
	// WebSocket adapter's upgrade request): every message decoded out of
	// this chunk is dispatched with that context instead of the pipeline's
	// background one, so an extension procedure can recover it without a
	// global or task-local variable. Carriers with no natural per-call
	// context return the ctx they were given, unchanged.
	Recv(ctx context.Context) ([]byte, context.Context, error)

	// Close releases the carrier's resources. Safe to call multiple times.
	Close() error
}

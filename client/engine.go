package client

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"duplexrpc/message"
	"duplexrpc/rpcerr"
)

// Callback is the shape of a user-supplied callback argument. Go has no
// async/sync function distinction to police, so — per the Open Question
// resolution recorded in DESIGN.md — Invoke accepts any Callback rather
// than requiring it be backed by a goroutine or channel.
type Callback func(args ...any)

// Emit sends one Message on the pipeline's outbound stream.
type Emit func(*message.Message) error

// Engine is the caller side of the RPC protocol: it allocates call and
// callback IDs from one shared counter — callback handles draw from the
// same ID space as calls, so a single atomic counter is enough to keep
// every ID on one pipeline unique — maintains the pending-call table, and
// exposes Invoke as the single call-site primitive in place of a dynamic
// method proxy.
type Engine struct {
	nextID  atomic.Uint32
	pending *pendingTable
	emit    Emit
}

// NewEngine constructs a client Engine bound to emit, the outbound half of a
// duplex pipeline.
func NewEngine(emit Emit) *Engine {
	return &Engine{pending: newPendingTable(), emit: emit}
}

func (e *Engine) allocID() uint32 {
	return e.nextID.Add(1)
}

// Invoke allocates a call ID, registers a result waiter, registers a
// callback slot (and a fresh ID) for every Callback argument, emits the
// CALL, and awaits settlement.
func (e *Engine) Invoke(ctx context.Context, name string, args []any) (any, error) {
	callID := e.allocID()
	w := e.pending.registerWaiter(callID)

	wireArgs := make([]message.ArgItem, 0, len(args)+1)
	wireArgs = append(wireArgs, message.ArgItem{Tag: message.Others, Payload: name})

	for _, a := range args {
		cb, isCallback := a.(Callback)
		if !isCallback {
			wireArgs = append(wireArgs, message.ArgItem{Tag: message.Others, Payload: a})
			continue
		}
		if cb == nil {
			e.pending.settle(callID)
			return nil, &rpcerr.UsageError{Reason: "callback argument must not be nil"}
		}
		cbID := e.allocID()
		e.pending.registerCallback(callID, cbID, func(cbArgs []any) { cb(cbArgs...) })
		wireArgs = append(wireArgs, message.ArgItem{Tag: message.Function, Payload: cbID})
	}

	if err := e.emit(&message.Message{ID: callID, Type: message.Call, Args: wireArgs}); err != nil {
		e.pending.settle(callID)
		return nil, &rpcerr.CarrierError{Cause: err}
	}

	select {
	case res := <-w.done:
		e.pending.settle(callID)
		if remote, ok := res.err.(*rpcerr.RemoteError); ok {
			// Chain the local throw site here, on the caller's goroutine, so
			// its stack is this Invoke call's rather than the read loop's.
			localThrowSite := errors.New("rpc call failed")
			return nil, rpcerr.NewRemoteError(remote.Message, remote.Stack, localThrowSite)
		}
		return res.value, res.err
	case <-ctx.Done():
		e.pending.settle(callID)
		return nil, ctx.Err()
	}
}

// OnMessage handles one inbound Message from the duplex pipeline's decode
// chain: settles the matching waiter for a RETURN/ERROR, or fires the
// matching slot for a CALLBACK. Messages addressed to an ID the engine
// never registered are dropped — they belong to a call this engine already
// gave up on, or to protocol noise.
func (e *Engine) OnMessage(msg *message.Message) {
	switch msg.Type {
	case message.Return:
		if w, ok := e.pending.takeWaiter(msg.ID); ok {
			e.pending.settle(msg.ID)
			deliver(w, result{value: msg.Result})
		}
	case message.Error:
		if w, ok := e.pending.takeWaiter(msg.ID); ok {
			e.pending.settle(msg.ID)
			// Invoke attaches the local throw site once the waiter wakes.
			deliver(w, result{err: rpcerr.NewRemoteError(msg.Err.Message, msg.Err.Stack, nil)})
		}
	case message.Callback:
		if slot, ok := e.pending.getCallback(msg.ID); ok {
			args := make([]any, len(msg.Args))
			for i, item := range msg.Args {
				args[i] = item.Payload
			}
			// Fire-and-forget: a CALLBACK is not acknowledged back over the
			// wire, and the entry is not removed — the same callback may
			// fire many times before the owning call's RETURN/ERROR arrives.
			slot.fn(args)
		}
	}
}

// Fail rejects every pending waiter with err and clears the table. Called
// by the duplex pipeline when the carrier or the codec chain hits a fatal
// error — a dead pipeline will never settle them on its own.
func (e *Engine) Fail(err error) {
	e.pending.failAll(err)
}

func deliver(w *waiter, r result) {
	select {
	case w.done <- r:
	default:
	}
}

// Package client implements the caller half of the RPC engine: ID
// allocation, the pending-call table with nested callback-id tracking, and
// resolution of inbound RETURN/ERROR/CALLBACK messages. It plays the role of
// the teacher's client and transport packages (client/client.go,
// transport/client_transport.go) — the same "assign a sequence number,
// register a channel, let a single reader route responses back to it"
// shape — but the pending table here is a mutex-guarded map rather than a
// sync.Map, because every callback id registered for a call must be removed
// atomically with the call's own settlement; sync.Map has no primitive for
// that kind of multi-key removal.
package client

import (
	"sync"
)

// waiter is a result-waiter pending-table entry: the one-shot completion
// signal for an in-flight call.
type waiter struct {
	done chan result
}

type result struct {
	value any
	err   error
}

// callbackSlot is a callback-slot pending-table entry: the local function to
// invoke when a CALLBACK for this handle arrives.
type callbackSlot struct {
	fn func(args []any)
}

// pendingTable is the map from ID to entry for every call or callback slot
// awaiting resolution. An ID is registered in at most one role at a time.
type pendingTable struct {
	mu        sync.Mutex
	waiters   map[uint32]*waiter
	callbacks map[uint32]*callbackSlot
	// callIDs maps a call's ID to every callback ID it registered, so they
	// can all be removed together when the call settles.
	callIDs map[uint32][]uint32
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		waiters:   make(map[uint32]*waiter),
		callbacks: make(map[uint32]*callbackSlot),
		callIDs:   make(map[uint32][]uint32),
	}
}

func (t *pendingTable) registerWaiter(id uint32) *waiter {
	w := &waiter{done: make(chan result, 1)}
	t.mu.Lock()
	t.waiters[id] = w
	t.mu.Unlock()
	return w
}

func (t *pendingTable) registerCallback(callID, cbID uint32, fn func(args []any)) {
	t.mu.Lock()
	t.callbacks[cbID] = &callbackSlot{fn: fn}
	t.callIDs[callID] = append(t.callIDs[callID], cbID)
	t.mu.Unlock()
}

// settle removes the waiter for id and every callback id registered under
// it, in one critical section: a call's waiter and all the callback ids it
// registered must disappear together, or a stray CALLBACK could still fire
// against a slot its call has already settled.
func (t *pendingTable) settle(id uint32) {
	t.mu.Lock()
	delete(t.waiters, id)
	for _, cbID := range t.callIDs[id] {
		delete(t.callbacks, cbID)
	}
	delete(t.callIDs, id)
	t.mu.Unlock()
}

func (t *pendingTable) takeWaiter(id uint32) (*waiter, bool) {
	t.mu.Lock()
	w, ok := t.waiters[id]
	t.mu.Unlock()
	return w, ok
}

func (t *pendingTable) getCallback(id uint32) (*callbackSlot, bool) {
	t.mu.Lock()
	cb, ok := t.callbacks[id]
	t.mu.Unlock()
	return cb, ok
}

// failAll completes every pending waiter with err and clears the table, run
// once when the carrier/engine fails: a dead pipeline can never deliver
// another RETURN, so every call still waiting on one needs to be unblocked
// rather than hang forever.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	waiters := t.waiters
	t.waiters = make(map[uint32]*waiter)
	t.callbacks = make(map[uint32]*callbackSlot)
	t.callIDs = make(map[uint32][]uint32)
	t.mu.Unlock()

	for _, w := range waiters {
		select {
		case w.done <- result{err: err}:
		default:
		}
	}
}

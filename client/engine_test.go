package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"duplexrpc/message"
)

// newLoopbackEngine wires an Engine's emit directly back into its own
// OnMessage, so Invoke can be exercised without a real duplex pipeline: emit
// hands each outbound message to respond, which plays the server, and feeds
// its reply (if any) back in.
func newLoopbackEngine(respond func(msg *message.Message) *message.Message) *Engine {
	var e *Engine
	e = NewEngine(func(msg *message.Message) error {
		if resp := respond(msg); resp != nil {
			go e.OnMessage(resp)
		}
		return nil
	})
	return e
}

func TestInvokeResolvesOnReturn(t *testing.T) {
	e := newLoopbackEngine(func(msg *message.Message) *message.Message {
		return &message.Message{ID: msg.ID, Type: message.Return, Result: "pong"}
	})

	res, err := e.Invoke(context.Background(), "ping", nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res != "pong" {
		t.Fatalf("got %v", res)
	}
}

func TestInvokeRejectsOnError(t *testing.T) {
	e := newLoopbackEngine(func(msg *message.Message) *message.Message {
		return &message.Message{ID: msg.ID, Type: message.Error, Err: &message.ErrorPayload{Message: "nope", Stack: "at f"}}
	})

	_, err := e.Invoke(context.Background(), "fail", nil)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestInvokeHonorsContextCancellation(t *testing.T) {
	e := NewEngine(func(msg *message.Message) error { return nil }) // never responds
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Invoke(ctx, "slow", nil)
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestInvokeDeliversCallbacksBeforeReturn(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	var e *Engine
	e = NewEngine(func(msg *message.Message) error {
		// The CALL's second arg (index 2: name, arg0, cb) is a FUNCTION
		// handle; fire two CALLBACKs for it, then RETURN, exactly as
		// server.Engine.dispatch would for a procedure invoking its
		// callback twice before completing.
		cbHandle := msg.Args[2].Payload.(uint32)
		go func() {
			e.OnMessage(&message.Message{ID: cbHandle, Type: message.Callback, Args: []message.ArgItem{{Tag: message.Others, Payload: "step0"}}})
			e.OnMessage(&message.Message{ID: cbHandle, Type: message.Callback, Args: []message.ArgItem{{Tag: message.Others, Payload: "step1"}}})
			e.OnMessage(&message.Message{ID: msg.ID, Type: message.Return, Result: "done after callbacks"})
		}()
		return nil
	})

	cb := Callback(func(args ...any) {
		mu.Lock()
		seen = append(seen, args[0].(string))
		mu.Unlock()
	})

	res, err := e.Invoke(context.Background(), "withCallback", []any{"arg0", cb})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res != "done after callbacks" {
		t.Fatalf("got %v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "step0" || seen[1] != "step1" {
		t.Fatalf("got %v", seen)
	}
}

func TestFailRejectsInFlightInvokes(t *testing.T) {
	e := NewEngine(func(msg *message.Message) error { return nil })

	done := make(chan error, 1)
	go func() {
		_, err := e.Invoke(context.Background(), "stuck", nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	e.Fail(errTest("carrier died"))

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Fail to reject the pending invoke")
		}
	case <-time.After(time.Second):
		t.Fatal("invoke did not unblock after Fail")
	}
}

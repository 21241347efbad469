package duplex

import (
	"bytes"
	"context"
	"testing"
	"time"

	"duplexrpc/carrier"
	"duplexrpc/client"
	"duplexrpc/rpcerr"
	"duplexrpc/server"
)

// newLinkedPair wires a server Extension to a client Engine over an
// in-process carrier.Pipe, running both pipelines' Run loops in background
// goroutines, as if client and server were running in one process.
func newLinkedPair(t *testing.T, ext *server.Extension) (*client.Engine, func()) {
	t.Helper()
	serverSide, clientSide := carrier.NewPipePair(16)

	sp := NewServerPipeline(serverSide, ext, Options{Mode: server.Concurrent})
	cp := NewClientPipeline(clientSide, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go sp.Run(ctx)
	go cp.Run(ctx)

	cleanup := func() {
		cancel()
		_ = sp.Close()
		_ = cp.Close()
	}
	return cp.Client(), cleanup
}

func TestHelloRoundTrip(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("hello", func(ctx context.Context, args []any) (any, error) {
		return "hello " + args[0].(string), nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.Invoke(ctx, "hello", []any{"asdfghjkl"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res != "hello asdfghjkl" {
		t.Fatalf("got %v", res)
	}
}

func TestCallbackFiresInOrder(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("callback", func(ctx context.Context, args []any) (any, error) {
		cb := args[1].(server.Callback)
		for i := 0; i < 3; i++ {
			if err := cb(ctx, "progress "+string(rune('0'+i))); err != nil {
				return nil, err
			}
		}
		return "hello callback " + args[0].(string), nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	var seen []string
	cbArg := client.Callback(func(args ...any) {
		seen = append(seen, args[0].(string))
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.Invoke(ctx, "callback", []any{"asdfghjkl", cbArg})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res != "hello callback asdfghjkl" {
		t.Fatalf("got %v", res)
	}
	if len(seen) != 3 {
		t.Fatalf("want 3 callback invocations, got %d: %v", len(seen), seen)
	}
	for i, v := range seen {
		want := "progress " + string(rune('0'+i))
		if v != want {
			t.Fatalf("callback[%d] = %q, want %q", i, v, want)
		}
	}
}

func TestBufferSlice(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("buffer", func(ctx context.Context, args []any) (any, error) {
		u := args[0].([]byte)
		return u[3:8], nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := c.Invoke(ctx, "buffer", []any{[]byte("qwertyuiop")})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !bytes.Equal(res.([]byte), []byte("rtyui")) {
		t.Fatalf("got %q", res)
	}

	big := make([]byte, 300000)
	res, err = c.Invoke(ctx, "buffer", []any{big})
	if err != nil {
		t.Fatalf("invoke large: %v", err)
	}
	want := make([]byte, 5)
	if !bytes.Equal(res.([]byte), want) {
		t.Fatalf("large slice mismatch, len=%d", len(res.([]byte)))
	}
}

// TestArrayReturnsHeterogeneousSequence exercises array('asdfghjkl', U)
// returning [123, 'abc', 'hi asdfghjkl', U[3..8]] — an ordered sequence
// mixing an integer, two strings, and a byte slice, which exercises the
// serializer's ability to round-trip a heterogeneous Go []any rather than a
// single scalar value.
func TestArrayReturnsHeterogeneousSequence(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("array", func(ctx context.Context, args []any) (any, error) {
		name := args[0].(string)
		u := args[1].([]byte)
		return []any{int64(123), "abc", "hi " + name, u[3:8]}, nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := c.Invoke(ctx, "array", []any{"asdfghjkl", []byte("qwertyuiop")})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	got, ok := res.([]any)
	if !ok || len(got) != 4 {
		t.Fatalf("got %#v", res)
	}
	if got[0] != int64(123) {
		t.Fatalf("got[0] = %#v, want int64(123)", got[0])
	}
	if got[1] != "abc" {
		t.Fatalf("got[1] = %#v, want %q", got[1], "abc")
	}
	if got[2] != "hi asdfghjkl" {
		t.Fatalf("got[2] = %#v, want %q", got[2], "hi asdfghjkl")
	}
	if !bytes.Equal(got[3].([]byte), []byte("rtyui")) {
		t.Fatalf("got[3] = %#v, want %q", got[3], "rtyui")
	}
}

func TestVoidReturnsNil(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("void", func(ctx context.Context, args []any) (any, error) {
		return nil, nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := c.Invoke(ctx, "void", []any{"asdfghjkl", []byte("x")})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res != nil {
		t.Fatalf("want nil, got %v", res)
	}
}

func TestThrowPreservesProcedureNameInStack(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("explode", func(ctx context.Context, args []any) (any, error) {
		return nil, errBoom{}
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.Invoke(ctx, "explode", nil)
	if err == nil {
		t.Fatal("want error")
	}
	remote, ok := err.(*rpcerr.RemoteError)
	if !ok {
		t.Fatalf("want *rpcerr.RemoteError, got %T", err)
	}
	if !bytes.Contains([]byte(remote.Error()), []byte("explode")) {
		t.Fatalf("error %q does not mention procedure name", remote.Error())
	}
}

func TestConcurrentCallsDoNotBlockEachOther(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("slow", func(ctx context.Context, args []any) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return "slow done", nil
	})
	ext.Register("fast", func(ctx context.Context, args []any) (any, error) {
		return "fast done", nil
	})
	c, cleanup := newLinkedPair(t, ext)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	slowDone := make(chan time.Duration, 1)
	go func() {
		start := time.Now()
		if _, err := c.Invoke(ctx, "slow", nil); err != nil {
			t.Error(err)
		}
		slowDone <- time.Since(start)
	}()

	start := time.Now()
	if _, err := c.Invoke(ctx, "fast", nil); err != nil {
		t.Fatal(err)
	}
	fastElapsed := time.Since(start)
	if fastElapsed > 100*time.Millisecond {
		t.Fatalf("fast call took %v, expected to not be blocked by slow call", fastElapsed)
	}
	<-slowDone
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

package carrier

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	if got := nextBackoff(initialBackoff); got != 2*initialBackoff {
		t.Fatalf("got %v, want doubled %v", got, 2*initialBackoff)
	}
	d := initialBackoff
	for i := 0; i < 20; i++ {
		d = nextBackoff(d)
	}
	if d != maxBackoff {
		t.Fatalf("got %v, want cap %v", d, maxBackoff)
	}
}

func TestReconnectorRetriesUntilDialSucceeds(t *testing.T) {
	attempts := 0
	a, b := NewPipePair(4)
	dial := func(ctx context.Context) (Carrier, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("dial failed")
		}
		return a, nil
	}

	r := NewReconnector(dial)
	r.sleep = noSleep
	used := make(chan struct{})
	go r.Run(context.Background(), func(c Carrier) error {
		close(used)
		return nil
	})

	select {
	case <-used:
	case <-time.After(time.Second):
		t.Fatal("reconnector never reached a successful dial")
	}
	if attempts != 3 {
		t.Fatalf("want 3 dial attempts, got %d", attempts)
	}
	b.Close()
}

func TestReconnectorStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dial := func(ctx context.Context) (Carrier, error) {
		return nil, errors.New("always fails")
	}

	r := NewReconnector(dial)
	r.sleep = noSleep
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, func(c Carrier) error { return nil }) }()

	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatal("reconnector did not stop after cancellation")
	}
}

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

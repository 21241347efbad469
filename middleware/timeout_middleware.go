package middleware

import (
	"context"
	"time"

	"duplexrpc/server"
)

// Timeout bounds a procedure's execution to d, matching the teacher's
// timeout_middleware.go shape: race the real call against the context
// deadline, and report whichever finishes first. A timed-out procedure's
// goroutine is left to finish on its own — the protocol has no cancellation
// message to send the other side, so the in-flight call is only abandoned
// locally.
func Timeout(d time.Duration) Middleware {
	return func(next server.Procedure) server.Procedure {
		return func(ctx context.Context, args []any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				value any
				err   error
			}
			done := make(chan outcome, 1)
			go func() {
				v, err := next(ctx, args)
				done <- outcome{v, err}
			}()

			select {
			case o := <-done:
				return o.value, o.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"duplexrpc/server"
)

var errRateLimited = errors.New("middleware: rate limit exceeded")

// RateLimit admits calls through a token bucket, rejecting the rest
// immediately with errRateLimited rather than queuing them — the same
// admission-control shape as the teacher's rate_limit_middleware.go, reused
// here per-procedure instead of per-connection.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next server.Procedure) server.Procedure {
		return func(ctx context.Context, args []any) (any, error) {
			if !limiter.Allow() {
				return nil, errRateLimited
			}
			return next(ctx, args)
		}
	}
}

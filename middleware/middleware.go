// Package middleware composes cross-cutting concerns around a
// server.Procedure, the same "Middleware wraps HandlerFunc" chain the
// teacher's middleware package built around its RPCMessage HandlerFunc —
// rebased here onto server.Procedure since this server has no
// RPCMessage-shaped request/response pair, only a procedure's own positional
// args and single result.
package middleware

import "duplexrpc/server"

// Middleware wraps one Procedure with another, the composable unit.
type Middleware func(server.Procedure) server.Procedure

// Chain composes middlewares so the first listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next server.Procedure) server.Procedure {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

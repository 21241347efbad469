package main

import (
	"context"
	"errors"
	"time"

	"duplexrpc/server"
)

// registerEchoProcedures implements six worked examples so echoclient's
// seed scenarios have a real server to run against. hello/buffer/void/array
// are pure functions of their arguments; callback demonstrates the
// caller→callee reverse channel; explode demonstrates remote stack
// preservation.
func registerEchoProcedures(ext *server.Extension) {
	ext.Register("hello", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		return "hello " + name, nil
	})

	ext.Register("callback", func(ctx context.Context, args []any) (any, error) {
		name, _ := args[0].(string)
		cb, ok := args[1].(server.Callback)
		if !ok {
			return nil, errors.New("callback: second argument must be a callback")
		}
		for i := 0; i < 3; i++ {
			if err := cb(ctx, progressLabel(i)); err != nil {
				return nil, err
			}
			time.Sleep(30 * time.Millisecond)
		}
		return "hello callback " + name, nil
	})

	ext.Register("buffer", func(ctx context.Context, args []any) (any, error) {
		u, ok := args[0].([]byte)
		if !ok {
			return nil, errors.New("buffer: argument must be bytes")
		}
		if len(u) < 8 {
			return nil, errors.New("buffer: argument too short")
		}
		return u[3:8], nil
	})

	ext.Register("array", func(ctx context.Context, args []any) (any, error) {
		name, ok := args[0].(string)
		if !ok {
			return nil, errors.New("array: first argument must be a string")
		}
		u, ok := args[1].([]byte)
		if !ok {
			return nil, errors.New("array: second argument must be bytes")
		}
		if len(u) < 8 {
			return nil, errors.New("array: second argument too short")
		}
		return []any{int64(123), "abc", "hi " + name, u[3:8]}, nil
	})

	ext.Register("void", func(ctx context.Context, args []any) (any, error) {
		return nil, nil
	})

	ext.Register("explode", func(ctx context.Context, args []any) (any, error) {
		return nil, explodeError("explode: deliberate failure for stack-preservation testing")
	})
}

func progressLabel(i int) string {
	return "progress " + string(rune('0'+i))
}

type explodeError string

func (e explodeError) Error() string { return string(e) }

// Package rpclog is the pluggable logging sink every dispatched call goes
// through when one is configured. It mirrors the teacher's
// middleware/logging_middleware.go in shape — one record per dispatched
// call, duration plus procedure name plus error — but backs it with
// go.uber.org/zap's structured logger instead of the standard library's
// `log` package. zap is not a direct dependency of the teacher, but it is
// already present in the teacher's own module graph (pulled in transitively
// by go.etcd.io/etcd/client/v3); promoting it to a direct, exercised
// dependency here replaces that dead weight with a used one now that the
// etcd-backed registry itself has been dropped (see DESIGN.md).
package rpclog

import (
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a lazily-formatted structured log field.
type Field = zapcore.Field

// String, Duration, Int, and Err construct Fields without importing zap
// directly at call sites — the logger is an interface, and callers should
// never need to reach past it to zap's own types.
func String(key, val string) Field             { return zap.String(key, val) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Int(key string, val int) Field            { return zap.Int(key, val) }
func Err(err error) Field                      { return zap.NamedError("error", err) }

// Logger is the sink every duplex.Pipeline and server.Engine accepts. Their
// constructors replace a nil Logger with Nop(), so the code that logs never
// needs a nil check.
type Logger interface {
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

type zapLogger struct{ z *zap.Logger }

// New wraps a production zap.Logger. Callers that already have a
// *zap.Logger configured for their process (log level, sampling, output
// paths) should use Wrap instead.
func New() (Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("rpclog: %w", err)
	}
	return Wrap(z), nil
}

// Wrap adapts an existing *zap.Logger.
func Wrap(z *zap.Logger) Logger { return &zapLogger{z: z} }

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

type nopLogger struct{}

func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// Nop returns a Logger that discards everything, for pipelines that don't
// configure a logger.
func Nop() Logger { return nopLogger{} }

// SummarizeArg renders one procedure argument for a log line: callbacks as
// "Function()", byte slices as "Bytes(n)" rather than dumping their
// contents, everything else via fmt's default verb.
func SummarizeArg(v any) string {
	if b, ok := v.([]byte); ok {
		return fmt.Sprintf("Bytes(%d)", len(b))
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "Function()"
	}
	return fmt.Sprintf("%v", v)
}

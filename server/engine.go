package server

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"duplexrpc/message"
	"duplexrpc/rpclog"
)

// Mode selects how the engine dispatches inbound CALLs.
type Mode int

const (
	// Sequential dispatches CALLs one at a time, in arrival order — required
	// for HTTP request adapters, where one request's response body carries
	// exactly one call's frames.
	Sequential Mode = iota
	// Concurrent dispatches each CALL in its own goroutine without
	// awaiting it, letting returns and callbacks interleave on the
	// outbound stream — required for duplex carriers.
	Concurrent
)

// Emit sends one Message on the pipeline's outbound stream. Implementations
// must be safe to call from multiple goroutines in Concurrent mode.
type Emit func(*message.Message) error

// Engine dispatches inbound Messages to an Extension and emits RETURN,
// ERROR, or CALLBACK messages in response.
type Engine struct {
	Extension *Extension
	Logger    rpclog.Logger
	Mode      Mode
}

// NewEngine constructs an Engine. A nil logger is replaced with a no-op sink.
func NewEngine(ext *Extension, mode Mode, logger rpclog.Logger) *Engine {
	if logger == nil {
		logger = rpclog.Nop()
	}
	return &Engine{Extension: ext, Logger: logger, Mode: mode}
}

// HandleMessage is the engine's single entry point for inbound Messages,
// wired to the duplex pipeline's decode chain. Non-CALL messages are
// dropped: a server only ever receives CALLs — an inbound CALLBACK (which
// belongs to a client engine on the other side of some other pipeline) is
// not dispatched as a procedure invocation.
func (e *Engine) HandleMessage(ctx context.Context, msg *message.Message, emit Emit) {
	if msg.Type != message.Call {
		return
	}
	if e.Mode == Concurrent {
		go e.dispatch(ctx, msg, emit)
		return
	}
	e.dispatch(ctx, msg, emit)
}

func (e *Engine) dispatch(ctx context.Context, msg *message.Message, emit Emit) {
	name, ok := msg.ProcedureName()
	if !ok {
		e.fail(msg.ID, emit, "", errors.New("server: CALL missing procedure name"))
		return
	}

	proc, ok := e.Extension.lookup(name)
	if !ok {
		e.fail(msg.ID, emit, name, errUnknownProcedure(name))
		return
	}

	args := make([]any, 0, len(msg.Args)-1)
	for _, item := range msg.Args[1:] {
		if item.Tag == message.Function {
			handle, ok := item.Payload.(uint32)
			if !ok {
				e.fail(msg.ID, emit, name, errors.New("server: malformed callback handle"))
				return
			}
			args = append(args, e.makeCallback(handle, emit))
		} else {
			args = append(args, item.Payload)
		}
	}

	start := time.Now()
	result, err := proc(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		e.logCall(name, args, elapsed, err)
		e.fail(msg.ID, emit, name, err)
		return
	}

	e.logCall(name, args, elapsed, nil)
	if sendErr := emit(&message.Message{ID: msg.ID, Type: message.Return, Result: result}); sendErr != nil {
		e.Logger.Warn("server: failed to emit RETURN", rpclog.String("procedure", name), rpclog.Err(sendErr))
	}
}

// makeCallback builds the local proxy a FUNCTION-tagged argument stands in
// for: a closure that, when invoked, serializes a CALLBACK message
// addressed to handle and emits it. The call blocks on emit so the
// caller's flow control contract holds.
func (e *Engine) makeCallback(handle uint32, emit Emit) Callback {
	return func(_ context.Context, args ...any) error {
		items := make([]message.ArgItem, len(args))
		for i, a := range args {
			items[i] = message.ArgItem{Tag: message.Others, Payload: a}
		}
		return emit(&message.Message{ID: handle, Type: message.Callback, Args: items})
	}
}

func (e *Engine) fail(id uint32, emit Emit, procedure string, err error) {
	stacked := errors.WithStack(err)
	errMsg := &message.Message{
		ID:   id,
		Type: message.Error,
		Err: &message.ErrorPayload{
			Message: err.Error(),
			Stack:   formatStack(stacked, procedure),
		},
	}
	if sendErr := emit(errMsg); sendErr != nil {
		e.Logger.Warn("server: failed to emit ERROR", rpclog.String("procedure", procedure), rpclog.Err(sendErr))
	}
}

// formatStack renders a github.com/pkg/errors stack trace with the failing
// procedure's name as its topmost frame label, so a client-side error
// message still names the procedure that actually threw once it has
// crossed the wire and lost its native stack.
func formatStack(err error, procedure string) string {
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	st, ok := err.(stackTracer)
	if !ok {
		return procedure + ": " + err.Error()
	}
	return procedure + ": " + err.Error() + "\n" + trimStack(st.StackTrace())
}

func trimStack(trace errors.StackTrace) string {
	var out string
	for i, frame := range trace {
		if i > 8 {
			break
		}
		out += fmt.Sprintf("%+v\n", frame)
	}
	return out
}

func (e *Engine) logCall(name string, args []any, elapsed time.Duration, err error) {
	fields := []rpclog.Field{
		rpclog.String("procedure", name),
		rpclog.Duration("elapsed", elapsed),
	}
	for i, a := range args {
		fields = append(fields, rpclog.String("arg"+strconv.Itoa(i), rpclog.SummarizeArg(a)))
	}
	if err != nil {
		e.Logger.Error("server: call failed", append(fields, rpclog.Err(err))...)
		return
	}
	e.Logger.Info("server: call completed", fields...)
}

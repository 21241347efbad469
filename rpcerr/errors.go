// Package rpcerr defines the error kinds the protocol can raise: remote
// procedure errors, framing/decryption errors, serialization errors,
// carrier errors, and local usage errors. Framing, decryption, and codec
// errors are fatal to their pipeline; a RemoteError never is.
package rpcerr

import "fmt"

// RemoteError is surfaced at the client call site when the server's
// procedure threw. Message and Stack come from the wire ERROR payload
// verbatim; Unwrap exposes the local throw site as the chained cause so both
// the remote procedure's stack and the local Invoke call site remain
// visible in one error.
type RemoteError struct {
	Message string
	Stack   string
	cause   error
}

func (e *RemoteError) Error() string {
	if e.Stack != "" {
		return fmt.Sprintf("%s\nremote stack:\n%s", e.Message, e.Stack)
	}
	return e.Message
}

func (e *RemoteError) Unwrap() error { return e.cause }

// NewRemoteError attaches cause as the chained local throw site.
func NewRemoteError(message, stack string, cause error) *RemoteError {
	return &RemoteError{Message: message, Stack: stack, cause: cause}
}

// FramingError signals a malformed frame header (bad magic, or the stream
// ended mid-frame). Fatal to the pipeline: the byte stream can no longer be
// trusted to contain record boundaries.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return "rpcerr: framing error: " + e.Reason }

// DecryptError signals an AEAD authentication failure. Fatal, for the same
// reason as FramingError.
type DecryptError struct {
	Cause error
}

func (e *DecryptError) Error() string { return "rpcerr: decrypt error: " + e.Cause.Error() }
func (e *DecryptError) Unwrap() error { return e.Cause }

// CodecError signals a malformed message-codec payload. Fatal.
type CodecError struct {
	Cause error
}

func (e *CodecError) Error() string { return "rpcerr: codec error: " + e.Cause.Error() }
func (e *CodecError) Unwrap() error { return e.Cause }

// CarrierError wraps a disconnect, timeout, or cancellation from the
// underlying transport. Fatal.
type CarrierError struct {
	Cause error
}

func (e *CarrierError) Error() string { return "rpcerr: carrier error: " + e.Cause.Error() }
func (e *CarrierError) Unwrap() error { return e.Cause }

// UsageError is a synchronous, local-only error — e.g. a nil callback
// argument. It never touches the wire.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string { return "rpcerr: usage error: " + e.Reason }

// IsFatal reports whether err should poison the owning pipeline:
// framing/decryption/codec/carrier errors corrupt the shared byte stream or
// its key state and are fatal; remote and usage errors are scoped to one
// call and are not.
func IsFatal(err error) bool {
	switch err.(type) {
	case *FramingError, *DecryptError, *CodecError, *CarrierError:
		return true
	default:
		return false
	}
}

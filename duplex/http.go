package duplex

import (
	"context"
	"errors"
	"io"
	"net/http"

	"duplexrpc/carrier"
	"duplexrpc/server"
)

// NewHTTPHandler adapts ext into an http.Handler by wiring carrier.HTTPHandler
// to a fresh server Pipeline for every request: one POST body is one
// dispatch pass, run Sequential since a response body carries exactly one
// call's frames. The pipeline's per-call context is the request itself
// (carrier.WithRequest, set by HTTPHandler before run is invoked),
// recoverable from inside an extension procedure via
// carrier.RequestFromContext — this is the concrete end-to-end wiring that
// makes per-call context propagation real for the HTTP adapter.
func NewHTTPHandler(ext *server.Extension, opts Options) http.Handler {
	opts.Mode = server.Sequential
	return carrier.HTTPHandler(func(ctx context.Context, c *carrier.OneShotCarrier) error {
		pipeline := NewServerPipeline(c, ext, opts)
		err := pipeline.Run(ctx)
		if errors.Is(err, io.EOF) {
			// OneShotCarrier.Recv returns io.EOF once the single request
			// body has been fully dispatched — a clean end of this
			// request's pipeline, not a transport failure.
			return nil
		}
		return err
	})
}

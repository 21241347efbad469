// HTTP adapters: a request/response cycle stands in for one coherent batch
// of frames, so an HTTP carrier runs the server engine in Sequential mode
// and needs wire.Renormalize to clean up frame boundaries a round trip
// through net/http may have disturbed. Shape
// grounded on the teacher's transport/client_transport.go (seq-keyed pending
// map feeding a single reader loop) — one HTTP round trip plays the role one
// TCP write/read pair plays there.
package carrier

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"duplexrpc/wire"
)

// OneShotCarrier is a Carrier good for exactly one Recv: it replays a fixed
// inbound payload once, and accumulates every Send into an outbound buffer.
// It backs both the HTTP server adapter (one request body in, one response
// body out) and tests that just want to drive a pipeline with canned bytes.
type OneShotCarrier struct {
	inbound []byte
	recvCtx context.Context
	served  bool

	mu       sync.Mutex
	outbound []byte
}

// NewOneShotCarrier wraps inbound, the single chunk Recv will return. recvCtx
// is the per-call context Recv hands back alongside it — for the HTTP
// adapter, the request's own context carrying WithRequest(r) — so the
// extension procedure invoked from this one dispatch pass can recover it.
// A nil recvCtx falls back to whatever ctx Recv is called with.
func NewOneShotCarrier(inbound []byte, recvCtx context.Context) *OneShotCarrier {
	return &OneShotCarrier{inbound: inbound, recvCtx: recvCtx}
}

func (c *OneShotCarrier) Send(_ context.Context, chunk []byte) error {
	c.mu.Lock()
	c.outbound = append(c.outbound, chunk...)
	c.mu.Unlock()
	return nil
}

func (c *OneShotCarrier) Recv(ctx context.Context) ([]byte, context.Context, error) {
	if c.served {
		return nil, ctx, io.EOF
	}
	c.served = true
	callCtx := c.recvCtx
	if callCtx == nil {
		callCtx = ctx
	}
	return c.inbound, callCtx, nil
}

func (c *OneShotCarrier) Close() error { return nil }

// Outbound returns everything Send has accumulated so far.
func (c *OneShotCarrier) Outbound() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, len(c.outbound))
	copy(out, c.outbound)
	return out
}

// requestContextKey is the context key WithRequest/RequestFromContext use to
// carry the originating *http.Request — attached before the server engine's
// dispatch runs, and re-entered fresh on every inbound chunk since every
// chunk here is exactly one request.
type requestContextKey struct{}

// WithRequest attaches r to ctx so an extension procedure dispatched from
// this request's OneShotCarrier can recover the originating HTTP request.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestContextKey{}, r)
}

// RequestFromContext recovers the *http.Request WithRequest attached. ok is
// false for calls dispatched over any carrier other than the HTTP adapter's.
func RequestFromContext(ctx context.Context) (r *http.Request, ok bool) {
	r, ok = ctx.Value(requestContextKey{}).(*http.Request)
	return r, ok
}

// HTTPHandler adapts a one-shot carrier into a net/http.Handler: the request
// body becomes the inbound chunk, run is handed the carrier to drive a
// server pipeline through exactly one dispatch pass, and whatever it sent is
// written back as the response body. The carrier's per-call context carries
// r itself (via WithRequest), so a duplex.Pipeline built on top of it
// dispatches every CALL in this request with r recoverable from ctx, and
// that value never leaks into a concurrent request's dispatch — each gets
// its own OneShotCarrier and its own context.WithValue chain.
func HTTPHandler(run func(ctx context.Context, c *OneShotCarrier) error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		callCtx := WithRequest(r.Context(), r)
		c := NewOneShotCarrier(body, callCtx)
		if err := run(callCtx, c); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(c.Outbound())
	})
}

// HTTPClientCarrier is the caller side of the same adapter: Send performs
// one POST and stashes its (renormalized) response body; Recv hands that
// response to the client engine's read loop. One Send/Recv pair is one HTTP
// round trip, matching the server adapter's one-dispatch-per-request shape.
type HTTPClientCarrier struct {
	url    string
	client *http.Client

	mu     sync.Mutex
	respCh chan []byte
	errCh  chan error
}

// NewHTTPClientCarrier targets url with client (http.DefaultClient if nil).
func NewHTTPClientCarrier(url string, client *http.Client) *HTTPClientCarrier {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClientCarrier{
		url:    url,
		client: client,
		respCh: make(chan []byte, 8),
		errCh:  make(chan error, 8),
	}
}

func (c *HTTPClientCarrier) Send(ctx context.Context, chunk []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(chunk))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		c.errCh <- err
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.errCh <- err
		return err
	}
	if resp.StatusCode != http.StatusOK {
		err := errors.New("carrier: http adapter: " + resp.Status)
		c.errCh <- err
		return err
	}

	normalized, err := wire.Renormalize(body)
	if err != nil {
		c.errCh <- err
		return err
	}
	select {
	case c.respCh <- normalized:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Recv has no per-call context of its own — the client side has no inbound
// request to propagate — so it hands back ctx unchanged.
func (c *HTTPClientCarrier) Recv(ctx context.Context) ([]byte, context.Context, error) {
	select {
	case b := <-c.respCh:
		return b, ctx, nil
	case err := <-c.errCh:
		return nil, ctx, err
	case <-ctx.Done():
		return nil, ctx, ctx.Err()
	}
}

func (c *HTTPClientCarrier) Close() error { return nil }

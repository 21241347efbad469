package duplex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"duplexrpc/carrier"
	"duplexrpc/server"
)

// taggingTransport stamps every outbound request with a per-call header, the
// test's stand-in for whatever distinguishes one HTTP request from another
// (cookies, auth, a load balancer's routing decision).
type taggingTransport struct {
	tag string
}

func (t *taggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Call-Tag", t.tag)
	return http.DefaultTransport.RoundTrip(req)
}

// TestHTTPHandlerPropagatesPerCallContext wires carrier.HTTPHandler to a
// real duplex.Pipeline via NewHTTPHandler and drives it with two concurrent
// HTTP clients carrying different tags, proving both that the HTTP adapter's
// per-call context mechanism actually exists end to end (an extension
// procedure recovers the originating *http.Request via
// carrier.RequestFromContext) and that it is isolated per request: call A's
// tag is never observable from call B, even though both run concurrently
// against the same Extension.
func TestHTTPHandlerPropagatesPerCallContext(t *testing.T) {
	ext := server.NewExtension()
	ext.Register("whoami", func(ctx context.Context, args []any) (any, error) {
		r, ok := carrier.RequestFromContext(ctx)
		if !ok {
			return nil, errors.New("no *http.Request in dispatch context")
		}
		return r.Header.Get("X-Call-Tag"), nil
	})

	ts := httptest.NewServer(NewHTTPHandler(ext, Options{}))
	defer ts.Close()

	invoke := func(tag string) (string, error) {
		httpClient := &http.Client{Transport: &taggingTransport{tag: tag}}
		c := carrier.NewHTTPClientCarrier(ts.URL, httpClient)
		cp := NewClientPipeline(c, Options{})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		go cp.Run(ctx)

		res, err := cp.Client().Invoke(ctx, "whoami", nil)
		if err != nil {
			return "", err
		}
		s, _ := res.(string)
		return s, nil
	}

	var wg sync.WaitGroup
	results := make(map[string]string, 2)
	var mu sync.Mutex
	for _, tag := range []string{"A", "B"} {
		wg.Add(1)
		go func(tag string) {
			defer wg.Done()
			got, err := invoke(tag)
			if err != nil {
				t.Errorf("invoke(%s): %v", tag, err)
				return
			}
			mu.Lock()
			results[tag] = got
			mu.Unlock()
		}(tag)
	}
	wg.Wait()

	if results["A"] != "A" || results["B"] != "B" {
		t.Fatalf("per-call HTTP context leaked or missing: got %v", results)
	}
}

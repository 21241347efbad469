// Package duplex wires one carrier.Carrier to one RPC engine (a client.Engine
// xor a server.Engine), running the inbound decode chain and outbound encode
// chain:
//
//	inbound:  carrier.Recv → wire.Decoder.Feed → msgcodec.Decode → engine
//	outbound: engine.emit → msgcodec.Encode → wire.Encoder.Encode → carrier.Send
//
// This plays the role the teacher splits across transport/client_transport.go
// (recvLoop routing frames by sequence number) and server/server.go (accept
// loop feeding ServeConn); here one Pipeline type serves both directions,
// since the protocol is symmetric enough that a pipeline doesn't care which
// engine sits behind it.
package duplex

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"duplexrpc/carrier"
	"duplexrpc/client"
	"duplexrpc/message"
	"duplexrpc/msgcodec"
	"duplexrpc/rpccipher"
	"duplexrpc/rpclog"
	"duplexrpc/rpcerr"
	"duplexrpc/server"
	"duplexrpc/wire"
)

// Direction labels a frame passed to Options.Intercept.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// Options configures a Pipeline. All fields are optional.
type Options struct {
	// RPCKey, if non-empty, derives an rpccipher.Suite and encrypts every
	// frame. Empty means no encryption.
	RPCKey string

	// Logger receives one record per dispatched call (server side only).
	Logger rpclog.Logger

	// Mode selects server dispatch order; ignored for client pipelines.
	Mode server.Mode

	// OutboundRate/OutboundBurst configure a token-bucket limiter on the
	// outbound stream, reusing golang.org/x/time/rate the way the teacher's
	// rate-limit middleware does for inbound request admission. Zero means
	// unlimited.
	OutboundRate  float64
	OutboundBurst int

	// Intercept, if set, observes every frame's encoded bytes — handy for
	// tests that want to assert on wire-level shape without a real socket.
	Intercept func(dir Direction, frame []byte)
}

// Pipeline couples a carrier to exactly one of a server.Engine or a
// client.Engine.
type Pipeline struct {
	carrier carrier.Carrier
	logger  rpclog.Logger

	encoder wire.Encoder
	decoder wire.Decoder
	limiter *rate.Limiter
	intercept func(Direction, []byte)

	cipherReady chan struct{}
	cipherErr   error

	serverEngine *server.Engine
	clientEngine *client.Engine

	sendMu sync.Mutex
	ctx    context.Context
}

func newPipeline(c carrier.Carrier, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = rpclog.Nop()
	}
	p := &Pipeline{
		carrier:   c,
		logger:    logger,
		intercept: opts.Intercept,
		ctx:       context.Background(),
	}
	if opts.OutboundRate > 0 {
		burst := opts.OutboundBurst
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(opts.OutboundRate), burst)
	}

	if opts.RPCKey == "" {
		return p
	}
	// Key derivation (salted PBKDF2) runs off the construction path so
	// NewServerPipeline and NewClientPipeline stay synchronous and never blocks on CPU-bound key stretching; the
	// first Send/Recv blocks on it instead.
	p.cipherReady = make(chan struct{})
	go func() {
		suite, err := rpccipher.Derive(opts.RPCKey)
		if err == nil {
			p.encoder.Cipher = suite
			p.decoder.Cipher = suite
		}
		p.cipherErr = err
		close(p.cipherReady)
	}()
	return p
}

func (p *Pipeline) awaitCipher() error {
	if p.cipherReady == nil {
		return nil
	}
	<-p.cipherReady
	return p.cipherErr
}

// NewServerPipeline builds a Pipeline that dispatches inbound CALLs against
// ext and emits RETURN/ERROR/CALLBACK frames on c.
func NewServerPipeline(c carrier.Carrier, ext *server.Extension, opts Options) *Pipeline {
	p := newPipeline(c, opts)
	p.serverEngine = server.NewEngine(ext, opts.Mode, p.logger)
	return p
}

// NewClientPipeline builds a Pipeline backing a caller-side client.Engine.
func NewClientPipeline(c carrier.Carrier, opts Options) *Pipeline {
	p := newPipeline(c, opts)
	p.clientEngine = client.NewEngine(p.emit)
	return p
}

// Client returns the client.Engine a client Pipeline was built with, nil for
// a server Pipeline.
func (p *Pipeline) Client() *client.Engine { return p.clientEngine }

// emit is both engines' Emit callback: encode, rate-limit, frame, and send,
// serialized by sendMu so concurrent goroutines (Concurrent server dispatch,
// or a client call racing a server callback on the same duplex pipeline)
// never interleave partial frames on the carrier — the same hazard the
// teacher's transport.ClientTransport.sending mutex guards against.
func (p *Pipeline) emit(msg *message.Message) error {
	if err := p.awaitCipher(); err != nil {
		return err
	}
	data, err := msgcodec.Encode(msg)
	if err != nil {
		return err
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(p.ctx); err != nil {
			return err
		}
	}
	frame := p.encoder.Encode(data)
	if p.intercept != nil {
		p.intercept(Outbound, frame)
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	return p.carrier.Send(p.ctx, frame)
}

// Run drives the inbound chain until the carrier fails or ctx is cancelled.
// It blocks; callers typically invoke it in its own goroutine for a client
// pipeline (so Invoke calls on the same goroutine that started it can still
// proceed) and directly for a server pipeline serving one connection.
func (p *Pipeline) Run(ctx context.Context) error {
	p.ctx = ctx
	for {
		chunk, callCtx, err := p.carrier.Recv(ctx)
		if err != nil {
			wrapped := &rpcerr.CarrierError{Cause: err}
			p.Fail(wrapped)
			return wrapped
		}
		if p.intercept != nil {
			p.intercept(Inbound, chunk)
		}
		if err := p.awaitCipher(); err != nil {
			p.Fail(err)
			return err
		}

		records, err := p.decoder.Feed(chunk)
		if err != nil {
			p.Fail(err)
			return err
		}
		// callCtx is this chunk's per-call context: for a carrier like the
		// HTTP adapter's, it carries the originating request and is
		// re-entered fresh on every inbound chunk, never the shared
		// background ctx every other chunk also sees.
		for _, rec := range records {
			msg, err := msgcodec.Decode(rec)
			if err != nil {
				p.Fail(err)
				return err
			}
			p.dispatch(callCtx, msg)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, msg *message.Message) {
	if p.serverEngine != nil {
		p.serverEngine.HandleMessage(ctx, msg, p.emit)
		return
	}
	p.clientEngine.OnMessage(msg)
}

// Fail poisons the pipeline: for a client pipeline, every pending Invoke
// call is rejected with err. A server pipeline has no pending-call table of
// its own to fail — in-flight procedures simply find their eventual emit
// fails once the carrier is gone.
func (p *Pipeline) Fail(err error) {
	if p.clientEngine != nil {
		p.clientEngine.Fail(err)
	}
}

// Close releases the underlying carrier.
func (p *Pipeline) Close() error {
	return p.carrier.Close()
}

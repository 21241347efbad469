// Command echoserver runs a duplex RPC server over TCP, exposing six
// worked-example procedures (hello, callback, buffer, array, void, a
// throwing procedure) so echoclient has something to call end to end.
// Grounded on the teacher's test/integration_test.go "start server,
// sleep, connect client" shape, replayed here as two standalone binaries
// instead of one in-process test.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"

	"duplexrpc/carrier"
	"duplexrpc/duplex"
	"duplexrpc/rpclog"
	"duplexrpc/server"
)

func main() {
	addr := flag.String("addr", ":19191", "listen address")
	rpcKey := flag.String("rpckey", "", "pre-shared key enabling AEAD encryption; empty disables it")
	flag.Parse()

	logger, err := rpclog.New()
	if err != nil {
		log.Fatalf("echoserver: %v", err)
	}

	ext := server.NewExtension()
	registerEchoProcedures(ext)

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatalf("echoserver: listen: %v", err)
	}
	log.Printf("echoserver: listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("echoserver: accept: %v", err)
			continue
		}
		go serveConn(conn, ext, logger, *rpcKey)
	}
}

func serveConn(conn net.Conn, ext *server.Extension, logger rpclog.Logger, rpcKey string) {
	defer conn.Close()
	c := carrier.NewSocketCarrier(conn)
	pipeline := duplex.NewServerPipeline(c, ext, duplex.Options{
		RPCKey: rpcKey,
		Logger: logger,
		Mode:   server.Concurrent,
	})
	if err := pipeline.Run(context.Background()); err != nil {
		log.Printf("echoserver: connection from %s ended: %v", conn.RemoteAddr(), err)
	}
}

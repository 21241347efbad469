// Command echoclient dials echoserver and drives six worked examples over
// a real TCP socket, printing each result. It is the
// end-to-end demo the in-process duplex tests stand in for in CI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"time"

	"duplexrpc/carrier"
	"duplexrpc/client"
	"duplexrpc/duplex"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:19191", "echoserver address")
	rpcKey := flag.String("rpckey", "", "pre-shared key, must match echoserver's")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("echoclient: dial: %v", err)
	}
	defer conn.Close()

	c := carrier.NewSocketCarrier(conn)
	pipeline := duplex.NewClientPipeline(c, duplex.Options{RPCKey: *rpcKey})
	engine := pipeline.Client()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := pipeline.Run(ctx); err != nil {
			log.Printf("echoclient: pipeline ended: %v", err)
		}
	}()

	call := func(name string, args ...any) any {
		callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
		defer callCancel()
		res, err := engine.Invoke(callCtx, name, args)
		if err != nil {
			fmt.Printf("%-10s error: %v\n", name, err)
			return nil
		}
		fmt.Printf("%-10s => %v\n", name, res)
		return res
	}

	call("hello", "asdfghjkl")

	var seen []string
	cb := client.Callback(func(args ...any) {
		seen = append(seen, fmt.Sprint(args...))
	})
	call("callback", "asdfghjkl", cb)
	fmt.Printf("%-10s observed %d callback invocations: %v\n", "callback", len(seen), seen)

	call("buffer", []byte("qwertyuiop"))
	call("array", "asdfghjkl", []byte("qwertyuiop"))
	call("void", "asdfghjkl", []byte("x"))
	call("explode")
}

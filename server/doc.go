// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection lifecycle for the webs WebSocket engine.
//
// A Server owns one listening socket, an accept goroutine and one worker
// goroutine per connection. Each worker performs the opening handshake,
// then reads frames strictly in arrival order, reassembles fragmented
// messages and dispatches them to the Events callbacks. Callbacks for one
// connection always run on that connection's worker, one at a time.
//
//	srv, err := server.Start(7752, server.Events{
//	    OnData: func(c *server.Conn, data []byte) { c.SendBytes(data) },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Shutdown(context.Background())
package server

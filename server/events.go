// File: server/events.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

// Events is the callback table of a server. Every field is optional; a
// nil callback is a no-op, except OnPing whose absence makes the server
// answer pings with a pong echoing the ping payload.
//
// Callbacks run on the connection's worker goroutine. OnError receives an
// error whose kind is available through api.KindOf; it always fires before
// OnClose. OnClose fires exactly once for every connection that saw OnOpen.
type Events struct {
	OnOpen  func(c *Conn)
	OnData  func(c *Conn, data []byte)
	OnClose func(c *Conn)
	OnError func(c *Conn, err error)
	OnPing  func(c *Conn)
	OnPong  func(c *Conn)
}

func (e *Events) open(c *Conn) {
	if e.OnOpen != nil {
		e.OnOpen(c)
	}
}

func (e *Events) data(c *Conn, b []byte) {
	if e.OnData != nil {
		e.OnData(c, b)
	}
}

func (e *Events) close(c *Conn) {
	if e.OnClose != nil {
		e.OnClose(c)
	}
}

func (e *Events) fail(c *Conn, err error) {
	if e.OnError != nil {
		e.OnError(c, err)
	}
}

func (e *Events) pong(c *Conn) {
	if e.OnPong != nil {
		e.OnPong(c)
	}
}

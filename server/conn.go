// File: server/conn.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/webs/api"
	"github.com/momentics/webs/internal/registry"
	"github.com/momentics/webs/protocol"
)

// Conn is one accepted client. Its reading side belongs to the worker;
// the Send family may be called from any goroutine.
type Conn struct {
	id      uint64
	session string
	srv     *Server
	netConn net.Conn
	br      *bufio.Reader
	info    *protocol.HandshakeInfo
	handle  atomic.Pointer[registry.Handle]
	log     *slog.Logger

	writeMu sync.Mutex
	opened  atomic.Bool
	closing atomic.Bool
	done    chan struct{}
}

func newConn(s *Server, nc net.Conn) *Conn {
	c := &Conn{
		id:      connIDs.Add(1) - 1,
		session: uuid.NewString(),
		srv:     s,
		netConn: nc,
		done:    make(chan struct{}),
	}
	c.log = s.log.With("conn_id", c.id, "session", c.session, "remote", nc.RemoteAddr().String())
	return c
}

// ID returns the process-wide connection id.
func (c *Conn) ID() uint64 { return c.id }

// Session returns a random token identifying this connection in logs.
func (c *Conn) Session() string { return c.session }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }

// Server returns the owning server.
func (c *Conn) Server() *Server { return c.srv }

// Handshake returns the parsed upgrade request, or nil before OnOpen.
func (c *Conn) Handshake() *protocol.HandshakeInfo {
	if !c.opened.Load() {
		return nil
	}
	info := *c.info
	return &info
}

// Done is closed when the connection's worker has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send writes text as one unfragmented text frame.
func (c *Conn) Send(text string) error {
	return c.writeFrame(protocol.OpcodeText, []byte(text))
}

// SendBytes writes data as one unfragmented binary frame.
func (c *Conn) SendBytes(data []byte) error {
	return c.writeFrame(protocol.OpcodeBinary, data)
}

// Ping sends a ping frame. payload must not exceed 125 bytes.
func (c *Conn) Ping(payload []byte) error {
	if len(payload) > protocol.MaxControlPayloadLen {
		return api.NewError(api.KindOverflow, "ping payload too large", nil).
			WithContext("len", len(payload))
	}
	return c.writeFrame(protocol.OpcodePing, payload)
}

// Pong sends an empty pong frame.
func (c *Conn) Pong() error {
	return c.writeFrame(protocol.OpcodePong, nil)
}

// Eject closes the connection. See Server.Eject.
func (c *Conn) Eject() { c.srv.Eject(c) }

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	if c.closing.Load() {
		return api.ErrConnClosed
	}
	buf := c.srv.frames.Get()
	defer c.srv.frames.Put(buf)
	*buf = protocol.AppendFrame(*buf, payload, opcode)
	if err := c.write(*buf); err != nil {
		return fmt.Errorf("write frame opcode=%#x: %w", opcode, err)
	}
	return nil
}

// write sends b whole under the write lock.
func (c *Conn) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if d := c.srv.cfg.WriteTimeout; d > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(d))
	}
	n, err := c.netConn.Write(b)
	c.srv.metrics.Add(MetricBytesSent, int64(n))
	return err
}

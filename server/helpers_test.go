// File: server/helpers_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/momentics/webs/api"
	"github.com/momentics/webs/protocol"
	"github.com/momentics/webs/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

var clientKey = [4]byte{0x37, 0xfa, 0x21, 0x3d}

// recorder captures every callback on buffered channels.
type recorder struct {
	opened chan *server.Conn
	data   chan []byte
	closed chan *server.Conn
	errs   chan error
	pings  chan *server.Conn
	pongs  chan *server.Conn
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan *server.Conn, 64),
		data:   make(chan []byte, 64),
		closed: make(chan *server.Conn, 64),
		errs:   make(chan error, 64),
		pings:  make(chan *server.Conn, 64),
		pongs:  make(chan *server.Conn, 64),
	}
}

// events wires the recorder. OnData echoes text back when echo is set.
func (r *recorder) events(echo bool) server.Events {
	return server.Events{
		OnOpen: func(c *server.Conn) { r.opened <- c },
		OnData: func(c *server.Conn, b []byte) {
			r.data <- append([]byte{}, b...)
			if echo {
				_ = c.Send(string(b))
			}
		},
		OnClose: func(c *server.Conn) { r.closed <- c },
		OnError: func(_ *server.Conn, err error) { r.errs <- err },
		OnPong:  func(c *server.Conn) { r.pongs <- c },
	}
}

func recv[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		var zero T
		t.Fatalf("timed out waiting for event")
		return zero
	}
}

func assertNone[T any](t *testing.T, ch chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event: %v", v)
	default:
	}
}

func startServer(t *testing.T, events server.Events, opts ...server.ServerOption) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	srv, err := server.Listen(cfg, events, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func wsURL(srv *server.Server) string {
	return "ws://" + srv.Addr().String() + "/"
}

// rawClient speaks the protocol by hand so tests control every frame.
type rawClient struct {
	t    *testing.T
	conn net.Conn
	br   *bufio.Reader
}

func dialTCP(t *testing.T, srv *server.Server) *rawClient {
	t.Helper()
	nc, err := net.DialTimeout("tcp", srv.Addr().String(), waitTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	_ = nc.SetDeadline(time.Now().Add(2 * waitTimeout))
	return &rawClient{t: t, conn: nc, br: bufio.NewReader(nc)}
}

const sampleKey = "dGhlIHNhbXBsZSBub25jZQ=="

func upgradeRequest(key string) string {
	return fmt.Sprintf("GET /chat HTTP/1.1\r\n"+
		"Host: localhost\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n", key)
}

// dialRaw connects and completes the opening handshake.
func dialRaw(t *testing.T, srv *server.Server) *rawClient {
	t.Helper()
	rc := dialTCP(t, srv)
	rc.writeString(upgradeRequest(sampleKey))
	resp := rc.response()
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Equal(t, protocol.ComputeAcceptKey(sampleKey), resp.Header.Get("Sec-WebSocket-Accept"))
	return rc
}

func (rc *rawClient) writeString(s string) {
	rc.t.Helper()
	_, err := io.WriteString(rc.conn, s)
	require.NoError(rc.t, err)
}

func (rc *rawClient) response() *http.Response {
	rc.t.Helper()
	resp, err := http.ReadResponse(rc.br, nil)
	require.NoError(rc.t, err)
	return resp
}

func (rc *rawClient) send(opcode byte, fin bool, payload string) {
	rc.t.Helper()
	_, err := rc.conn.Write(protocol.MaskFrame([]byte(payload), opcode, fin, clientKey))
	require.NoError(rc.t, err)
}

// readFrame reads one unmasked server frame.
func (rc *rawClient) readFrame() (byte, string) {
	rc.t.Helper()
	var hdr [2]byte
	_, err := io.ReadFull(rc.br, hdr[:])
	require.NoError(rc.t, err)
	h := protocol.HeaderFromBytes(hdr[0], hdr[1])
	require.False(rc.t, h.Masked(), "server frames are never masked")
	require.True(rc.t, h.Fin(), "server frames are never fragmented")

	n := uint64(h.Length())
	switch n {
	case protocol.PayloadLen16:
		var ext [2]byte
		_, err = io.ReadFull(rc.br, ext[:])
		require.NoError(rc.t, err)
		n = uint64(protocol.Uint16(ext[:]))
	case protocol.PayloadLen64:
		var ext [8]byte
		_, err = io.ReadFull(rc.br, ext[:])
		require.NoError(rc.t, err)
		n = protocol.Uint64(ext[:])
	}
	payload := make([]byte, n)
	_, err = io.ReadFull(rc.br, payload)
	require.NoError(rc.t, err)
	return h.Opcode(), string(payload)
}

// expectSilence asserts that no further frame arrives within d.
func (rc *rawClient) expectSilence(d time.Duration) {
	rc.t.Helper()
	_ = rc.conn.SetReadDeadline(time.Now().Add(d))
	defer rc.conn.SetReadDeadline(time.Now().Add(2 * waitTimeout))
	_, err := rc.br.Peek(1)
	var ne net.Error
	require.ErrorAs(rc.t, err, &ne, "unexpected extra frame")
	require.True(rc.t, ne.Timeout())
}

func (rc *rawClient) expectEOF() {
	rc.t.Helper()
	_, err := rc.br.ReadByte()
	require.Error(rc.t, err)
}

func assertKind(t *testing.T, kind api.ErrorKind, err error) {
	t.Helper()
	assert.Equal(t, kind, api.KindOf(err), "error: %v", err)
}

// File: server/server.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server lifecycle: listening, accepting, ejecting and shutdown.

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/momentics/webs/api"
	"github.com/momentics/webs/control"
	"github.com/momentics/webs/internal/registry"
	"github.com/momentics/webs/internal/transport"
	"github.com/momentics/webs/pool"
)

// Metric keys published through Server.Metrics.
const (
	MetricConnectionsAccepted = "connections.accepted"
	MetricConnectionsActive   = "connections.active"
	MetricAcceptErrors        = "accept.errors"
	MetricFramesReceived      = "frames.received"
	MetricMessagesDelivered   = "messages.delivered"
	MetricBytesReceived       = "bytes.received"
	MetricBytesSent           = "bytes.sent"
	metricErrorPrefix         = "errors."
)

const readerSize = 4096

// Process-wide id counters, so ids stay unique across servers.
var (
	serverIDs atomic.Uint64
	connIDs   atomic.Uint64
)

// Server accepts WebSocket connections on one port and drives a worker per
// connection.
type Server struct {
	id     uint64
	cfg    Config
	events Events
	log    *slog.Logger

	ln    net.Listener
	conns *registry.Registry[*Conn]

	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	frames  *pool.BytePool
	readers pool.ObjectPool[*bufio.Reader]

	closing    atomic.Bool
	quit       chan struct{}
	acceptDone chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	closeErr   error
	wg         sync.WaitGroup
}

// Start listens on every interface at port and starts accepting. It is
// shorthand for Listen with DefaultConfig and ListenAddr ":port".
func Start(port int, events Events, opts ...ServerOption) (*Server, error) {
	cfg := DefaultConfig()
	cfg.ListenAddr = fmt.Sprintf(":%d", port)
	return Listen(cfg, events, opts...)
}

// Listen binds cfg.ListenAddr and starts the accept goroutine. cfg may be
// nil; options are applied on top of a copy of it.
func Listen(cfg *Config, events Events, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		id:         serverIDs.Add(1) - 1,
		cfg:        *cfg,
		events:     events,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		conns:      registry.New[*Conn](),
		metrics:    control.NewMetricsRegistry(),
		probes:     control.NewDebugProbes(),
		quit:       make(chan struct{}),
		acceptDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	s.log = s.log.With("server_id", s.id)
	s.frames = pool.NewBytePool(readerSize, 4*s.cfg.MaxPacket)
	readers := pool.NewSyncPool(func() *bufio.Reader {
		return bufio.NewReaderSize(nil, readerSize)
	}, func(br *bufio.Reader) {
		br.Reset(nil)
	})
	s.readers = readers

	ln, err := transport.Listen(context.Background(), transport.ListenConfig{
		Addr:           s.cfg.ListenAddr,
		ReusePort:      s.cfg.ReusePort,
		MaxConnections: s.cfg.MaxConnections,
	})
	if err != nil {
		return nil, err
	}
	s.ln = ln

	for _, key := range []string{MetricConnectionsAccepted, MetricConnectionsActive, MetricMessagesDelivered} {
		s.metrics.Set(key, int64(0))
	}
	s.probes.RegisterProbe("registry", func() any {
		return map[string]any{"connections": s.conns.Len(), "ids": s.conns.IDs()}
	})
	s.probes.RegisterProbe("config", func() any { return s.cfg })
	s.probes.RegisterProbe("pool", func() any {
		return map[string]int64{
			"readers_allocated":       readers.Allocated(),
			"frame_buffers_allocated": s.frames.Allocated(),
		}
	})
	control.RegisterPlatformProbes(s.probes)

	s.log.Info("server listening", "addr", ln.Addr().String())
	go s.acceptLoop()
	return s, nil
}

// ID returns the process-wide server id.
func (s *Server) ID() uint64 { return s.id }

// Addr returns the bound listening address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Config returns a copy of the effective configuration.
func (s *Server) Config() Config { return s.cfg }

// ActiveConnections returns the number of registered connections.
func (s *Server) ActiveConnections() int { return s.conns.Len() }

// Connections returns the registered connections in acceptance order.
func (s *Server) Connections() []*Conn { return s.conns.Snapshot() }

// Conn looks up a registered connection by id.
func (s *Server) Conn(id uint64) (*Conn, bool) { return s.conns.Get(id) }

// Metrics returns a snapshot of the server counters.
func (s *Server) Metrics() map[string]any { return s.metrics.GetSnapshot() }

// Counter returns one counter from Metrics, or 0.
func (s *Server) Counter(key string) int64 { return s.metrics.Counter(key) }

// DebugState runs every debug probe and returns the results by name.
func (s *Server) DebugState() map[string]any { return s.probes.DumpState() }

// Done is closed once the server is closed and every worker has exited.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) acceptLoop() {
	defer close(s.acceptDone)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = time.Second
	bo.MaxElapsedTime = 0

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.metrics.Add(MetricAcceptErrors, 1)
			d := bo.NextBackOff()
			s.log.Warn("accept failed, retrying", "error", err, "delay", d)
			select {
			case <-time.After(d):
				continue
			case <-s.quit:
				return
			}
		}
		bo.Reset()
		s.accept(nc)
	}
}

func (s *Server) accept(nc net.Conn) {
	c := newConn(s, nc)
	s.wg.Add(1)
	h := s.conns.Add(c.id, c)
	c.handle.Store(&h)
	s.metrics.Add(MetricConnectionsAccepted, 1)
	s.metrics.Add(MetricConnectionsActive, 1)
	c.log.Debug("connection accepted")
	go s.serve(c)
}

// Eject closes c on behalf of the application. OnClose is delivered by the
// connection's worker if the connection had been opened. Eject does not
// wait for the worker, so it is safe to call from any callback.
func (s *Server) Eject(c *Conn) {
	if c == nil || c.srv != s {
		return
	}
	s.eject(c)
}

func (s *Server) eject(c *Conn) {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.log.Debug("ejecting connection")
	_ = c.netConn.Close()
	s.remove(c)
}

// remove releases c's registration. A nil handle means accept has not
// stored it yet; the worker's own remove on exit releases it then.
func (s *Server) remove(c *Conn) {
	h := c.handle.Load()
	if h != nil && s.conns.Release(*h) {
		s.metrics.Add(MetricConnectionsActive, -1)
	}
}

// Close stops accepting, closes the listening socket and ejects every
// connection. It returns without waiting for workers; use Wait, WaitContext
// or Shutdown for that. Close is idempotent.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.quit)
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		<-s.acceptDone
		for _, c := range s.conns.Snapshot() {
			s.eject(c)
		}
		go func() {
			s.wg.Wait()
			s.log.Info("server closed")
			close(s.done)
		}()
	})
	return s.closeErr
}

// Wait blocks until the server has been closed and all workers have exited.
func (s *Server) Wait() { <-s.done }

// WaitContext is Wait bounded by ctx.
func (s *Server) WaitContext(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the server and waits for its workers, bounded by ctx.
// It must not be called from an event callback.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Close()
	if werr := s.WaitContext(ctx); werr != nil {
		return werr
	}
	return err
}

// reportError counts err by kind and hands it to OnError.
func (s *Server) reportError(c *Conn, err error) {
	kind := api.KindOf(err)
	s.metrics.Add(metricErrorPrefix+kind.String(), 1)
	if kind.Soft() {
		c.log.Debug("frame skipped", "kind", kind, "error", err)
	} else {
		c.log.Warn("connection error", "kind", kind, "error", err)
	}
	s.events.fail(c, err)
}

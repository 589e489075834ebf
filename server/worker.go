// File: server/worker.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection worker: handshake, then the frame loop.

package server

import (
	"errors"
	"io"
	"math"
	"time"

	"github.com/momentics/webs/api"
	"github.com/momentics/webs/protocol"
)

func (s *Server) serve(c *Conn) {
	defer s.wg.Done()
	defer close(c.done)

	c.br = s.readers.Get()
	c.br.Reset(c.netConn)
	defer s.readers.Put(c.br)

	if err := s.handshake(c); err != nil {
		if c.closing.CompareAndSwap(false, true) {
			s.reportError(c, err)
		}
		s.finish(c)
		return
	}

	c.opened.Store(true)
	c.log.Debug("connection opened", "path", c.info.Path)
	s.events.open(c)

	err := s.readLoop(c)
	// closing already set means Eject or Close; the read error it caused is
	// not reported.
	if c.closing.CompareAndSwap(false, true) && err != nil {
		s.reportError(c, err)
	}
	s.events.close(c)
	s.finish(c)
	c.log.Debug("connection closed")
}

func (s *Server) finish(c *Conn) {
	_ = c.netConn.Close()
	s.remove(c)
}

func (s *Server) handshake(c *Conn) error {
	if d := s.cfg.ReadTimeout; d > 0 {
		_ = c.netConn.SetReadDeadline(time.Now().Add(d))
	}
	raw, err := protocol.ReadHandshake(c.br, s.cfg.MaxPacket)
	if err != nil {
		if api.KindOf(err) == api.KindBadRequest {
			_ = c.write(protocol.BadRequestResponse())
		}
		return err
	}
	info, err := protocol.ParseHandshake(raw)
	if err == nil && s.cfg.StrictHandshake {
		err = info.ValidateStrict()
	}
	if err != nil {
		_ = c.write(protocol.BadRequestResponse())
		return err
	}
	c.info = info
	if err := c.write(protocol.GenerateHandshakeResponse(info.Key)); err != nil {
		return api.NewError(api.KindNoHandshake, "write handshake response", err)
	}
	return nil
}

// readLoop consumes frames until the peer closes, a fatal error occurs or
// the connection is ejected. A nil return is an orderly close.
func (s *Server) readLoop(c *Conn) error {
	asm := protocol.NewReassembler()
	limit := s.cfg.MaxMessageSize
	if limit <= 0 || limit > math.MaxInt32 {
		limit = math.MaxInt32
	}
	var ctrl [protocol.MaxControlPayloadLen]byte

	for {
		if d := s.cfg.ReadTimeout; d > 0 {
			_ = c.netConn.SetReadDeadline(time.Now().Add(d))
		}
		fh, err := protocol.ParseFrameHeader(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		s.metrics.Add(MetricFramesReceived, 1)
		op := fh.Opcode()

		if !fh.Supported() {
			err := api.NewError(api.KindUnsupportedOpcode, "unsupported opcode", nil).WithContext("opcode", op)
			if err := s.skip(c, fh, err); err != nil {
				return err
			}
			continue
		}

		if protocol.IsControl(op) {
			stop, err := s.control(c, fh, ctrl[:0])
			if stop || err != nil {
				return err
			}
			continue
		}

		if asm.Skip(op, fh.Fin()) {
			if err := protocol.Discard(c.br, fh.Length); err != nil {
				return err
			}
			continue
		}
		if err := asm.Check(op); err != nil {
			if err := s.skip(c, fh, err); err != nil {
				return err
			}
			continue
		}
		if fh.Length > uint64(limit) || int64(fh.Length)+int64(asm.Size()) > limit {
			// One report per message; its remaining fragments are skipped.
			asm.Drop(fh.Fin())
			err := api.NewError(api.KindOverflow, "message exceeds max size", nil).
				WithContext("limit", limit)
			if err := s.skip(c, fh, err); err != nil {
				return err
			}
			continue
		}

		// Fragments are queued by the reassembler, so each payload gets its
		// own buffer.
		payload, err := protocol.ReadPayload(c.br, fh, nil)
		if err != nil {
			return err
		}
		s.metrics.Add(MetricBytesReceived, int64(len(payload)))
		if msg, ok := asm.Push(op, fh.Fin(), payload); ok {
			s.metrics.Add(MetricMessagesDelivered, 1)
			s.events.data(c, msg)
		}
	}
}

// skip reports a soft error and consumes the offending frame's payload.
func (s *Server) skip(c *Conn, fh protocol.FrameHeader, cause error) error {
	s.reportError(c, cause)
	return protocol.Discard(c.br, fh.Length)
}

// control handles one close, ping or pong frame. Reassembly state is not
// touched. stop is true once the connection must end.
func (s *Server) control(c *Conn, fh protocol.FrameHeader, scratch []byte) (stop bool, err error) {
	if !fh.Fin() || fh.Length > protocol.MaxControlPayloadLen {
		return true, api.NewError(api.KindProtocolViolation, "malformed control frame", nil).
			WithContext("opcode", fh.Opcode()).WithContext("len", fh.Length)
	}
	payload, err := protocol.ReadPayload(c.br, fh, scratch)
	if err != nil {
		return true, err
	}
	s.metrics.Add(MetricBytesReceived, int64(len(payload)))

	switch fh.Opcode() {
	case protocol.OpcodeClose:
		// Echo the close frame, status code included.
		_ = c.writeFrame(protocol.OpcodeClose, payload)
		return true, nil
	case protocol.OpcodePing:
		if s.events.OnPing != nil {
			s.events.OnPing(c)
			return false, nil
		}
		if err := c.writeFrame(protocol.OpcodePong, payload); err != nil {
			return true, api.NewError(api.KindReadFailed, "write pong", err)
		}
	case protocol.OpcodePong:
		s.events.pong(c)
	}
	return false, nil
}

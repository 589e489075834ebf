// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"time"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxConnections caps simultaneously open connections.
func WithMaxConnections(n int) ServerOption {
	return func(s *Server) {
		s.cfg.MaxConnections = n
	}
}

// WithMaxMessageSize bounds the size of a reassembled message.
func WithMaxMessageSize(n int64) ServerOption {
	return func(s *Server) {
		s.cfg.MaxMessageSize = n
	}
}

// WithReadTimeout sets the per-frame read deadline.
func WithReadTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.cfg.ReadTimeout = d
	}
}

// WithWriteTimeout sets the per-frame write deadline.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.cfg.WriteTimeout = d
	}
}

// WithStrictHandshake enables full RFC 6455 request validation.
func WithStrictHandshake() ServerOption {
	return func(s *Server) {
		s.cfg.StrictHandshake = true
	}
}

// WithReusePort sets SO_REUSEPORT on the listening socket.
func WithReusePort() ServerOption {
	return func(s *Server) {
		s.cfg.ReusePort = true
	}
}

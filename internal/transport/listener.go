// File: internal/transport/listener.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/momentics/webs/api"
	"golang.org/x/net/netutil"
)

// ListenConfig describes the listening socket.
type ListenConfig struct {
	Addr           string
	ReusePort      bool
	MaxConnections int           // 0 means unlimited
	KeepAlive      time.Duration // 0 uses the net package default
}

// Listen opens a TCP listener. With MaxConnections set, Accept blocks while
// that many accepted connections are still open.
func Listen(ctx context.Context, cfg ListenConfig) (net.Listener, error) {
	lc := net.ListenConfig{KeepAlive: cfg.KeepAlive}
	if cfg.ReusePort {
		if !reusePortSupported {
			return nil, fmt.Errorf("listen %s: SO_REUSEPORT: %w", cfg.Addr, api.ErrNotSupported)
		}
		lc.Control = reusePortControl
	}
	ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	return ln, nil
}

//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

// File: internal/transport/reuseport_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "syscall"

const reusePortSupported = false

func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return nil
}

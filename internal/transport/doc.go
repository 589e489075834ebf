// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP listener construction for the server: socket options applied before
// bind (SO_REUSEPORT via x/sys where the platform has it) and an optional
// cap on simultaneously open connections.

package transport

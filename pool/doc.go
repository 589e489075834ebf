// Package pool
// Author: momentics <momentics@gmail.com>
//
// Pooling for the connection workers: sync.Pool backed byte slices for
// outgoing frames and a typed wrapper for per-connection readers.
package pool

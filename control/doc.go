// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for a running server.
//
// Provides concurrent-safe primitives:
//   - Counter and gauge registry with snapshot export
//   - Named debug probes evaluated on demand
package control

// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the server side of the WebSocket wire protocol (RFC 6455).
//
// Includes:
//   - Big-endian field helpers and the 16-bit base header bitfields
//   - Opening handshake parsing and the 101 response
//   - Frame header parsing from a stream, payload unmasking, frame generation
//   - Fragment reassembly state machine
//
// Everything here is pure or operates on a caller-supplied io.Reader;
// sockets and goroutines live in the server package.
package protocol

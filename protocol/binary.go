// File: protocol/binary.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Byte-order helpers and base header bitfield accessors.

package protocol

import "encoding/binary"

// Bit masks over the 16-bit header value (first wire byte in the low half).
const (
	headerOpcodeMask   Header = 0x000F
	headerReservedMask Header = 0x0070
	headerFinMask      Header = 0x0080
	headerLengthMask   Header = 0x7F00
	headerMaskedMask   Header = 0x8000
)

// Header is the 16-bit base frame header. The first byte on the wire
// occupies bits 0-7 and the second byte bits 8-15.
type Header uint16

// HeaderFromBytes composes a Header from the two leading wire bytes.
func HeaderFromBytes(b0, b1 byte) Header {
	return Header(b0) | Header(b1)<<8
}

// Bytes returns the header in wire order.
func (h Header) Bytes() [2]byte {
	return [2]byte{byte(h), byte(h >> 8)}
}

// Length returns the 7-bit length field.
func (h Header) Length() byte { return byte((h & headerLengthMask) >> 8) }

// Opcode returns the 4-bit opcode.
func (h Header) Opcode() byte { return byte(h & headerOpcodeMask) }

// Masked reports the MASK bit.
func (h Header) Masked() bool { return h&headerMaskedMask != 0 }

// Fin reports the FIN bit.
func (h Header) Fin() bool { return h&headerFinMask != 0 }

// Reserved returns the three RSV bits as a value in 0..7.
func (h Header) Reserved() byte { return byte((h & headerReservedMask) >> 4) }

// SetLength replaces the 7-bit length field.
func (h Header) SetLength(v byte) Header {
	return h&^headerLengthMask | Header(v&0x7F)<<8
}

// SetOpcode replaces the opcode.
func (h Header) SetOpcode(v byte) Header {
	return h&^headerOpcodeMask | Header(v&0x0F)
}

// SetMasked sets or clears the MASK bit.
func (h Header) SetMasked(v bool) Header {
	if v {
		return h | headerMaskedMask
	}
	return h &^ headerMaskedMask
}

// SetFin sets or clears the FIN bit.
func (h Header) SetFin(v bool) Header {
	if v {
		return h | headerFinMask
	}
	return h &^ headerFinMask
}

// SetReserved replaces the RSV bits.
func (h Header) SetReserved(v byte) Header {
	return h&^headerReservedMask | Header(v&0x07)<<4
}

// HostToNet16 converts v between host and network byte order. It is its
// own inverse and the identity on big-endian hosts.
func HostToNet16(v uint16) uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return binary.NativeEndian.Uint16(b[:])
}

// NetToHost16 is the inverse of HostToNet16.
func NetToHost16(v uint16) uint16 { return HostToNet16(v) }

// HostToNet64 is the 64-bit variant of HostToNet16.
func HostToNet64(v uint64) uint64 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return binary.NativeEndian.Uint64(b[:])
}

// NetToHost64 is the inverse of HostToNet64.
func NetToHost64(v uint64) uint64 { return HostToNet64(v) }

// Uint16 reads a big-endian 16-bit field.
func Uint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

// PutUint16 writes a big-endian 16-bit field.
func PutUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }

// Uint64 reads a big-endian 64-bit field.
func Uint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

// PutUint64 writes a big-endian 64-bit field.
func PutUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

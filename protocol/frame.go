// File: protocol/frame.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Streaming frame header parser, payload unmasking and frame generation.
// The parser reads exactly the header bytes from the stream and leaves the
// payload unread so the caller can decide to consume, decode or discard it.

package protocol

import (
	"io"
	"math"

	"github.com/momentics/webs/api"
	"github.com/pkg/errors"
)

// FrameHeader is a parsed frame prefix.
type FrameHeader struct {
	Header Header  // 16-bit base header
	Length uint64  // effective payload length
	Key    [4]byte // masking key, valid when Header.Masked()
	Offset int     // bytes from frame start to payload start
}

// Opcode returns the frame opcode.
func (f FrameHeader) Opcode() byte { return f.Header.Opcode() }

// Fin reports whether this is the final fragment.
func (f FrameHeader) Fin() bool { return f.Header.Fin() }

// Supported reports whether the opcode is one of the six handled ones.
func (f FrameHeader) Supported() bool { return IsSupported(f.Header.Opcode()) }

// ParseFrameHeader reads one frame header from r. A short read is a
// KindReadFailed error. It wraps io.EOF only when the stream ended exactly
// at a frame boundary, and io.ErrUnexpectedEOF otherwise. An unmasked frame
// or non-zero reserved bits is a KindProtocolViolation error. Both kinds
// are fatal for the connection.
func ParseFrameHeader(r io.Reader) (FrameHeader, error) {
	var (
		fh  FrameHeader
		buf [8]byte
	)
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return fh, readFailed(err, "read frame header")
	}
	fh.Header = HeaderFromBytes(buf[0], buf[1])
	fh.Offset = 2

	switch n := fh.Header.Length(); n {
	case PayloadLen16:
		if err := readRest(r, buf[:2]); err != nil {
			return fh, readFailed(err, "read 16-bit length")
		}
		fh.Length = uint64(Uint16(buf[:2]))
		fh.Offset += 2
	case PayloadLen64:
		if err := readRest(r, buf[:8]); err != nil {
			return fh, readFailed(err, "read 64-bit length")
		}
		fh.Length = Uint64(buf[:8])
		fh.Offset += 8
	default:
		fh.Length = uint64(n)
	}

	// RFC 6455 5.1: a server must close on an unmasked client frame.
	if !fh.Header.Masked() {
		return fh, api.NewError(api.KindProtocolViolation, "client frame not masked", nil)
	}
	if err := readRest(r, fh.Key[:]); err != nil {
		return fh, readFailed(err, "read masking key")
	}
	fh.Offset += 4

	// No extensions are negotiated, so every RSV bit must be clear.
	if fh.Header.Reserved() != 0 {
		return fh, api.NewError(api.KindProtocolViolation, "reserved bits set", nil).
			WithContext("rsv", fh.Header.Reserved())
	}
	return fh, nil
}

// ReadPayload reads the frame payload into dst (grown as needed) and
// unmasks it. The returned slice aliases dst when it was large enough and
// is never nil, even for an empty payload.
func ReadPayload(r io.Reader, fh FrameHeader, dst []byte) ([]byte, error) {
	if fh.Length > math.MaxInt32 {
		return nil, api.NewError(api.KindOverflow, "payload too large to buffer", nil)
	}
	n := int(fh.Length)
	if dst == nil || cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]
	if err := readRest(r, dst); err != nil {
		return nil, readFailed(err, "read payload")
	}
	if fh.Header.Masked() {
		DecodePayload(dst, fh.Key)
	}
	return dst, nil
}

// Discard consumes exactly n payload bytes from r.
func Discard(r io.Reader, n uint64) error {
	for n > 0 {
		chunk := n
		if chunk > math.MaxInt64 {
			chunk = math.MaxInt64
		}
		if _, err := io.CopyN(io.Discard, r, int64(chunk)); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return readFailed(err, "discard payload")
		}
		n -= chunk
	}
	return nil
}

// DecodePayload XORs buf in place with the repeating 4-byte key.
// Applying it twice restores the input.
func DecodePayload(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i&3]
	}
}

// AppendFrame appends an unmasked final frame carrying payload to dst.
func AppendFrame(dst, payload []byte, opcode byte) []byte {
	dst = appendHeader(dst, Header(0).SetFin(true).SetOpcode(opcode), len(payload))
	return append(dst, payload...)
}

// GenerateFrame builds an unmasked final frame for payload.
func GenerateFrame(payload []byte, opcode byte) []byte {
	return AppendFrame(make([]byte, 0, len(payload)+10), payload, opcode)
}

// MaskFrame builds a masked frame as a client would send it. payload is
// left untouched.
func MaskFrame(payload []byte, opcode byte, fin bool, key [4]byte) []byte {
	h := Header(0).SetFin(fin).SetOpcode(opcode).SetMasked(true)
	out := appendHeader(make([]byte, 0, len(payload)+MaxFrameHeaderLen), h, len(payload))
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, payload...)
	DecodePayload(out[start:], key)
	return out
}

// appendHeader encodes h with the length field and any extended length.
// 126..65535 uses the 16-bit form, anything larger the 64-bit form.
func appendHeader(dst []byte, h Header, n int) []byte {
	var ext [8]byte
	switch {
	case n <= MaxControlPayloadLen:
		b := h.SetLength(byte(n)).Bytes()
		return append(dst, b[:]...)
	case n <= math.MaxUint16:
		b := h.SetLength(PayloadLen16).Bytes()
		PutUint16(ext[:2], uint16(n))
		dst = append(dst, b[:]...)
		return append(dst, ext[:2]...)
	default:
		b := h.SetLength(PayloadLen64).Bytes()
		PutUint64(ext[:], uint64(n))
		dst = append(dst, b[:]...)
		return append(dst, ext[:]...)
	}
}

// readRest reads a frame part that must follow bytes already consumed, so
// EOF here is always premature.
func readRest(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func readFailed(err error, op string) error {
	return api.NewError(api.KindReadFailed, op, errors.WithStack(err))
}

package protocol_test

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/momentics/webs/api"
	"github.com/momentics/webs/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = [4]byte{0x12, 0x34, 0x56, 0x78}

func payloadOf(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

func TestGenerateFrameLengthEncoding(t *testing.T) {
	cases := []struct {
		n      int
		hdrLen int
		field  byte
	}{
		{0, 2, 0},
		{1, 2, 1},
		{125, 2, 125},
		{126, 4, 126},
		{65535, 4, 126},
		{65536, 10, 127},
	}
	for _, tc := range cases {
		frame := protocol.GenerateFrame(payloadOf(tc.n), protocol.OpcodeBinary)
		require.Len(t, frame, tc.hdrLen+tc.n, "n=%d", tc.n)
		h := protocol.HeaderFromBytes(frame[0], frame[1])
		assert.True(t, h.Fin())
		assert.False(t, h.Masked(), "server frames are never masked")
		assert.Equal(t, byte(protocol.OpcodeBinary), h.Opcode())
		assert.Equal(t, tc.field, h.Length(), "n=%d", tc.n)
		assert.Equal(t, payloadOf(tc.n), frame[tc.hdrLen:])
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 125, 126, 65535, 65536} {
		for _, op := range []byte{protocol.OpcodeText, protocol.OpcodeBinary, protocol.OpcodePing} {
			payload := payloadOf(n)
			// the server only accepts masked frames, so mask the generated
			// frame the way a client would before parsing it back
			wire := remask(t, protocol.GenerateFrame(payload, op))

			r := bytes.NewReader(wire)
			fh, err := protocol.ParseFrameHeader(r)
			require.NoError(t, err)
			assert.Equal(t, op, fh.Opcode())
			assert.True(t, fh.Fin())
			assert.Equal(t, uint64(n), fh.Length)
			assert.Equal(t, len(wire)-n, fh.Offset)

			got, err := protocol.ReadPayload(r, fh, nil)
			require.NoError(t, err)
			assert.NotNil(t, got, "n=%d op=%d", n, op)
			assert.Equal(t, payload, got, "n=%d op=%d", n, op)
			assert.Zero(t, r.Len())
		}
	}
}

// remask converts an unmasked server frame into the equivalent client frame.
func remask(t *testing.T, frame []byte) []byte {
	t.Helper()
	fh := protocol.HeaderFromBytes(frame[0], frame[1])
	hdrLen := 2
	switch fh.Length() {
	case protocol.PayloadLen16:
		hdrLen = 4
	case protocol.PayloadLen64:
		hdrLen = 10
	}
	out := append([]byte{}, frame[:hdrLen]...)
	b := fh.SetMasked(true).Bytes()
	out[0], out[1] = b[0], b[1]
	out = append(out, testKey[:]...)
	start := len(out)
	out = append(out, frame[hdrLen:]...)
	protocol.DecodePayload(out[start:], testKey)
	return out
}

func TestMaskFrameMatchesGenerate(t *testing.T) {
	payload := []byte("Hello")
	wire := protocol.MaskFrame(payload, protocol.OpcodeText, true, testKey)
	assert.Equal(t, []byte{0x81, 0x85, 0x12, 0x34, 0x56, 0x78}, wire[:6])
	assert.Equal(t, []byte("Hello"), payload, "input must not be modified")
	assert.Equal(t, remask(t, protocol.GenerateFrame(payload, protocol.OpcodeText)), wire)
}

func TestDecodePayloadInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		data := make([]byte, rng.Intn(300))
		rng.Read(data)
		var key [4]byte
		rng.Read(key[:])

		buf := append([]byte{}, data...)
		protocol.DecodePayload(buf, key)
		protocol.DecodePayload(buf, key)
		assert.Equal(t, data, buf)
	}
}

func TestDecodePayloadRFCExample(t *testing.T) {
	// RFC 6455 5.7: masked "Hello"
	buf := []byte{0x7f, 0x9f, 0x4d, 0x51, 0x58}
	protocol.DecodePayload(buf, [4]byte{0x37, 0xfa, 0x21, 0x3d})
	assert.Equal(t, "Hello", string(buf))
}

func TestParseFrameHeaderRejectsUnmasked(t *testing.T) {
	_, err := protocol.ParseFrameHeader(bytes.NewReader([]byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}))
	assert.ErrorIs(t, err, api.ErrProtocolViolation)
}

func TestParseFrameHeaderRejectsReservedBits(t *testing.T) {
	wire := protocol.MaskFrame([]byte("x"), protocol.OpcodeText, true, testKey)
	wire[0] |= 0x40
	_, err := protocol.ParseFrameHeader(bytes.NewReader(wire))
	assert.ErrorIs(t, err, api.ErrProtocolViolation)
}

func TestParseFrameHeaderShortReads(t *testing.T) {
	wire := protocol.MaskFrame(payloadOf(300), protocol.OpcodeBinary, true, testKey)
	// every truncation inside the 8-byte header is a read failure
	for cut := 0; cut < 8; cut++ {
		_, err := protocol.ParseFrameHeader(bytes.NewReader(wire[:cut]))
		require.Error(t, err, "cut=%d", cut)
		assert.Equal(t, api.KindReadFailed, api.KindOf(err))
		if cut > 0 {
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "cut=%d", cut)
		}
	}

	_, err := protocol.ParseFrameHeader(bytes.NewReader(nil))
	assert.True(t, errors.Is(err, io.EOF), "clean EOF stays visible to the caller")
}

func TestParseFrameHeaderKeepsUnsupportedOpcode(t *testing.T) {
	wire := protocol.MaskFrame([]byte("abc"), 0x3, true, testKey)
	wire = append(wire, protocol.MaskFrame([]byte("next"), protocol.OpcodeText, true, testKey)...)
	r := bytes.NewReader(wire)

	fh, err := protocol.ParseFrameHeader(r)
	require.NoError(t, err)
	assert.False(t, fh.Supported())
	require.NoError(t, protocol.Discard(r, fh.Length))

	fh, err = protocol.ParseFrameHeader(r)
	require.NoError(t, err)
	got, err := protocol.ReadPayload(r, fh, nil)
	require.NoError(t, err)
	assert.Equal(t, "next", string(got))
}

func TestDiscardShort(t *testing.T) {
	err := protocol.Discard(bytes.NewReader([]byte{1, 2}), 5)
	assert.ErrorIs(t, err, api.ErrReadFailed)
}

func TestReadPayloadEmptyIsNotNil(t *testing.T) {
	wire := protocol.MaskFrame(nil, protocol.OpcodeText, true, testKey)
	r := bytes.NewReader(wire)
	fh, err := protocol.ParseFrameHeader(r)
	require.NoError(t, err)

	got, err := protocol.ReadPayload(r, fh, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadPayloadReusesBuffer(t *testing.T) {
	wire := protocol.MaskFrame([]byte("abcd"), protocol.OpcodeText, true, testKey)
	r := bytes.NewReader(wire)
	fh, err := protocol.ParseFrameHeader(r)
	require.NoError(t, err)

	scratch := make([]byte, 0, 16)
	got, err := protocol.ReadPayload(r, fh, scratch)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Equal(t, &scratch[:1][0], &got[0])
}

// File: protocol/handshake.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opening handshake: reading and parsing the client's HTTP upgrade request,
// computing Sec-WebSocket-Accept and emitting the 101 response.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/momentics/webs/api"
	"github.com/pkg/errors"
)

const (
	WebSocketGUID            = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	HeaderConnection         = "Connection"
	HeaderUpgrade            = "Upgrade"
	HeaderHost               = "Host"
	HeaderSecWebSocketKey    = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer    = "Sec-WebSocket-Version"
	RequiredWebSocketVersion = 13
)

const responseFmt = "HTTP/1.1 101 Switching Protocols\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Accept: %s\r\n\r\n"

var badRequestResponse = []byte("HTTP/1.1 400 Bad Request\r\n" +
	"Connection: close\r\n" +
	"Sec-WebSocket-Version: 13\r\n" +
	"Content-Length: 0\r\n\r\n")

// HandshakeInfo holds what the server needs from one upgrade request.
type HandshakeInfo struct {
	Key         string // Sec-WebSocket-Key, base64 text
	Version     uint16 // Sec-WebSocket-Version
	HTTPVersion uint16 // major<<8 | minor
	Method      string
	Path        string
	Host        string
	Upgrade     string
	Connection  string
}

// HTTPMajor returns the major HTTP version of the request line.
func (h *HandshakeInfo) HTTPMajor() int { return int(h.HTTPVersion >> 8) }

// HTTPMinor returns the minor HTTP version of the request line.
func (h *HandshakeInfo) HTTPMinor() int { return int(h.HTTPVersion & 0xFF) }

// ReadHandshake reads one request head from br, up to and including the
// empty line. More than limit bytes is a bad request; an I/O failure
// (including EOF) means no handshake was received.
func ReadHandshake(br *bufio.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxPacket
	}
	raw := make([]byte, 0, 512)
	lineStart := true
	lines := 0
	for {
		chunk, err := br.ReadSlice('\n')
		raw = append(raw, chunk...)
		if len(raw) > limit {
			return nil, api.NewError(api.KindBadRequest, "handshake exceeds max packet", nil).
				WithContext("limit", limit)
		}
		if err == bufio.ErrBufferFull {
			lineStart = false
			continue
		}
		if err != nil {
			return nil, api.NewError(api.KindNoHandshake, "read handshake", errors.Wrap(err, "read request head"))
		}
		blank := lineStart && len(bytes.TrimRight(chunk, "\r\n")) == 0
		lineStart = true
		if !blank {
			lines++
			continue
		}
		// Leading empty lines before the request line are ignored.
		if lines > 0 {
			return raw, nil
		}
	}
}

// ParseHandshake extracts the handshake fields from a raw request. Only
// GET is accepted. Headers other than the ones kept in HandshakeInfo are
// skipped without validation, and the request is rejected only when none
// of key, version and HTTP version could be found.
func ParseHandshake(raw []byte) (*HandshakeInfo, error) {
	lines := strings.Split(string(raw), "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i == len(lines) {
		return nil, api.NewError(api.KindBadRequest, "empty request", nil)
	}

	info := &HandshakeInfo{}
	reqLine := strings.Fields(lines[i])
	info.Method = reqLine[0]
	if info.Method != "GET" {
		return nil, api.NewError(api.KindBadRequest, "method not allowed", nil).
			WithContext("method", info.Method)
	}
	if len(reqLine) > 1 {
		info.Path = reqLine[1]
	}
	if len(reqLine) > 2 {
		info.HTTPVersion = parseHTTPVersion(reqLine[2])
	}

	for _, line := range lines[i+1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		switch {
		case strings.EqualFold(name, HeaderSecWebSocketVer):
			info.Version = parseUint16(firstField(value))
		case strings.EqualFold(name, HeaderSecWebSocketKey):
			info.Key = firstField(value)
		case strings.EqualFold(name, HeaderHost):
			info.Host = value
		case strings.EqualFold(name, HeaderUpgrade):
			info.Upgrade = value
		case strings.EqualFold(name, HeaderConnection):
			info.Connection = value
		}
	}

	if info.Key == "" && info.Version == 0 && info.HTTPVersion == 0 {
		return nil, api.NewError(api.KindBadRequest, "degenerate request", nil)
	}
	return info, nil
}

// ValidateStrict applies the full RFC 6455 section 4.2.1 header checks.
func (h *HandshakeInfo) ValidateStrict() error {
	switch {
	case h.HTTPVersion < 0x0101:
		return api.NewError(api.KindBadRequest, "HTTP/1.1 or higher required", nil)
	case h.Host == "":
		return api.NewError(api.KindBadRequest, "missing Host header", nil)
	case !containsToken(h.Upgrade, "websocket"):
		return api.NewError(api.KindBadRequest, "invalid Upgrade header", nil)
	case !containsToken(h.Connection, "upgrade"):
		return api.NewError(api.KindBadRequest, "invalid Connection header", nil)
	case h.Version != RequiredWebSocketVersion:
		return api.NewError(api.KindBadRequest, "unsupported websocket version", nil).
			WithContext("version", h.Version)
	}
	key, err := base64.StdEncoding.DecodeString(h.Key)
	if err != nil || len(key) != 16 {
		return api.NewError(api.KindBadRequest, "invalid Sec-WebSocket-Key", err)
	}
	return nil
}

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
// This implements the algorithm specified in RFC6455 Section 1.3.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// GenerateHandshakeResponse renders the 101 Switching Protocols reply for key.
func GenerateHandshakeResponse(key string) []byte {
	return fmt.Appendf(nil, responseFmt, ComputeAcceptKey(key))
}

// BadRequestResponse is sent before closing a connection whose handshake
// was rejected.
func BadRequestResponse() []byte {
	return badRequestResponse
}

func parseHTTPVersion(s string) uint16 {
	v, ok := strings.CutPrefix(s, "HTTP/")
	if !ok {
		return 0
	}
	major, minor, _ := strings.Cut(v, ".")
	return parseUint16(major)&0xFF<<8 | parseUint16(minor)&0xFF
}

func parseUint16(s string) uint16 {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0
	}
	return uint16(n)
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// containsToken checks if a comma separated header value holds token (case-insensitive).
func containsToken(headerValue, token string) bool {
	for _, p := range strings.Split(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(p), token) {
			return true
		}
	}
	return false
}

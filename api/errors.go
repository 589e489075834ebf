// Package api
// Author: momentics <momentics@gmail.com>
//
// Error kinds and structured errors shared by the protocol and server layers.

package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure reported through the error callback.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindNoHandshake: the opening request could not be read.
	KindNoHandshake
	// KindBadRequest: the opening request was not an acceptable upgrade.
	KindBadRequest
	// KindReadFailed: socket I/O failed mid-session.
	KindReadFailed
	// KindUnsupportedOpcode: reserved opcode, frame skipped.
	KindUnsupportedOpcode
	// KindOverflow: payload larger than the configured maximum, frame skipped.
	KindOverflow
	// KindUnexpectedContinuation: fragment sequence violated, frame skipped.
	KindUnexpectedContinuation
	// KindProtocolViolation: unmasked frame, reserved bits or malformed control frame.
	KindProtocolViolation
	// KindResource: buffer could not be obtained.
	KindResource
)

var kindNames = [...]string{
	KindNone:                   "none",
	KindNoHandshake:            "no_handshake",
	KindBadRequest:             "bad_request",
	KindReadFailed:             "read_failed",
	KindUnsupportedOpcode:      "unsupported_opcode",
	KindOverflow:               "overflow",
	KindUnexpectedContinuation: "unexpected_continuation",
	KindProtocolViolation:      "protocol_violation",
	KindResource:               "resource",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Soft reports whether the connection survives an error of this kind.
func (k ErrorKind) Soft() bool {
	switch k {
	case KindUnsupportedOpcode, KindOverflow, KindUnexpectedContinuation:
		return true
	}
	return false
}

// Sentinels, one per kind. Match with errors.Is.
var (
	ErrNoHandshake            = &Error{Kind: KindNoHandshake, Message: "no handshake received"}
	ErrBadRequest             = &Error{Kind: KindBadRequest, Message: "bad upgrade request"}
	ErrReadFailed             = &Error{Kind: KindReadFailed, Message: "read failed"}
	ErrUnsupportedOpcode      = &Error{Kind: KindUnsupportedOpcode, Message: "unsupported opcode"}
	ErrOverflow               = &Error{Kind: KindOverflow, Message: "payload exceeds maximum size"}
	ErrUnexpectedContinuation = &Error{Kind: KindUnexpectedContinuation, Message: "unexpected continuation"}
	ErrProtocolViolation      = &Error{Kind: KindProtocolViolation, Message: "protocol violation"}
	ErrResource               = &Error{Kind: KindResource, Message: "resource exhausted"}
)

// Common non-kind errors.
var (
	ErrConnClosed   = errors.New("connection is closed")
	ErrNotSupported = errors.New("operation not supported")
)

// Error represents a classified error with optional cause and context.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped errors compare equal
// to the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError creates a classified error wrapping cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf extracts the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

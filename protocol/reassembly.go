// File: protocol/reassembly.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fragmented message reassembly. Control frames never pass through here.

package protocol

import (
	"github.com/eapache/queue"
	"github.com/momentics/webs/api"
)

// ReassemblyState is the fragmentation state of one connection.
type ReassemblyState int

const (
	StateIdle ReassemblyState = iota
	StateAccumulating
	// StateDiscarding drops the remaining fragments of an abandoned message.
	StateDiscarding
)

func (s ReassemblyState) String() string {
	switch s {
	case StateAccumulating:
		return "accumulating"
	case StateDiscarding:
		return "discarding"
	}
	return "idle"
}

// Reassembler joins data frames into messages. It is owned by a single
// connection worker and is not safe for concurrent use.
type Reassembler struct {
	state  ReassemblyState
	opcode byte
	frags  *queue.Queue
	size   int
}

// NewReassembler returns an idle reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{frags: queue.New()}
}

// State returns the current state.
func (r *Reassembler) State() ReassemblyState { return r.state }

// Size returns the number of bytes buffered for the in-flight message.
func (r *Reassembler) Size() int { return r.size }

// Opcode returns the opcode of the in-flight message, if any.
func (r *Reassembler) Opcode() byte { return r.opcode }

// Check reports whether a data or continuation frame with opcode fits the
// current state, before its payload is read. On error the frame must be
// discarded; the in-flight message is kept.
func (r *Reassembler) Check(opcode byte) error {
	switch {
	case opcode == OpcodeContinuation && r.state == StateIdle:
		return api.NewError(api.KindUnexpectedContinuation, "continuation without a started message", nil)
	case opcode != OpcodeContinuation && r.state == StateAccumulating:
		return api.NewError(api.KindUnexpectedContinuation, "new message while a fragmented one is open", nil).
			WithContext("opcode", opcode)
	}
	return nil
}

// Skip reports whether a frame belongs to a message abandoned with Drop and
// must be discarded without further reporting. The final continuation ends
// the discard; a new data frame ends it too and is processed normally.
func (r *Reassembler) Skip(opcode byte, fin bool) bool {
	if r.state != StateDiscarding {
		return false
	}
	if opcode != OpcodeContinuation {
		r.state = StateIdle
		return false
	}
	if fin {
		r.state = StateIdle
	}
	return true
}

// Drop abandons the in-flight message because of a frame with the given
// FIN bit. Unless that frame was final, the rest of the message is
// swallowed by Skip.
func (r *Reassembler) Drop(fin bool) {
	r.Reset()
	if !fin {
		r.state = StateDiscarding
	}
}

// Push feeds one decoded fragment that already passed Check. It returns the
// complete message and true when fin closes it. A single unfragmented frame
// is returned as is without copying.
func (r *Reassembler) Push(opcode byte, fin bool, payload []byte) ([]byte, bool) {
	if r.state == StateIdle {
		if fin {
			return payload, true
		}
		r.state = StateAccumulating
		r.opcode = opcode
	}
	r.frags.Add(payload)
	r.size += len(payload)
	if !fin {
		return nil, false
	}

	msg := make([]byte, 0, r.size)
	for r.frags.Length() > 0 {
		msg = append(msg, r.frags.Remove().([]byte)...)
	}
	r.Reset()
	return msg, true
}

// Reset drops any in-flight message and returns to idle.
func (r *Reassembler) Reset() {
	for r.frags.Length() > 0 {
		r.frags.Remove()
	}
	r.state = StateIdle
	r.opcode = 0
	r.size = 0
}

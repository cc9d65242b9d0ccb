// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import "time"

// Frame represents a decoded protocol frame
type Frame struct {
	counter   uint8
	command   Command
	payload   []byte
	checksum  uint16
	timestamp time.Time
}

// NewFrame creates a frame from its fields. The checksum is computed.
func NewFrame(counter uint8, cmd Command, payload []byte) *Frame {
	p := make([]byte, len(payload))
	copy(p, payload)
	return &Frame{
		counter:   counter,
		command:   cmd,
		payload:   p,
		checksum:  frameChecksum(counter, cmd, p),
		timestamp: time.Now(),
	}
}

// Counter returns the sequence counter carried by the frame
func (f *Frame) Counter() uint8 {
	return f.counter
}

// Command returns the frame's command id
func (f *Frame) Command() Command {
	return f.command
}

// Length returns the payload length
func (f *Frame) Length() uint8 {
	return uint8(len(f.payload))
}

// Payload returns the raw payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// Checksum returns the checksum received on the wire
func (f *Frame) Checksum() uint16 {
	return f.checksum
}

// Timestamp returns when the frame was decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Bytes re-encodes the frame to wire format.
func (f *Frame) Bytes() []byte {
	out, _ := NewEncoder().Encode(f.counter, f.command, f.payload)
	return out
}

func frameChecksum(counter uint8, cmd Command, payload []byte) uint16 {
	return uint16(counter) + uint16(cmd) + uint16(len(payload)) + Checksum(payload)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned when a payload does not fit the frame.
var ErrPayloadTooLarge = errors.New("payload too large")

// Encoder builds wire frames. Capacity bounds the total frame size, which
// lets callers mirror a co-processor with a smaller receive buffer.
type Encoder struct {
	capacity int
}

// NewEncoder creates an encoder able to emit any legal frame.
func NewEncoder() *Encoder {
	return &Encoder{capacity: MaxFrameSize}
}

// NewEncoderSize creates an encoder whose frames never exceed capacity bytes.
func NewEncoderSize(capacity int) *Encoder {
	if capacity <= 0 || capacity > MaxFrameSize {
		capacity = MaxFrameSize
	}
	return &Encoder{capacity: capacity}
}

// Capacity returns the largest frame the encoder will produce.
func (e *Encoder) Capacity() int {
	return e.capacity
}

// Encode builds a complete frame ready for transmission.
func (e *Encoder) Encode(counter uint8, cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	size := HeaderSize + len(payload) + TrailerSize
	if size > e.capacity {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds capacity %d", ErrPayloadTooLarge, size, e.capacity)
	}

	frame := make([]byte, 0, size)
	frame = append(frame, StartMarker, counter, byte(cmd), byte(len(payload)))
	frame = append(frame, payload...)

	// Checksum covers counter, command, length and payload (big-endian on the wire)
	sum := Checksum(frame[1:])
	frame = append(frame, byte(sum>>8), byte(sum&0xFF), EndMarker)

	return frame, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"fmt"
	"time"
)

// minDecoderSize is the smallest buffer that can hold an empty frame
const minDecoderSize = HeaderSize + TrailerSize

// Decoder implements the receive state machine. It owns one contiguous
// buffer and a cursor; the cursor returns to zero after every frame, every
// error and the hard overflow guard.
type Decoder struct {
	state  int
	buffer []byte
	cursor int

	counter  uint8
	command  Command
	length   uint8
	sum      uint16
	received uint16

	// Declared length too large for the buffer: the rest of the frame is
	// consumed without being stored so the stream stays aligned.
	skipping      bool
	skipRemaining int

	// Set while discarding a run of bytes that are not a start marker.
	resyncing bool
}

// NewDecoder creates a decoder able to receive any legal frame.
func NewDecoder() *Decoder {
	return NewDecoderSize(MaxFrameSize)
}

// NewDecoderSize creates a decoder with a receive buffer of capacity bytes.
func NewDecoderSize(capacity int) *Decoder {
	if capacity < minDecoderSize {
		capacity = minDecoderSize
	}
	if capacity > MaxFrameSize {
		capacity = MaxFrameSize
	}
	return &Decoder{
		state:  stateStart,
		buffer: make([]byte, capacity),
	}
}

// Reset returns the decoder to waiting for a start marker.
func (d *Decoder) Reset() {
	d.state = stateStart
	d.cursor = 0
	d.sum = 0
	d.received = 0
	d.skipping = false
	d.skipRemaining = 0
}

// Cursor returns the number of bytes of the current frame held in the buffer.
func (d *Decoder) Cursor() int {
	return d.cursor
}

// Capacity returns the size of the receive buffer.
func (d *Decoder) Capacity() int {
	return len(d.buffer)
}

// DecodeByte processes a single byte through the decoder state machine.
// It returns (nil, nil) while more bytes are needed, a frame once one is
// complete and valid, or an error describing why the bytes so far were
// discarded.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.skipping {
		d.skipRemaining--
		if d.skipRemaining > 0 {
			return nil, nil
		}
		declared := d.length
		return nil, d.fail(ErrPayloadOverflow, b,
			fmt.Sprintf("declared length %d exceeds buffer capacity %d", declared, len(d.buffer)-minDecoderSize))
	}

	if d.state != stateStart && d.cursor >= len(d.buffer) {
		return nil, d.fail(ErrBufferOverflow, b, "")
	}

	switch d.state {
	case stateStart:
		if b != StartMarker {
			if d.resyncing {
				return nil, nil
			}
			d.resyncing = true
			return nil, &ProtocolError{Err: ErrBadStartMarker, Offset: 0, Byte: b}
		}
		d.resyncing = false
		d.store(b)
		d.state = stateCounter

	case stateCounter:
		d.store(b)
		d.counter = b
		d.sum = uint16(b)
		d.state = stateCommand

	case stateCommand:
		d.store(b)
		d.command = Command(b)
		d.sum += uint16(b)
		d.state = stateLength

	case stateLength:
		d.length = b
		d.sum += uint16(b)
		if HeaderSize+int(b)+TrailerSize > len(d.buffer) {
			d.skipping = true
			d.skipRemaining = int(b) + TrailerSize
			return nil, nil
		}
		d.store(b)
		if b == 0 {
			d.state = stateChecksumHi
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.store(b)
		d.sum += uint16(b)
		if d.cursor-HeaderSize >= int(d.length) {
			d.state = stateChecksumHi
		}

	case stateChecksumHi:
		d.store(b)
		d.received = uint16(b) << 8
		d.state = stateChecksumLo

	case stateChecksumLo:
		d.store(b)
		d.received |= uint16(b)
		// Verified before the end marker is read. The end marker that
		// follows a bad checksum is dropped as part of the resync run.
		if d.received != d.sum {
			err := d.fail(ErrChecksumMismatch, b,
				fmt.Sprintf("computed 0x%04X, received 0x%04X", d.sum, d.received))
			d.resyncing = true
			return nil, err
		}
		d.state = stateEnd

	case stateEnd:
		if b != EndMarker {
			return nil, d.fail(ErrBadEndMarker, b, "")
		}

		payload := make([]byte, d.length)
		copy(payload, d.buffer[HeaderSize:HeaderSize+int(d.length)])
		frame := &Frame{
			counter:   d.counter,
			command:   d.command,
			payload:   payload,
			checksum:  d.received,
			timestamp: time.Now(),
		}
		d.Reset()
		return frame, nil

	default:
		return nil, d.fail(fmt.Errorf("invalid decoder state %d", d.state), b, "")
	}

	return nil, nil
}

func (d *Decoder) store(b byte) {
	d.buffer[d.cursor] = b
	d.cursor++
}

// fail builds the error for the current frame and resets the decoder.
func (d *Decoder) fail(err error, b byte, detail string) error {
	pe := &ProtocolError{Err: err, Offset: d.cursor, Byte: b, Detail: detail}
	d.Reset()
	return pe
}

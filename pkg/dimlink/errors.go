// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"errors"
	"fmt"
)

// Decoder errors. All of them are recoverable: the decoder has already
// resynchronised when one is returned.
var (
	ErrBadStartMarker   = errors.New("bad start marker")
	ErrPayloadOverflow  = errors.New("payload overflow")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrBadEndMarker     = errors.New("bad end marker")
	ErrBufferOverflow   = errors.New("receive buffer overflow")
)

// ProtocolError describes a framing failure at a position in the receive buffer.
type ProtocolError struct {
	Err    error
	Offset int
	Byte   byte
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%v: %s (offset %d, byte 0x%02X)", e.Err, e.Detail, e.Offset, e.Byte)
	}
	return fmt.Sprintf("%v (offset %d, byte 0x%02X)", e.Err, e.Offset, e.Byte)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err came from the frame decoder.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dimlink implements the framed serial protocol spoken by the AC
// dimmer co-processor.
//
// A frame is laid out as:
//
//	[0x01][counter][command][length][payload...][checksum hi][checksum lo][0x04]
//
// The checksum is the 16-bit sum of counter, command, length and payload
// bytes. The link is half-duplex: every command is answered within a short
// window and callers must not issue a second command before the reply to the
// first one has been drained. Transport enforces this.
package dimlink

import (
	"fmt"
	"time"
)

// Protocol framing bytes
const (
	StartMarker = 0x01
	EndMarker   = 0x04
)

// Frame size limits
const (
	HeaderSize     = 4 // start, counter, command, length
	TrailerSize    = 3 // checksum (2), end
	MaxPayloadSize = 255
	MaxFrameSize   = HeaderSize + MaxPayloadSize + TrailerSize
)

// DefaultSettleDelay is how long the co-processor needs to answer a command.
const DefaultSettleDelay = 12 * time.Millisecond

// Command identifies a co-processor operation.
type Command uint8

// Command ids understood by the co-processor firmware
const (
	CmdGetVersion            Command = 0x01
	CmdSetBrightness         Command = 0x02
	CmdSetBrightnessAdvanced Command = 0x03
	CmdGetState              Command = 0x10
	CmdSetDimmingParameters  Command = 0x20
	CmdSetWarmUpTime         Command = 0x21
	CmdDimmingType2          Command = 0x30
	CmdDimmingType3          Command = 0x31
)

// Known reports whether c is part of the command catalogue.
func (c Command) Known() bool {
	switch c {
	case CmdGetVersion, CmdSetBrightness, CmdSetBrightnessAdvanced, CmdGetState,
		CmdSetDimmingParameters, CmdSetWarmUpTime, CmdDimmingType2, CmdDimmingType3:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c {
	case CmdGetVersion:
		return "GET_VERSION"
	case CmdSetBrightness:
		return "SET_BRIGHTNESS"
	case CmdSetBrightnessAdvanced:
		return "SET_BRIGHTNESS_ADVANCED"
	case CmdGetState:
		return "GET_STATE"
	case CmdSetDimmingParameters:
		return "SET_DIMMING_PARAMETERS"
	case CmdSetWarmUpTime:
		return "SET_WARM_UP_TIME"
	case CmdDimmingType2:
		return "DIMMING_TYPE_2"
	case CmdDimmingType3:
		return "DIMMING_TYPE_3"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", uint8(c))
	}
}

// Decoder states (internal)
const (
	stateStart = iota
	stateCounter
	stateCommand
	stateLength
	statePayload
	stateChecksumHi
	stateChecksumLo
	stateEnd
)

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortPayload is returned when a reply is too short for its command.
var ErrShortPayload = errors.New("reply payload too short")

// Reply is a frame received from the co-processor, decoded by command.
// The concrete types are VersionReply, StateReply, AckReply and UnknownReply.
type Reply interface {
	Command() Command
	isReply()
}

// VersionReply carries the co-processor firmware identifier.
type VersionReply struct {
	Version []byte
	Match   bool
}

// StateReply carries the brightness and load reported by the co-processor.
type StateReply struct {
	Brightness uint16 // profile units
	Wattage    uint16 // watts
	Raw        []byte
}

// AckReply acknowledges a set command.
type AckReply struct {
	Cmd     Command
	Payload []byte
}

// UnknownReply is a frame whose command id is not in the catalogue.
type UnknownReply struct {
	Cmd     Command
	Payload []byte
}

func (VersionReply) Command() Command   { return CmdGetVersion }
func (StateReply) Command() Command     { return CmdGetState }
func (r AckReply) Command() Command     { return r.Cmd }
func (r UnknownReply) Command() Command { return r.Cmd }

func (VersionReply) isReply() {}
func (StateReply) isReply()   {}
func (AckReply) isReply()     {}
func (UnknownReply) isReply() {}

// ParseReply decodes a frame according to the profile.
func ParseReply(p Profile, f *Frame) (Reply, error) {
	payload := f.Payload()

	switch f.Command() {
	case CmdGetVersion:
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: %s needs 2 bytes, got %d", ErrShortPayload, f.Command(), len(payload))
		}
		return VersionReply{
			Version: payload,
			Match:   payload[0] == p.VersionID[0] && payload[1] == p.VersionID[1],
		}, nil

	case CmdGetState:
		need := max(p.BrightnessOffset, p.WattageOffset) + 2
		if len(payload) < need {
			return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrShortPayload, f.Command(), need, len(payload))
		}
		raw := binary.LittleEndian.Uint16(payload[p.BrightnessOffset:])
		watts := binary.LittleEndian.Uint16(payload[p.WattageOffset:])
		divisor := p.WattageDivisor
		if divisor == 0 {
			divisor = 1
		}
		return StateReply{
			Brightness: p.DecodeBrightness(raw),
			Wattage:    watts / divisor,
			Raw:        payload,
		}, nil

	case CmdSetBrightness, CmdSetBrightnessAdvanced, CmdSetDimmingParameters,
		CmdSetWarmUpTime, CmdDimmingType2, CmdDimmingType3:
		return AckReply{Cmd: f.Command(), Payload: payload}, nil

	default:
		return UnknownReply{Cmd: f.Command(), Payload: payload}, nil
	}
}

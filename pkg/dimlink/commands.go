// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimlink

import "encoding/binary"

// Profile describes how a co-processor firmware revision encodes brightness
// and state. Values are stable within one revision.
type Profile struct {
	Name string

	// Scale is the number of wire units per brightness unit.
	Scale uint16
	// Advanced selects SET_BRIGHTNESS_ADVANCED with its trailing fade field.
	Advanced bool

	VersionID        [2]byte
	BrightnessOffset int
	WattageOffset    int
	WattageDivisor   uint16
}

// Known device profiles
var (
	// ProfilePercent drives brightness in percent; the wire carries tenths.
	ProfilePercent = Profile{
		Name:             "percent",
		Scale:            10,
		VersionID:        [2]byte{0x35, 0x02},
		BrightnessOffset: 2,
		WattageOffset:    6,
		WattageDivisor:   20,
	}

	// ProfilePerMille drives brightness in per-mille with the advanced command.
	ProfilePerMille = Profile{
		Name:             "permille",
		Scale:            1,
		Advanced:         true,
		VersionID:        [2]byte{0x35, 0x02},
		BrightnessOffset: 2,
		WattageOffset:    6,
		WattageDivisor:   20,
	}
)

// ProfileByName returns a known profile, defaulting to ProfilePercent.
func ProfileByName(name string) Profile {
	if name == ProfilePerMille.Name {
		return ProfilePerMille
	}
	return ProfilePercent
}

// BrightnessCommand returns the command used to set brightness.
func (p Profile) BrightnessCommand() Command {
	if p.Advanced {
		return CmdSetBrightnessAdvanced
	}
	return CmdSetBrightness
}

// BrightnessPayload encodes brightness b for the profile. Values whose
// scaled form does not fit 16 bits are clamped to the largest one that does.
//
// Short form:    [b*scale LE16]
// Advanced form: [b*scale LE16][0x0000][fade rate 0x0000]
func (p Profile) BrightnessPayload(b uint16) []byte {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	if b > 0xFFFF/scale {
		b = 0xFFFF / scale
	}
	size := 2
	if p.Advanced {
		size = 6
	}
	payload := make([]byte, size)
	binary.LittleEndian.PutUint16(payload[0:2], b*scale)
	return payload
}

// DecodeBrightness converts a wire brightness to profile units.
func (p Profile) DecodeBrightness(raw uint16) uint16 {
	if p.Scale == 0 {
		return raw
	}
	return raw / p.Scale
}

// EdgeType selects leading or trailing edge phase cutting.
type EdgeType uint8

const (
	EdgeLeading  EdgeType = 1
	EdgeTrailing EdgeType = 2
)

func (e EdgeType) String() string {
	switch e {
	case EdgeLeading:
		return "leading"
	case EdgeTrailing:
		return "trailing"
	default:
		return "unknown"
	}
}

// Anti-flicker debounce bounds
const (
	MinFlickerDebounce     = 50
	MaxFlickerDebounce     = 150
	DefaultFlickerDebounce = 100
	DefaultFadeRate        = 0x0F
)

// DimmingTypeBlockSize is the size of the opaque type-2/type-3 payloads.
const DimmingTypeBlockSize = 0xC8

// DimmingParameters is the content of a SET_DIMMING_PARAMETERS frame.
type DimmingParameters struct {
	Edge     EdgeType
	Debounce uint8
	FadeRate uint8
}

// DefaultDimmingParameters returns trailing edge with the default debounce.
func DefaultDimmingParameters() DimmingParameters {
	return DimmingParameters{
		Edge:     EdgeTrailing,
		Debounce: DefaultFlickerDebounce,
		FadeRate: DefaultFadeRate,
	}
}

// ClampFlickerDebounce bounds an anti-flicker debounce value.
func ClampFlickerDebounce(v uint64) uint8 {
	if v < MinFlickerDebounce {
		return MinFlickerDebounce
	}
	if v > MaxFlickerDebounce {
		return MaxFlickerDebounce
	}
	return uint8(v)
}

// Payload packs the parameters into the fixed 12-byte template:
//
//	[0x00 0x00 edge 0x00 fade 0x00 debounce 0x00 0x00 0x00 0x00 0x00]
func (d DimmingParameters) Payload() []byte {
	payload := make([]byte, 12)
	payload[2] = byte(d.Edge)
	payload[4] = d.FadeRate
	payload[6] = d.Debounce
	return payload
}

// DimmingTypeBlock returns the zeroed payload sent with DIMMING_TYPE_2 and
// DIMMING_TYPE_3. The co-processor requires it after a parameter change.
func DimmingTypeBlock() []byte {
	return make([]byte, DimmingTypeBlockSize)
}

// Sequence lists the three frames of a dimming parameter change, in order.
func (d DimmingParameters) Sequence() []Request {
	return []Request{
		{Cmd: CmdSetDimmingParameters, Payload: d.Payload()},
		{Cmd: CmdDimmingType2, Payload: DimmingTypeBlock()},
		{Cmd: CmdDimmingType3, Payload: DimmingTypeBlock()},
	}
}

// Request is one command frame to be sent.
type Request struct {
	Cmd     Command
	Payload []byte
}

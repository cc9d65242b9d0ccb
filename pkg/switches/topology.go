// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package switches samples the wall switch inputs on a fixed tick, debounces
// them with a five slot history and classifies the edges into button events.
package switches

import "github.com/Thermoquad/penumbra/pkg/param"

// Level is a raw input level
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == Low {
		return "LOW"
	}
	return "HIGH"
}

// SwitchType selects how levels map to gestures
type SwitchType uint8

const (
	// Toggle switches map their two positions to on and off.
	Toggle SwitchType = 2
	// Push buttons produce clicks, long clicks and double clicks.
	Push SwitchType = 1
)

func (s SwitchType) String() string {
	if s == Push {
		return "push"
	}
	return "toggle"
}

// Topology is the switch configuration used by the classifier
type Topology struct {
	Type    SwitchType
	Release Level // level of a released push button or an "off" toggle
}

// DefaultTopology is a toggle switch that is off when low.
var DefaultTopology = Topology{Type: Toggle, Release: Low}

// ParseTopology builds a topology from the configuration strings.
// Invalid values keep the corresponding field of DefaultTopology.
func ParseTopology(switchType, releaseState string) Topology {
	return DefaultTopology.WithSwitchType(switchType).WithReleaseState(releaseState)
}

// WithSwitchType returns t with the type parsed from s ("1" is push,
// any other digit is toggle). Invalid input leaves t unchanged.
func (t Topology) WithSwitchType(s string) Topology {
	v, ok := param.ParseUint(s, 1)
	if !ok {
		return t
	}
	if v == 1 {
		t.Type = Push
	} else {
		t.Type = Toggle
	}
	return t
}

// WithReleaseState returns t with the release level parsed from s ("0" is
// low, any other digit is high). Invalid input leaves t unchanged.
func (t Topology) WithReleaseState(s string) Topology {
	v, ok := param.ParseUint(s, 1)
	if !ok {
		return t
	}
	if v == 0 {
		t.Release = Low
	} else {
		t.Release = High
	}
	return t
}

func (t Topology) pack() uint32 {
	return uint32(t.Type)<<8 | uint32(t.Release)
}

func unpackTopology(v uint32) Topology {
	return Topology{Type: SwitchType(v >> 8), Release: Level(v & 0xFF)}
}

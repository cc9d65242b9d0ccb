// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package light

import (
	"strings"
	"time"

	"github.com/Thermoquad/penumbra/pkg/param"
)

// MaxPhases is the longest blink pattern accepted
const MaxPhases = 10

// Default patterns, in milliseconds
var (
	DefaultPattern   = Pattern{phases: []uint32{500, 500}}
	SlowBlinkPattern = Pattern{phases: []uint32{1000, 1000}}
	FastBlinkPattern = Pattern{phases: []uint32{500, 500}}
)

// Pattern is a cyclic list of phase durations in milliseconds. Even phases
// drive the light to its maximum, odd phases to its minimum.
type Pattern struct {
	phases []uint32
}

// NewPattern builds a pattern from phase durations. Phases past MaxPhases
// are dropped; a pattern with fewer than two non-zero phases is replaced by
// DefaultPattern.
func NewPattern(phases ...uint32) Pattern {
	if len(phases) > MaxPhases {
		phases = phases[:MaxPhases]
	}
	nonZero := 0
	for _, p := range phases {
		if p > 0 {
			nonZero++
		}
	}
	if nonZero < 2 {
		return DefaultPattern
	}
	return Pattern{phases: append([]uint32(nil), phases...)}
}

// ParsePattern parses "on,off,on,..." in milliseconds. An empty string
// yields SlowBlinkPattern.
func ParsePattern(s string) (Pattern, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SlowBlinkPattern, true
	}
	fields := strings.Split(s, ",")
	phases := make([]uint32, 0, len(fields))
	for _, f := range fields {
		v, ok := param.ParseUint(strings.TrimSpace(f), 6)
		if !ok {
			return DefaultPattern, false
		}
		phases = append(phases, uint32(v))
	}
	return NewPattern(phases...), true
}

// Phases returns a copy of the phase durations.
func (p Pattern) Phases() []uint32 {
	return append([]uint32(nil), p.phases...)
}

// Cycle returns the total duration of one cycle.
func (p Pattern) Cycle() time.Duration {
	var total uint32
	for _, ph := range p.phases {
		total += ph
	}
	return time.Duration(total) * time.Millisecond
}

// Player steps through a pattern. Its origin moves forward by whole cycles
// so phase boundaries never drift.
type Player struct {
	pattern Pattern
	origin  time.Time
	last    int
}

// NewPlayer starts a pattern at start.
func NewPlayer(p Pattern, start time.Time) *Player {
	if len(p.phases) == 0 {
		p = DefaultPattern
	}
	return &Player{pattern: p, origin: start, last: -1}
}

// Pattern returns the pattern being played.
func (pl *Player) Pattern() Pattern {
	return pl.pattern
}

// Phase returns the phase index at now and whether it differs from the
// index returned by the previous call.
func (pl *Player) Phase(now time.Time) (int, bool) {
	cycle := pl.pattern.Cycle()
	elapsed := now.Sub(pl.origin)
	if elapsed < 0 {
		pl.origin = now
		elapsed = 0
	}
	for elapsed >= cycle {
		pl.origin = pl.origin.Add(cycle)
		elapsed -= cycle
	}

	idx := len(pl.pattern.phases) - 1
	var acc time.Duration
	for i, ph := range pl.pattern.phases {
		acc += time.Duration(ph) * time.Millisecond
		if elapsed < acc {
			idx = i
			break
		}
	}

	changed := idx != pl.last
	pl.last = idx
	return idx, changed
}

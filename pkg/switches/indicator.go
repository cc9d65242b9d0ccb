// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package switches

import (
	"sync/atomic"
	"time"
)

// LEDMode is the status LED pattern
type LEDMode uint32

const (
	LEDOff LEDMode = iota
	LEDFastBlink
	LEDSlowBlink
	LEDOn
)

func (m LEDMode) String() string {
	switch m {
	case LEDOff:
		return "off"
	case LEDFastBlink:
		return "fast"
	case LEDSlowBlink:
		return "slow"
	case LEDOn:
		return "on"
	}
	return "unknown"
}

// LED blink half periods in ticks, and how long LEDOn lasts
const (
	FastBlinkTicks = 4
	SlowBlinkTicks = 10
	LEDOnTimeout   = time.Minute
)

// Output is a digital output line
type Output interface {
	SetValue(value int) error
}

// Indicator drives the status LED. Blinking is stepped from the debouncer
// tick; mode changes and the on timeout come from the main loop.
type Indicator struct {
	out       Output
	activeLow bool

	mode    atomic.Uint32
	ticks   atomic.Uint32
	lit     atomic.Bool
	onSince atomic.Int64 // unix nanos, 0 when not timing
}

// NewIndicator creates an indicator in LEDOff.
func NewIndicator(out Output, activeLow bool) *Indicator {
	ind := &Indicator{out: out, activeLow: activeLow}
	ind.set(false)
	return ind
}

// Mode returns the current LED mode.
func (ind *Indicator) Mode() LEDMode {
	return LEDMode(ind.mode.Load())
}

// Lit reports whether the LED is currently on.
func (ind *Indicator) Lit() bool {
	return ind.lit.Load()
}

// SetMode switches the LED pattern. Setting the current mode again is a no-op.
func (ind *Indicator) SetMode(mode LEDMode, now time.Time) {
	if LEDMode(ind.mode.Swap(uint32(mode))) == mode {
		return
	}
	ind.ticks.Store(0)
	ind.onSince.Store(0)
	switch mode {
	case LEDOff:
		ind.set(false)
	case LEDOn:
		ind.set(true)
		ind.onSince.Store(now.UnixNano())
	}
}

// Tick advances blinking by one tick.
func (ind *Indicator) Tick() {
	var period uint32
	switch ind.Mode() {
	case LEDFastBlink:
		period = FastBlinkTicks
	case LEDSlowBlink:
		period = SlowBlinkTicks
	default:
		return
	}
	if ind.ticks.Add(1) > period {
		ind.set(!ind.lit.Load())
		ind.ticks.Store(0)
	}
}

// Expire turns the LED off once LEDOn has lasted LEDOnTimeout.
func (ind *Indicator) Expire(now time.Time) {
	since := ind.onSince.Load()
	if since == 0 || ind.Mode() != LEDOn {
		return
	}
	if now.Sub(time.Unix(0, since)) > LEDOnTimeout {
		ind.SetMode(LEDOff, now)
	}
}

func (ind *Indicator) set(on bool) {
	ind.lit.Store(on)
	if ind.out == nil {
		return
	}
	v := 0
	if on != ind.activeLow {
		v = 1
	}
	_ = ind.out.SetValue(v)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package light owns the dimmer brightness: bounds, on/off/toggle, the
// auto-off timer and the blink player.
//
// LightOn, LightOff and LightToggle may be called from the switch tick
// goroutine; they only update atomics and mark a pending send. Everything
// that talks to the co-processor or the message bus happens in Handle and
// the other context-taking methods, which belong to the main loop.
package light

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/penumbra/pkg/param"
	"go.uber.org/zap"
)

// TopicBrightness is the topic id brightness changes are published under
const TopicBrightness = "pubMqttBrightnessLevel"

// Sender issues brightness commands to the co-processor
type Sender interface {
	SetBrightness(ctx context.Context, b uint16) error
}

// Publisher sends a payload to the topic configured under topicID
type Publisher interface {
	Publish(topicID, payload string) error
}

// Limits are the device-valid brightness ranges
type Limits struct {
	Ceiling    uint16 // highest brightness
	MinCeiling uint16 // highest allowed minimum
	MinGap     uint16 // smallest allowed max-min distance
}

// Known limits
var (
	PercentLimits  = Limits{Ceiling: 100, MinCeiling: 20, MinGap: 1}
	PerMilleLimits = Limits{Ceiling: 1000, MinCeiling: 200, MinGap: 10}
)

// LimitsFor returns the limits matching a device profile name.
func LimitsFor(profile string) Limits {
	if profile == "permille" {
		return PerMilleLimits
	}
	return PercentLimits
}

func (l Limits) digits() int {
	return len(strconv.Itoa(int(l.Ceiling)))
}

// Status is a snapshot of the controller state
type Status struct {
	Brightness uint16
	Reported   uint16
	Min        uint16
	Max        uint16
	Wattage    uint16
	On         bool
	Blinking   bool
	AutoOff    time.Duration
	AutoOffAt  time.Time
}

// state packs the commanded brightness with the pending-send flag so both
// change in one atomic step.
const (
	brightnessMask = 0xFFFF
	pendingFlag    = 1 << 16
)

// Controller owns the brightness state
type Controller struct {
	limits Limits
	sender Sender
	logger *zap.Logger

	// shared with the switch tick goroutine
	state     atomic.Uint32
	min       atomic.Uint32
	max       atomic.Uint32
	noAutoOff atomic.Bool

	// written by state replies
	reported atomic.Uint32
	wattage  atomic.Uint32

	// main loop only
	mu         sync.Mutex
	autoOff    time.Duration
	deadline   time.Time
	observed   uint16
	published  uint16
	hasPublish bool
	player     *Player
	blinkUntil time.Time
}

// NewController creates a controller with min 0 and max at half the ceiling.
func NewController(limits Limits, sender Sender, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{limits: limits, sender: sender, logger: logger}
	c.max.Store(uint32(limits.Ceiling / 2))
	return c
}

// Limits returns the device limits.
func (c *Controller) Limits() Limits {
	return c.limits
}

// Brightness returns the commanded brightness.
func (c *Controller) Brightness() uint16 {
	return uint16(c.state.Load() & brightnessMask)
}

// MinBrightness returns the lower bound.
func (c *Controller) MinBrightness() uint16 {
	return uint16(c.min.Load())
}

// MaxBrightness returns the upper bound.
func (c *Controller) MaxBrightness() uint16 {
	return uint16(c.max.Load())
}

// IsOn reports whether the light is above its minimum.
func (c *Controller) IsOn() bool {
	return c.state.Load()&brightnessMask > c.min.Load()
}

// SetMinBrightness parses and applies the lower bound. Malformed input is
// ignored and reported as false.
func (c *Controller) SetMinBrightness(s string) bool {
	v, ok := param.ParseUint(s, c.limits.digits())
	if !ok {
		return false
	}
	lo := param.Clamp(v, 0, uint64(c.limits.MinCeiling))
	c.min.Store(uint32(lo))

	// keep the gap to max
	hi := param.Clamp(uint64(c.max.Load()), lo+uint64(c.limits.MinGap), uint64(c.limits.Ceiling))
	c.max.Store(uint32(hi))
	c.clampCurrent()
	return true
}

// SetMaxBrightness parses and applies the upper bound, clamped to
// [min+MinGap, Ceiling].
func (c *Controller) SetMaxBrightness(s string) bool {
	v, ok := param.ParseUint(s, c.limits.digits())
	if !ok {
		return false
	}
	lo := uint64(c.min.Load()) + uint64(c.limits.MinGap)
	c.max.Store(uint32(param.Clamp(v, lo, uint64(c.limits.Ceiling))))
	c.clampCurrent()
	return true
}

// SetAutoOffTimer parses the auto-off delay in seconds. An empty string
// disables the timer.
func (c *Controller) SetAutoOffTimer(s string) bool {
	var secs uint64
	if s != "" {
		v, ok := param.ParseUint(s, 5)
		if !ok {
			return false
		}
		secs = v
	}
	c.mu.Lock()
	c.autoOff = time.Duration(secs) * time.Second
	if c.autoOff == 0 {
		c.deadline = time.Time{}
	}
	c.mu.Unlock()
	return true
}

func (c *Controller) clampCurrent() {
	c.update(func(cur uint32) (uint32, bool) {
		lo, hi := c.min.Load(), c.max.Load()
		switch {
		case cur < lo:
			return lo, true
		case cur > hi:
			return hi, true
		}
		return cur, false
	})
}

// update replaces the brightness with next(current) and marks it pending.
// next may run more than once when another goroutine writes concurrently.
func (c *Controller) update(next func(cur uint32) (uint32, bool)) {
	for {
		old := c.state.Load()
		b, ok := next(old & brightnessMask)
		if !ok {
			return
		}
		if c.state.CompareAndSwap(old, b&brightnessMask|pendingFlag) {
			return
		}
	}
}

func (c *Controller) setCurrent(b uint32) {
	c.update(func(uint32) (uint32, bool) { return b, true })
}

// takePending clears the pending flag and returns the brightness it
// covered.
func (c *Controller) takePending() (uint16, bool) {
	for {
		old := c.state.Load()
		if old&pendingFlag == 0 {
			return 0, false
		}
		if c.state.CompareAndSwap(old, old&brightnessMask) {
			return uint16(old & brightnessMask), true
		}
	}
}

func (c *Controller) markPending() {
	for {
		old := c.state.Load()
		if c.state.CompareAndSwap(old, old|pendingFlag) {
			return
		}
	}
}

// flushPending sends the pending brightness, if any. A failed send stays
// pending.
func (c *Controller) flushPending(ctx context.Context) {
	b, ok := c.takePending()
	if !ok {
		return
	}
	if err := c.send(ctx, b); err != nil {
		c.markPending()
	}
}

// LightOn drives the light to its maximum.
func (c *Controller) LightOn() {
	c.noAutoOff.Store(false)
	c.setCurrent(c.max.Load())
}

// LightOff drives the light to its minimum.
func (c *Controller) LightOff() {
	c.setCurrent(c.min.Load())
}

// LightToggle switches to whichever bound is further from the current
// brightness. Turning on with noAutoOff keeps the auto-off timer disarmed.
func (c *Controller) LightToggle(noAutoOff bool) {
	c.update(func(cur uint32) (uint32, bool) {
		lo, hi := c.min.Load(), c.max.Load()
		if int64(cur)-int64(lo) < int64(hi)-int64(cur) {
			c.noAutoOff.Store(noAutoOff)
			return hi, true
		}
		return lo, true
	})
}

// ObserveState records brightness and load reported by the co-processor.
// The reported brightness replaces the commanded one only while nothing
// is pending and the light is not blinking.
func (c *Controller) ObserveState(brightness uint16, wattage uint16) {
	c.reported.Store(uint32(brightness))
	c.wattage.Store(uint32(wattage))
	if c.Blinking() {
		return
	}
	for {
		old := c.state.Load()
		if old&pendingFlag != 0 {
			return
		}
		if c.state.CompareAndSwap(old, uint32(brightness)) {
			return
		}
	}
}

// SetBrightness commands b immediately.
func (c *Controller) SetBrightness(ctx context.Context, b uint16) error {
	c.state.Store(uint32(b))
	return c.send(ctx, b)
}

// ForceOff stops blinking and drives the light to zero.
func (c *Controller) ForceOff(ctx context.Context) error {
	c.mu.Lock()
	c.player = nil
	c.blinkUntil = time.Time{}
	c.mu.Unlock()
	return c.SetBrightness(ctx, 0)
}

// StartBlink plays p from now. A non-zero duration stops blinking after it.
func (c *Controller) StartBlink(p Pattern, duration time.Duration, now time.Time) {
	c.mu.Lock()
	c.player = NewPlayer(p, now)
	c.blinkUntil = time.Time{}
	if duration > 0 {
		c.blinkUntil = now.Add(duration)
	}
	c.mu.Unlock()
	c.logger.Info("blink started", zap.Uint32s("pattern", p.Phases()), zap.Duration("duration", duration))
}

// SetBlinkDuration limits a running blink to d from now; zero means forever.
func (c *Controller) SetBlinkDuration(d time.Duration, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == 0 {
		c.blinkUntil = time.Time{}
		return
	}
	c.blinkUntil = now.Add(d)
}

// StopBlink ends blinking and restores the commanded brightness.
func (c *Controller) StopBlink(ctx context.Context) error {
	c.mu.Lock()
	wasBlinking := c.player != nil
	c.player = nil
	c.blinkUntil = time.Time{}
	c.mu.Unlock()
	if !wasBlinking {
		return nil
	}
	c.logger.Info("blink stopped")
	return c.send(ctx, c.Brightness())
}

// Blinking reports whether a blink pattern is playing.
func (c *Controller) Blinking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.player != nil
}

// Handle runs one main loop iteration: pending sends, blinking, auto-off
// and publishing. Publish failures are retried on the next call.
func (c *Controller) Handle(ctx context.Context, now time.Time, pub Publisher) {
	c.flushPending(ctx)

	c.stepBlink(ctx, now)
	c.trackChange(now)
	c.checkAutoOff(ctx, now)
	c.publish(pub)
}

func (c *Controller) stepBlink(ctx context.Context, now time.Time) {
	c.mu.Lock()
	if c.player == nil {
		c.mu.Unlock()
		return
	}
	if !c.blinkUntil.IsZero() && !now.Before(c.blinkUntil) {
		c.mu.Unlock()
		_ = c.StopBlink(ctx)
		return
	}
	idx, changed := c.player.Phase(now)
	c.mu.Unlock()

	if !changed {
		return
	}
	target := c.MaxBrightness()
	if idx%2 == 1 {
		target = c.MinBrightness()
	}
	_ = c.send(ctx, target)
}

// trackChange arms or clears the auto-off deadline when brightness changes.
func (c *Controller) trackChange(now time.Time) {
	cur := c.Brightness()
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur == c.observed {
		return
	}
	c.observed = cur
	if cur > c.MinBrightness() && c.autoOff > 0 && !c.noAutoOff.Load() {
		c.deadline = now.Add(c.autoOff)
	} else {
		c.deadline = time.Time{}
	}
}

func (c *Controller) checkAutoOff(ctx context.Context, now time.Time) {
	c.mu.Lock()
	expired := !c.deadline.IsZero() && now.After(c.deadline)
	if expired {
		c.deadline = time.Time{}
	}
	c.mu.Unlock()
	if !expired {
		return
	}

	c.logger.Info("auto-off")
	c.LightOff()
	c.flushPending(ctx)
	c.mu.Lock()
	c.observed = c.Brightness()
	c.mu.Unlock()
}

func (c *Controller) publish(pub Publisher) {
	if pub == nil {
		return
	}
	cur := c.Brightness()
	c.mu.Lock()
	done := c.hasPublish && cur == c.published
	c.mu.Unlock()
	if done {
		return
	}
	if err := pub.Publish(TopicBrightness, strconv.Itoa(int(cur))); err != nil {
		c.logger.Debug("brightness publish failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.published = cur
	c.hasPublish = true
	c.mu.Unlock()
}

func (c *Controller) send(ctx context.Context, b uint16) error {
	if c.sender == nil {
		return nil
	}
	if err := c.sender.SetBrightness(ctx, b); err != nil {
		c.logger.Warn("set brightness failed", zap.Uint16("brightness", b), zap.Error(err))
		return err
	}
	return nil
}

// Status returns a snapshot for telemetry.
func (c *Controller) Status() Status {
	s := Status{
		Brightness: c.Brightness(),
		Reported:   uint16(c.reported.Load()),
		Min:        c.MinBrightness(),
		Max:        c.MaxBrightness(),
		Wattage:    uint16(c.wattage.Load()),
		On:         c.IsOn(),
	}
	c.mu.Lock()
	s.Blinking = c.player != nil
	s.AutoOff = c.autoOff
	s.AutoOffAt = c.deadline
	c.mu.Unlock()
	return s
}

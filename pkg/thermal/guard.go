// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermal

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Topic ids published by the guard
const (
	TopicOverheat    = "pubMqttOverheat"
	TopicTemperature = "pubMqttTemperature"
)

// DefaultPeriod is the sampling interval
const DefaultPeriod = time.Second

// Thresholds in Celsius
type Thresholds struct {
	Shutdown float64 // above: force the light off
	Alarm    float64 // above: raise the alarm
	Clear    float64 // below: clear the alarm
}

// DefaultThresholds are the board limits
var DefaultThresholds = Thresholds{Shutdown: 95, Alarm: 80, Clear: 75}

// Shutdowner forces the light off and stops blinking
type Shutdowner interface {
	ForceOff(ctx context.Context) error
}

// Publisher sends a payload to the topic configured under topicID
type Publisher interface {
	Publish(topicID, payload string) error
}

// Guard samples a Sensor and applies the overheat rules
type Guard struct {
	sensor     Sensor
	target     Shutdowner
	hostname   string
	thresholds Thresholds
	logger     *zap.Logger

	alarm   atomic.Bool
	lastC   atomic.Uint64

	mu        sync.Mutex
	pub       Publisher
	announced bool
}

// NewGuard creates a guard with DefaultThresholds.
func NewGuard(sensor Sensor, target Shutdowner, hostname string, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{
		sensor:     sensor,
		target:     target,
		hostname:   hostname,
		thresholds: DefaultThresholds,
		logger:     logger,
	}
	g.lastC.Store(math.Float64bits(math.NaN()))
	return g
}

// SetThresholds replaces the limits.
func (g *Guard) SetThresholds(t Thresholds) {
	g.thresholds = t
}

// SetPublisher sets where alarms and readings go. nil disables publishing.
func (g *Guard) SetPublisher(pub Publisher) {
	g.mu.Lock()
	g.pub = pub
	g.mu.Unlock()
}

// Alarm reports whether the overheat alarm is raised.
func (g *Guard) Alarm() bool {
	return g.alarm.Load()
}

// Last returns the most recent reading, NaN before the first sample.
func (g *Guard) Last() float64 {
	return math.Float64frombits(g.lastC.Load())
}

// Sample reads the sensor once and applies the result.
func (g *Guard) Sample(ctx context.Context) error {
	c, err := g.sensor.Temperature(ctx)
	if err != nil {
		return err
	}
	g.Check(ctx, c)
	return nil
}

// Check applies one reading: shutdown and alarm above their thresholds,
// alarm cleared only below Clear.
func (g *Guard) Check(ctx context.Context, c float64) {
	if math.IsNaN(c) {
		g.logger.Warn("invalid temperature reading")
		return
	}
	g.lastC.Store(math.Float64bits(c))

	switch {
	case c > g.thresholds.Alarm:
		if c > g.thresholds.Shutdown && g.target != nil {
			if err := g.target.ForceOff(ctx); err != nil {
				g.logger.Error("overheat shutdown failed", zap.Float64("celsius", c), zap.Error(err))
			}
		}
		if !g.alarm.Swap(true) {
			g.logger.Warn("overheat alarm", zap.Float64("celsius", c))
		}
	case c < g.thresholds.Clear:
		if g.alarm.Swap(false) {
			g.logger.Info("overheat alarm cleared", zap.Float64("celsius", c))
		}
	}

	g.publish(c)
}

func (g *Guard) publish(c float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.alarm.Load() {
		g.announced = false
	}
	if g.pub == nil {
		return
	}

	if err := g.pub.Publish(TopicTemperature, fmt.Sprintf("%.1f", c)); err != nil {
		g.logger.Debug("temperature publish failed", zap.Error(err))
	}
	if g.alarm.Load() && !g.announced {
		payload := fmt.Sprintf("%q %f", g.hostname, c)
		if err := g.pub.Publish(TopicOverheat, payload); err != nil {
			g.logger.Debug("overheat publish failed", zap.Error(err))
			return
		}
		g.announced = true
	}
}

// Run samples every period until ctx is done.
func (g *Guard) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = DefaultPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.Sample(ctx); err != nil {
				g.logger.Warn("temperature sample failed", zap.Error(err))
			}
		}
	}
}

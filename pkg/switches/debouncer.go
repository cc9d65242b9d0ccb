// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package switches

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Timing defaults, in ticks of DefaultTickPeriod
const (
	DefaultTickPeriod     = 25 * time.Millisecond
	DefaultDebounceTicks  = 4  // 100 ms
	DefaultLongClickTicks = 20 // 500 ms
)

// Input is a switch line that can be sampled without blocking
type Input interface {
	Level() Level
}

// Actions are applied immediately when an event is classified. They run on
// the tick goroutine and must only touch atomic state.
type Actions interface {
	LightOn()
	LightOff()
	LightToggle(noAutoOff bool)
	IsOn() bool
}

// Publisher sends a payload to the topic configured under topicID
type Publisher interface {
	Publish(topicID, payload string) error
}

// Config holds the debouncer timing
type Config struct {
	TickPeriod     time.Duration
	DebounceTicks  uint8
	LongClickTicks uint8
}

// DefaultConfig returns the historical timing.
func DefaultConfig() Config {
	return Config{
		TickPeriod:     DefaultTickPeriod,
		DebounceTicks:  DefaultDebounceTicks,
		LongClickTicks: DefaultLongClickTicks,
	}
}

// Debouncer samples every input once per tick and classifies gestures.
//
// Histories belong to the tick goroutine. Pending events and the topology
// are atomics shared with the main loop.
type Debouncer struct {
	inputs    []Input
	histories []History
	pending   []atomic.Uint32

	topology  atomic.Uint32
	actions   Actions
	indicator *Indicator
	cfg       Config
	logger    *zap.Logger
}

// NewDebouncer creates a debouncer. Each history starts from the input's
// current level so a switch left on at power-up does not fire.
func NewDebouncer(inputs []Input, actions Actions, cfg Config, logger *zap.Logger) *Debouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickPeriod <= 0 {
		cfg.TickPeriod = DefaultTickPeriod
	}
	d := &Debouncer{
		inputs:    inputs,
		histories: make([]History, len(inputs)),
		pending:   make([]atomic.Uint32, len(inputs)),
		actions:   actions,
		cfg:       cfg,
		logger:    logger,
	}
	for i, in := range inputs {
		d.histories[i] = NewHistory(in.Level())
		d.pending[i].Store(uint32(EventNone))
	}
	d.topology.Store(DefaultTopology.pack())
	return d
}

// SetIndicator attaches a status LED stepped by the same tick.
func (d *Debouncer) SetIndicator(ind *Indicator) {
	d.indicator = ind
}

// SetTopology changes the switch configuration.
func (d *Debouncer) SetTopology(t Topology) {
	d.topology.Store(t.pack())
	d.logger.Info("switch topology",
		zap.Stringer("type", t.Type),
		zap.Stringer("release", t.Release))
}

// Topology returns the current switch configuration.
func (d *Debouncer) Topology() Topology {
	return unpackTopology(d.topology.Load())
}

// Tick samples every input once. It neither blocks nor allocates.
func (d *Debouncer) Tick() {
	topo := d.Topology()
	for i, in := range d.inputs {
		h := &d.histories[i]
		h.Step(in.Level(), d.cfg.DebounceTicks)

		ev := Classify(h, topo, d.cfg.LongClickTicks)
		if ev == EventNone {
			continue
		}
		d.apply(ev)
		d.pending[i].Store(uint32(ev))
	}
	if d.indicator != nil {
		d.indicator.Tick()
	}
}

func (d *Debouncer) apply(ev Event) {
	switch ev {
	case EventOn, EventOnOffOn:
		d.actions.LightOn()
	case EventOff, EventOffOnOff:
		d.actions.LightOff()
	case EventShortClick, EventDoubleClick:
		d.actions.LightToggle(false)
	case EventLongClick:
		d.actions.LightToggle(true)
	}
}

// Run calls Tick every tick period until ctx is done.
func (d *Debouncer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick()
		}
	}
}

// Pending returns the unpublished event of switch i, or EventNone.
func (d *Debouncer) Pending(i int) Event {
	return Event(d.pending[i].Load())
}

// PublishPending publishes each switch's pending event once. A failed
// publish leaves the event pending for the next call. An event replaced by
// the tick goroutine while publishing stays pending.
func (d *Debouncer) PublishPending(pub Publisher, topicID string) {
	for i := range d.pending {
		ev := Event(d.pending[i].Load())
		if ev == EventNone {
			continue
		}

		light := "LIGHT_OFF"
		if d.actions.IsOn() {
			light = "LIGHT_ON"
		}
		payload := fmt.Sprintf("%s %s %d", ev, light, i)
		if err := pub.Publish(topicID, payload); err != nil {
			d.logger.Debug("switch event publish failed", zap.Int("switch", i), zap.Error(err))
			continue
		}
		d.pending[i].CompareAndSwap(uint32(ev), uint32(EventNone))
		d.logger.Info("switch event", zap.Int("switch", i), zap.Stringer("event", ev))
	}
}

// Len returns the number of switches.
func (d *Debouncer) Len() int {
	return len(d.inputs)
}

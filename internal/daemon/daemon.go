// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package daemon runs the dimmer main loop. The switch debouncer and the
// overheat guard tick on their own goroutines; everything that talks to
// the co-processor or the broker happens on the loop goroutine.
package daemon

import (
	"context"
	"math"
	"time"

	"github.com/Thermoquad/penumbra/internal/bridge"
	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/Thermoquad/penumbra/pkg/light"
	"github.com/Thermoquad/penumbra/pkg/param"
	"github.com/Thermoquad/penumbra/pkg/switches"
	"github.com/Thermoquad/penumbra/pkg/thermal"
	"go.uber.org/zap"
)

// TopicSwitchEvents is the topic id switch events are published under
const TopicSwitchEvents = "pubMqttSwitchEvents"

// Loop timing
const (
	DefaultLoopPeriod   = 20 * time.Millisecond
	DefaultPollPeriod   = time.Second
	DefaultStatusPeriod = 30 * time.Second
)

// Params reads configuration values by id
type Params interface {
	Value(id string) string
}

// Link queries the co-processor
type Link interface {
	GetState(ctx context.Context) (dimlink.StateReply, error)
}

// Bus is the message bus
type Bus interface {
	Publish(topicID, payload string) error
	PublishStatus(s bridge.Status) error
	Commands() <-chan bridge.Command
}

// Options collect the daemon's collaborators. Guard, Indicator and Stats
// may be nil.
type Options struct {
	Params    Params
	Light     *light.Controller
	Switches  *switches.Debouncer
	Guard     *thermal.Guard
	Indicator *switches.Indicator
	Link      Link
	Bus       Bus
	Stats     *dimlink.Statistics
	Hostname  string
	Logger    *zap.Logger

	// OnLogLevel is called when the logLevel parameter changes
	OnLogLevel func(level string)

	PollPeriod   time.Duration
	StatusPeriod time.Duration
}

// Daemon is the dimmer main loop
type Daemon struct {
	opts    Options
	logger  *zap.Logger
	started time.Time
	changes chan []string

	blinkPattern  light.Pattern
	blinkDuration time.Duration
	alarmShown    bool
}

// New creates a daemon and applies every parameter once.
func New(opts Options) *Daemon {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PollPeriod <= 0 {
		opts.PollPeriod = DefaultPollPeriod
	}
	if opts.StatusPeriod <= 0 {
		opts.StatusPeriod = DefaultStatusPeriod
	}
	d := &Daemon{
		opts:         opts,
		logger:       opts.Logger,
		changes:      make(chan []string, 4),
		blinkPattern: light.SlowBlinkPattern,
	}
	d.Apply(settingIDs)
	return d
}

// settingIDs are the parameters the daemon applies at runtime
var settingIDs = []string{
	"minBrightness",
	"maxBrightness",
	"autoOffTimer",
	"switchType",
	"defaultReleaseState",
	"blinkPattern",
	"blinkDuration",
	"logLevel",
}

// Reload queues changed parameter ids for the loop goroutine.
func (d *Daemon) Reload(ids []string) {
	select {
	case d.changes <- ids:
	default:
		d.logger.Warn("config reload dropped, loop busy")
	}
}

// Apply reapplies the given parameters. Invalid values keep the previous
// setting.
func (d *Daemon) Apply(ids []string) {
	p := d.opts.Params
	for _, id := range ids {
		v := p.Value(id)
		ok := true
		switch id {
		case "minBrightness":
			ok = d.opts.Light.SetMinBrightness(v)
		case "maxBrightness":
			ok = d.opts.Light.SetMaxBrightness(v)
		case "autoOffTimer":
			ok = d.opts.Light.SetAutoOffTimer(v)
		case "switchType":
			if d.opts.Switches != nil {
				d.opts.Switches.SetTopology(d.opts.Switches.Topology().WithSwitchType(v))
			}
		case "defaultReleaseState":
			if d.opts.Switches != nil {
				d.opts.Switches.SetTopology(d.opts.Switches.Topology().WithReleaseState(v))
			}
		case "blinkPattern":
			d.blinkPattern, ok = light.ParsePattern(v)
		case "blinkDuration":
			d.blinkDuration, ok = parseSeconds(v)
		case "logLevel":
			if d.opts.OnLogLevel != nil {
				d.opts.OnLogLevel(v)
			}
		default:
			continue
		}
		if !ok {
			d.logger.Warn("invalid parameter ignored", zap.String("id", id), zap.String("value", v))
			continue
		}
		d.logger.Debug("parameter applied", zap.String("id", id), zap.String("value", v))
	}
}

// parseSeconds parses a duration in whole seconds; empty means zero.
func parseSeconds(s string) (time.Duration, bool) {
	if s == "" {
		return 0, true
	}
	v, ok := param.ParseUint(s, 5)
	if !ok {
		return 0, false
	}
	return time.Duration(v) * time.Second, true
}

// HandleCommand executes a request received from the broker.
func (d *Daemon) HandleCommand(ctx context.Context, cmd bridge.Command, now time.Time) {
	d.logger.Info("bus command", zap.Stringer("command", cmd.Kind), zap.String("payload", cmd.Payload))
	l := d.opts.Light

	switch cmd.Kind {
	case bridge.CommandLightOn:
		l.LightOn()
	case bridge.CommandLightOff:
		l.LightOff()
	case bridge.CommandStartBlink:
		pattern := d.blinkPattern
		if cmd.Payload != "" {
			p, ok := light.ParsePattern(cmd.Payload)
			if !ok {
				d.logger.Warn("invalid blink pattern, using default", zap.String("payload", cmd.Payload))
			}
			pattern = p
		}
		l.StartBlink(pattern, d.blinkDuration, now)
	case bridge.CommandStartFastBlink:
		l.StartBlink(light.FastBlinkPattern, d.blinkDuration, now)
	case bridge.CommandStopBlink:
		if err := l.StopBlink(ctx); err != nil {
			d.logger.Warn("stop blink failed", zap.Error(err))
		}
	case bridge.CommandBlinkDuration:
		dur, ok := parseSeconds(cmd.Payload)
		if !ok {
			d.logger.Warn("invalid blink duration", zap.String("payload", cmd.Payload))
			return
		}
		d.blinkDuration = dur
		if l.Blinking() {
			l.SetBlinkDuration(dur, now)
		}
	}
}

// Step runs one loop iteration.
func (d *Daemon) Step(ctx context.Context, now time.Time) {
	d.opts.Light.Handle(ctx, now, d.opts.Bus)
	if d.opts.Switches != nil && d.opts.Bus != nil {
		d.opts.Switches.PublishPending(d.opts.Bus, TopicSwitchEvents)
	}
	d.updateIndicator(now)
}

func (d *Daemon) updateIndicator(now time.Time) {
	ind := d.opts.Indicator
	if ind == nil {
		return
	}
	alarm := d.opts.Guard != nil && d.opts.Guard.Alarm()
	switch {
	case alarm && !d.alarmShown:
		ind.SetMode(switches.LEDFastBlink, now)
	case !alarm && d.alarmShown:
		ind.SetMode(switches.LEDOff, now)
	}
	d.alarmShown = alarm
	ind.Expire(now)
}

// Poll refreshes brightness and load from the co-processor.
func (d *Daemon) Poll(ctx context.Context) {
	if d.opts.Link == nil {
		return
	}
	if _, err := d.opts.Link.GetState(ctx); err != nil {
		d.logger.Debug("state poll failed", zap.Error(err))
	}
}

// Status builds the telemetry snapshot.
func (d *Daemon) Status(now time.Time) bridge.Status {
	ls := d.opts.Light.Status()
	s := bridge.Status{
		Hostname:   d.opts.Hostname,
		Brightness: ls.Brightness,
		Reported:   ls.Reported,
		Min:        ls.Min,
		Max:        ls.Max,
		Wattage:    ls.Wattage,
		On:         ls.On,
		Blinking:   ls.Blinking,
	}
	if !d.started.IsZero() {
		s.Uptime = uint64(now.Sub(d.started) / time.Second)
	}
	if g := d.opts.Guard; g != nil {
		if c := g.Last(); !math.IsNaN(c) {
			s.Temperature = c
		}
		s.Overheat = g.Alarm()
	}
	if d.opts.Stats != nil {
		c := d.opts.Stats.Snapshot()
		s.Frames = c.ValidFrames
		s.LinkErrors = c.Errors()
	}
	return s
}

// Run drives the loop until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	d.started = time.Now()
	if d.opts.Indicator != nil {
		d.opts.Indicator.SetMode(switches.LEDOn, d.started)
	}

	if d.opts.Switches != nil {
		go d.opts.Switches.Run(ctx)
	}
	if d.opts.Guard != nil {
		go d.opts.Guard.Run(ctx, thermal.DefaultPeriod)
	}

	var commands <-chan bridge.Command
	if d.opts.Bus != nil {
		commands = d.opts.Bus.Commands()
	}

	loop := time.NewTicker(DefaultLoopPeriod)
	defer loop.Stop()
	poll := time.NewTicker(d.opts.PollPeriod)
	defer poll.Stop()
	status := time.NewTicker(d.opts.StatusPeriod)
	defer status.Stop()

	d.logger.Info("dimmer running", zap.String("hostname", d.opts.Hostname))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dimmer stopping")
			return nil
		case now := <-loop.C:
			d.Step(ctx, now)
		case <-poll.C:
			d.Poll(ctx)
		case now := <-status.C:
			if d.opts.Bus != nil {
				if err := d.opts.Bus.PublishStatus(d.Status(now)); err != nil {
					d.logger.Debug("status publish failed", zap.Error(err))
				}
			}
		case cmd := <-commands:
			d.HandleCommand(ctx, cmd, time.Now())
		case ids := <-d.changes:
			d.Apply(ids)
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package switches

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeInput struct {
	level Level
}

func (f *fakeInput) Level() Level { return f.level }

type fakeActions struct {
	on      int
	off     int
	toggles []bool
	lit     bool
}

func (f *fakeActions) LightOn()  { f.on++; f.lit = true }
func (f *fakeActions) LightOff() { f.off++; f.lit = false }
func (f *fakeActions) LightToggle(noAutoOff bool) {
	f.toggles = append(f.toggles, noAutoOff)
	f.lit = !f.lit
}
func (f *fakeActions) IsOn() bool { return f.lit }

type fakePublisher struct {
	fail     bool
	topics   []string
	payloads []string
}

func (f *fakePublisher) Publish(topicID, payload string) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.topics = append(f.topics, topicID)
	f.payloads = append(f.payloads, payload)
	return nil
}

func newTestDebouncer(topo Topology, initial Level) (*Debouncer, *fakeInput, *fakeActions) {
	in := &fakeInput{level: initial}
	act := &fakeActions{}
	d := NewDebouncer([]Input{in}, act, DefaultConfig(), nil)
	d.SetTopology(topo)
	return d, in, act
}

// hold sets the input level and ticks n times, collecting events
func hold(d *Debouncer, in *fakeInput, level Level, n int) []Event {
	var events []Event
	in.level = level
	for i := 0; i < n; i++ {
		before := d.Pending(0)
		d.pending[0].Store(uint32(EventNone))
		d.Tick()
		if ev := d.Pending(0); ev != EventNone {
			events = append(events, ev)
		} else if before != EventNone {
			d.pending[0].Store(uint32(before))
		}
	}
	return events
}

// ============================================================
// History Tests
// ============================================================

func TestHistory_Initial(t *testing.T) {
	h := NewHistory(High)
	for i := 0; i < HistorySize; i++ {
		assert.Equal(t, Sample{Level: High, Duration: SaturatedDuration}, h.At(i))
	}
}

func TestHistory_ShiftOnChange(t *testing.T) {
	h := NewHistory(Low)
	assert.True(t, h.Step(High, DefaultDebounceTicks))
	assert.Equal(t, Sample{Level: High, Duration: 1}, h.Newest())
	assert.Equal(t, Sample{Level: Low, Duration: SaturatedDuration}, h.At(3))
}

func TestHistory_Saturates(t *testing.T) {
	h := NewHistory(Low)
	h.Step(High, DefaultDebounceTicks)
	for i := 0; i < 400; i++ {
		h.Step(High, DefaultDebounceTicks)
	}
	assert.Equal(t, uint8(MaxDuration), h.Newest().Duration)
}

func TestHistory_RingOrder(t *testing.T) {
	h := NewHistory(Low)
	levels := []Level{High, Low, High, Low, High, Low, High}
	for _, l := range levels {
		h.Step(l, 0)
	}
	// the last five changes, oldest first
	for i := 0; i < HistorySize; i++ {
		assert.Equal(t, levels[len(levels)-HistorySize+i], h.At(i).Level, "slot %d", i)
	}
}

func TestHistory_AtOutOfRange(t *testing.T) {
	h := NewHistory(Low)
	assert.Panics(t, func() { h.At(HistorySize) })
	assert.Panics(t, func() { h.At(-1) })
}

func TestHistory_DebounceSuppressesChatter(t *testing.T) {
	h := NewHistory(Low)
	require.True(t, h.Step(High, DefaultDebounceTicks))

	// Faster than the debounce threshold: newest slot keeps its level
	for _, l := range []Level{Low, High, Low} {
		assert.False(t, h.Step(l, DefaultDebounceTicks))
		assert.Equal(t, High, h.Newest().Level)
	}
	assert.Equal(t, uint8(DefaultDebounceTicks), h.Newest().Duration)
}

// ============================================================
// Toggle Topology Tests
// ============================================================

func TestToggle_OnEdgeOnce(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)

	assert.Empty(t, hold(d, in, Low, 10))
	events := hold(d, in, High, 30)
	assert.Equal(t, []Event{EventOn}, events)
	assert.Equal(t, 1, act.on)
}

func TestToggle_OffEdge(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Toggle, Release: High}, Low)

	// Low is the active level here, nothing has changed yet
	assert.Empty(t, hold(d, in, Low, 5))
	assert.Equal(t, []Event{EventOff}, hold(d, in, High, 30))
	assert.Equal(t, 1, act.off)
}

func TestToggle_OffOnOffPulse(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)

	assert.Equal(t, []Event{EventOn}, hold(d, in, High, 5))
	assert.Equal(t, []Event{EventOffOnOff}, hold(d, in, Low, 5))
	assert.Equal(t, []Event{EventOnOffOn}, hold(d, in, High, 30))
	assert.Equal(t, 2, act.on)
	assert.Equal(t, 1, act.off)
}

func TestToggle_SlowFlipIsPlainEdge(t *testing.T) {
	d, in, _ := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)

	assert.Equal(t, []Event{EventOn}, hold(d, in, High, 25))
	assert.Equal(t, []Event{EventOff}, hold(d, in, Low, 5))
}

func TestToggle_ChatterFiresOnce(t *testing.T) {
	d, in, _ := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)

	var events []Event
	for _, l := range []Level{High, Low, High, Low} {
		events = append(events, hold(d, in, l, 1)...)
	}
	assert.Equal(t, []Event{EventOn}, events)
}

// ============================================================
// Push Topology Tests
// ============================================================

func TestPush_LongClickExactlyOnce(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Push, Release: Low}, Low)

	assert.Empty(t, hold(d, in, High, DefaultLongClickTicks-1))
	assert.Equal(t, []Event{EventLongClick}, hold(d, in, High, 1))
	assert.Empty(t, hold(d, in, High, 30))
	require.Len(t, act.toggles, 1)
	assert.True(t, act.toggles[0], "long click disables auto-off")

	// releasing after a long hold is not a click
	assert.Empty(t, hold(d, in, Low, 10))
}

func TestPush_ShortClick(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Push, Release: Low}, Low)

	assert.Empty(t, hold(d, in, High, 5))
	assert.Equal(t, []Event{EventShortClick}, hold(d, in, Low, 10))
	assert.Equal(t, []bool{false}, act.toggles)
}

func TestPush_TapShorterThanDebounce(t *testing.T) {
	d, in, _ := newTestDebouncer(Topology{Type: Push, Release: Low}, Low)

	assert.Empty(t, hold(d, in, High, 1))
	assert.Equal(t, []Event{EventShortClick}, hold(d, in, Low, 10))
}

func TestPush_DoubleClick(t *testing.T) {
	d, in, act := newTestDebouncer(Topology{Type: Push, Release: High}, High)

	var events []Event
	events = append(events, hold(d, in, Low, 5)...)
	events = append(events, hold(d, in, High, 5)...)
	events = append(events, hold(d, in, Low, 5)...)
	events = append(events, hold(d, in, High, 10)...)

	assert.Equal(t, []Event{EventShortClick, EventDoubleClick}, events)
	assert.Len(t, act.toggles, 2)
}

// ============================================================
// Publishing Tests
// ============================================================

func TestPublishPending_AtMostOnce(t *testing.T) {
	d, in, _ := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)
	in.level = High
	d.Tick()
	require.Equal(t, EventOn, d.Pending(0))

	pub := &fakePublisher{}
	d.PublishPending(pub, "pubMqttSwitchEvents")
	d.PublishPending(pub, "pubMqttSwitchEvents")

	assert.Equal(t, []string{"BUTTON_ON LIGHT_ON 0"}, pub.payloads)
	assert.Equal(t, []string{"pubMqttSwitchEvents"}, pub.topics)
	assert.Equal(t, EventNone, d.Pending(0))
}

func TestPublishPending_RetryAfterFailure(t *testing.T) {
	d, in, _ := newTestDebouncer(Topology{Type: Toggle, Release: Low}, Low)
	in.level = High
	d.Tick()

	pub := &fakePublisher{fail: true}
	d.PublishPending(pub, "pubMqttSwitchEvents")
	assert.Equal(t, EventOn, d.Pending(0))

	pub.fail = false
	d.PublishPending(pub, "pubMqttSwitchEvents")
	assert.Len(t, pub.payloads, 1)
	assert.Equal(t, EventNone, d.Pending(0))
}

func TestTopology_Parse(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		release string
		want    Topology
	}{
		{"defaults", "2", "0", Topology{Type: Toggle, Release: Low}},
		{"push high", "1", "1", Topology{Type: Push, Release: High}},
		{"invalid keeps default", "x", "10", DefaultTopology},
		{"empty keeps default", "", "", DefaultTopology},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTopology(tt.typ, tt.release))
		})
	}
}

func TestTopology_InvalidKeepsPrior(t *testing.T) {
	prior := Topology{Type: Push, Release: High}
	assert.Equal(t, prior, prior.WithSwitchType("abc"))
	assert.Equal(t, prior, prior.WithReleaseState("-"))
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "BUTTON_DOUBLE_CLICK", EventDoubleClick.String())
	assert.Equal(t, "NONE", EventNone.String())
}

// ============================================================
// Indicator Tests
// ============================================================

type fakeOutput struct {
	values []int
}

func (f *fakeOutput) SetValue(v int) error {
	f.values = append(f.values, v)
	return nil
}

func TestIndicator_FastBlink(t *testing.T) {
	out := &fakeOutput{}
	ind := NewIndicator(out, false)
	ind.SetMode(LEDFastBlink, time.Now())

	toggles := 0
	last := ind.Lit()
	for i := 0; i < 5*(FastBlinkTicks+1); i++ {
		ind.Tick()
		if ind.Lit() != last {
			toggles++
			last = ind.Lit()
		}
	}
	assert.Equal(t, 5, toggles)
}

func TestIndicator_OnExpires(t *testing.T) {
	out := &fakeOutput{}
	ind := NewIndicator(out, true)
	start := time.Unix(1000, 0)

	ind.SetMode(LEDOn, start)
	assert.True(t, ind.Lit())
	assert.Equal(t, 0, out.values[len(out.values)-1], "active low LED is driven low when lit")

	ind.Expire(start.Add(30 * time.Second))
	assert.True(t, ind.Lit())

	ind.Expire(start.Add(LEDOnTimeout + time.Second))
	assert.False(t, ind.Lit())
	assert.Equal(t, LEDOff, ind.Mode())
}

func TestIndicator_SteppedByDebouncer(t *testing.T) {
	d, _, _ := newTestDebouncer(DefaultTopology, Low)
	ind := NewIndicator(nil, false)
	d.SetIndicator(ind)
	ind.SetMode(LEDSlowBlink, time.Now())

	for i := 0; i < SlowBlinkTicks+1; i++ {
		d.Tick()
	}
	assert.True(t, ind.Lit())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package light

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

type fakeSender struct {
	sent []uint16
	fail bool
}

func (f *fakeSender) SetBrightness(_ context.Context, b uint16) error {
	if f.fail {
		return errors.New("link down")
	}
	f.sent = append(f.sent, b)
	return nil
}

type fakePublisher struct {
	fail     bool
	payloads []string
}

func (f *fakePublisher) Publish(topicID, payload string) error {
	if f.fail {
		return errors.New("broker unavailable")
	}
	if topicID == TopicBrightness {
		f.payloads = append(f.payloads, payload)
	}
	return nil
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func newTestController() (*Controller, *fakeSender, *fakePublisher) {
	s := &fakeSender{}
	return NewController(PercentLimits, s, nil), s, &fakePublisher{}
}

// ============================================================
// Pattern Tests
// ============================================================

func TestParsePattern(t *testing.T) {
	p, ok := ParsePattern("")
	assert.True(t, ok)
	assert.Equal(t, []uint32{1000, 1000}, p.Phases())

	p, ok = ParsePattern("200, 300,400")
	assert.True(t, ok)
	assert.Equal(t, []uint32{200, 300, 400}, p.Phases())
	assert.Equal(t, 900*time.Millisecond, p.Cycle())

	p, ok = ParsePattern("200,x")
	assert.False(t, ok)
	assert.Equal(t, DefaultPattern.Phases(), p.Phases())
}

func TestNewPatternFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultPattern.Phases(), NewPattern(700).Phases())
	assert.Equal(t, DefaultPattern.Phases(), NewPattern(0, 0, 700).Phases())
	assert.Len(t, NewPattern(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12).Phases(), MaxPhases)
}

func TestPlayerPhases(t *testing.T) {
	pl := NewPlayer(NewPattern(500, 500), t0)

	steps := []struct {
		ms      int
		idx     int
		changed bool
	}{
		{0, 0, true},
		{499, 0, false},
		{500, 1, true},
		{999, 1, false},
		{1000, 0, true},
		{1499, 0, false},
		{1500, 1, true},
	}
	for _, s := range steps {
		idx, changed := pl.Phase(at(s.ms))
		assert.Equal(t, s.idx, idx, "phase at %dms", s.ms)
		assert.Equal(t, s.changed, changed, "change at %dms", s.ms)
	}
}

func TestPlayerSkipsWholeCycles(t *testing.T) {
	pl := NewPlayer(NewPattern(100, 200), t0)
	idx, _ := pl.Phase(at(10*300 + 150))
	assert.Equal(t, 1, idx)
	idx, _ = pl.Phase(at(11 * 300))
	assert.Equal(t, 0, idx)
}

// ============================================================
// Bounds Tests
// ============================================================

func TestSetMinBrightness(t *testing.T) {
	c, _, _ := newTestController()

	require.True(t, c.SetMinBrightness("10"))
	assert.Equal(t, uint16(10), c.MinBrightness())
	assert.Equal(t, uint16(10), c.Brightness(), "current raised to min")

	require.True(t, c.SetMinBrightness("30"))
	assert.Equal(t, uint16(20), c.MinBrightness(), "clamped to MinCeiling")

	assert.False(t, c.SetMinBrightness("1a"))
	assert.False(t, c.SetMinBrightness("1000"))
	assert.Equal(t, uint16(20), c.MinBrightness())
}

func TestSetMaxBrightness(t *testing.T) {
	c, _, _ := newTestController()
	require.True(t, c.SetMinBrightness("20"))

	require.True(t, c.SetMaxBrightness("5"))
	assert.Equal(t, uint16(21), c.MaxBrightness())

	require.True(t, c.SetMaxBrightness("200"))
	assert.Equal(t, uint16(100), c.MaxBrightness())

	assert.False(t, c.SetMaxBrightness(""))
	assert.Equal(t, uint16(100), c.MaxBrightness())
}

func TestMaxClampsCurrent(t *testing.T) {
	c, _, _ := newTestController()
	require.True(t, c.SetMaxBrightness("80"))
	c.LightOn()
	require.Equal(t, uint16(80), c.Brightness())

	require.True(t, c.SetMaxBrightness("40"))
	assert.Equal(t, uint16(40), c.Brightness())
}

func TestPerMilleLimits(t *testing.T) {
	c := NewController(LimitsFor("permille"), nil, nil)
	require.True(t, c.SetMaxBrightness("1000"))
	assert.Equal(t, uint16(1000), c.MaxBrightness())
	require.True(t, c.SetMinBrightness("995"))
	assert.Equal(t, uint16(200), c.MinBrightness())
}

// ============================================================
// On / Off / Toggle Tests
// ============================================================

func TestToggle(t *testing.T) {
	c, _, _ := newTestController()
	assert.False(t, c.IsOn())

	c.LightToggle(false)
	assert.Equal(t, uint16(50), c.Brightness())
	assert.True(t, c.IsOn())

	c.LightToggle(false)
	assert.Equal(t, uint16(0), c.Brightness())
	assert.False(t, c.IsOn())
}

func TestToggleNearerBound(t *testing.T) {
	c, _, _ := newTestController()
	c.state.Store(30)
	c.LightToggle(false)
	assert.Equal(t, uint16(0), c.Brightness(), "closer to max turns off")

	c.state.Store(20)
	c.LightToggle(false)
	assert.Equal(t, uint16(50), c.Brightness(), "closer to min turns on")
}

func TestHandleSendsAndPublishes(t *testing.T) {
	c, s, p := newTestController()

	c.Handle(context.Background(), at(0), p)
	assert.Empty(t, s.sent)
	assert.Equal(t, []string{"0"}, p.payloads)

	c.LightOn()
	c.Handle(context.Background(), at(10), p)
	assert.Equal(t, []uint16{50}, s.sent)
	assert.Equal(t, []string{"0", "50"}, p.payloads)

	c.Handle(context.Background(), at(20), p)
	assert.Equal(t, []uint16{50}, s.sent, "nothing new to send")
	assert.Len(t, p.payloads, 2)
}

func TestHandleRetriesFailedSend(t *testing.T) {
	c, s, p := newTestController()
	s.fail = true
	c.LightOn()
	c.Handle(context.Background(), at(0), p)
	assert.Empty(t, s.sent)

	s.fail = false
	c.Handle(context.Background(), at(10), p)
	assert.Equal(t, []uint16{50}, s.sent)
}

func TestPublishRetry(t *testing.T) {
	c, _, p := newTestController()
	p.fail = true
	c.LightOn()
	c.Handle(context.Background(), at(0), p)
	assert.Empty(t, p.payloads)

	p.fail = false
	c.Handle(context.Background(), at(10), p)
	assert.Equal(t, []string{"50"}, p.payloads)
}

func TestObserveState(t *testing.T) {
	c, _, _ := newTestController()
	c.ObserveState(42, 121)
	assert.Equal(t, uint16(42), c.Brightness())

	st := c.Status()
	assert.Equal(t, uint16(121), st.Wattage)
	assert.Equal(t, uint16(42), st.Reported)

	c.LightOff()
	c.ObserveState(42, 100)
	assert.Equal(t, uint16(0), c.Brightness(), "pending send wins")
	assert.Equal(t, uint16(100), c.Status().Wattage)
}

func TestObserveStateKeepsSwitchAction(t *testing.T) {
	c, s, _ := newTestController()
	ctx := context.Background()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				c.ObserveState(0, 0)
			}
		}
	}()

	for i := 0; i < 500; i++ {
		c.LightOn()
		c.Handle(ctx, at(0), nil)
		c.LightOff()
		c.Handle(ctx, at(0), nil)
	}
	close(stop)
	<-done

	require.Len(t, s.sent, 1000)
	for i := 0; i < len(s.sent); i += 2 {
		require.Equal(t, uint16(50), s.sent[i], "send %d", i)
		require.Equal(t, uint16(0), s.sent[i+1], "send %d", i+1)
	}
}

// ============================================================
// Auto-off Tests
// ============================================================

func TestSetAutoOffTimer(t *testing.T) {
	c, _, _ := newTestController()
	require.True(t, c.SetAutoOffTimer("30"))
	assert.Equal(t, 30*time.Second, c.Status().AutoOff)

	assert.False(t, c.SetAutoOffTimer("3x"))
	assert.False(t, c.SetAutoOffTimer("123456"))
	assert.Equal(t, 30*time.Second, c.Status().AutoOff)

	require.True(t, c.SetAutoOffTimer(""))
	assert.Zero(t, c.Status().AutoOff)
}

func TestAutoOff(t *testing.T) {
	c, s, p := newTestController()
	require.True(t, c.SetAutoOffTimer("2"))

	c.LightOn()
	c.Handle(context.Background(), at(0), p)
	assert.Equal(t, at(2000), c.Status().AutoOffAt)

	c.Handle(context.Background(), at(1999), p)
	assert.True(t, c.IsOn())

	c.Handle(context.Background(), at(2001), p)
	assert.False(t, c.IsOn())
	assert.Equal(t, []uint16{50, 0}, s.sent)
	assert.True(t, c.Status().AutoOffAt.IsZero())
	assert.Equal(t, []string{"50", "0"}, p.payloads)
}

func TestLongPressSuppressesAutoOff(t *testing.T) {
	c, s, p := newTestController()
	require.True(t, c.SetAutoOffTimer("1"))

	c.LightToggle(true)
	c.Handle(context.Background(), at(0), p)
	c.Handle(context.Background(), at(5000), p)
	assert.True(t, c.IsOn())
	assert.Equal(t, []uint16{50}, s.sent)
}

// ============================================================
// Blink Tests
// ============================================================

func TestBlink(t *testing.T) {
	c, s, p := newTestController()
	require.True(t, c.SetMaxBrightness("70"))
	require.True(t, c.SetMinBrightness("5"))
	c.Handle(context.Background(), at(0), p)
	s.sent = nil

	c.StartBlink(NewPattern(500, 500), 0, at(0))
	assert.True(t, c.Blinking())

	c.Handle(context.Background(), at(0), p)
	c.Handle(context.Background(), at(250), p)
	c.Handle(context.Background(), at(500), p)
	c.Handle(context.Background(), at(1000), p)
	assert.Equal(t, []uint16{70, 5, 70}, s.sent)

	require.NoError(t, c.StopBlink(context.Background()))
	assert.False(t, c.Blinking())
	assert.Equal(t, []uint16{70, 5, 70, 5}, s.sent, "restores commanded brightness")
}

func TestBlinkDuration(t *testing.T) {
	c, s, p := newTestController()
	c.StartBlink(NewPattern(100, 100), time.Second, at(0))
	c.Handle(context.Background(), at(0), p)
	assert.True(t, c.Blinking())

	c.Handle(context.Background(), at(1000), p)
	assert.False(t, c.Blinking())
	assert.Equal(t, uint16(0), s.sent[len(s.sent)-1])
}

func TestStopBlinkWhenIdle(t *testing.T) {
	c, s, _ := newTestController()
	require.NoError(t, c.StopBlink(context.Background()))
	assert.Empty(t, s.sent)
}

func TestForceOff(t *testing.T) {
	c, s, _ := newTestController()
	c.LightOn()
	c.StartBlink(DefaultPattern, 0, at(0))
	require.NoError(t, c.ForceOff(context.Background()))
	assert.False(t, c.Blinking())
	assert.Equal(t, uint16(0), c.Brightness())
	assert.Equal(t, []uint16{0}, s.sent)
}

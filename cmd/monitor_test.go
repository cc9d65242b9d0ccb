// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/Thermoquad/penumbra/pkg/light"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinkClient struct {
	state dimlink.StateReply
	err   error
	set   []uint16
}

func (f *fakeLinkClient) GetVersion(context.Context) (dimlink.VersionReply, error) {
	return dimlink.VersionReply{Version: []byte{0x35, 0x02}, Match: true}, f.err
}

func (f *fakeLinkClient) GetState(context.Context) (dimlink.StateReply, error) {
	return f.state, f.err
}

func (f *fakeLinkClient) SetBrightness(_ context.Context, b uint16) error {
	f.set = append(f.set, b)
	return f.err
}

func update(t *testing.T, m monitorModel, msg tea.Msg) (monitorModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(monitorModel)
	require.True(t, ok)
	return mm, cmd
}

func TestMonitorPollsOneAtATime(t *testing.T) {
	client := &fakeLinkClient{state: dimlink.StateReply{Brightness: 40, Wattage: 25}}
	m := newMonitorModel(client, nil, "test", light.PercentLimits, time.Second)

	m, cmd := update(t, m, monitorTickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.True(t, m.polling)

	m, _ = update(t, m, monitorTickMsg(time.Now()))
	assert.True(t, m.polling)

	m, _ = update(t, m, stateMsg{reply: client.state})
	assert.False(t, m.polling)
	require.NotNil(t, m.state)
	assert.Equal(t, uint16(40), m.state.Brightness)
}

func TestMonitorPollFailuresLoggedOnce(t *testing.T) {
	m := newMonitorModel(&fakeLinkClient{}, nil, "test", light.PercentLimits, time.Second)
	for i := 0; i < 3; i++ {
		m, _ = update(t, m, stateMsg{err: dimlink.ErrNoReply})
	}
	assert.Equal(t, 3, m.failures)
	assert.Len(t, m.eventLog, 1)

	m, _ = update(t, m, stateMsg{reply: dimlink.StateReply{Brightness: 5}})
	assert.Equal(t, 0, m.failures)
	assert.Len(t, m.eventLog, 2)
}

func TestMonitorStepKeys(t *testing.T) {
	client := &fakeLinkClient{}
	m := newMonitorModel(client, nil, "test", light.PercentLimits, time.Second)
	m, _ = update(t, m, stateMsg{reply: dimlink.StateReply{Brightness: 95}})

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, brightnessSetMsg{brightness: 100}, msg)

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, brightnessSetMsg{brightness: 90}, cmd())

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'0'}})
	assert.Equal(t, brightnessSetMsg{brightness: 0}, cmd())
	assert.Equal(t, []uint16{100, 90, 0}, client.set)
}

func TestMonitorBrightnessInput(t *testing.T) {
	client := &fakeLinkClient{}
	m := newMonitorModel(client, nil, "test", light.PercentLimits, time.Second)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, focusBrightnessInput, m.focusedField)

	m.brightnessInput.SetValue("250")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, m.eventLog[len(m.eventLog)-1].isError)

	m.brightnessInput.SetValue("30")
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, brightnessSetMsg{brightness: 30}, cmd())
	assert.Equal(t, uint16(30), m.target)
	assert.Empty(t, m.brightnessInput.Value())
}

func TestMonitorSetError(t *testing.T) {
	m := newMonitorModel(&fakeLinkClient{}, nil, "test", light.PercentLimits, time.Second)
	m, _ = update(t, m, brightnessSetMsg{brightness: 10, err: errors.New("write failed")})
	require.Len(t, m.eventLog, 1)
	assert.True(t, m.eventLog[0].isError)
}

func TestMonitorView(t *testing.T) {
	stats := dimlink.NewStatistics()
	m := newMonitorModel(&fakeLinkClient{}, stats, "Serial: /dev/ttyS1", light.PercentLimits, time.Second)
	assert.Contains(t, m.View(), "Waiting for state")

	m, _ = update(t, m, stateMsg{reply: dimlink.StateReply{Brightness: 50, Wattage: 60}})
	view := m.View()
	assert.Contains(t, view, "50 / 100")
	assert.Contains(t, view, "60 W")
	assert.Contains(t, view, "Serial: /dev/ttyS1")
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0 seconds", formatUptime(0))
	assert.Equal(t, "1 second", formatUptime(1))
	assert.Equal(t, "2 minutes", formatUptime(120))
	assert.Equal(t, "1 hour and 5 seconds", formatUptime(3605))
	assert.Equal(t, "2 days, 1 minute and 3 seconds", formatUptime(2*86400+63))
}

func TestBrightnessBar(t *testing.T) {
	assert.Empty(t, brightnessBar(1, 0, 10))
	assert.NotEmpty(t, brightnessBar(150, 100, 10))
}

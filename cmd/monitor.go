// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/penumbra/pkg/dimlink"
	"github.com/Thermoquad/penumbra/pkg/light"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	monitorRequestTimeout = 500 * time.Millisecond
	maxMonitorLogEntries  = 100
)

// Focus states
const (
	focusState = iota
	focusBrightnessInput
)

var monitorPoll int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive co-processor monitor",
	Long: `Poll the co-processor and display brightness, load and link statistics.

Keys:
  up/down   step brightness by a tenth of the range
  0         switch off
  tab       focus the brightness input, enter to send
  q         quit

Do not run this alongside the daemon on the same port.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorPoll, "poll", 500, "State poll period in milliseconds")
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// logEntry is one line of the event log
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// linkClient is the part of the co-processor client the monitor uses
type linkClient interface {
	GetVersion(ctx context.Context) (dimlink.VersionReply, error)
	GetState(ctx context.Context) (dimlink.StateReply, error)
	SetBrightness(ctx context.Context, b uint16) error
}

// monitorModel is the Bubble Tea model for the monitor TUI
type monitorModel struct {
	client   linkClient
	stats    *dimlink.Statistics
	connInfo string
	limits   light.Limits
	poll     time.Duration

	// Co-processor state
	version    string
	state      *dimlink.StateReply
	lastUpdate time.Time
	polling    bool
	failures   int

	// Control
	target          uint16
	brightnessInput textinput.Model
	focusedField    int

	eventLog []logEntry
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type monitorTickMsg time.Time

type versionMsg struct {
	reply dimlink.VersionReply
	err   error
}

type stateMsg struct {
	reply dimlink.StateReply
	err   error
}

type brightnessSetMsg struct {
	brightness uint16
	err        error
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newMonitorModel(client linkClient, stats *dimlink.Statistics, connInfo string, limits light.Limits, poll time.Duration) monitorModel {
	ti := textinput.New()
	ti.Placeholder = strconv.Itoa(int(limits.Ceiling / 2))
	ti.CharLimit = 4
	ti.Width = 6

	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	return monitorModel{
		client:          client,
		stats:           stats,
		connInfo:        connInfo,
		limits:          limits,
		poll:            poll,
		brightnessInput: ti,
		width:           80,
		height:          24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		versionCmd(m.client),
		monitorTickCmd(m.poll),
	)
}

func monitorTickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func versionCmd(c linkClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), monitorRequestTimeout)
		defer cancel()
		v, err := c.GetVersion(ctx)
		return versionMsg{reply: v, err: err}
	}
}

func stateCmd(c linkClient) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), monitorRequestTimeout)
		defer cancel()
		s, err := c.GetState(ctx)
		return stateMsg{reply: s, err: err}
	}
}

func setBrightnessCmd(c linkClient, b uint16) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), monitorRequestTimeout)
		defer cancel()
		return brightnessSetMsg{brightness: b, err: c.SetBrightness(ctx, b)}
	}
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		cmds := []tea.Cmd{monitorTickCmd(m.poll)}
		// One poll in flight at a time.
		if !m.polling {
			m.polling = true
			cmds = append(cmds, stateCmd(m.client))
		}
		return m, tea.Batch(cmds...)

	case versionMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("GET_VERSION: %v", msg.err), true)
			break
		}
		m.version = dimlink.FormatHex(msg.reply.Version)
		if msg.reply.Match {
			m.addLogEntry("Firmware "+m.version, false)
		} else {
			m.addLogEntry("Unexpected firmware "+m.version, true)
		}

	case stateMsg:
		m.polling = false
		if msg.err != nil {
			m.failures++
			// Log the first failure of a run only.
			if m.failures == 1 {
				m.addLogEntry(fmt.Sprintf("GET_STATE: %v", msg.err), true)
			}
			break
		}
		if m.failures > 0 {
			m.addLogEntry(fmt.Sprintf("Link back after %d failed polls", m.failures), false)
			m.failures = 0
		}
		reply := msg.reply
		m.state = &reply
		m.lastUpdate = time.Now()

	case brightnessSetMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Set brightness %d: %v", msg.brightness, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Brightness set to %d", msg.brightness), false)
		}
	}

	return m, nil
}

func (m monitorModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "tab", "shift+tab":
		if m.focusedField == focusState {
			m.focusedField = focusBrightnessInput
			cmd := m.brightnessInput.Focus()
			return m, cmd
		}
		m.focusedField = focusState
		m.brightnessInput.Blur()
		return m, nil
	}

	if m.focusedField == focusBrightnessInput {
		switch msg.String() {
		case "enter":
			v, err := strconv.ParseUint(strings.TrimSpace(m.brightnessInput.Value()), 10, 16)
			if err != nil || v > uint64(m.limits.Ceiling) {
				m.addLogEntry(fmt.Sprintf("Brightness must be 0-%d", m.limits.Ceiling), true)
				return m, nil
			}
			m.brightnessInput.SetValue("")
			return m.setTarget(uint16(v))
		case "esc":
			m.focusedField = focusState
			m.brightnessInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.brightnessInput, cmd = m.brightnessInput.Update(msg)
		return m, cmd
	}

	step := m.limits.Ceiling / 10
	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "up", "+":
		next := m.current() + step
		if next > m.limits.Ceiling {
			next = m.limits.Ceiling
		}
		return m.setTarget(next)
	case "down", "-":
		cur := m.current()
		if cur < step {
			return m.setTarget(0)
		}
		return m.setTarget(cur - step)
	case "0":
		return m.setTarget(0)
	}
	return m, nil
}

// current is the brightness the next step starts from.
func (m monitorModel) current() uint16 {
	if m.state != nil {
		return m.state.Brightness
	}
	return m.target
}

func (m monitorModel) setTarget(b uint16) (tea.Model, tea.Cmd) {
	m.target = b
	if m.state != nil {
		m.state.Brightness = b
	}
	return m, setBrightnessCmd(m.client, b)
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > maxMonitorLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-maxMonitorLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("PENUMBRA - CO-PROCESSOR MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Firmware: %s | Press 'q' to quit",
		m.connInfo, orDash(m.version))))
	s.WriteString("\n\n")

	// Light
	var state strings.Builder
	if m.state == nil {
		state.WriteString(warningStyle.Render("Waiting for state..."))
	} else {
		state.WriteString(fmt.Sprintf("%s %s\n",
			labelStyle.Render("Brightness:"),
			valueStyle.Render(fmt.Sprintf("%d / %d", m.state.Brightness, m.limits.Ceiling))))
		state.WriteString(brightnessBar(m.state.Brightness, m.limits.Ceiling, 40))
		state.WriteString("\n")
		state.WriteString(fmt.Sprintf("%s %s   %s %s",
			labelStyle.Render("Load:"), valueStyle.Render(fmt.Sprintf("%d W", m.state.Wattage)),
			labelStyle.Render("Updated:"), headerStyle.Render(formatAge(time.Since(m.lastUpdate)))))
		if m.failures > 0 {
			state.WriteString("\n")
			state.WriteString(errorStyle.Render(fmt.Sprintf("%d polls failed", m.failures)))
		}
	}
	s.WriteString(boxStyle.Render(state.String()))
	s.WriteString("\n")

	// Control
	input := boxStyle
	if m.focusedField == focusBrightnessInput {
		input = focusedBoxStyle
	}
	s.WriteString(input.Render(labelStyle.Render("Set brightness: ") + m.brightnessInput.View()))
	s.WriteString("\n")

	// Link statistics
	if m.stats != nil {
		c := m.stats.Snapshot()
		errs := valueStyle.Render(fmt.Sprintf("%d", c.Errors()))
		if c.Errors() > 0 {
			errs = errorStyle.Render(fmt.Sprintf("%d", c.Errors()))
		}
		s.WriteString(boxStyle.Render(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
			labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", c.ValidFrames)),
			labelStyle.Render("Errors:"), errs,
			labelStyle.Render("Counter warnings:"), warningStyle.Render(fmt.Sprintf("%d", c.CounterWarnings)),
			labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(uint64(time.Since(c.StartTime)/time.Second))))))
		s.WriteString("\n")
	}

	// Events
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	logHeight := m.height - 18
	if logHeight < 5 {
		logHeight = 5
	}
	start := len(m.eventLog) - logHeight
	if start < 0 {
		start = 0
	}

	var events strings.Builder
	if len(m.eventLog) == 0 {
		events.WriteString(headerStyle.Render("  (no events yet)"))
	}
	for _, entry := range m.eventLog[start:] {
		stamp := headerStyle.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			events.WriteString(fmt.Sprintf("%s %s\n", stamp, errorStyle.Render("✗ "+entry.message)))
		} else {
			events.WriteString(fmt.Sprintf("%s %s\n", stamp, warningStyle.Render("ℹ "+entry.message)))
		}
	}
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(events.String()))

	return s.String()
}

// brightnessBar draws b out of ceiling as a bar of width cells.
func brightnessBar(b, ceiling uint16, width int) string {
	if ceiling == 0 {
		return ""
	}
	if b > ceiling {
		b = ceiling
	}
	filled := int(b) * width / int(ceiling)
	return valueStyle.Render(strings.Repeat("█", filled)) +
		headerStyle.Render(strings.Repeat("░", width-filled))
}

func formatAge(d time.Duration) string {
	if d < time.Second {
		return "just now"
	}
	return d.Truncate(time.Second).String() + " ago"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// formatUptime formats seconds as "1 day, 2 hours and 5 seconds".
func formatUptime(seconds uint64) string {
	units := []struct {
		name string
		size uint64
	}{
		{"day", 86400},
		{"hour", 3600},
		{"minute", 60},
		{"second", 1},
	}

	var parts []string
	for _, u := range units {
		n := seconds / u.size
		seconds %= u.size
		if n == 0 {
			continue
		}
		if n == 1 {
			parts = append(parts, "1 "+u.name)
		} else {
			parts = append(parts, fmt.Sprintf("%d %ss", n, u.name))
		}
	}

	switch len(parts) {
	case 0:
		return "0 seconds"
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
}

//////////////////////////////////////////////////////////////
// Command
//////////////////////////////////////////////////////////////

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	// The TUI owns the terminal; keep the link quiet.
	_ = appLog.SetLevel("error")

	stats := dimlink.NewStatistics()
	profile := dimlink.ProfileByName(cfg.Value("profile"))
	transport := dimlink.NewTransport(conn,
		dimlink.WithLogger(appLog.Logger),
		dimlink.WithStatistics(stats))
	client := dimlink.NewClient(transport, profile, appLog.Logger)

	m := newMonitorModel(client, stats, connInfo, light.LimitsFor(profile.Name),
		time.Duration(monitorPoll)*time.Millisecond)
	_, err = tea.NewProgram(m).Run()
	return err
}

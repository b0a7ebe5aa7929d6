// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"renkei/internal/renkei"
)

// statusMsg carries a fresh status snapshot from the client's observer
type statusMsg renkei.Snapshot

// connMsg carries a connection state change from the client's observer
type connMsg renkei.ConnState

// actionResultMsg reports the outcome of an async shade command
type actionResultMsg struct {
	action string
	err    error
}

// DashboardModel handles the live shade dashboard screen
type DashboardModel struct {
	client  *renkei.RenkeiClient
	address string

	// Observer plumbing: callbacks push into channels the UI drains
	statusCh     chan renkei.Snapshot
	connCh       chan renkei.ConnState
	statusHandle renkei.Handle
	connHandle   renkei.Handle

	// Live state
	snapshot  renkei.Snapshot
	connState renkei.ConnState
	issues    []*renkei.Issue

	// Action feedback
	lastAction    string
	actionHistory []actionHistoryEntry

	// Flags
	debugMode bool
	testMode  bool

	// Screen dimensions for responsive layout
	width  int
	height int
}

// NewDashboardModel creates the dashboard for a connected client
func NewDashboardModel(client *renkei.RenkeiClient, address string, debug, test bool) DashboardModel {
	m := DashboardModel{
		client:        client,
		address:       address,
		statusCh:      make(chan renkei.Snapshot, 16),
		connCh:        make(chan renkei.ConnState, 8),
		connState:     client.State(),
		snapshot:      client.Status(),
		issues:        client.Issues(),
		actionHistory: []actionHistoryEntry{},
		debugMode:     debug,
		testMode:      test,
	}

	statusCh, connCh := m.statusCh, m.connCh
	m.statusHandle = client.OnStatus(func(snap renkei.Snapshot) {
		select {
		case statusCh <- snap:
		default:
		}
	})
	m.connHandle = client.OnConnection(func(state renkei.ConnState) {
		select {
		case connCh <- state:
		default:
		}
	})

	return m
}

// Init arms the commands that wait for observer activity
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(waitForStatus(m.statusCh), waitForConn(m.connCh))
}

func waitForStatus(ch chan renkei.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

func waitForConn(ch chan renkei.ConnState) tea.Cmd {
	return func() tea.Msg {
		return connMsg(<-ch)
	}
}

// Close deregisters observers and disconnects the client
func (m DashboardModel) Close() {
	if m.client == nil {
		return
	}
	m.client.RemoveStatusObserver(m.statusHandle)
	m.client.RemoveConnectionObserver(m.connHandle)
	m.client.Disconnect()
}

// Update handles dashboard messages
func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case statusMsg:
		m.snapshot = renkei.Snapshot(msg)
		m.issues = m.client.Issues()
		return m, waitForStatus(m.statusCh)

	case connMsg:
		m.connState = renkei.ConnState(msg)
		m.issues = m.client.Issues()
		return m, waitForConn(m.connCh)

	case actionResultMsg:
		entry := actionHistoryEntry{
			Timestamp: time.Now(),
			Action:    msg.action,
			Success:   msg.err == nil,
		}
		if msg.err != nil {
			entry.Error = msg.err.Error()
		}
		m.actionHistory = append(m.actionHistory, entry)
		if len(m.actionHistory) > 20 {
			m.actionHistory = m.actionHistory[1:]
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "o":
			return m.runAction("open", func() error {
				_, err := m.client.Move(100, 0)
				return err
			})
		case "c":
			return m.runAction("close", func() error {
				_, err := m.client.Move(0, 0)
				return err
			})
		case "s":
			return m.runAction("stop", func() error {
				_, err := m.client.Stop()
				return err
			})
		case "j":
			return m.runAction("jog", func() error {
				_, err := m.client.Jog(1)
				return err
			})
		case "r":
			return m.runAction("refresh", func() error {
				_, err := m.client.GetStatus()
				return err
			})
		case "up":
			return m.nudge(10)
		case "down":
			return m.nudge(-10)
		case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
			target := int(msg.String()[0]-'0') * 10
			return m.runAction(fmt.Sprintf("move %d%%", target), func() error {
				_, err := m.client.Move(target, 0)
				return err
			})
		}
	}

	return m, nil
}

// runAction executes a shade command off the UI loop
func (m DashboardModel) runAction(action string, fn func() error) (DashboardModel, tea.Cmd) {
	m.lastAction = action
	return m, func() tea.Msg {
		return actionResultMsg{action: action, err: fn()}
	}
}

// nudge moves relative to the current position when it is known
func (m DashboardModel) nudge(delta int) (DashboardModel, tea.Cmd) {
	if !m.snapshot.PositionKnown {
		return m, nil
	}
	target := m.snapshot.Position + delta
	if target < 0 {
		target = 0
	}
	if target > 100 {
		target = 100
	}
	return m.runAction(fmt.Sprintf("move %d%%", target), func() error {
		_, err := m.client.Move(target, 0)
		return err
	})
}

// View renders the dashboard screen
func (m DashboardModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("Renkei - Shade Motor Dashboard"))

	// Device line
	name := m.address
	if m.snapshot.Info != nil && m.snapshot.Info.Name != "" {
		name = m.snapshot.Info.Name
	}
	deviceLine := successStyle.Render("🪟 " + name)
	if m.testMode {
		deviceLine += " " + lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Render("(Test)")
	}
	sections = append(sections, deviceLine+"  "+m.renderConnState())

	// Position gauge
	sections = append(sections, m.renderGauge())

	// Last error reported by the motor
	if m.snapshot.LastError != nil {
		sections = append(sections, errorStyle.Render(
			fmt.Sprintf("✗ Motor error %d: %s", m.snapshot.LastError.Code, m.snapshot.LastError.Description)))
	}

	// Open issues
	if len(m.issues) > 0 {
		var lines []string
		lines = append(lines, subtitleStyle.Render("Issues:"))
		for _, issue := range m.issues {
			lines = append(lines, fmt.Sprintf("  [%s] %s", issue.Severity, issue.Summary))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}

	// Recent actions
	if history := m.renderHistory(); history != "" {
		sections = append(sections, history)
	}

	sections = append(sections, m.renderHelpText())

	return strings.Join(sections, "\n\n")
}

func (m DashboardModel) renderConnState() string {
	switch m.connState {
	case renkei.StateConnected:
		return stateConnectedStyle.Render("● connected")
	case renkei.StateReconnecting:
		return stateReconnectingStyle.Render("● reconnecting")
	case renkei.StateConnecting:
		return stateReconnectingStyle.Render("● connecting")
	default:
		return errorStyle.Render("● disconnected")
	}
}

func (m DashboardModel) renderGauge() string {
	if !m.snapshot.PositionKnown {
		return helpStyle.Render("Position unknown, press r to refresh")
	}

	width := 40
	if m.width > 0 {
		width = min(40, m.width-20)
	}
	if width < 10 {
		width = 10
	}

	filled := m.snapshot.Position * width / 100
	bar := gaugeFilledStyle.Render(strings.Repeat("█", filled)) +
		gaugeEmptyStyle.Render(strings.Repeat("░", width-filled))

	motion := ""
	switch m.snapshot.Motion {
	case renkei.MotionOpening:
		motion = " ▲ opening"
	case renkei.MotionClosing:
		motion = " ▼ closing"
	}

	line := fmt.Sprintf("%s %3d%% open%s", bar, m.snapshot.Position, motion)
	if m.snapshot.AbsoluteKnown {
		line += helpStyle.Render(fmt.Sprintf("  (encoder %d)", m.snapshot.Absolute))
	}
	return line
}

func (m DashboardModel) renderHistory() string {
	if len(m.actionHistory) == 0 {
		return ""
	}

	maxLines := 3
	start := 0
	if len(m.actionHistory) > maxLines {
		start = len(m.actionHistory) - maxLines
	}

	var lines []string
	lines = append(lines, helpStyle.Render("─── ACTIONS ───"))
	for _, entry := range m.actionHistory[start:] {
		timestamp := entry.Timestamp.Format("15:04:05")
		if entry.Success {
			lines = append(lines, fmt.Sprintf("%s %s %s", timestamp, successStyle.Render("✓"), entry.Action))
		} else {
			lines = append(lines, fmt.Sprintf("%s %s %s: %s", timestamp, errorStyle.Render("✗"), entry.Action, entry.Error))
		}
	}
	return strings.Join(lines, "\n")
}

func (m DashboardModel) renderHelpText() string {
	help := "O: Open • C: Close • S: Stop • 0-9: Position • ↑/↓: Nudge"
	if m.width > 100 {
		help += " • J: Jog • R: Refresh • q: Disconnect"
	} else {
		help += " • q: Disconnect"
	}
	return helpStyle.Render(help)
}

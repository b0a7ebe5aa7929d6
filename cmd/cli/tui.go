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
	"github.com/charmbracelet/bubbletea"

	devices "renkei/internal/cli"
)

// Main TUI model that routes between screens
type model struct {
	currentScreen screen
	width         int
	height        int
	quitting      bool

	// Saved-motor store shared across screens
	store *devices.Store

	// Screen models
	motorsModel devices.MotorConfigModel
	setupModel  SetupModel
	dashModel   DashboardModel

	// Flags
	debugMode bool
	testMode  bool
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		// Global quit handling
		switch msg.String() {
		case "ctrl+c":
			if m.currentScreen == screenDashboard {
				m.dashModel.Close()
			}
			m.quitting = true
			return m, tea.Quit

		case "esc":
			switch m.currentScreen {
			case screenMotorList:
				if !m.motorsModel.Editing() {
					m.quitting = true
					return m, tea.Quit
				}
				// Editing, esc closes the inline form below

			case screenDeviceSetup:
				return m.showMotorList(), nil

			case screenDashboard:
				m.dashModel.Close()
				return m.showMotorList(), nil
			}

		case "q":
			switch m.currentScreen {
			case screenMotorList:
				if !m.motorsModel.Editing() {
					m.quitting = true
					return m, tea.Quit
				}
				// Editing, q is text input for the form fields

			case screenDashboard:
				m.dashModel.Close()
				return m.showMotorList(), nil
			}
		}
	}

	// Route messages to the active screen
	switch m.currentScreen {
	case screenMotorList:
		var cmd tea.Cmd
		m.motorsModel, cmd = m.motorsModel.Update(msg)

		if chosen := m.motorsModel.Chosen(); chosen != nil {
			m.motorsModel = m.motorsModel.ClearSignals()
			var connectCmd tea.Cmd
			m.setupModel, connectCmd = NewSetupModelConnecting(chosen.Address(), m.debugMode, m.testMode)
			m.currentScreen = screenDeviceSetup
			return m, tea.Batch(cmd, connectCmd)
		}

		if m.motorsModel.ManualRequested() {
			m.motorsModel = m.motorsModel.ClearSignals()
			address := ""
			if last, ok := m.store.LastUsed(); ok {
				address = last
			}
			m.setupModel = NewSetupModelWithFlags(address, m.debugMode, m.testMode)
			m.currentScreen = screenDeviceSetup
		}

		return m, cmd

	case screenDeviceSetup:
		var cmd tea.Cmd
		m.setupModel, cmd = m.setupModel.Update(msg)

		// Check if connection was successful
		if m.setupModel.IsConnected() {
			_ = m.store.RememberLast(m.setupModel.Config().Address())
			m.dashModel = NewDashboardModel(
				m.setupModel.Client(),
				m.setupModel.Config().Address(),
				m.debugMode,
				m.testMode,
			)
			m.currentScreen = screenDashboard
			return m, tea.Batch(cmd, m.dashModel.Init())
		}

		return m, cmd

	case screenDashboard:
		var cmd tea.Cmd
		m.dashModel, cmd = m.dashModel.Update(msg)
		return m, cmd
	}

	return m, nil
}

// showMotorList returns to a freshly loaded saved-motor screen
func (m model) showMotorList() model {
	m.motorsModel = devices.NewMotorConfigModel(m.store)
	m.currentScreen = screenMotorList
	return m
}

func (m model) View() string {
	if m.quitting {
		return successStyle.Render("Thanks for using Renkei!") + "\n"
	}

	// Route view rendering to appropriate screen
	switch m.currentScreen {
	case screenMotorList:
		return m.motorsModel.View()
	case screenDeviceSetup:
		return m.setupModel.View()
	case screenDashboard:
		return m.dashModel.View()
	default:
		return "Unknown screen"
	}
}

func StartTUI(address string, debug, test bool) error {
	p := tea.NewProgram(
		initialModelWithFlags(address, debug, test),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}

func initialModelWithFlags(address string, debug, test bool) model {
	store := devices.NewStore(devices.DefaultStorePath())
	m := model{
		currentScreen: screenMotorList,
		store:         store,
		motorsModel:   devices.NewMotorConfigModel(store),
		debugMode:     debug,
		testMode:      test,
	}

	// An explicit host flag goes straight to the connect screen
	if address != "" {
		m.currentScreen = screenDeviceSetup
		m.setupModel = NewSetupModelWithFlags(address, debug, test)
	}
	return m
}

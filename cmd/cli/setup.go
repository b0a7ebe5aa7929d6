package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbletea"
	"renkei/internal"
	"renkei/internal/renkei"
)

// connectResultMsg reports the outcome of an async connection attempt
type connectResultMsg struct {
	client *renkei.RenkeiClient
	config *renkei.Config
	err    error
}

// SetupModel handles the motor setup screen
type SetupModel struct {
	// Input field
	address       string
	addressCursor int

	// Connection state
	connecting      bool
	connectionError string

	// Connected client (when setup complete)
	client *renkei.RenkeiClient
	config *renkei.Config

	// Flags
	debugMode bool
	testMode  bool
}

// NewSetupModel creates a new setup screen model
func NewSetupModel() SetupModel {
	return NewSetupModelWithFlags("", false, false)
}

// NewSetupModelWithFlags creates a new setup screen model with a prefilled
// address and mode flags
func NewSetupModelWithFlags(address string, debug, test bool) SetupModel {
	return SetupModel{
		address:       address,
		addressCursor: len(address),
		debugMode:     debug,
		testMode:      test,
	}
}

// NewSetupModelConnecting creates a setup model that is already dialing the
// given address, used when a saved motor is picked from the list
func NewSetupModelConnecting(address string, debug, test bool) (SetupModel, tea.Cmd) {
	model := NewSetupModelWithFlags(address, debug, test)
	return model.handleConnect()
}

// Update handles setup screen messages
func (m SetupModel) Update(msg tea.Msg) (SetupModel, tea.Cmd) {
	switch msg := msg.(type) {
	case connectResultMsg:
		m.connecting = false
		if msg.err != nil {
			m.connectionError = msg.err.Error()
			return m, nil
		}
		m.client = msg.client
		m.config = msg.config
		return m, nil

	case tea.KeyMsg:
		if m.connecting {
			return m, nil
		}

		switch msg.String() {
		case "enter":
			return m.handleConnect()

		case "left":
			if m.addressCursor > 0 {
				m.addressCursor--
			}
			return m, nil

		case "right":
			if m.addressCursor < len(m.address) {
				m.addressCursor++
			}
			return m, nil

		case "home":
			m.addressCursor = 0
			return m, nil

		case "end":
			m.addressCursor = len(m.address)
			return m, nil

		case "backspace":
			if m.addressCursor > 0 {
				m.address = deleteCharAt(m.address, m.addressCursor-1)
				m.addressCursor--
			}
			return m, nil

		case "delete":
			m.address = deleteCharAt(m.address, m.addressCursor)
			return m, nil

		default:
			if len(msg.String()) == 1 {
				m.address = insertText(m.address, m.addressCursor, msg.String())
				m.addressCursor++
				m.connectionError = ""
			}
			return m, nil
		}
	}

	return m, nil
}

// handleConnect validates the address and starts an async connection attempt
func (m SetupModel) handleConnect() (SetupModel, tea.Cmd) {
	address := strings.TrimSpace(m.address)
	if address == "" {
		m.connectionError = "Enter the motor's host address"
		return m, nil
	}

	host, port, err := splitAddress(address)
	if err != nil {
		m.connectionError = err.Error()
		return m, nil
	}

	m.connecting = true
	m.connectionError = ""
	return m, connectToMotor(host, port, m.debugMode, m.testMode)
}

// connectToMotor returns a command that dials the motor off the UI loop
func connectToMotor(host string, port int, debug, test bool) tea.Cmd {
	return func() tea.Msg {
		config, err := renkei.NewConfig(host, port)
		if err != nil {
			return connectResultMsg{err: err}
		}

		client := renkei.NewRenkeiClient(config,
			internal.WithDebug(debug),
			internal.WithTest(test),
		)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if !client.Connect(ctx) {
			client.Disconnect()
			return connectResultMsg{err: fmt.Errorf("failed to connect to motor at %s", config.Address())}
		}
		return connectResultMsg{client: client, config: config}
	}
}

// splitAddress accepts "host" or "host:port"
func splitAddress(address string) (string, int, error) {
	if !strings.Contains(address, ":") {
		return address, renkei.DefaultPort, nil
	}
	host, portText, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, fmt.Errorf("invalid address: %s", address)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %s", portText)
	}
	return host, port, nil
}

// IsConnected reports whether setup produced a connected client
func (m SetupModel) IsConnected() bool {
	return m.client != nil
}

// Client returns the connected client
func (m SetupModel) Client() *renkei.RenkeiClient {
	return m.client
}

// Config returns the connection configuration
func (m SetupModel) Config() *renkei.Config {
	return m.config
}

// View renders the setup screen
func (m SetupModel) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render("Renkei - Shade Motor Dashboard"))
	sections = append(sections, subtitleStyle.Render("Connect to a motor controller"))

	label := "Host address (host or host:port):"
	input := renderTextWithCursor(m.address, m.addressCursor, !m.connecting)
	sections = append(sections, label+"\n"+inputFocusedStyle.Render(input))

	if m.connecting {
		sections = append(sections, subtitleStyle.Render("Connecting..."))
	}
	if m.connectionError != "" {
		sections = append(sections, errorStyle.Render("✗ "+m.connectionError))
	}

	sections = append(sections, helpStyle.Render("Enter: Connect • Esc: Back • Ctrl+C: Quit"))

	return strings.Join(sections, "\n\n")
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"renkei/internal/renkei"
)

type motorField int

const (
	motorFieldName motorField = iota
	motorFieldHost
	motorFieldPort
	motorFieldSave
	motorFieldCancel
)

// MotorConfigModel is the saved-motor screen: a selectable list of stored
// controllers with an inline add/edit form
type MotorConfigModel struct {
	store    *Store
	motors   []MotorEntry
	selected int

	editing  *MotorEntry
	portText string
	focused  motorField
	cursor   int
	editMode bool
	addMode  bool

	errorMessage   string
	successMessage string
	width          int
	height         int

	// set when the user picks an action for the parent model to act on
	chosen *MotorEntry
	manual bool
}

// NewMotorConfigModel creates the saved-motor screen backed by a store
func NewMotorConfigModel(store *Store) MotorConfigModel {
	model := MotorConfigModel{store: store}
	model.loadMotors()
	return model
}

// loadMotors refreshes the list from the store
func (m *MotorConfigModel) loadMotors() {
	motors, err := m.store.List()
	if err != nil {
		m.errorMessage = fmt.Sprintf("Failed to load saved motors: %v", err)
		return
	}
	m.motors = motors
	if m.selected >= len(m.motors) {
		m.selected = len(m.motors) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// Chosen returns the motor the user picked to connect to, if any
func (m MotorConfigModel) Chosen() *MotorEntry {
	return m.chosen
}

// ManualRequested reports whether the user asked for manual address entry
func (m MotorConfigModel) ManualRequested() bool {
	return m.manual
}

// ClearSignals resets the choose/manual markers after the parent acted
func (m MotorConfigModel) ClearSignals() MotorConfigModel {
	m.chosen = nil
	m.manual = false
	return m
}

// Editing reports whether the inline form is open, so the parent knows
// whether keys like q belong to the text fields
func (m MotorConfigModel) Editing() bool {
	return m.editMode || m.addMode
}

func (m MotorConfigModel) Init() tea.Cmd {
	return nil
}

// Update handles saved-motor screen messages
func (m MotorConfigModel) Update(msg tea.Msg) (MotorConfigModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		m.errorMessage = ""
		m.successMessage = ""

		switch msg.String() {
		case "esc":
			if m.Editing() {
				return m.exitEditMode(), nil
			}
			return m, nil

		case "enter":
			return m.handleEnter()

		case "tab", "shift+tab":
			return m.handleTabNavigation(msg.String() == "shift+tab"), nil

		case "up":
			return m.handleUp(), nil

		case "down":
			return m.handleDown(), nil

		case "left":
			if m.Editing() {
				m.moveCursorLeft()
			}
			return m, nil

		case "right":
			if m.Editing() {
				m.moveCursorRight()
			}
			return m, nil

		case "backspace":
			if m.Editing() {
				m.deleteCharLeft()
			}
			return m, nil

		case "delete":
			if m.Editing() {
				m.deleteCharRight()
			}
			return m, nil

		case "home":
			if m.Editing() {
				m.cursor = 0
			}
			return m, nil

		case "end":
			if m.Editing() {
				m.syncCursor()
			}
			return m, nil

		case "a":
			if !m.Editing() {
				return m.startAddMode(), nil
			}
			return m.handleTextInput("a")

		case "e":
			if !m.Editing() && len(m.motors) > 0 {
				return m.startEditMode(), nil
			}
			return m.handleTextInput("e")

		case "d":
			if !m.Editing() && len(m.motors) > 0 {
				return m.deleteMotor(), nil
			}
			return m.handleTextInput("d")

		case "m":
			if !m.Editing() {
				m.manual = true
				return m, nil
			}
			return m.handleTextInput("m")

		case "r":
			if !m.Editing() {
				m.loadMotors()
				m.successMessage = "Saved motors reloaded"
				return m, nil
			}
			return m.handleTextInput("r")

		default:
			if m.Editing() {
				return m.handleTextInput(msg.String())
			}
		}
	}

	return m, nil
}

// View renders the saved-motor screen
func (m MotorConfigModel) View() string {
	if m.Editing() {
		return m.renderEditView()
	}
	return m.renderListView()
}

func (m MotorConfigModel) renderListView() string {
	var sections []string

	sections = append(sections, titleStyle.Render("RENKEI Saved Motors"))

	if len(m.motors) == 0 {
		sections = append(sections, dimStyle.Render("No saved motors yet"))
	} else {
		sections = append(sections, subtitleStyle.Render("Saved Motors:"))

		for i, motor := range m.motors {
			cursor := "  "
			style := lipgloss.NewStyle()
			if i == m.selected {
				cursor = "> "
				style = style.Foreground(lipgloss.Color("#FF79C6")).Bold(true)
			}
			sections = append(sections, style.Render(fmt.Sprintf("%s%s (%s)", cursor, motor.Name, motor.Address())))
		}
	}

	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: "+m.errorMessage))
	}
	if m.successMessage != "" {
		sections = append(sections, successStyle.Render("✓ "+m.successMessage))
	}

	var helpItems []string
	if len(m.motors) > 0 {
		helpItems = []string{
			"↑/↓: Select",
			"Enter: Connect",
			"a: Add",
			"e: Edit",
			"d: Delete",
			"m: Manual address",
			"r: Reload",
			"q: Quit",
		}
	} else {
		helpItems = []string{
			"a: Add",
			"m: Manual address",
			"q: Quit",
		}
	}

	sections = append(sections, "")
	sections = append(sections, helpStyle.Render(strings.Join(helpItems, " • ")))

	return strings.Join(sections, "\n")
}

func (m MotorConfigModel) renderEditView() string {
	var sections []string

	title := "Add Motor"
	if m.editMode {
		title = "Edit Motor"
	}
	sections = append(sections, titleStyle.Render(title))

	if m.editing == nil {
		sections = append(sections, errorStyle.Render("No motor being edited"))
		return strings.Join(sections, "\n")
	}

	sections = append(sections, m.renderField("Name:", m.editing.Name, motorFieldName))
	sections = append(sections, m.renderField("Host:", m.editing.Host, motorFieldHost))
	sections = append(sections, m.renderField("Port:", m.portText, motorFieldPort))

	sections = append(sections, "")

	saveStyle := buttonStyle
	if m.focused == motorFieldSave {
		saveStyle = buttonActiveStyle
	}
	sections = append(sections, saveStyle.Render("Save"))

	cancelStyle := buttonStyle
	if m.focused == motorFieldCancel {
		cancelStyle = buttonActiveStyle
	}
	sections = append(sections, cancelStyle.Render("Cancel"))

	if m.errorMessage != "" {
		sections = append(sections, errorStyle.Render("Error: "+m.errorMessage))
	}
	if m.successMessage != "" {
		sections = append(sections, successStyle.Render("✓ "+m.successMessage))
	}

	sections = append(sections, "")
	sections = append(sections, helpStyle.Render("Tab: Next field • Enter: Action • Esc: Cancel"))

	return strings.Join(sections, "\n")
}

func (m MotorConfigModel) renderField(label, value string, field motorField) string {
	focused := m.focused == field
	style := inputStyle
	if focused {
		style = inputFocusedStyle
	}
	return subtitleStyle.Render(label) + "\n" + style.Render(renderTextWithCursor(value, m.cursor, focused))
}

func (m MotorConfigModel) handleEnter() (MotorConfigModel, tea.Cmd) {
	if m.Editing() {
		switch m.focused {
		case motorFieldSave:
			return m.saveMotor(), nil
		case motorFieldCancel:
			return m.exitEditMode(), nil
		default:
			return m.handleTabNavigation(false), nil
		}
	}

	// In list mode, enter picks the selected motor for connection
	if len(m.motors) > 0 {
		entry := m.motors[m.selected]
		m.chosen = &entry
	}
	return m, nil
}

func (m MotorConfigModel) handleTabNavigation(reverse bool) MotorConfigModel {
	if !m.Editing() {
		return m
	}

	fields := []motorField{
		motorFieldName,
		motorFieldHost,
		motorFieldPort,
		motorFieldSave,
		motorFieldCancel,
	}

	current := 0
	for i, field := range fields {
		if field == m.focused {
			current = i
			break
		}
	}

	if reverse {
		current--
		if current < 0 {
			current = len(fields) - 1
		}
	} else {
		current++
		if current >= len(fields) {
			current = 0
		}
	}

	m.focused = fields[current]
	m.syncCursor()
	return m
}

func (m MotorConfigModel) handleUp() MotorConfigModel {
	if !m.Editing() && m.selected > 0 {
		m.selected--
	}
	return m
}

func (m MotorConfigModel) handleDown() MotorConfigModel {
	if !m.Editing() && m.selected < len(m.motors)-1 {
		m.selected++
	}
	return m
}

func (m MotorConfigModel) handleTextInput(input string) (MotorConfigModel, tea.Cmd) {
	if !m.Editing() {
		return m, nil
	}

	printable := ""
	for _, r := range input {
		if r >= 32 && r < 127 {
			printable += string(r)
		}
	}
	if printable == "" {
		return m, nil
	}

	if text := m.focusedText(); text != nil {
		*text = insertText(*text, m.cursor, printable)
		m.cursor += len(printable)
	}
	return m, nil
}

func (m MotorConfigModel) startAddMode() MotorConfigModel {
	m.editing = &MotorEntry{}
	m.portText = strconv.Itoa(renkei.DefaultPort)
	m.addMode = true
	m.focused = motorFieldName
	m.syncCursor()
	return m
}

func (m MotorConfigModel) startEditMode() MotorConfigModel {
	entry := m.motors[m.selected]
	m.editing = &entry
	m.portText = strconv.Itoa(entry.Port)
	m.editMode = true
	m.focused = motorFieldName
	m.syncCursor()
	return m
}

func (m MotorConfigModel) exitEditMode() MotorConfigModel {
	m.editMode = false
	m.addMode = false
	m.editing = nil
	m.portText = ""
	m.focused = motorFieldName
	m.cursor = 0
	return m
}

func (m MotorConfigModel) saveMotor() MotorConfigModel {
	if m.editing == nil {
		return m
	}

	entry := *m.editing
	if m.portText == "" {
		entry.Port = 0
	} else {
		port, err := strconv.Atoi(m.portText)
		if err != nil {
			m.errorMessage = fmt.Sprintf("Port '%s' is not a number", m.portText)
			return m
		}
		entry.Port = port
	}

	var err error
	if m.addMode {
		err = m.store.Add(entry)
	} else {
		err = m.store.Update(m.motors[m.selected].Name, entry)
	}
	if err != nil {
		m.errorMessage = err.Error()
		return m
	}

	m.loadMotors()
	m.successMessage = fmt.Sprintf("Motor '%s' saved", entry.Name)
	return m.exitEditMode()
}

func (m MotorConfigModel) deleteMotor() MotorConfigModel {
	entry := m.motors[m.selected]
	if err := m.store.Remove(entry.Name); err != nil {
		m.errorMessage = err.Error()
		return m
	}

	m.loadMotors()
	m.successMessage = fmt.Sprintf("Motor '%s' deleted", entry.Name)
	return m
}

// focusedText returns the text buffer behind the focused field, nil for
// the action buttons
func (m *MotorConfigModel) focusedText() *string {
	if m.editing == nil {
		return nil
	}
	switch m.focused {
	case motorFieldName:
		return &m.editing.Name
	case motorFieldHost:
		return &m.editing.Host
	case motorFieldPort:
		return &m.portText
	default:
		return nil
	}
}

func (m *MotorConfigModel) syncCursor() {
	if text := m.focusedText(); text != nil {
		m.cursor = len(*text)
	} else {
		m.cursor = 0
	}
}

func (m *MotorConfigModel) moveCursorLeft() {
	if m.cursor > 0 {
		m.cursor--
	}
}

func (m *MotorConfigModel) moveCursorRight() {
	if text := m.focusedText(); text != nil && m.cursor < len(*text) {
		m.cursor++
	}
}

func (m *MotorConfigModel) deleteCharLeft() {
	if text := m.focusedText(); text != nil && m.cursor > 0 {
		*text = deleteCharAt(*text, m.cursor-1)
		m.cursor--
	}
}

func (m *MotorConfigModel) deleteCharRight() {
	if text := m.focusedText(); text != nil && m.cursor < len(*text) {
		*text = deleteCharAt(*text, m.cursor)
	}
}

// Text helpers, duplicated from the interactive screens until they grow a
// shared home
func insertText(text string, position int, insert string) string {
	if position < 0 {
		position = 0
	}
	if position > len(text) {
		position = len(text)
	}
	return text[:position] + insert + text[position:]
}

func deleteCharAt(text string, position int) string {
	if position < 0 || position >= len(text) {
		return text
	}
	return text[:position] + text[position+1:]
}

func renderTextWithCursor(text string, cursor int, showCursor bool) string {
	if !showCursor {
		return text
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(text) {
		cursor = len(text)
	}
	if cursor == len(text) {
		return text + "█"
	}
	return text[:cursor] + "█" + text[cursor+1:]
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8BE9FD")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6272A4")).
			Padding(0, 1)

	inputFocusedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#FF79C6")).
				Padding(0, 1)

	buttonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6272A4")).
			Padding(0, 1)

	buttonActiveStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#50FA7B")).
				Background(lipgloss.Color("#282A36")).
				Padding(0, 1).
				Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

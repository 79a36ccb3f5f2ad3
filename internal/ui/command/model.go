package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/theme"
)

// Names lists the commands the palette understands, in completion order.
var Names = []string{"check", "new", "edit", "send", "delete", "smtp", "help", "quit"}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Name string
	Arg  string
}

// CancelMsg is emitted when the palette is dismissed without a command.
type CancelMsg struct{}

// Parse splits a palette line into a command name and its argument. ok is
// false for an empty line or an unknown command.
func Parse(line string) (CommandMsg, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, false
	}
	name := strings.ToLower(fields[0])
	for _, n := range Names {
		if n == name {
			return CommandMsg{Name: name, Arg: strings.Join(fields[1:], " ")}, true
		}
	}
	return CommandMsg{Name: name}, false
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	err    string
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = strings.Join(Names, " | ")
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Names)
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			m.input.Reset()
			m.err = ""
			return m, func() tea.Msg { return CancelMsg{} }
		case "enter":
			line := m.input.Value()
			cmd, ok := Parse(line)
			if !ok {
				if cmd.Name != "" {
					m.err = "unknown command: " + cmd.Name
				}
				return m, nil
			}
			m.input.Reset()
			m.err = ""
			return m, func() tea.Msg { return cmd }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	parts := []string{titleStyle.Render("Command"), m.input.View()}
	if m.err != "" {
		parts = append(parts, "", theme.ErrorStyle.Render(m.err))
	}

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus clears any previous input and gives keyboard focus to it.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	m.err = ""
	return m.input.Focus()
}

package itemlist

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/store"
	"github.com/nhle/mail-scheduler/internal/theme"
)

// ItemsLoadedMsg is sent when items have been loaded from the store.
type ItemsLoadedMsg struct {
	Items []model.ScheduleItem
	At    time.Time
	Err   error
}

// Model is the schedule item list.
type Model struct {
	list   list.Model
	store  store.Store
	now    func() time.Time
	err    error
	width  int
	height int
}

// New creates an item list backed by s. now supplies the time the next
// send column is computed against.
func New(s store.Store, now func() time.Time, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{}, width, height)
	l.Title = "Scheduled emails"
	l.SetShowStatusBar(true)
	l.SetStatusBarItemName("item", "items")
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		store:  s,
		now:    now,
		width:  width,
		height: height,
	}
}

// Init loads the items.
func (m Model) Init() tea.Cmd {
	return m.LoadItems()
}

// Update handles messages for the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(ItemsLoadedMsg); ok {
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		return m, m.list.SetItems(Rows(msg.Items, msg.At))
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// Rows converts items to list rows, computing each next send at now.
func Rows(items []model.ScheduleItem, now time.Time) []list.Item {
	rows := make([]list.Item, len(items))
	for i, item := range items {
		rows[i] = Row{Item: item, Next: schedule.NextFire(item, now)}
	}
	return rows
}

// SelectedItem returns the focused item.
func (m Model) SelectedItem() (model.ScheduleItem, bool) {
	row, ok := m.list.SelectedItem().(Row)
	if !ok {
		return model.ScheduleItem{}, false
	}
	return row.Item, true
}

// Len returns the number of loaded items.
func (m Model) Len() int {
	return len(m.list.Items())
}

// View renders the list or an empty-state hint.
func (m Model) View() string {
	if m.err != nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(theme.ErrorStyle.Render("Could not load items: " + m.err.Error()))
	}

	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No scheduled emails.\n\nPress n to add one, c to set up SMTP.")
	}

	return m.list.View()
}

// LoadItems returns a tea.Cmd that lists all items.
func (m Model) LoadItems() tea.Cmd {
	s := m.store
	now := m.now
	return func() tea.Msg {
		items, err := s.ListItems(context.Background())
		return ItemsLoadedMsg{Items: items, At: now(), Err: err}
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

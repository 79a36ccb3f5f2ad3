package app

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/clock"
	"github.com/nhle/mail-scheduler/internal/dispatch"
	"github.com/nhle/mail-scheduler/internal/keys"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/poller"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/store"
	"github.com/nhle/mail-scheduler/internal/theme"
	"github.com/nhle/mail-scheduler/internal/ui"
	"github.com/nhle/mail-scheduler/internal/ui/command"
	helpview "github.com/nhle/mail-scheduler/internal/ui/help"
	"github.com/nhle/mail-scheduler/internal/ui/itemform"
	"github.com/nhle/mail-scheduler/internal/ui/itemlist"
	"github.com/nhle/mail-scheduler/internal/ui/smtpform"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewHelp
	ViewItemForm
	ViewSMTP
	ViewCommand
)

// Model is the root Bubble Tea model. The poll loop runs elsewhere; its
// events arrive here as poller.Event messages.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        store.Store
	dispatcher   *dispatch.Dispatcher
	poller       *poller.Poller
	clock        clock.Clocker
	keys         *keys.KeyMap
	itemList     itemlist.Model
	itemForm     itemform.Model
	smtpView     smtpform.Model
	helpView     helpview.Model
	commandView  command.Model
	ready        bool

	// pendingDelete is the item awaiting y/n confirmation.
	pendingDelete *model.ScheduleItem
	lastTick      *poller.Event
	status        string
	statusIsError bool
}

// New creates the root model.
func New(s store.Store, d *dispatch.Dispatcher, p *poller.Poller, c clock.Clocker) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewList,
		store:       s,
		dispatcher:  d,
		poller:      p,
		clock:       c,
		keys:        k,
		itemList:    itemlist.New(s, c.Now, 80, 22),
		itemForm:    itemform.New(80, 22),
		smtpView:    smtpform.New(s, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		commandView: command.New(80, 22),
	}
}

// Init loads the items and subscribes to poll loop events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.itemList.Init(),
		m.poller.WaitForEvent(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.itemList.SetSize(w, h)
		m.itemForm.SetSize(w, h)
		m.smtpView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to the active view so huh forms can lay out.
		return m.updateActiveView(msg)

	case poller.Event:
		m.applyEvent(msg)
		return m, tea.Batch(m.itemList.LoadItems(), m.poller.WaitForEvent())

	case itemlist.ItemsLoadedMsg:
		var cmd tea.Cmd
		m.itemList, cmd = m.itemList.Update(msg)
		return m, cmd

	case itemform.ItemSubmittedMsg:
		m.currentView = ViewList
		return m, m.saveItem(msg.Item)

	case itemform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case smtpform.SavedMsg:
		m.currentView = ViewList
		m.setStatus(fmt.Sprintf("SMTP settings saved for %s", msg.Profile.Address), false)
		m.poller.Trigger()
		return m, nil

	case smtpform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case command.CommandMsg:
		m.currentView = ViewList
		return m.runCommand(msg)

	case command.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case itemSavedMsg:
		if msg.err != nil {
			m.setStatus("Save failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Saved %q", msg.subject), false)
		m.poller.Trigger()
		return m, m.itemList.LoadItems()

	case itemDeletedMsg:
		if msg.err != nil {
			m.setStatus("Delete failed: "+msg.err.Error(), true)
			return m, nil
		}
		m.setStatus(fmt.Sprintf("Deleted %q", msg.subject), false)
		return m, m.itemList.LoadItems()

	case sendResultMsg:
		switch {
		case msg.err == nil:
			m.setStatus(fmt.Sprintf("Sent %q", msg.subject), false)
		case errors.Is(msg.err, dispatch.ErrInFlight):
			m.setStatus(fmt.Sprintf("%q is already being sent", msg.subject), true)
		default:
			m.setStatus(fmt.Sprintf("Sending %q failed: %v", msg.subject, msg.err), true)
		}
		return m, m.itemList.LoadItems()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.currentView == ViewList {
			if mdl, cmd, handled := m.handleListKeys(msg); handled {
				return mdl, cmd
			}
		} else if m.currentView == ViewHelp && (key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back)) {
			m.currentView = m.previousView
			return m, nil
		}
	}

	return m.updateActiveView(msg)
}

// handleListKeys processes the global shortcuts available on the list.
func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if m.pendingDelete != nil {
		item := *m.pendingDelete
		m.pendingDelete = nil
		if msg.String() == "y" {
			return m, m.deleteItem(item.ID, item.Subject), true
		}
		m.setStatus("Delete cancelled", false)
		return m, nil, true
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit, true
	case key.Matches(msg, m.keys.Command):
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true
	case key.Matches(msg, m.keys.Help):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "help"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.New):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "new"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.Edit):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "edit"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.Delete):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "delete"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.Send):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "send"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.Settings):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "smtp"})
		return mdl, cmd, true
	case key.Matches(msg, m.keys.Refresh):
		mdl, cmd := m.runCommand(command.CommandMsg{Name: "check"})
		return mdl, cmd, true
	}
	return m, nil, false
}

// runCommand performs a list action, whether it came from a shortcut or
// the command palette. Item actions apply to the selected row; send also
// accepts an explicit item id.
func (m Model) runCommand(c command.CommandMsg) (tea.Model, tea.Cmd) {
	switch c.Name {
	case "quit":
		return m, tea.Quit

	case "help":
		m.previousView = ViewList
		m.currentView = ViewHelp
		return m, nil

	case "new":
		m.currentView = ViewItemForm
		return m, m.itemForm.StartCreate()

	case "smtp":
		m.currentView = ViewSMTP
		return m, m.smtpView.Init()

	case "check":
		m.poller.Trigger()
		m.setStatus("Checking for due items...", false)
		return m, m.itemList.LoadItems()

	case "send":
		if c.Arg != "" {
			m.setStatus(fmt.Sprintf("Sending %s...", c.Arg), false)
			return m, m.sendNow(c.Arg, c.Arg)
		}
	}

	item, ok := m.itemList.SelectedItem()
	if !ok {
		return m, nil
	}
	switch c.Name {
	case "edit":
		m.currentView = ViewItemForm
		return m, m.itemForm.StartEdit(item)
	case "delete":
		m.pendingDelete = &item
		m.setStatus(fmt.Sprintf("Delete %q? y to confirm", item.Subject), true)
		return m, nil
	case "send":
		m.setStatus(fmt.Sprintf("Sending %q...", item.Subject), false)
		return m, m.sendNow(item.ID, item.Subject)
	}
	return m, nil
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.itemList, cmd = m.itemList.Update(msg)
	case ViewItemForm:
		m.itemForm, cmd = m.itemForm.Update(msg)
	case ViewSMTP:
		m.smtpView, cmd = m.smtpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// applyEvent records a poll loop event for the header and status bar.
func (m *Model) applyEvent(ev poller.Event) {
	switch ev.Kind {
	case poller.EventTickFinished:
		m.lastTick = &ev
		if ev.Err != nil {
			m.setStatus("Check failed: "+ev.Err.Error(), true)
		}
	case poller.EventItemSent:
		m.setStatus(fmt.Sprintf("Sent %q", ev.Subject), false)
	case poller.EventItemFailed:
		m.setStatus(fmt.Sprintf("Sending %q failed: %v", ev.Subject, ev.Err), true)
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusIsError = isErr
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Mail Scheduler", m.loopStatus())
	statusBar := m.layout.RenderStatusBar(m.statusLine())
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.itemList.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewItemForm:
		return m.itemForm.View()
	case ViewSMTP:
		return m.smtpView.View()
	case ViewCommand:
		return lipgloss.JoinVertical(lipgloss.Left, m.itemList.View(), m.commandView.View())
	default:
		return ""
	}
}

// loopStatus summarises the last tick for the header.
func (m Model) loopStatus() string {
	if m.lastTick == nil {
		return "waiting for first check"
	}
	s := "checked " + m.lastTick.At.Local().Format(schedule.DisplayLayout)
	if m.lastTick.Failed > 0 {
		s += fmt.Sprintf(" (%d failed)", m.lastTick.Failed)
	}
	return s
}

// statusLine returns the latest message, or key hints for the view.
func (m Model) statusLine() string {
	if m.currentView == ViewList && m.status != "" {
		if m.statusIsError {
			return theme.ErrorStyle.Render(m.status)
		}
		return m.status
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewItemForm, ViewSMTP:
		return "enter next | shift+tab back | esc cancel"
	case ViewCommand:
		return "tab complete | enter run | esc cancel"
	default:
		return "q quit | ? help | n new | e edit | d delete | s send | c smtp | r check | : command"
	}
}

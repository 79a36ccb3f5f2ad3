package app

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mail-scheduler/internal/model"
)

// itemSavedMsg is sent after an item is inserted or updated.
type itemSavedMsg struct {
	subject string
	err     error
}

// itemDeletedMsg is sent after an item is removed.
type itemDeletedMsg struct {
	subject string
	err     error
}

// sendResultMsg is sent after a manual send.
type sendResultMsg struct {
	subject string
	err     error
}

// saveItem inserts a new item or updates an existing one.
func (m Model) saveItem(item model.ScheduleItem) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx := context.Background()
		var err error
		if item.ID == "" {
			_, err = s.InsertItem(ctx, item)
		} else {
			err = s.UpdateItem(ctx, item)
		}
		return itemSavedMsg{subject: item.Subject, err: err}
	}
}

// deleteItem removes an item from the store.
func (m Model) deleteItem(id, subject string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		err := s.DeleteItem(context.Background(), id)
		return itemDeletedMsg{subject: subject, err: err}
	}
}

// sendNow dispatches an item immediately, bypassing its schedule.
func (m Model) sendNow(id, subject string) tea.Cmd {
	d := m.dispatcher
	return func() tea.Msg {
		err := d.SendNow(context.Background(), id)
		return sendResultMsg{subject: subject, err: err}
	}
}

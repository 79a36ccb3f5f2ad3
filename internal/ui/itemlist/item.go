package itemlist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/schedule"
	"github.com/nhle/mail-scheduler/internal/theme"
)

// Row is one schedule item with its next send computed at load time.
type Row struct {
	Item model.ScheduleItem
	Next schedule.Next
}

// FilterValue returns the subject.
func (r Row) FilterValue() string { return r.Item.Subject }

// Title returns the subject.
func (r Row) Title() string { return r.Item.Subject }

// Description returns the detail line: recipients, schedule, last and next
// send.
func (r Row) Description() string {
	parts := []string{
		model.JoinRecipients(r.Item.Recipients),
		scheduleText(r.Item),
		"last " + lastSentText(r.Item.LastSent),
		"next " + r.Next.String(),
	}
	if r.Item.HasAttachment() {
		parts = append(parts, "attachment "+r.Item.Attachment)
	}
	return strings.Join(parts, " | ")
}

func scheduleText(item model.ScheduleItem) string {
	if item.Mode == model.ModeTime {
		return fmt.Sprintf("%s at %s", item.ScheduleLabel(), item.ScheduleTime)
	}
	return item.ScheduleLabel()
}

func lastSentText(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return ts.Local().Format(schedule.DisplayLayout)
}

// Delegate renders rows on two lines.
type Delegate struct{}

// Height returns the number of lines each row takes.
func (Delegate) Height() int { return 2 }

// Spacing returns the number of blank lines between rows.
func (Delegate) Spacing() int { return 1 }

// Update is unused.
func (Delegate) Update(tea.Msg, *list.Model) tea.Cmd { return nil }

// Render draws a row.
func (Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	row, ok := item.(Row)
	if !ok {
		return
	}

	width := m.Width() - 4
	title := truncate(row.Title(), width)
	next := theme.NextFireStyle(row.Next.Kind).Render(row.Next.String())

	details := truncate(strings.Join([]string{
		model.JoinRecipients(row.Item.Recipients),
		scheduleText(row.Item),
		"last " + lastSentText(row.Item.LastSent),
	}, " | "), width-lipgloss.Width(row.Next.String())-8)
	line2 := theme.DimmedStyle.Render(details+" | next ") + next

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	fmt.Fprint(w, style.Render(title+"\n"+line2))
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}

package itemform

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/theme"
)

// ItemSubmittedMsg carries a validated item. ID is empty for a new item.
type ItemSubmittedMsg struct {
	Item model.ScheduleItem
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so huh's Value() pointers
// stay valid across Bubble Tea model copies.
type formBindings struct {
	subject      string
	recipients   string
	body         string
	attachment   string
	mode         model.Mode
	frequency    model.Frequency
	scheduleTime string
	interval     string
}

// Model is the create/edit form for a schedule item.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	editing *model.ScheduleItem
	errs    map[string]string
	width   int
	height  int
}

// New creates an idle form.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// StartCreate opens an empty form.
func (m *Model) StartCreate() tea.Cmd {
	m.editing = nil
	m.errs = nil
	*m.fb = formBindings{
		mode:         model.ModeInterval,
		frequency:    model.FrequencyDaily,
		scheduleTime: "09:00",
		interval:     "60",
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit opens the form prefilled with item.
func (m *Model) StartEdit(item model.ScheduleItem) tea.Cmd {
	m.editing = &item
	m.errs = nil
	*m.fb = formBindings{
		subject:      item.Subject,
		recipients:   model.JoinRecipients(item.Recipients),
		body:         item.Body,
		attachment:   item.Attachment,
		mode:         item.Mode,
		frequency:    item.Frequency,
		scheduleTime: item.ScheduleTime,
		interval:     strconv.Itoa(item.IntervalMinutes),
	}
	if m.fb.frequency == "" {
		m.fb.frequency = model.FrequencyDaily
	}
	if item.IntervalMinutes == 0 {
		m.fb.interval = "60"
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Editing reports whether the form edits an existing item.
func (m Model) Editing() bool {
	return m.editing != nil
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.submit()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// submit validates the collected values. On failure the form is reopened
// with the messages shown above it and nothing is emitted.
func (m Model) submit() (Model, tea.Cmd) {
	item := m.Item()
	if err := model.ValidateItem(item); err != nil {
		m.errs = apperr.FieldsOf(err)
		if m.errs == nil {
			m.errs = map[string]string{"form": err.Error()}
		}
		m.form = m.buildForm()
		return m, m.form.Init()
	}
	return m, func() tea.Msg { return ItemSubmittedMsg{Item: item} }
}

// Item builds a schedule item from the current values. Fields irrelevant to
// the chosen mode are cleared.
func (m Model) Item() model.ScheduleItem {
	var item model.ScheduleItem
	if m.editing != nil {
		item = *m.editing
	}
	item.Subject = strings.TrimSpace(m.fb.subject)
	item.Recipients = model.SplitRecipients(m.fb.recipients)
	item.Body = m.fb.body
	item.Attachment = strings.TrimSpace(m.fb.attachment)
	item.Mode = m.fb.mode

	switch m.fb.mode {
	case model.ModeTime:
		item.Frequency = m.fb.frequency
		item.ScheduleTime = strings.TrimSpace(m.fb.scheduleTime)
		item.IntervalMinutes = 0
	case model.ModeInterval:
		item.Frequency = ""
		item.ScheduleTime = ""
		// Unparseable input becomes 0, which validation rejects.
		item.IntervalMinutes, _ = strconv.Atoi(strings.TrimSpace(m.fb.interval))
	}
	return item
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New scheduled email"
	if m.editing != nil {
		titleText = "Edit scheduled email"
	}

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render(titleText)

	content := title + "\n"
	if len(m.errs) > 0 {
		content += theme.ErrorStyle.Render(formatErrors(m.errs)) + "\n\n"
	}
	content += m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fb := m.fb

	message := huh.NewGroup(
		huh.NewInput().
			Title("Subject").
			Value(&fb.subject).
			Validate(validateRequired("Subject")),
		huh.NewInput().
			Title("Recipients").
			Placeholder("a@example.com, b@example.com").
			Value(&fb.recipients).
			Validate(validateRecipients),
		huh.NewText().
			Title("Body").
			Value(&fb.body),
		huh.NewInput().
			Title("Attachment").
			Placeholder("/path/to/file or s3://bucket/key (optional)").
			Value(&fb.attachment),
		huh.NewSelect[model.Mode]().
			Title("Schedule mode").
			Options(
				huh.NewOption("Every N minutes", model.ModeInterval),
				huh.NewOption("At a time of day", model.ModeTime),
			).
			Value(&fb.mode),
	)

	atTime := huh.NewGroup(
		huh.NewSelect[model.Frequency]().
			Title("Frequency").
			Options(frequencyOptions()...).
			Value(&fb.frequency),
		huh.NewInput().
			Title("Time").
			Placeholder("HH:MM").
			Value(&fb.scheduleTime).
			Validate(validateClock),
	).WithHideFunc(func() bool { return fb.mode != model.ModeTime })

	every := huh.NewGroup(
		huh.NewInput().
			Title("Interval (minutes)").
			Value(&fb.interval).
			Validate(validateInterval),
	).WithHideFunc(func() bool { return fb.mode != model.ModeInterval })

	return huh.NewForm(message, atTime, every).
		WithWidth(m.formWidth()).
		WithHeight(m.formHeight())
}

func frequencyOptions() []huh.Option[model.Frequency] {
	opts := make([]huh.Option[model.Frequency], len(model.Frequencies))
	for i, f := range model.Frequencies {
		opts[i] = huh.NewOption(string(f), f)
	}
	return opts
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 6
	if h < 10 {
		h = 10
	}
	return h
}

func formatErrors(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = "• " + errs[k]
	}
	return strings.Join(lines, "\n")
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateRecipients(s string) error {
	if len(model.SplitRecipients(s)) == 0 {
		return errors.New("at least one recipient is required")
	}
	return nil
}

func validateClock(s string) error {
	if _, _, ok := model.ParseClock(strings.TrimSpace(s)); !ok {
		return errors.New("use 24-hour HH:MM")
	}
	return nil
}

func validateInterval(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("enter a whole number of minutes, at least 1")
	}
	return nil
}

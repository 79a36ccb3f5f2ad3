package smtpform

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail-scheduler/internal/apperr"
	"github.com/nhle/mail-scheduler/internal/model"
	"github.com/nhle/mail-scheduler/internal/store"
	"github.com/nhle/mail-scheduler/internal/theme"
)

// mode is the current screen of the settings view.
type mode int

const (
	modeLoading mode = iota
	modeForm
	modeSaving
	modeFailed
)

// SavedMsg signals the profile was stored and the view should close.
type SavedMsg struct {
	Profile model.SMTPProfile
}

// CancelMsg signals the user left without saving.
type CancelMsg struct{}

// profileLoadedMsg carries the stored profile, if any.
type profileLoadedMsg struct {
	profile *model.SMTPProfile
	err     error
}

// profileSavedMsg is sent after the save attempt.
type profileSavedMsg struct {
	profile model.SMTPProfile
	err     error
}

type formBindings struct {
	server     string
	port       string
	address    string
	secret     string
	encryption model.Encryption
}

// Model is the SMTP settings view. It loads and saves the single profile
// itself.
type Model struct {
	mode    mode
	store   store.Store
	form    *huh.Form
	fb      *formBindings
	current *model.SMTPProfile
	err     error
	spinner spinner.Model
	width   int
	height  int
}

// New creates the settings view.
func New(s store.Store, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		store:   s,
		fb:      &formBindings{},
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init loads the stored profile.
func (m *Model) Init() tea.Cmd {
	m.mode = modeLoading
	m.err = nil
	s := m.store
	return func() tea.Msg {
		p, err := s.GetSMTPProfile(context.Background())
		if errors.Is(err, store.ErrNoProfile) {
			return profileLoadedMsg{}
		}
		return profileLoadedMsg{profile: p, err: err}
	}
}

// Update handles messages for the view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case profileLoadedMsg:
		if msg.err != nil {
			m.mode = modeFailed
			m.err = msg.err
			return m, nil
		}
		m.current = msg.profile
		m.fill(msg.profile)
		m.mode = modeForm
		m.form = m.buildForm()
		return m, m.form.Init()

	case profileSavedMsg:
		if msg.err != nil {
			m.mode = modeFailed
			m.err = msg.err
			return m, nil
		}
		p := msg.profile
		return m, func() tea.Msg { return SavedMsg{Profile: p} }

	case spinner.TickMsg:
		if m.mode == modeSaving || m.mode == modeLoading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeFailed {
			switch msg.String() {
			case "r":
				m.mode = modeForm
				m.form = m.buildForm()
				return m, m.form.Init()
			case "esc", "enter":
				return m, func() tea.Msg { return CancelMsg{} }
			}
			return m, nil
		}
	}

	if m.mode != modeForm || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.save()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// Profile builds a profile from the current values. A blank password keeps
// the stored one.
func (m Model) Profile() model.SMTPProfile {
	port, _ := strconv.Atoi(strings.TrimSpace(m.fb.port))
	p := model.SMTPProfile{
		Server:     strings.TrimSpace(m.fb.server),
		Port:       port,
		Address:    strings.TrimSpace(m.fb.address),
		Secret:     m.fb.secret,
		Encryption: m.fb.encryption,
	}
	if p.Secret == "" && m.current != nil {
		p.Secret = m.current.Secret
	}
	return p
}

func (m Model) save() (Model, tea.Cmd) {
	p := m.Profile()
	if err := model.ValidateProfile(p); err != nil {
		m.mode = modeFailed
		m.err = err
		return m, nil
	}

	m.mode = modeSaving
	s := m.store
	return m, tea.Batch(
		m.spinner.Tick,
		func() tea.Msg {
			err := s.SaveSMTPProfile(context.Background(), p)
			return profileSavedMsg{profile: p, err: err}
		},
	)
}

func (m *Model) fill(p *model.SMTPProfile) {
	*m.fb = formBindings{port: "587", encryption: model.EncryptionSTARTTLS}
	if p == nil {
		return
	}
	m.fb.server = p.Server
	m.fb.port = strconv.Itoa(p.Port)
	m.fb.address = p.Address
	m.fb.encryption = p.Encryption
}

func (m *Model) buildForm() *huh.Form {
	fb := m.fb

	secretHint := "Password or app token"
	if m.current != nil && m.current.Secret != "" {
		secretHint = "Leave blank to keep the saved password"
	}

	encOpts := make([]huh.Option[model.Encryption], len(model.Encryptions))
	for i, e := range model.Encryptions {
		encOpts[i] = huh.NewOption(string(e), e)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("SMTP server").
				Placeholder("smtp.example.com").
				Value(&fb.server).
				Validate(validateRequired("Server")),
			huh.NewInput().
				Title("Port").
				Value(&fb.port).
				Validate(validatePort),
			huh.NewInput().
				Title("Sender address").
				Description("Also used as the login name").
				Placeholder("me@example.com").
				Value(&fb.address).
				Validate(validateRequired("Sender address")),
			huh.NewInput().
				Title("Password").
				Description(secretHint).
				EchoMode(huh.EchoModePassword).
				Value(&fb.secret),
			huh.NewSelect[model.Encryption]().
				Title("Encryption").
				Options(encOpts...).
				Value(&fb.encryption),
		),
	).WithWidth(m.formWidth())
}

// View renders the current screen.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("SMTP settings")

	switch m.mode {
	case modeLoading:
		return style.Render(title + "\n" + m.spinner.View() + " Loading...")
	case modeSaving:
		return style.Render(title + "\n" + m.spinner.View() + " Saving...")
	case modeFailed:
		msg := m.err.Error()
		if fields := apperr.FieldsOf(m.err); len(fields) > 0 {
			lines := make([]string, 0, len(fields))
			for _, v := range fields {
				lines = append(lines, "• "+v)
			}
			msg = strings.Join(lines, "\n")
		}
		return style.Render(title + "\n" +
			theme.ErrorStyle.Render("Settings not saved") + "\n\n" +
			msg + "\n\n" +
			theme.DimmedStyle.Render("r edit again | enter/esc back"))
	}

	if m.form == nil {
		return ""
	}
	return style.Render(title + "\n" + m.form.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
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

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

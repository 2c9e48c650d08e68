// Package config is the dashboard connection editor: server URL, login,
// and push settings. Credentials are checked against the dashboard before
// anything is saved.
package config

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/credential"
	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/theme"
)

// ConfigMode represents the current state of the configuration view.
type ConfigMode int

const (
	ModeForm           ConfigMode = iota // Editing connection settings
	ModeValidating                       // Trying the login
	ModeValidateResult                   // Showing a failed login
)

// ConfigDoneMsg signals the config view should close. Config is nil when
// the user canceled.
type ConfigDoneMsg struct {
	Config *model.AppConfig
}

// validateResultMsg carries the outcome of the login check and save.
type validateResultMsg struct {
	cfg *model.AppConfig
	err error
}

// Checker verifies credentials against a dashboard.
type Checker func(ctx context.Context, baseURL, username, password string) error

// Saver persists the configuration and the password.
type Saver func(cfg *model.AppConfig, password string) error

// CheckLogin logs in with a throwaway cookie jar.
func CheckLogin(ctx context.Context, baseURL, username, password string) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{Jar: jar, Timeout: 15 * time.Second}
	return api.NewSession(baseURL, hc).Login(ctx, username, password)
}

// SaveTo returns a Saver writing the config file at path and the password
// to the system keyring.
func SaveTo(path string) Saver {
	return func(cfg *model.AppConfig, password string) error {
		if err := credential.SetPassword(cfg.Server.Username, password); err != nil {
			return fmt.Errorf("saving password: %w", err)
		}
		return model.SaveConfig(path, cfg)
	}
}

// Model is the Bubble Tea model for the connection editor.
type Model struct {
	mode ConfigMode
	base model.AppConfig
	form *huh.Form

	check Checker
	save  Saver

	// Form field values (huh binds to these)
	fields *formFields

	spinner spinner.Model
	err     error

	keys          *keys.KeyMap
	width, height int
}

type formFields struct {
	baseURL     string
	username    string
	password    string
	relayURL    string
	pushEnabled bool
}

// New creates the editor prefilled from cfg.
func New(cfg model.AppConfig, check Checker, save Saver, k *keys.KeyMap, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		mode:    ModeForm,
		base:    cfg,
		check:   check,
		save:    save,
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
		fields: &formFields{
			baseURL:     cfg.Server.BaseURL,
			username:    cfg.Server.Username,
			relayURL:    cfg.Push.RelayURL,
			pushEnabled: cfg.Push.Enabled,
		},
	}
	m.form = m.buildForm()
	return m
}

// Init starts the form.
func (m Model) Init() tea.Cmd {
	return m.form.Init()
}

func (m Model) buildForm() *huh.Form {
	f := m.fields
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard URL").
				Description("iTrax server root (e.g., https://itrax.example.com)").
				Placeholder("https://itrax.example.com").
				Value(&f.baseURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Username").
				Value(&f.username).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring").
				EchoMode(huh.EchoModePassword).
				Value(&f.password).
				Validate(validateRequired("Password")),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Push notifications").
				Description("Receive alerts through a push service while the client runs").
				Affirmative("Enabled").
				Negative("Polling only").
				Value(&f.pushEnabled),
			huh.NewInput().
				Title("Push service URL").
				Description("Websocket URL of the push service (e.g., wss://push.services.mozilla.com)").
				Placeholder("wss://push.services.mozilla.com").
				Value(&f.relayURL).
				Validate(func(s string) error {
					if !f.pushEnabled && s == "" {
						return nil
					}
					return validateURL("ws", "wss")(s)
				}),
		),
	).WithWidth(m.formWidth())
}

// Update handles messages and dispatches based on current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case validateResultMsg:
		if msg.err != nil {
			m.mode = ModeValidateResult
			m.err = msg.err
			return m, nil
		}
		cfg := msg.cfg
		return m, func() tea.Msg { return ConfigDoneMsg{Config: cfg} }

	case spinner.TickMsg:
		if m.mode == ModeValidating {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		switch m.mode {
		case ModeValidating:
			return m, nil
		case ModeValidateResult:
			return m.handleValidateResultKeys(msg)
		}
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return ConfigDoneMsg{} }
		}
	}

	if m.mode != ModeForm {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.validateAndSave())
	case huh.StateAborted:
		return m, func() tea.Msg { return ConfigDoneMsg{} }
	}

	return m, cmd
}

func (m Model) handleValidateResultKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		// Back to the form with the previous answers kept.
		m.mode = ModeForm
		m.err = nil
		m.form = m.buildForm()
		return m, m.form.Init()
	case key.Matches(msg, m.keys.Back):
		return m, func() tea.Msg { return ConfigDoneMsg{} }
	}
	return m, nil
}

// validateAndSave logs in with the entered credentials and saves on
// success.
func (m Model) validateAndSave() tea.Cmd {
	cfg := m.base
	f := *m.fields
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(f.baseURL), "/")
	cfg.Server.Username = strings.TrimSpace(f.username)
	cfg.Push.Enabled = f.pushEnabled
	cfg.Push.RelayURL = strings.TrimSpace(f.relayURL)

	check, save := m.check, m.save
	return func() tea.Msg {
		if err := cfg.Validate(); err != nil {
			return validateResultMsg{err: fmt.Errorf("invalid settings: %w", err)}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := check(ctx, cfg.Server.BaseURL, cfg.Server.Username, f.password); err != nil {
			return validateResultMsg{err: fmt.Errorf("logging in to %s: %w", cfg.Server.BaseURL, err)}
		}
		if err := save(&cfg, f.password); err != nil {
			return validateResultMsg{err: err}
		}
		return validateResultMsg{cfg: &cfg}
	}
}

// View renders the editor.
func (m Model) View() string {
	style := lipgloss.NewStyle().
		Padding(1, 2).
		Width(m.width).
		Height(m.height)

	title := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render("Dashboard Connection")

	switch m.mode {
	case ModeValidating:
		return style.Render(lipgloss.JoinVertical(lipgloss.Left,
			title, "",
			m.spinner.View()+" Signing in to "+m.fields.baseURL+"...",
		))

	case ModeValidateResult:
		errStyle := lipgloss.NewStyle().Foreground(theme.ColorRed).Bold(true)
		return style.Render(lipgloss.JoinVertical(lipgloss.Left,
			title, "",
			errStyle.Render("✗ Could not save settings"),
			fmt.Sprintf("%v", m.err),
			"",
			theme.HelpStyle.Render("enter: edit again  esc: cancel"),
		))
	}

	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", m.form.View()))
}

// SetSize updates the editor dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return max(m.width-4, 40)
}

func validateRequired(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("URL is required")
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid URL")
		}
		for _, scheme := range schemes {
			if u.Scheme == scheme {
				return nil
			}
		}
		return fmt.Errorf("URL must start with %s://", strings.Join(schemes, ":// or "))
	}
}

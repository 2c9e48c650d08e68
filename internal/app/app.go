package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/keys"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
	appsync "github.com/ufcrashout/iTrax/internal/sync"
	"github.com/ufcrashout/iTrax/internal/theme"
	"github.com/ufcrashout/iTrax/internal/ui"
	"github.com/ufcrashout/iTrax/internal/ui/command"
	configview "github.com/ufcrashout/iTrax/internal/ui/config"
	"github.com/ufcrashout/iTrax/internal/ui/detail"
	"github.com/ufcrashout/iTrax/internal/ui/dropdown"
	helpview "github.com/ufcrashout/iTrax/internal/ui/help"
	"github.com/ufcrashout/iTrax/internal/ui/permission"
	"github.com/ufcrashout/iTrax/internal/ui/status"
	"github.com/ufcrashout/iTrax/internal/ui/tray"
)

// pulseDuration is how long the badge stays highlighted after the unread
// count goes up.
const pulseDuration = 1500 * time.Millisecond

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewHome ViewState = iota
	ViewDropdown
	ViewAll
	ViewDetail
	ViewTray
	ViewStatus
	ViewConfig
	ViewHelp
	ViewCommand
	ViewPermission
)

// Agent is the part of the push agent the UI drives.
type Agent interface {
	State() agent.State
	Scope() string
	HandleClick(ctx context.Context, click agent.NotificationClick)
	HandleSync(ctx context.Context, tag string)
}

// WindowCounter reports how many client windows are attached.
type WindowCounter interface {
	Count() int
}

// Deps holds everything the root model needs. Agent, Store, and Windows
// may be nil in the polling-only variant.
type Deps struct {
	// Context bounds background work started by the UI, such as the push
	// bootstrap. Nil means context.Background.
	Context context.Context

	Config     *model.AppConfig
	ConfigPath string
	Controller *controller.Controller
	Poller     *appsync.Poller
	Agent      Agent
	Store      store.Store
	Windows    WindowCounter

	// Permissions is consulted when the user explicitly re-enables push
	// after blocking it.
	Permissions controller.Permissions

	// Prompt asks the user for notification permission, typically a
	// permission.Bridge bound to the running program.
	Prompt controller.PermissionPrompt

	// OpenURL launches the system browser.
	OpenURL func(ctx context.Context, url string) error

	// Check validates login details in the settings view. Nil means
	// configview.CheckLogin.
	Check configview.Checker

	Logger *zap.Logger
	Now    func() time.Time
}

// Model is the root Bubble Tea model that manages view routing, the
// unread badge, and the push bootstrap.
type Model struct {
	currentView  ViewState
	previousView ViewState
	listView     ViewState
	layout       ui.Layout
	keys         *keys.KeyMap

	ctx         context.Context
	cfg         *model.AppConfig
	configPath  string
	ctrl        *controller.Controller
	poller      *appsync.Poller
	agent       Agent
	permissions controller.Permissions
	prompt      controller.PermissionPrompt
	openURL     func(ctx context.Context, url string) error
	check       configview.Checker
	logger      *zap.Logger
	now         func() time.Time

	dropdown    dropdown.Model
	allPage     dropdown.Model
	detail      detail.Model
	tray        tray.Model
	statusView  status.Model
	configView  configview.Model
	helpView    helpview.Model
	commandView command.Model
	permView    permission.Model
	trayOn      bool

	unreadCount int
	pulse       bool
	pulseSeq    int
	pollErr     error
	pushErr     error
	notice      string
	ready       bool
}

// New creates the root application model.
func New(d Deps) Model {
	k := keys.DefaultKeyMap()

	if d.Context == nil {
		d.Context = context.Background()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Prompt == nil {
		d.Prompt = func(context.Context) (model.Permission, error) {
			return model.PermissionDefault, nil
		}
	}
	if d.Check == nil {
		d.Check = configview.CheckLogin
	}

	pageLimit := d.Config.Display.PageLimit
	m := Model{
		currentView: ViewHome,
		listView:    ViewDropdown,
		keys:        k,
		ctx:         d.Context,
		cfg:         d.Config,
		configPath:  d.ConfigPath,
		ctrl:        d.Controller,
		poller:      d.Poller,
		agent:       d.Agent,
		permissions: d.Permissions,
		prompt:      d.Prompt,
		openURL:     d.OpenURL,
		check:       d.Check,
		logger:      d.Logger.Named("ui"),
		now:         d.Now,
		dropdown: dropdown.New(d.Controller, k, dropdown.Options{
			Limit: d.Controller.ListLimit(),
			Now:   d.Now,
		}, 80, 24),
		allPage: dropdown.New(d.Controller, k, dropdown.Options{
			Title:    "All notifications",
			Limit:    pageLimit,
			FullPage: true,
			Now:      d.Now,
		}, 80, 24),
		detail:      detail.New(k, 80, 24),
		statusView:  status.New(newStatusLoader(d), k, 80, 24),
		configView:  configview.New(*d.Config, d.Check, configview.SaveTo(d.ConfigPath), k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
	}
	if d.Store != nil && d.Agent != nil {
		m.tray = tray.New(d.Store, d.Agent, k, d.Now, 80, 24)
		m.trayOn = true
	}
	return m
}

// Init starts the push bootstrap and the unread-count poller. Push
// failures never hold up polling.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.bootstrapPush(),
		m.poller.Start(),
	}
	if m.hasTray() {
		cmds = append(cmds, m.tray.Load())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		contentWidth := m.layout.ContentWidth()
		contentHeight := m.layout.ContentHeight()
		m.dropdown.SetSize(contentWidth, contentHeight)
		m.allPage.SetSize(contentWidth, contentHeight)
		m.detail.SetSize(contentWidth, contentHeight)
		if m.trayOn {
			m.tray.SetSize(contentWidth, contentHeight)
		}
		m.statusView.SetSize(contentWidth, contentHeight)
		m.configView.SetSize(contentWidth, contentHeight)
		m.helpView.SetSize(contentWidth, contentHeight)
		m.commandView.SetSize(contentWidth, contentHeight)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case appsync.CountResultMsg:
		var cmd tea.Cmd
		if msg.Err != nil {
			// The badge keeps the last good count.
			m.pollErr = msg.Err
		} else {
			m.pollErr = nil
			cmd = m.setCount(msg.Count)
		}
		return m, tea.Batch(cmd, m.poller.WaitForNextResult())

	case pulseEndMsg:
		if msg.seq == m.pulseSeq {
			m.pulse = false
		}
		return m, nil

	case bootstrapDoneMsg:
		m.pushErr = msg.err
		return m, nil

	case pushDoneMsg:
		m.pushErr = msg.err
		if msg.err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.verb, msg.err)
		} else {
			m.notice = msg.verb + ": " + m.ctrl.State().String()
		}
		return m, nil

	case noticeMsg:
		m.notice = msg.text
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case permission.RequestMsg:
		if m.currentView == ViewPermission {
			// One prompt at a time; a second asker sees it dismissed.
			msg.Reply <- model.PermissionDefault
			return m, nil
		}
		m.previousView = m.currentView
		m.currentView = ViewPermission
		m.permView = permission.New(msg.Reply, m.layout.ContentWidth())
		return m, m.permView.Init()

	case permission.AnsweredMsg:
		m.currentView = m.previousView
		m.notice = "notification permission: " + string(msg.Permission)
		return m, nil

	case NavigateMsg:
		return m.navigate(msg.Route)

	case dropdown.LoadedMsg:
		return m.updateList(msg.FullPage, msg)

	case dropdown.MarkedAllMsg:
		var countCmd tea.Cmd
		switch {
		case msg.Err != nil:
			m.notice = fmt.Sprintf("mark all read failed: %v", msg.Err)
		case msg.ListErr != nil:
			m.notice = fmt.Sprintf("all marked read; reloading the list failed: %v", msg.ListErr)
			countCmd = m.setCount(msg.Count)
		default:
			countCmd = m.setCount(msg.Count)
		}
		var cmd tea.Cmd
		m, cmd = m.updateList(msg.FullPage, msg)
		return m, tea.Batch(cmd, countCmd)

	case dropdown.MarkedReadMsg:
		var cmds []tea.Cmd
		if msg.Err == nil {
			cmds = append(cmds, m.setCount(msg.Count))
		} else {
			m.notice = fmt.Sprintf("marking %s read failed: %v", msg.ID, msg.Err)
		}
		var cmd tea.Cmd
		m.dropdown, cmd = m.dropdown.Update(msg)
		cmds = append(cmds, cmd)
		m.allPage, cmd = m.allPage.Update(msg)
		cmds = append(cmds, cmd)
		m.detail, cmd = m.detail.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)

	case dropdown.SelectedMsg:
		m.detail.SetRecord(msg.Record)
		m.currentView = ViewDetail
		return m, nil

	case dropdown.OpenWebMsg:
		return m, m.openRoute(agent.RouteNotifications)

	case detail.MarkReadMsg:
		return m, m.dropdown.MarkRead(msg.ID)

	case detail.BackMsg:
		m.currentView = m.listView
		return m, nil

	case tray.ShownMsg:
		m.notice = "🔔 " + msg.Notification.Title
		m.poller.Refresh()
		if !m.trayOn {
			return m, nil
		}
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Update(msg)
		return m, cmd

	case tray.LoadedMsg, tray.ClickedMsg:
		if !m.trayOn {
			return m, nil
		}
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Update(msg)
		return m, cmd

	case status.LoadedMsg, status.CopiedMsg:
		var cmd tea.Cmd
		m.statusView, cmd = m.statusView.Update(msg)
		return m, cmd

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(msg)

	case configview.ConfigDoneMsg:
		m.currentView = m.previousView
		if msg.Config != nil {
			m.cfg = msg.Config
			m.notice = "settings saved to " + m.configPath + "; restart to apply"
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.capturesInput() {
			if m.currentView == ViewCommand && key.Matches(msg, m.keys.Back) {
				m.currentView = m.previousView
				return m, nil
			}
			break
		}
		m.notice = ""

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView != ViewDetail {
				return m.quit()
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Back):
			switch m.currentView {
			case ViewHelp:
				m.currentView = m.previousView
				return m, nil
			case ViewDropdown, ViewAll, ViewTray, ViewStatus:
				m.currentView = ViewHome
				return m, nil
			}

		case key.Matches(msg, m.keys.Dropdown):
			if m.currentView == ViewDropdown {
				m.currentView = ViewHome
				return m, nil
			}
			return m.openList(ViewDropdown)

		case key.Matches(msg, m.keys.AllPage):
			return m.openList(ViewAll)

		case key.Matches(msg, m.keys.Tray):
			if !m.hasTray() {
				m.notice = "push is disabled; no tray"
				return m, nil
			}
			m.currentView = ViewTray
			return m, m.tray.Load()

		case key.Matches(msg, m.keys.Status):
			m.currentView = ViewStatus
			return m, m.statusView.Load()

		case key.Matches(msg, m.keys.Refresh):
			m.poller.Refresh()
			if m.currentView == ViewHome {
				return m, nil
			}
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewDropdown:
		m.dropdown, cmd = m.dropdown.Update(msg)
	case ViewAll:
		m.allPage, cmd = m.allPage.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewTray:
		m.tray, cmd = m.tray.Update(msg)
	case ViewStatus:
		m.statusView, cmd = m.statusView.Update(msg)
	case ViewConfig:
		m.configView, cmd = m.configView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewPermission:
		m.permView, cmd = m.permView.Update(msg)
	}

	return m, cmd
}

// updateList routes a list result to the list that requested it, which
// need not be the one on screen.
func (m Model) updateList(fullPage bool, msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	if fullPage {
		m.allPage, cmd = m.allPage.Update(msg)
	} else {
		m.dropdown, cmd = m.dropdown.Update(msg)
	}
	return m, cmd
}

// openList shows the dropdown or the full page and fetches fresh records.
func (m Model) openList(v ViewState) (tea.Model, tea.Cmd) {
	m.currentView = v
	m.listView = v
	if v == ViewAll {
		return m, m.allPage.Open()
	}
	return m, m.dropdown.Open()
}

// navigate shows the view for a dashboard route.
func (m Model) navigate(route string) (tea.Model, tea.Cmd) {
	m.logger.Debug("navigate", zap.String("route", route))
	if route == agent.RouteNotifications {
		return m.openList(ViewAll)
	}
	m.currentView = ViewHome
	return m, nil
}

// setCount replaces the badge count. An increase highlights the badge
// for pulseDuration.
func (m *Model) setCount(n int) tea.Cmd {
	prev := m.unreadCount
	m.unreadCount = n
	if n <= prev {
		return nil
	}

	m.pulse = true
	m.pulseSeq++
	seq := m.pulseSeq
	return tea.Tick(pulseDuration, func(time.Time) tea.Msg {
		return pulseEndMsg{seq: seq}
	})
}

// capturesInput reports whether the active view owns every key.
func (m Model) capturesInput() bool {
	switch m.currentView {
	case ViewCommand, ViewConfig, ViewPermission:
		return true
	}
	return false
}

// hasTray reports whether the push tray exists. It needs both the agent
// and the store.
func (m Model) hasTray() bool {
	return m.trayOn
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.poller.Stop()
	return m, tea.Quit
}

// bootstrapPush runs the push bootstrap in the background.
func (m Model) bootstrapPush() tea.Cmd {
	ctx, ctrl, ask, logger := m.ctx, m.ctrl, m.prompt, m.logger
	return func() tea.Msg {
		err := ctrl.BootstrapPush(ctx, ask)
		if err != nil && !errors.Is(err, controller.ErrPushUnsupported) {
			logger.Warn("push bootstrap failed, polling continues", zap.Error(err))
		}
		return bootstrapDoneMsg{err: err}
	}
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	state := m.ctrl.State().String()
	pushStatus := theme.PushStateStyle(state).Render("push: " + state + " ")
	header := m.layout.RenderHeader("iTrax", ui.Badge(m.unreadCount, m.pulse), pushStatus)
	content := m.renderContent()
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewHome:
		return m.renderHome()
	case ViewDropdown:
		return m.dropdown.View()
	case ViewAll:
		return m.allPage.View()
	case ViewDetail:
		return m.detail.View()
	case ViewTray:
		return m.tray.View()
	case ViewStatus:
		return m.statusView.View()
	case ViewConfig:
		return m.configView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewPermission:
		return m.permView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	if m.notice != "" {
		return m.notice
	}
	if m.pollErr != nil && m.currentView == ViewHome {
		return "⚠ unread count unavailable: " + m.pollErr.Error()
	}

	switch m.currentView {
	case ViewDropdown, ViewAll:
		return "enter read/view | d details | u unread | A mark all | o web | esc close"
	case ViewDetail:
		return "enter mark read | esc back | j/k scroll"
	case ViewTray:
		return "enter open | d view details | x close | r reload | esc back"
	case ViewStatus:
		return "r reload | c copy endpoint | esc back"
	case ViewConfig:
		return "enter next | esc cancel"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewPermission:
		return "←/→ choose | enter confirm | esc later"
	default:
		return "n notifications | N all | t tray | s status | : command | ? help | q quit"
	}
}

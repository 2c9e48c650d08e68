package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/ui/command"
	configview "github.com/ufcrashout/iTrax/internal/ui/config"
)

// openTimeout bounds launching the system browser.
const openTimeout = 10 * time.Second

// executeCommand runs a palette command.
func (m Model) executeCommand(msg command.CommandMsg) (tea.Model, tea.Cmd) {
	switch msg.Name {
	case command.Subscribe:
		m.notice = "enabling push notifications..."
		return m, m.subscribe()

	case command.Unsubscribe:
		m.notice = "disabling push notifications..."
		return m, m.unsubscribe()

	case command.Refresh:
		m.poller.Refresh()
		switch m.currentView {
		case ViewDropdown:
			return m, m.dropdown.Open()
		case ViewAll:
			return m, m.allPage.Open()
		}
		return m, nil

	case command.MarkAll:
		if m.currentView == ViewAll {
			return m, m.allPage.MarkAll()
		}
		return m, m.dropdown.MarkAll()

	case command.Open:
		route := agent.RouteNotifications
		if len(msg.Args) > 0 {
			route = "/" + strings.TrimLeft(msg.Args[0], "/")
		}
		return m, m.openRoute(route)

	case command.Status:
		m.currentView = ViewStatus
		return m, m.statusView.Load()

	case command.Sync:
		if m.agent == nil {
			m.notice = "push is disabled; no agent to sync"
			return m, nil
		}
		tag := agent.SyncTagBackground
		if len(msg.Args) > 0 {
			tag = msg.Args[0]
		}
		m.agent.HandleSync(m.ctx, tag)
		m.notice = "sync " + tag + " dispatched"
		return m, nil

	case command.Configure:
		m.previousView = m.currentView
		m.currentView = ViewConfig
		m.configView = configview.New(*m.cfg, m.check, configview.SaveTo(m.configPath), m.keys,
			m.layout.ContentWidth(), m.layout.ContentHeight())
		return m, m.configView.Init()

	case command.Quit:
		return m.quit()
	}

	return m, nil
}

// subscribe runs the push bootstrap on request. A stored block is
// cleared first so the user is asked again.
func (m Model) subscribe() tea.Cmd {
	ctx, ctrl, perms, ask, logger := m.ctx, m.ctrl, m.permissions, m.prompt, m.logger
	return func() tea.Msg {
		if perms != nil {
			p, err := perms.Permission(ctx)
			if err == nil && p == model.PermissionDenied {
				if err := perms.SetPermission(ctx, model.PermissionDefault); err != nil {
					logger.Warn("clearing stored permission", zap.Error(err))
				}
			}
		}

		err := ctrl.BootstrapPush(ctx, ask)
		if errors.Is(err, controller.ErrPushUnsupported) {
			err = errors.New("push is disabled in settings")
		}
		return pushDoneMsg{verb: command.Subscribe, err: err}
	}
}

func (m Model) unsubscribe() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return pushDoneMsg{verb: command.Unsubscribe, err: ctrl.Unsubscribe(ctx)}
	}
}

// openRoute opens a dashboard route in the system browser.
func (m Model) openRoute(route string) tea.Cmd {
	if m.openURL == nil {
		return nil
	}

	url := strings.TrimRight(m.cfg.Server.BaseURL, "/") + route
	open := m.openURL
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		if err := open(ctx, url); err != nil {
			return noticeMsg{err: fmt.Errorf("opening %s: %w", url, err)}
		}
		return noticeMsg{text: "opened " + url}
	}
}

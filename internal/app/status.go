package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ufcrashout/iTrax/internal/store"
	"github.com/ufcrashout/iTrax/internal/ui/status"
)

// newStatusLoader gathers the status view snapshot from the running
// components.
func newStatusLoader(d Deps) status.Loader {
	return func(ctx context.Context) (status.Snapshot, error) {
		ps := d.Poller.Status()
		snap := status.Snapshot{
			PushState: d.Controller.State().String(),
			CSRF:      d.Controller.HasCSRFToken(),
			RelayURL:  d.Config.Push.RelayURL,
			Unread:    d.Controller.UnreadCount(),
			LastPoll:  ps.LastPoll,
			PollErr:   ps.Error,
			Interval:  d.Poller.Interval(),
		}
		if sub := d.Controller.Subscription(); sub != nil {
			snap.Endpoint = sub.Endpoint
		}
		if d.Agent != nil {
			snap.AgentState = d.Agent.State().String()
			snap.Scope = d.Agent.Scope()
		}
		if d.Windows != nil {
			snap.Windows = d.Windows.Count()
		}
		if d.Store == nil {
			return snap, nil
		}

		n, size, err := d.Store.AssetStats(ctx)
		if err != nil {
			return snap, fmt.Errorf("reading cache stats: %w", err)
		}
		snap.Assets, snap.AssetBytes = n, size

		uaid, err := d.Store.GetSetting(ctx, store.SettingPushUAID)
		switch {
		case err == nil:
			snap.UAID = uaid
		case !errors.Is(err, store.ErrNotFound):
			return snap, fmt.Errorf("reading push uaid: %w", err)
		}

		open, err := d.Store.GetOpenDisplayed(ctx)
		if err != nil {
			return snap, fmt.Errorf("reading tray: %w", err)
		}
		snap.OpenInTray = len(open)

		return snap, nil
	}
}

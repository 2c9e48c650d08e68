package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Routes opened by notification clicks.
const (
	RouteNotifications = "/notifications"
	RouteRoot          = "/"
)

// NotificationClick is a user interaction with a displayed notification.
// Action is empty for a click on the notification body.
type NotificationClick struct {
	NotificationID string
	Action         string
}

// HandleClick closes the notification, then opens the route the action
// asks for. The close action opens nothing.
func (a *Agent) HandleClick(ctx context.Context, click NotificationClick) {
	if err := a.display.Close(ctx, click.NotificationID); err != nil {
		a.logger.Warn("closing clicked notification",
			zap.String("id", click.NotificationID), zap.Error(err))
	}

	var route string
	switch click.Action {
	case ActionClose:
		return
	case ActionExplore:
		route = RouteNotifications
	default:
		route = RouteRoot
	}

	a.dispatch(ctx, "notificationclick", func(ctx context.Context) error {
		if err := a.clients.OpenWindow(ctx, route); err != nil {
			return fmt.Errorf("opening %s: %w", route, err)
		}
		return nil
	})
}

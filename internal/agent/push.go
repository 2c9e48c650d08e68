package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/model"
)

// Notification defaults.
const (
	DefaultTitle = "iTrax Notification"
	DefaultBody  = "You have a new notification"
	DefaultIcon  = "/static/icons/icon-192x192.png"
	DefaultBadge = "/static/icons/badge-72x72.png"
)

// Notification actions.
const (
	ActionExplore = "explore"
	ActionClose   = "close"
)

// PushEvent is a decrypted push message. Data is nil when the push carried
// no payload.
type PushEvent struct {
	Data []byte
}

// HandlePush shows exactly one notification for ev. Payload problems only
// change what is shown; they never drop the notification.
func (a *Agent) HandlePush(ctx context.Context, ev PushEvent) {
	title, opts := a.buildNotification(ev)

	a.dispatch(ctx, "push", func(ctx context.Context) error {
		n, err := a.display.Show(ctx, title, opts)
		if err != nil {
			return fmt.Errorf("showing notification: %w", err)
		}
		a.logger.Info("notification shown", zap.String("id", n.ID), zap.String("title", title))
		return nil
	})
}

// defaultOptions returns the options every notification starts from.
func (a *Agent) defaultOptions() model.NotificationOptions {
	return model.NotificationOptions{
		Body:    DefaultBody,
		Icon:    DefaultIcon,
		Badge:   DefaultBadge,
		Vibrate: []int{100, 50, 100},
		Data: map[string]any{
			"dateOfArrival": a.now().UnixMilli(),
			"primaryKey":    1,
		},
		Actions: []model.NotificationAction{
			{Action: ActionExplore, Title: "View Details", Icon: "/static/icons/checkmark.png"},
			{Action: ActionClose, Title: "Close", Icon: "/static/icons/xmark.png"},
		},
	}
}

// buildNotification decides title and options for a push.
func (a *Agent) buildNotification(ev PushEvent) (string, model.NotificationOptions) {
	title := DefaultTitle
	opts := a.defaultOptions()

	if ev.Data == nil {
		return title, opts
	}

	var payload map[string]any
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload == nil {
		a.logger.Debug("push payload is not a json object, showing as text", zap.Error(err))
		if text := string(ev.Data); text != "" {
			opts.Body = text
		}
		return title, opts
	}

	if s, ok := stringField(payload, "title"); ok {
		title = s
	}
	if s, ok := stringField(payload, "body"); ok {
		opts.Body = s
	}
	if s, ok := stringField(payload, "icon"); ok {
		opts.Icon = s
	}

	extra := maps.Clone(payload)
	delete(extra, "title")
	delete(extra, "body")
	delete(extra, "icon")
	maps.Copy(opts.Data, extra)

	return title, opts
}

// stringField returns payload[key] when it is a non-empty string.
func stringField(payload map[string]any, key string) (string, bool) {
	s, ok := payload[key].(string)
	return s, ok && s != ""
}

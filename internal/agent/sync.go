package agent

import (
	"context"

	"go.uber.org/zap"
)

// SyncTagBackground is the only background sync tag the agent handles.
const SyncTagBackground = "background-sync"

// HandleSync runs the background sync for tag. Other tags are ignored.
func (a *Agent) HandleSync(ctx context.Context, tag string) {
	if tag != SyncTagBackground {
		a.logger.Debug("ignoring sync tag", zap.String("tag", tag))
		return
	}
	a.dispatch(ctx, "sync", a.doBackgroundSync)
}

// doBackgroundSync replays actions queued while offline. Nothing is queued
// yet, so it always succeeds.
func (a *Agent) doBackgroundSync(ctx context.Context) error {
	a.logger.Debug("background sync")
	return nil
}

package agent

import (
	"context"
	"sync"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
)

// Displayer is the notification surface, the equivalent of the operating
// system's notification centre.
type Displayer interface {
	Show(ctx context.Context, title string, opts model.NotificationOptions) (model.DisplayedNotification, error)
	Close(ctx context.Context, id string) error
}

// ShowListener is told about every notification that was shown.
type ShowListener func(model.DisplayedNotification)

// StoreDisplayer records notifications in the local tray table and tells
// listeners, such as an attached UI, about them.
type StoreDisplayer struct {
	store store.Store

	mu        sync.RWMutex
	listeners []ShowListener
}

// NewStoreDisplayer creates a displayer backed by st.
func NewStoreDisplayer(st store.Store) *StoreDisplayer {
	return &StoreDisplayer{store: st}
}

// OnShow registers a listener.
func (d *StoreDisplayer) OnShow(fn ShowListener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Show implements Displayer.
func (d *StoreDisplayer) Show(
	ctx context.Context,
	title string,
	opts model.NotificationOptions,
) (model.DisplayedNotification, error) {
	n, err := d.store.AddDisplayed(ctx, model.DisplayedNotification{
		Title:   title,
		Options: opts,
	})
	if err != nil {
		return n, err
	}

	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	for _, fn := range listeners {
		fn(n)
	}
	return n, nil
}

// Close implements Displayer.
func (d *StoreDisplayer) Close(ctx context.Context, id string) error {
	return d.store.CloseDisplayed(ctx, id)
}

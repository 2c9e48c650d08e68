package agent_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/tests/testutil"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type shown struct {
	ID      string
	Title   string
	Options model.NotificationOptions
}

// recordingDisplayer keeps everything shown and closed in memory.
type recordingDisplayer struct {
	mu     sync.Mutex
	shown  []shown
	closed []string
}

func (d *recordingDisplayer) Show(
	_ context.Context,
	title string,
	opts model.NotificationOptions,
) (model.DisplayedNotification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := "n" + strconv.Itoa(len(d.shown)+1)
	d.shown = append(d.shown, shown{ID: id, Title: title, Options: opts})
	return model.DisplayedNotification{ID: id, Title: title, Options: opts}, nil
}

func (d *recordingDisplayer) Close(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = append(d.closed, id)
	return nil
}

func (d *recordingDisplayer) Shown() []shown {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]shown(nil), d.shown...)
}

func (d *recordingDisplayer) Closed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.closed...)
}

// recordingWindow records navigations.
type recordingWindow struct {
	mu     sync.Mutex
	routes []string
}

func (w *recordingWindow) Navigate(_ context.Context, route string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.routes = append(w.routes, route)
	return nil
}

func (w *recordingWindow) Routes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.routes...)
}

func newAgent(t *testing.T, baseURL string, opts ...agent.Option) (*agent.Agent, *recordingDisplayer) {
	t.Helper()

	display := &recordingDisplayer{}
	opts = append([]agent.Option{
		agent.WithDisplayer(display),
		agent.WithClock(func() time.Time { return fixedNow }),
	}, opts...)

	a, err := agent.New(agent.Config{
		BaseURL:  baseURL,
		Scope:    "/",
		Manifest: model.DefaultCacheManifest,
	}, testutil.NewTestStore(t), opts...)
	require.NoError(t, err)

	t.Cleanup(a.Wait)
	return a, display
}

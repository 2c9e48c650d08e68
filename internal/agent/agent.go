// Package agent is the background push agent: it installs an offline asset
// cache, serves cached GETs, turns push messages into displayed
// notifications, and routes notification clicks to a client window.
// It runs independently of any attached UI.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
)

// State is the agent's lifecycle position.
type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

var stateNames = map[State]string{
	StateNew:        "new",
	StateInstalling: "installing",
	StateInstalled:  "installed",
	StateActivating: "activating",
	StateActivated:  "activated",
	StateRedundant:  "redundant",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrInstallFailed is returned when a manifest asset could not be cached.
// The agent becomes redundant and never activates.
var ErrInstallFailed = errors.New("agent install failed")

// Config describes what the agent caches and which URLs it controls.
type Config struct {
	BaseURL  string
	Scope    string
	Manifest []string
}

// Agent is the push agent. One instance lives for the whole process.
type Agent struct {
	cfg     Config
	base    *url.URL
	store   store.Store
	network http.RoundTripper
	fetch   *http.Client
	display Displayer
	clients *Clients
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.RWMutex
	state State

	events sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithNetwork sets the round tripper used when a request is not served
// from cache.
func WithNetwork(rt http.RoundTripper) Option {
	return func(a *Agent) { a.network = rt }
}

// WithFetchClient sets the client used to download manifest assets, which
// needs the session's cookie jar.
func WithFetchClient(hc *http.Client) Option {
	return func(a *Agent) { a.fetch = hc }
}

// WithDisplayer sets where notifications are shown.
func WithDisplayer(d Displayer) Option {
	return func(a *Agent) { a.display = d }
}

// WithClients sets the window registry used by click routing.
func WithClients(c *Clients) Option {
	return func(a *Agent) { a.clients = c }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Agent) { a.now = now }
}

// New creates an agent for cfg backed by st.
func New(cfg Config, st store.Store, opts ...Option) (*Agent, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.Scope == "" {
		cfg.Scope = "/"
	}

	a := &Agent{
		cfg:     cfg,
		base:    base,
		store:   st,
		network: http.DefaultTransport,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.fetch == nil {
		a.fetch = &http.Client{Transport: a.network, Timeout: 30 * time.Second}
	}
	if a.display == nil {
		a.display = NewStoreDisplayer(st)
	}
	if a.clients == nil {
		a.clients = NewClients(cfg.BaseURL, nil)
	}

	return a, nil
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Scope returns the path prefix the agent controls.
func (a *Agent) Scope() string {
	return a.cfg.Scope
}

// Clients returns the window registry.
func (a *Agent) Clients() *Clients {
	return a.clients
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()

	a.logger.Debug("agent state", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Install downloads every manifest asset and stores them together. Any
// failed download aborts the install without writing anything.
func (a *Agent) Install(ctx context.Context) error {
	switch a.State() {
	case StateInstalled, StateActivating, StateActivated:
		return nil
	}

	a.setState(StateInstalling)

	assets := make([]model.CachedAsset, 0, len(a.cfg.Manifest))
	for _, path := range a.cfg.Manifest {
		asset, err := a.fetchAsset(ctx, path)
		if err != nil {
			a.setState(StateRedundant)
			a.logger.Error("install failed", zap.String("asset", path), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrInstallFailed, err)
		}
		assets = append(assets, asset)
	}

	if err := a.store.PutAssets(ctx, assets); err != nil {
		a.setState(StateRedundant)
		a.logger.Error("install failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	a.setState(StateInstalled)
	a.logger.Info("agent installed", zap.Int("assets", len(assets)))
	return nil
}

// fetchAsset downloads one manifest entry.
func (a *Agent) fetchAsset(ctx context.Context, path string) (model.CachedAsset, error) {
	target := a.resolve(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return model.CachedAsset{}, fmt.Errorf("creating request for %s: %w", path, err)
	}

	resp, err := a.fetch.Do(req)
	if err != nil {
		return model.CachedAsset{}, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.CachedAsset{}, fmt.Errorf("fetching %s: status %d", path, resp.StatusCode)
	}
	if resp.Request != nil && resp.Request.URL.Path != target.Path {
		return model.CachedAsset{}, fmt.Errorf("fetching %s: redirected to %s", path, resp.Request.URL.Path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CachedAsset{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return model.CachedAsset{
		Method:   http.MethodGet,
		URL:      target.String(),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		CachedAt: a.now(),
	}, nil
}

// Activate moves an installed agent to activated. From then on its
// transport answers from cache.
func (a *Agent) Activate(ctx context.Context) error {
	switch s := a.State(); s {
	case StateActivated:
		return nil
	case StateInstalled:
	default:
		return fmt.Errorf("cannot activate agent in state %s", s)
	}

	a.setState(StateActivating)
	if err := ctx.Err(); err != nil {
		a.setState(StateInstalled)
		return err
	}
	a.setState(StateActivated)
	a.logger.Info("agent activated", zap.String("scope", a.cfg.Scope))
	return nil
}

// Wait blocks until every dispatched event has finished.
func (a *Agent) Wait() {
	a.events.Wait()
}

// dispatch runs an event handler in the background and keeps Wait blocked
// until it completes. The handler outlives cancellation of ctx. Handler
// errors are logged, never propagated.
func (a *Agent) dispatch(ctx context.Context, event string, fn func(context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	a.events.Add(1)
	go func() {
		defer a.events.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("event handler panicked", zap.String("event", event), zap.Any("panic", r))
			}
		}()

		if err := fn(ctx); err != nil {
			a.logger.Warn("event handler failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

// resolve turns an absolute path into a URL under the base URL.
func (a *Agent) resolve(path string) *url.URL {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return a.base
	}
	return a.base.ResolveReference(ref)
}

// inScope reports whether u is controlled by the agent.
func (a *Agent) inScope(u *url.URL) bool {
	if u.Scheme != a.base.Scheme || u.Host != a.base.Host {
		return false
	}
	scope := strings.TrimRight(a.base.Path, "/") + a.cfg.Scope
	path := u.Path
	if path == "" {
		path = "/"
	}
	return strings.HasPrefix(path, scope)
}

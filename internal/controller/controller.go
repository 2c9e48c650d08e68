// Package controller owns the client's view of server notification state:
// push subscription negotiation, the unread count, the recent list, and
// read-state mutations. Every failure is logged and leaves the previously
// known state intact.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/model"
)

var (
	// ErrPushUnsupported is returned by push operations when push is
	// disabled in this build or has no push service configured.
	ErrPushUnsupported = errors.New("push notifications are not supported")

	// ErrPermissionDenied is returned when the user has not granted
	// notification permission.
	ErrPermissionDenied = errors.New("notification permission not granted")

	// ErrNotRegistered is returned by Subscribe before the push agent has
	// been registered.
	ErrNotRegistered = errors.New("push agent is not registered")
)

// DefaultListLimit is the number of records shown in the dropdown.
const DefaultListLimit = 10

// API is the dashboard surface the controller depends on.
type API interface {
	VAPIDPublicKey(ctx context.Context) (string, error)
	RegisterSubscription(ctx context.Context, sub model.Subscription) error
	RemoveSubscription(ctx context.Context, endpoint string) error
	UnreadCount(ctx context.Context) (int, error)
	ListNotifications(ctx context.Context, q api.ListQuery) ([]model.NotificationRecord, error)
	MarkRead(ctx context.Context, id model.RecordID) error
	MarkAllRead(ctx context.Context) error
}

// PushManager is the subscription surface of a registered push agent.
type PushManager interface {
	GetSubscription(ctx context.Context) (*model.Subscription, error)
	Subscribe(ctx context.Context, opts agent.SubscribeOptions) (*model.Subscription, error)
	Unsubscribe(ctx context.Context) (bool, error)
}

// Registrar installs and activates the push agent and returns its push
// manager.
type Registrar func(ctx context.Context) (PushManager, error)

// Options configure a Controller.
type Options struct {
	// PushEnabled selects the push-enabled variant.
	PushEnabled bool

	// FallbackKey is used when the VAPID key endpoint fails. Empty makes
	// that failure a subscription error.
	FallbackKey string

	// ListLimit is the dropdown page size.
	ListLimit int

	Logger *zap.Logger
}

// Controller is the single notification controller of a running client.
type Controller struct {
	api         API
	register    Registrar
	permissions Permissions
	opts        Options
	logger      *zap.Logger

	mu     sync.RWMutex
	state  PushState
	unread int
	pm     PushManager
	sub    *model.Subscription

	// subMu serialises Subscribe and Unsubscribe.
	subMu sync.Mutex
}

// New creates a controller. register may be nil when push is disabled.
func New(client API, register Registrar, perms Permissions, opts Options) *Controller {
	if opts.ListLimit <= 0 {
		opts.ListLimit = DefaultListLimit
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	state := StateDisabled
	if opts.PushEnabled && register != nil {
		state = StateSupported
	}

	return &Controller{
		api:         client,
		register:    register,
		permissions: perms,
		opts:        opts,
		logger:      opts.Logger,
		state:       state,
	}
}

// State returns the push enablement state.
func (c *Controller) State() PushState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UnreadCount returns the count from the most recent successful poll.
func (c *Controller) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.unread
}

// Subscription returns the active push subscription, if any.
func (c *Controller) Subscription() *model.Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sub == nil {
		return nil
	}
	sub := *c.sub
	return &sub
}

// HasCSRFToken reports whether mutating requests carry the page CSRF
// token. An API that does not say is assumed to.
func (c *Controller) HasCSRFToken() bool {
	if t, ok := c.api.(interface{ HasCSRFToken() bool }); ok {
		return t.HasCSRFToken()
	}
	return true
}

// ListLimit returns the dropdown page size.
func (c *Controller) ListLimit() int {
	return c.opts.ListLimit
}

func (c *Controller) setState(s PushState) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		c.logger.Debug("push state", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// BootstrapPush registers the push agent, settles notification permission
// (asking through ask when undecided), and subscribes when granted. It
// stops at the first failure; polling and the list are unaffected.
func (c *Controller) BootstrapPush(ctx context.Context, ask PermissionPrompt) error {
	if c.State() == StateDisabled {
		c.logger.Info("push disabled, polling only")
		return ErrPushUnsupported
	}

	if c.pushManager() == nil {
		c.setState(StateRegistering)
		pm, err := c.register(ctx)
		if err != nil {
			c.setState(StateSupported)
			c.logger.Error("registering push agent", zap.Error(err))
			return fmt.Errorf("registering push agent: %w", err)
		}

		c.mu.Lock()
		c.pm = pm
		c.mu.Unlock()
		c.setState(StateRegistered)
	}

	perm := c.settlePermission(ctx, ask)
	switch perm {
	case model.PermissionGranted:
		c.setState(StatePermissionGranted)
	case model.PermissionDenied:
		c.setState(StatePermissionDenied)
		c.logger.Info("notification permission denied")
		return ErrPermissionDenied
	default:
		c.setState(StatePermissionDefault)
		return nil
	}

	return c.Subscribe(ctx)
}

// settlePermission returns the stored decision, prompting once when
// there is none.
func (c *Controller) settlePermission(ctx context.Context, ask PermissionPrompt) model.Permission {
	perm, err := c.permissions.Permission(ctx)
	if err != nil {
		c.logger.Warn("reading notification permission", zap.Error(err))
		perm = model.PermissionDefault
	}
	if perm != model.PermissionDefault || ask == nil {
		return perm
	}

	answer, err := ask(ctx)
	if err != nil {
		c.logger.Warn("asking for notification permission", zap.Error(err))
		return model.PermissionDefault
	}
	if answer == model.PermissionDefault {
		return answer
	}

	if err := c.permissions.SetPermission(ctx, answer); err != nil {
		c.logger.Warn("saving notification permission", zap.Error(err))
	}
	return answer
}

func (c *Controller) pushManager() PushManager {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pm
}

// Subscribe makes sure a push subscription exists and the server knows it.
// Once a subscription is held, later calls return immediately. Sending the
// subscription to the server is attempted once; its failure is logged only.
func (c *Controller) Subscribe(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.Subscription() != nil {
		return nil
	}

	pm := c.pushManager()
	if pm == nil {
		return ErrNotRegistered
	}
	switch c.State() {
	case StatePermissionGranted, StateSubscribing:
	default:
		return ErrPermissionDenied
	}

	c.setState(StateSubscribing)

	sub, err := pm.GetSubscription(ctx)
	if err != nil {
		c.logger.Warn("reading existing push subscription", zap.Error(err))
	}

	if sub == nil {
		key, err := c.applicationServerKey(ctx)
		if err != nil {
			c.setState(StatePermissionGranted)
			c.logger.Error("subscribing to push", zap.Error(err))
			return err
		}

		sub, err = pm.Subscribe(ctx, agent.SubscribeOptions{
			UserVisibleOnly:      true,
			ApplicationServerKey: key,
		})
		if err != nil {
			c.setState(StatePermissionGranted)
			c.logger.Error("subscribing to push", zap.Error(err))
			return fmt.Errorf("subscribing to push: %w", err)
		}
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	c.setState(StateSubscribed)

	if err := c.api.RegisterSubscription(ctx, *sub); err != nil {
		c.logger.Error("sending subscription to server", zap.Error(err))
		return nil
	}

	c.logger.Info("push subscription registered", zap.String("endpoint", sub.Endpoint))
	return nil
}

// applicationServerKey fetches the server's VAPID key, falling back to
// the configured key when the endpoint fails.
func (c *Controller) applicationServerKey(ctx context.Context) (string, error) {
	key, err := c.api.VAPIDPublicKey(ctx)
	if err == nil {
		return key, nil
	}

	if c.opts.FallbackKey == "" {
		return "", fmt.Errorf("fetching vapid key: %w", err)
	}

	c.logger.Warn("fetching vapid key failed, using configured fallback key", zap.Error(err))
	return c.opts.FallbackKey, nil
}

// Unsubscribe removes the push subscription locally and on the server.
func (c *Controller) Unsubscribe(ctx context.Context) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	pm := c.pushManager()
	if pm == nil {
		return ErrNotRegistered
	}

	sub := c.Subscription()
	if sub == nil {
		existing, err := pm.GetSubscription(ctx)
		if err != nil {
			return fmt.Errorf("reading push subscription: %w", err)
		}
		sub = existing
	}

	if _, err := pm.Unsubscribe(ctx); err != nil {
		c.logger.Error("unsubscribing from push", zap.Error(err))
		return fmt.Errorf("unsubscribing from push: %w", err)
	}

	c.mu.Lock()
	c.sub = nil
	c.mu.Unlock()
	if c.State() == StateSubscribed {
		c.setState(StatePermissionGranted)
	}

	if sub != nil {
		if err := c.api.RemoveSubscription(ctx, sub.Endpoint); err != nil {
			c.logger.Warn("removing subscription from server", zap.Error(err))
		}
	}
	return nil
}

// PollUnreadCount refreshes the unread count. On failure the previous
// count is kept and returned along with the error.
func (c *Controller) PollUnreadCount(ctx context.Context) (int, error) {
	n, err := c.api.UnreadCount(ctx)
	if err != nil {
		c.logger.Warn("polling unread count", zap.Error(err))
		return c.UnreadCount(), err
	}

	c.mu.Lock()
	c.unread = n
	c.mu.Unlock()
	return n, nil
}

// FetchList returns the dropdown's records in server order.
func (c *Controller) FetchList(ctx context.Context, unreadOnly bool) ([]model.NotificationRecord, error) {
	return c.FetchPage(ctx, unreadOnly, c.opts.ListLimit)
}

// FetchPage returns up to limit records, clamped to the server's bounds.
func (c *Controller) FetchPage(ctx context.Context, unreadOnly bool, limit int) ([]model.NotificationRecord, error) {
	limit = max(1, min(limit, api.MaxListLimit))

	records, err := c.api.ListNotifications(ctx, api.ListQuery{UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		c.logger.Warn("fetching notifications", zap.Bool("unread_only", unreadOnly), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// MarkRead marks one record read, then re-polls the unread count. The
// caller may update the record's presentation only when this returns nil.
func (c *Controller) MarkRead(ctx context.Context, id model.RecordID) error {
	if err := c.api.MarkRead(ctx, id); err != nil {
		c.logger.Warn("marking notification read", zap.String("id", string(id)), zap.Error(err))
		return err
	}

	_, _ = c.PollUnreadCount(ctx)
	return nil
}

// MarkAllRead marks everything read, then re-fetches the list and the
// count from the server. The error is the mark's own; a failed refetch is
// reported in the result.
func (c *Controller) MarkAllRead(ctx context.Context, unreadOnly bool) (model.MarkAllResult, error) {
	if err := c.api.MarkAllRead(ctx); err != nil {
		c.logger.Warn("marking all notifications read", zap.Error(err))
		return model.MarkAllResult{}, err
	}

	records, listErr := c.FetchList(ctx, unreadOnly)
	_, _ = c.PollUnreadCount(ctx)
	return model.MarkAllResult{Records: records, ListErr: listErr}, nil
}

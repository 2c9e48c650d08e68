package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/pushsvc"
	"github.com/ufcrashout/iTrax/internal/store"
	"github.com/ufcrashout/iTrax/internal/webpush"
)

var (
	// ErrUserVisibleOnly is returned when a subscription does not promise
	// to show a notification for every push.
	ErrUserVisibleOnly = errors.New("subscriptions must be user visible only")

	// ErrKeyMismatch is returned when subscribing with a different
	// application server key than the existing subscription uses.
	ErrKeyMismatch = errors.New("existing subscription uses a different application server key")

	// ErrConnLost is returned by Run when the push service connection ends
	// while the context is still live.
	ErrConnLost = errors.New("push service connection lost")
)

const (
	defaultRedialMin = time.Second
	defaultRedialMax = 2 * time.Minute
)

// PushConn is the push service connection a PushManager drives.
type PushConn interface {
	UAID() string
	Register(ctx context.Context, channelID, key string) (string, error)
	Unregister(ctx context.Context, channelID string) error
	Notifications() <-chan pushsvc.Notification
	Ack(ctx context.Context, n pushsvc.Notification, code int) error
}

// SubscribeOptions mirror the browser's PushSubscriptionOptions.
type SubscribeOptions struct {
	UserVisibleOnly      bool
	ApplicationServerKey string
}

// Redial configures how Serve replaces a dropped connection.
type Redial struct {
	// Dial opens a new connection presenting uaid.
	Dial func(ctx context.Context, uaid string) (PushConn, error)

	// MinWait and MaxWait bound the exponential backoff between attempts.
	// Zero means one second and two minutes.
	MinWait time.Duration
	MaxWait time.Duration
}

// PushManager owns the agent's push subscription and feeds decrypted
// messages to the agent.
type PushManager struct {
	agent  *Agent
	store  store.Store
	logger *zap.Logger

	mu   sync.RWMutex
	conn PushConn
}

// NewPushManager binds a push service connection to the agent's scope.
func (a *Agent) NewPushManager(conn PushConn) *PushManager {
	return &PushManager{
		agent:  a,
		conn:   conn,
		store:  a.store,
		logger: a.logger.Named("push"),
	}
}

// Conn returns the connection currently in use.
func (pm *PushManager) Conn() PushConn {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.conn
}

func (pm *PushManager) setConn(conn PushConn) PushConn {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	old := pm.conn
	pm.conn = conn
	return old
}

// SyncUAID forgets the local subscription when the push service no longer
// knows the user agent it was created for.
func (pm *PushManager) SyncUAID(ctx context.Context) error {
	uaid := pm.Conn().UAID()

	prev, err := pm.store.GetSetting(ctx, store.SettingPushUAID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading stored uaid: %w", err)
	}

	if prev != "" && prev != uaid {
		pm.logger.Info("push service identity changed, dropping local subscription",
			zap.String("previous", prev), zap.String("uaid", uaid))
		if err := pm.store.DeleteSubscription(ctx, pm.agent.Scope()); err != nil {
			return err
		}
	}

	return pm.store.SetSetting(ctx, store.SettingPushUAID, uaid)
}

// GetSubscription returns the existing subscription, or nil when there is
// none.
func (pm *PushManager) GetSubscription(ctx context.Context) (*model.Subscription, error) {
	rec, err := pm.store.GetSubscription(ctx, pm.agent.Scope())
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub := rec.Subscription
	return &sub, nil
}

// Subscribe returns the existing subscription for the same key, or
// creates one with fresh keys on a new push channel.
func (pm *PushManager) Subscribe(ctx context.Context, opts SubscribeOptions) (*model.Subscription, error) {
	if !opts.UserVisibleOnly {
		return nil, ErrUserVisibleOnly
	}
	if opts.ApplicationServerKey == "" {
		return nil, errors.New("application server key is required")
	}

	existing, err := pm.store.GetSubscription(ctx, pm.agent.Scope())
	switch {
	case err == nil:
		if existing.ApplicationServerKey != opts.ApplicationServerKey {
			return nil, ErrKeyMismatch
		}
		sub := existing.Subscription
		return &sub, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	keys, err := webpush.GenerateKeys()
	if err != nil {
		return nil, err
	}

	channelID := uuid.NewString()
	endpoint, err := pm.Conn().Register(ctx, channelID, opts.ApplicationServerKey)
	if err != nil {
		return nil, fmt.Errorf("registering push channel: %w", err)
	}

	rec := model.SubscriptionRecord{
		Scope:     pm.agent.Scope(),
		ChannelID: channelID,
		Subscription: model.Subscription{
			Endpoint: endpoint,
			Keys:     keys.Keys(),
		},
		PrivateKey:           keys.PrivateBytes(),
		ApplicationServerKey: opts.ApplicationServerKey,
		CreatedAt:            pm.agent.now(),
	}
	if err := pm.store.SaveSubscription(ctx, rec); err != nil {
		if uerr := pm.Conn().Unregister(ctx, channelID); uerr != nil {
			pm.logger.Warn("unregistering orphaned channel", zap.Error(uerr))
		}
		return nil, err
	}

	pm.logger.Info("push subscription created", zap.String("channel_id", channelID))
	sub := rec.Subscription
	return &sub, nil
}

// Unsubscribe drops the subscription. It reports false when there was none.
func (pm *PushManager) Unsubscribe(ctx context.Context) (bool, error) {
	rec, err := pm.store.GetSubscription(ctx, pm.agent.Scope())
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := pm.Conn().Unregister(ctx, rec.ChannelID); err != nil {
		pm.logger.Warn("unregistering push channel", zap.String("channel_id", rec.ChannelID), zap.Error(err))
	}
	if err := pm.store.DeleteSubscription(ctx, rec.Scope); err != nil {
		return false, err
	}
	return true, nil
}

// Run decrypts incoming pushes and hands them to the agent until ctx is
// done or the connection closes, in which case it returns ErrConnLost.
func (pm *PushManager) Run(ctx context.Context) error {
	conn := pm.Conn()
	notifications := conn.Notifications()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				return ErrConnLost
			}
			code := pm.deliver(ctx, n)
			if err := conn.Ack(ctx, n, code); err != nil {
				pm.logger.Warn("acking push", zap.String("version", n.Version), zap.Error(err))
			}
		}
	}
}

// Serve runs Run until ctx is done, redialing with exponential backoff
// whenever the connection drops. The current connection is closed on
// return.
func (pm *PushManager) Serve(ctx context.Context, r Redial) error {
	defer func() {
		if c, ok := pm.Conn().(io.Closer); ok {
			c.Close()
		}
	}()

	for {
		err := pm.Run(ctx)
		if !errors.Is(err, ErrConnLost) {
			return err
		}
		pm.logger.Warn("push service connection lost, reconnecting")
		if err := pm.redial(ctx, r); err != nil {
			return err
		}
	}
}

// redial replaces the dropped connection, presenting the same uaid so the
// service keeps existing channels. It only fails when ctx ends.
func (pm *PushManager) redial(ctx context.Context, r Redial) error {
	wait, maxWait := r.MinWait, r.MaxWait
	if wait <= 0 {
		wait = defaultRedialMin
	}
	if maxWait <= 0 {
		maxWait = defaultRedialMax
	}
	uaid := pm.Conn().UAID()

	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		conn, err := r.Dial(ctx, uaid)
		if err != nil {
			wait = min(wait*2, maxWait)
			pm.logger.Warn("redialing push service",
				zap.Int("attempt", attempt), zap.Duration("next_wait", wait), zap.Error(err))
			continue
		}

		if old, ok := pm.setConn(conn).(io.Closer); ok {
			old.Close()
		}
		if err := pm.SyncUAID(ctx); err != nil {
			pm.logger.Warn("syncing push identity after reconnect", zap.Error(err))
		}
		pm.logger.Info("push service reconnected", zap.Int("attempt", attempt))
		return nil
	}
}

// deliver decrypts n and dispatches a push event, returning the ack code.
func (pm *PushManager) deliver(ctx context.Context, n pushsvc.Notification) int {
	log := pm.logger.With(zap.String("channel_id", n.ChannelID), zap.String("version", n.Version))

	rec, err := pm.store.GetSubscriptionByChannel(ctx, n.ChannelID)
	if err != nil {
		log.Warn("push for unknown channel", zap.Error(err))
		return pushsvc.AckHandlerFailure
	}

	if len(n.Data) == 0 {
		pm.agent.HandlePush(ctx, PushEvent{})
		return pushsvc.AckDelivered
	}

	if n.Encoding != "" && n.Encoding != "aes128gcm" {
		log.Warn("unsupported push encoding, dropping", zap.String("encoding", n.Encoding))
		return pushsvc.AckDecryptFailed
	}

	keys, err := webpush.LoadKeys(rec.PrivateKey, rec.Subscription.Keys.Auth)
	if err != nil {
		log.Error("loading subscription keys", zap.Error(err))
		return pushsvc.AckDecryptFailed
	}

	plain, err := keys.Decrypt(n.Data)
	if err != nil {
		log.Warn("undecryptable push, dropping", zap.Error(err))
		return pushsvc.AckDecryptFailed
	}

	pm.agent.HandlePush(ctx, PushEvent{Data: plain})
	return pushsvc.AckDelivered
}

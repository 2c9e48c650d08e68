package store

import (
	"context"
	"errors"

	"github.com/ufcrashout/iTrax/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Setting keys persisted in the settings table.
const (
	SettingPermission = "notification_permission"
	SettingPushUAID   = "push_uaid"
)

// Store defines the persistence interface for the push agent's cache,
// the local push subscription, client settings, and displayed notifications.
type Store interface {
	// === Asset cache (written once at install) ===

	PutAssets(ctx context.Context, assets []model.CachedAsset) error
	GetAsset(ctx context.Context, method, url string) (*model.CachedAsset, error)
	AssetStats(ctx context.Context) (count int, bytes int64, err error)

	// === Push subscription ===

	SaveSubscription(ctx context.Context, rec model.SubscriptionRecord) error
	GetSubscription(ctx context.Context, scope string) (*model.SubscriptionRecord, error)
	GetSubscriptionByChannel(ctx context.Context, channelID string) (*model.SubscriptionRecord, error)
	DeleteSubscription(ctx context.Context, scope string) error

	// === Settings ===

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// === Displayed notifications ===

	AddDisplayed(ctx context.Context, n model.DisplayedNotification) (model.DisplayedNotification, error)
	CloseDisplayed(ctx context.Context, id string) error
	GetOpenDisplayed(ctx context.Context) ([]model.DisplayedNotification, error)
}

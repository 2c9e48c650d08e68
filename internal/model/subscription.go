package model

import "time"

// SubscriptionKeys holds the base64url-encoded client keys of a push
// subscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Subscription is the serialized form of a push subscription, identical to
// what a browser's PushSubscription.toJSON() produces.
type Subscription struct {
	Endpoint       string           `json:"endpoint"`
	ExpirationTime *int64           `json:"expirationTime"`
	Keys           SubscriptionKeys `json:"keys"`
}

// SubscriptionRecord is the locally persisted subscription including the
// private key material needed to decrypt incoming pushes.
type SubscriptionRecord struct {
	Scope                string
	ChannelID            string
	Subscription         Subscription
	PrivateKey           []byte
	ApplicationServerKey string
	CreatedAt            time.Time
}

// Permission mirrors the browser notification permission states.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

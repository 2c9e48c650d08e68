package model

import (
	"net/http"
	"time"
)

// NotificationAction is a button attached to a displayed notification.
type NotificationAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// NotificationOptions are the fields passed to the notification display
// surface alongside a title.
type NotificationOptions struct {
	Body    string               `json:"body"`
	Icon    string               `json:"icon"`
	Badge   string               `json:"badge"`
	Vibrate []int                `json:"vibrate"`
	Data    map[string]any       `json:"data"`
	Actions []NotificationAction `json:"actions"`
}

// DisplayedNotification is a notification that has been shown to the user
// and not yet dismissed.
type DisplayedNotification struct {
	ID        string
	Title     string
	Options   NotificationOptions
	Closed    bool
	CreatedAt time.Time
}

// CachedAsset is a response stored by the push agent at install time.
type CachedAsset struct {
	Method   string
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	CachedAt time.Time
}

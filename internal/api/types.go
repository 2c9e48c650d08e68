package api

import "github.com/ufcrashout/iTrax/internal/model"

// VAPIDKeyResponse is returned by GET /api/push/vapid-public-key.
type VAPIDKeyResponse struct {
	PublicKey string `json:"publicKey"`
}

// SubscribeRequest is the body of POST /api/push/subscribe.
type SubscribeRequest struct {
	Subscription model.Subscription `json:"subscription"`
}

// UnsubscribeRequest is the body of POST /api/push/unsubscribe.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// CountResponse is returned by GET /api/notifications/count.
type CountResponse struct {
	Success     bool   `json:"success"`
	UnreadCount int    `json:"unread_count"`
	Error       string `json:"error,omitempty"`
}

// ListResponse is returned by GET /api/notifications.
type ListResponse struct {
	Success       bool                       `json:"success"`
	Notifications []model.NotificationRecord `json:"notifications"`
	Count         int                        `json:"count"`
	Error         string                     `json:"error,omitempty"`
}

// MessageResponse is the generic reply of the mutation endpoints.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListQuery selects which notifications to list.
type ListQuery struct {
	UnreadOnly bool
	Limit      int
}

// Server-side page size bounds for GET /api/notifications.
const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

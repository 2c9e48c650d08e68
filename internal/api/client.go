// Package api is the HTTP client for the dashboard's push and
// notification endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ufcrashout/iTrax/internal/model"
)

// Endpoint paths.
const (
	PathVAPIDKey    = "/api/push/vapid-public-key"
	PathSubscribe   = "/api/push/subscribe"
	PathUnsubscribe = "/api/push/unsubscribe"
	PathCount       = "/api/notifications/count"
	PathList        = "/api/notifications"
	PathMarkAllRead = "/api/notifications/mark-all-read"
	PathLogin       = "/login"
)

// limitClass groups endpoints that share a server-side rate limit.
type limitClass int

const (
	limitNone limitClass = iota
	limitCount
	limitList
	limitMark
	limitMarkAll
)

// newLimiters mirrors the dashboard's per-minute limits so a runaway loop
// is throttled locally instead of being rejected with 429s.
func newLimiters() map[limitClass]*rate.Limiter {
	return map[limitClass]*rate.Limiter{
		limitCount:   rate.NewLimiter(rate.Every(time.Minute/60), 5),
		limitList:    rate.NewLimiter(rate.Every(time.Minute/30), 5),
		limitMark:    rate.NewLimiter(rate.Every(time.Minute/30), 5),
		limitMarkAll: rate.NewLimiter(rate.Every(time.Minute/10), 2),
	}
}

// Client talks to the dashboard API on behalf of a logged-in session.
// The CSRF token is fixed at construction.
type Client struct {
	baseURL    string
	httpClient *http.Client
	csrfToken  string
	limiters   map[limitClass]*rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client, which carries the session cookie
// jar and the push agent's transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCSRFToken sets the token sent as X-CSRFToken on mutating requests.
func WithCSRFToken(token string) Option {
	return func(c *Client) { c.csrfToken = token }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithoutRateLimit disables client-side throttling.
func WithoutRateLimit() Option {
	return func(c *Client) { c.limiters = nil }
}

// NewClient creates a dashboard API client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiters: newLimiters(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the dashboard root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HasCSRFToken reports whether mutating requests carry a CSRF header.
func (c *Client) HasCSRFToken() bool {
	return c.csrfToken != ""
}

// VAPIDPublicKey fetches the application server key used to subscribe.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp VAPIDKeyResponse
	if err := c.do(ctx, limitNone, http.MethodGet, PathVAPIDKey, nil, &resp); err != nil {
		return "", err
	}
	if resp.PublicKey == "" {
		return "", fmt.Errorf("fetching vapid key: %w: empty publicKey", ErrUnsuccessful)
	}
	return resp.PublicKey, nil
}

// RegisterSubscription mirrors a push subscription to the server.
func (c *Client) RegisterSubscription(ctx context.Context, sub model.Subscription) error {
	var resp MessageResponse
	err := c.do(ctx, limitNone, http.MethodPost, PathSubscribe, SubscribeRequest{Subscription: sub}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success && resp.Error != "" {
		return unsuccessful("registering subscription", resp.Error)
	}
	return nil
}

// RemoveSubscription deletes the server's copy of a subscription.
func (c *Client) RemoveSubscription(ctx context.Context, endpoint string) error {
	var resp MessageResponse
	err := c.do(ctx, limitNone, http.MethodPost, PathUnsubscribe, UnsubscribeRequest{Endpoint: endpoint}, &resp)
	if err != nil {
		return err
	}
	if !resp.Success && resp.Error != "" {
		return unsuccessful("removing subscription", resp.Error)
	}
	return nil
}

// UnreadCount returns the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp CountResponse
	if err := c.do(ctx, limitCount, http.MethodGet, PathCount, nil, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, unsuccessful("fetching unread count", resp.Error)
	}
	return resp.UnreadCount, nil
}

// ListNotifications returns recent notifications in server order.
func (c *Client) ListNotifications(ctx context.Context, q ListQuery) ([]model.NotificationRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	params := url.Values{}
	params.Set("unread_only", strconv.FormatBool(q.UnreadOnly))
	params.Set("limit", strconv.Itoa(limit))

	var resp ListResponse
	if err := c.do(ctx, limitList, http.MethodGet, PathList+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, unsuccessful("listing notifications", resp.Error)
	}
	if resp.Notifications == nil {
		return []model.NotificationRecord{}, nil
	}
	return resp.Notifications, nil
}

// MarkRead marks one notification as read.
func (c *Client) MarkRead(ctx context.Context, id model.RecordID) error {
	path := "/api/notifications/" + url.PathEscape(string(id)) + "/read"

	var resp MessageResponse
	if err := c.do(ctx, limitMark, http.MethodPut, path, nil, &resp); err != nil {
		return err
	}
	if !resp.Success && resp.Error != "" {
		return unsuccessful("marking notification read", resp.Error)
	}
	return nil
}

// MarkAllRead marks every notification of the user as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	var resp MessageResponse
	if err := c.do(ctx, limitMarkAll, http.MethodPut, PathMarkAllRead, nil, &resp); err != nil {
		return err
	}
	if !resp.Success && resp.Error != "" {
		return unsuccessful("marking all notifications read", resp.Error)
	}
	return nil
}

// do builds the request, applies the local rate limit and CSRF header,
// and decodes the JSON response. Requests are never retried.
func (c *Client) do(
	ctx context.Context,
	class limitClass,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	if lim, ok := c.limiters[class]; ok {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limit on %s %s: %w", method, path, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet && c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}

	respBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode == http.StatusUnauthorized || isLoginRedirect(resp) {
		return &AuthError{Method: method, Path: path}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg MessageResponse
		detail := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &msg) == nil && msg.Error != "" {
			detail = msg.Error
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.Warn("rate limited by server",
				zap.String("method", method), zap.String("path", path))
		}
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(detail, 200)}
	}

	// No content to parse (e.g. 204).
	if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}

// isLoginRedirect reports whether the request was redirected to the login
// page, which is how the dashboard answers unauthenticated requests.
func isLoginRedirect(resp *http.Response) bool {
	if resp.Request == nil || resp.Request.URL == nil {
		return false
	}
	return resp.Request.URL.Path == PathLogin
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

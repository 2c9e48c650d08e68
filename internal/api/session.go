package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Session performs the dashboard's form login. The session cookie lands
// in the HTTP client's cookie jar and is reused by Client.
type Session struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSession creates a Session. httpClient must carry a cookie jar.
func NewSession(baseURL string, httpClient *http.Client) *Session {
	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/5), 2),
	}
}

// Login submits the login form. Landing back on /login after the POST
// means the credentials were rejected.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for login rate limit: %w", err)
	}

	token, err := s.formToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	if token != "" {
		form.Set("csrf_token", token)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, s.baseURL+PathLogin, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("submitting login form: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: http.MethodPost, Path: PathLogin, Status: resp.StatusCode}
	}
	if isLoginRedirect(resp) {
		return &AuthError{Method: http.MethodPost, Path: PathLogin}
	}

	return nil
}

// formToken loads the login page and extracts its hidden csrf_token.
func (s *Session) formToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+PathLogin, nil)
	if err != nil {
		return "", fmt.Errorf("creating login page request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("loading login page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Method: http.MethodGet, Path: PathLogin, Status: resp.StatusCode}
	}

	token, err := FormToken(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading login form: %w", err)
	}
	return token, nil
}

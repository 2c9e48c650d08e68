package api

import (
	"errors"
	"fmt"
)

// ErrUnsuccessful is returned when the server answers 2xx with
// "success": false.
var ErrUnsuccessful = errors.New("server reported failure")

// AuthError means the session is missing or expired: the server answered
// 401 or redirected the request to the login page.
type AuthError struct {
	Method string
	Path   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("not authenticated on %s %s: log in again", e.Method, e.Path)
}

// StatusError is any other non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d on %s %s", e.Status, e.Method, e.Path)
	}
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.Status, e.Method, e.Path, e.Body)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// unsuccessful wraps ErrUnsuccessful with the server's error text.
func unsuccessful(op, msg string) error {
	if msg == "" {
		return fmt.Errorf("%s: %w", op, ErrUnsuccessful)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrUnsuccessful, msg)
}

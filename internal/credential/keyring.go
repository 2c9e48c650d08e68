// Package credential keeps the dashboard password in the system keyring.
package credential

import (
	"errors"
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "itrax-notify"

// PasswordEnv overrides the keyring for non-interactive runs.
const PasswordEnv = "ITRAX_PASSWORD"

// ErrNotFound is returned when no password is stored for a user.
var ErrNotFound = errors.New("credential not found")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/itrax/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("itrax-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// passwordKey names the keyring item holding username's password.
func passwordKey(username string) string {
	return "dashboard-" + username
}

// Password returns the dashboard password for username, preferring the
// ITRAX_PASSWORD environment variable over the keyring.
func Password(username string) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(passwordKey(username))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting password for %q: %w", username, err)
	}

	return string(item.Data), nil
}

// SetPassword stores the dashboard password for username.
func SetPassword(username, password string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   passwordKey(username),
		Data:  []byte(password),
		Label: "iTrax dashboard (" + username + ")",
	})
	if err != nil {
		return fmt.Errorf("setting password for %q: %w", username, err)
	}

	return nil
}

// DeletePassword removes a stored password, e.g. after a rejected login.
func DeletePassword(username string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(passwordKey(username))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting password for %q: %w", username, err)
	}

	return nil
}

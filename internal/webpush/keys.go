// Package webpush holds the client side of RFC 8291 message encryption:
// the subscription key pair and decryption of aes128gcm push payloads.
package webpush

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ufcrashout/iTrax/internal/model"
)

const authSecretLen = 16

// KeyPair is the user-agent key material of one push subscription.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Auth    []byte
}

// GenerateKeys creates a fresh P-256 key pair and authentication secret.
func GenerateKeys() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating p256 key: %w", err)
	}

	auth := make([]byte, authSecretLen)
	if _, err := rand.Read(auth); err != nil {
		return nil, fmt.Errorf("generating auth secret: %w", err)
	}

	return &KeyPair{Private: priv, Auth: auth}, nil
}

// LoadKeys rebuilds a key pair from a stored private scalar and the
// base64url auth secret of its subscription.
func LoadKeys(private []byte, auth string) (*KeyPair, error) {
	priv, err := ecdh.P256().NewPrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	secret, err := DecodeKey(auth)
	if err != nil {
		return nil, fmt.Errorf("decoding auth secret: %w", err)
	}
	if len(secret) != authSecretLen {
		return nil, fmt.Errorf("auth secret is %d bytes, want %d", len(secret), authSecretLen)
	}

	return &KeyPair{Private: priv, Auth: secret}, nil
}

// Keys returns the public half in the form a subscription serializes.
func (k *KeyPair) Keys() model.SubscriptionKeys {
	return model.SubscriptionKeys{
		P256dh: base64.RawURLEncoding.EncodeToString(k.Private.PublicKey().Bytes()),
		Auth:   base64.RawURLEncoding.EncodeToString(k.Auth),
	}
}

// PrivateBytes returns the private scalar for storage.
func (k *KeyPair) PrivateBytes() []byte {
	return k.Private.Bytes()
}

// DecodeKey decodes base64 in any of the URL/standard, padded/unpadded
// variants that push servers and browsers emit.
func DecodeKey(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if strings.ContainsAny(s, "+/") {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return base64.RawURLEncoding.DecodeString(s)
}

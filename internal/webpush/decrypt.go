package webpush

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrInvalidPayload is returned for bodies that are not valid aes128gcm.
var ErrInvalidPayload = errors.New("invalid aes128gcm payload")

const (
	saltLen   = 16
	headerLen = saltLen + 4 + 1
	tagLen    = 16
	keyLen    = 16
	nonceLen  = 12
)

var (
	infoCEK   = []byte("Content-Encoding: aes128gcm\x00")
	infoNonce = []byte("Content-Encoding: nonce\x00")
	infoAuth  = []byte("WebPush: info\x00")
)

// Decrypt opens an aes128gcm encoded push message addressed to k.
func (k *KeyPair) Decrypt(body []byte) ([]byte, error) {
	if len(body) < headerLen {
		return nil, fmt.Errorf("%w: short header", ErrInvalidPayload)
	}

	salt := body[:saltLen]
	rs := binary.BigEndian.Uint32(body[saltLen : saltLen+4])
	idLen := int(body[saltLen+4])
	if rs <= tagLen+1 {
		return nil, fmt.Errorf("%w: record size %d", ErrInvalidPayload, rs)
	}
	if len(body) < headerLen+idLen {
		return nil, fmt.Errorf("%w: truncated key id", ErrInvalidPayload)
	}
	keyID := body[headerLen : headerLen+idLen]
	ciphertext := body[headerLen+idLen:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidPayload)
	}

	senderPub, err := ecdh.P256().NewPublicKey(keyID)
	if err != nil {
		return nil, fmt.Errorf("%w: sender key: %v", ErrInvalidPayload, err)
	}

	secret, err := k.Private.ECDH(senderPub)
	if err != nil {
		return nil, fmt.Errorf("computing shared secret: %w", err)
	}

	keyInfo := make([]byte, 0, len(infoAuth)+2*len(keyID))
	keyInfo = append(keyInfo, infoAuth...)
	keyInfo = append(keyInfo, k.Private.PublicKey().Bytes()...)
	keyInfo = append(keyInfo, keyID...)

	ikm, err := derive(secret, k.Auth, keyInfo, 32)
	if err != nil {
		return nil, err
	}
	cek, err := derive(ikm, salt, infoCEK, keyLen)
	if err != nil {
		return nil, err
	}
	baseNonce, err := derive(ikm, salt, infoNonce, nonceLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating gcm: %w", err)
	}

	var out []byte
	for seq := uint64(0); len(ciphertext) > 0; seq++ {
		n := min(int(rs), len(ciphertext))
		record := ciphertext[:n]
		ciphertext = ciphertext[n:]
		last := len(ciphertext) == 0

		plain, err := gcm.Open(nil, recordNonce(baseNonce, seq), record, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidPayload, seq, err)
		}

		data, err := unpad(plain, last)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidPayload, seq, err)
		}
		out = append(out, data...)
	}

	return out, nil
}

// derive reads n bytes of HKDF-SHA256 output.
func derive(secret, salt, info []byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), buf); err != nil {
		return nil, fmt.Errorf("deriving key material: %w", err)
	}
	return buf, nil
}

// recordNonce XORs the record sequence number into the low bytes of base.
func recordNonce(base []byte, seq uint64) []byte {
	nonce := make([]byte, nonceLen)
	copy(nonce, base)
	tail := binary.BigEndian.Uint64(nonce[nonceLen-8:]) ^ seq
	binary.BigEndian.PutUint64(nonce[nonceLen-8:], tail)
	return nonce
}

// unpad strips trailing zero padding and the record delimiter.
func unpad(plain []byte, last bool) ([]byte, error) {
	i := len(plain) - 1
	for i >= 0 && plain[i] == 0 {
		i--
	}
	if i < 0 {
		return nil, errors.New("missing delimiter")
	}

	want := byte(0x01)
	if last {
		want = 0x02
	}
	if plain[i] != want {
		return nil, fmt.Errorf("delimiter 0x%02x, want 0x%02x", plain[i], want)
	}

	return plain[:i], nil
}

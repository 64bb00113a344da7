package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Key purposes. Each derived key is bound to exactly one use.
const (
	PurposeSessionCookie = "authcallback session cookie v1"
	PurposeOAuthState    = "authcallback oauth state v1"
	PurposeDevProvider   = "authcallback dev provider v1"
)

// DeriveKey expands secret into a 32-byte key dedicated to purpose
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(purpose)), key); err != nil {
		return nil, fmt.Errorf("deriving %q key: %w", purpose, err)
	}
	return key, nil
}

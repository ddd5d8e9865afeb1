package security

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateRandomToken returns 128 bits from the CSPRNG, base64url-encoded
// without padding. Used for session handles, refresh-token nonces,
// idRefreshToken values, and anti-CSRF tokens.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

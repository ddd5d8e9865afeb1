package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	refreshTokenVersion = "v1"

	// Key derivation parameters for the deployment-wide refresh-token secret.
	refreshKeySalt       = "session-core/refresh-token"
	refreshKeyIterations = 10000
)

// RefreshTokenPayload is the decrypted content of an opaque refresh token.
type RefreshTokenPayload struct {
	SessionHandle           string `json:"sessionHandle"`
	ParentRefreshTokenHash1 string `json:"parentRefreshTokenHash1,omitempty"`
	Nonce                   string `json:"nonce"`
}

// RefreshTokenCodec seals and opens opaque refresh tokens with
// XChaCha20-Poly1305 under a key derived from the deployment secret.
// Safe for concurrent use; the secret is read-only after construction.
type RefreshTokenCodec struct {
	aead cipher.AEAD
}

// NewRefreshTokenCodec derives an encryption key from secret via
// PBKDF2-SHA256 and returns a codec. secret must be non-empty.
func NewRefreshTokenCodec(secret []byte) (*RefreshTokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrInvalidKey
	}
	key := pbkdf2.Key(secret, []byte(refreshKeySalt), refreshKeyIterations, chacha20poly1305.KeySize, sha256.New)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &RefreshTokenCodec{aead: aead}, nil
}

// Encode seals (sessionHandle, parentHash, nonce) into an opaque URL-safe
// token: "v1." + base64url(aeadNonce || ciphertext). parentHash is empty for
// a freshly created session.
func (c *RefreshTokenCodec) Encode(sessionHandle, parentHash, nonce string) (string, error) {
	plaintext, err := json.Marshal(RefreshTokenPayload{
		SessionHandle:           sessionHandle,
		ParentRefreshTokenHash1: parentHash,
		Nonce:                   nonce,
	})
	if err != nil {
		return "", err
	}
	aeadNonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(aeadNonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(aeadNonce, aeadNonce, plaintext, nil)
	return refreshTokenVersion + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens an opaque refresh token. Any failure (unknown version tag,
// bad encoding, short ciphertext, failed authentication tag, invalid
// structure) returns ErrTokenTampered.
func (c *RefreshTokenCodec) Decode(token string) (RefreshTokenPayload, error) {
	version, rest, found := strings.Cut(token, ".")
	if !found || version != refreshTokenVersion {
		return RefreshTokenPayload{}, ErrTokenTampered
	}
	sealed, err := base64.RawURLEncoding.DecodeString(rest)
	if err != nil || len(sealed) <= chacha20poly1305.NonceSizeX {
		return RefreshTokenPayload{}, ErrTokenTampered
	}
	aeadNonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, aeadNonce, ciphertext, nil)
	if err != nil {
		return RefreshTokenPayload{}, ErrTokenTampered
	}
	var payload RefreshTokenPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return RefreshTokenPayload{}, ErrTokenTampered
	}
	if payload.SessionHandle == "" || payload.Nonce == "" {
		return RefreshTokenPayload{}, ErrTokenTampered
	}
	return payload, nil
}

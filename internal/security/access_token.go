package security

import (
	"bytes"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload is the signed content of an access token. It is never
// persisted; verifiers reconstruct it from the envelope.
type AccessTokenPayload struct {
	SessionHandle           string          `json:"sessionHandle"`
	UserID                  string          `json:"userId"`
	RefreshTokenHash1       string          `json:"refreshTokenHash1"`
	ParentRefreshTokenHash1 string          `json:"parentRefreshTokenHash1,omitempty"`
	UserData                json.RawMessage `json:"userData"`
	AntiCsrfToken           string          `json:"antiCsrfToken,omitempty"`
	ExpiryTime              int64           `json:"expiryTime"`
}

// EncodeAccessToken serializes the payload canonically (fields in fixed key
// order, UTF-8, no insignificant whitespace, integers in decimal) and signs
// the base64url form with RSA-SHA256. The token is
// base64url(payload) "." base64url(signature).
func EncodeAccessToken(payload AccessTokenPayload, key *rsa.PrivateKey) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	signing := base64.RawURLEncoding.EncodeToString(body)
	sig, err := jwt.SigningMethodRS256.Sign(signing, key)
	if err != nil {
		return "", err
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// DecodeAccessToken verifies the envelope signature under key and returns the
// payload. Verification is strict: a malformed envelope, a signature
// mismatch, or an unknown field layout all fail with ErrTokenSignature.
func DecodeAccessToken(token string, key *rsa.PublicKey) (AccessTokenPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	if err := jwt.SigningMethodRS256.Verify(parts[0], sig, key); err != nil {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	body, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var payload AccessTokenPayload
	if err := dec.Decode(&payload); err != nil {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	if payload.SessionHandle == "" || payload.UserID == "" || payload.RefreshTokenHash1 == "" {
		return AccessTokenPayload{}, ErrTokenSignature
	}
	return payload, nil
}

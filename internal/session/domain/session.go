package domain

import "encoding/json"

// Session is the persisted session row, keyed by Handle.
type Session struct {
	Handle             string          // 128-bit random, base64url
	UserID             string          // caller-supplied, opaque, non-empty
	RefreshTokenHash   string          // SHA-256 hex of the most recently issued refresh token
	UserDataInDatabase json.RawMessage // server-side custom claims, arbitrary shape
	UserDataInJWT      json.RawMessage // embedded into every access token for this session
	ExpiresAt          int64           // epoch ms; the session is logically revoked after this
	CreatedAt          int64           // epoch ms
}

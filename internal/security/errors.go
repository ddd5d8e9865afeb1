package security

import "errors"

var (
	// ErrInvalidKey is returned when PEM key material or the refresh-token
	// secret cannot be parsed or is empty.
	ErrInvalidKey = errors.New("invalid key material")
	// ErrTokenSignature is returned when an access token fails verification:
	// malformed envelope, signature mismatch, or unknown payload layout.
	ErrTokenSignature = errors.New("access token signature verification failed")
	// ErrTokenTampered is returned when a refresh token fails to open:
	// unknown version, bad encoding, or failed authentication tag.
	ErrTokenTampered = errors.New("refresh token tampered or malformed")
)

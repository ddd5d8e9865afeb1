package security

import (
	"errors"
	"strings"
	"testing"
)

func newTestCodec(t *testing.T) *RefreshTokenCodec {
	t.Helper()
	codec, err := NewRefreshTokenCodec([]byte("test-deployment-secret"))
	if err != nil {
		t.Fatalf("NewRefreshTokenCodec: %v", err)
	}
	return codec
}

func TestRefreshToken_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	handle, parent, nonce := "handle-1", HashToken("parent-token"), "nonce-1"
	token, err := codec.Encode(handle, parent, nonce)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasPrefix(token, "v1.") {
		t.Errorf("token %q missing version tag", token)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q is not URL-safe", token)
	}

	got, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.SessionHandle != handle || got.ParentRefreshTokenHash1 != parent || got.Nonce != nonce {
		t.Errorf("Decode = %+v, want (%q, %q, %q)", got, handle, parent, nonce)
	}
}

func TestRefreshToken_EmptyParent(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encode("handle-1", "", "nonce-1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := codec.Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ParentRefreshTokenHash1 != "" {
		t.Errorf("ParentRefreshTokenHash1 = %q, want empty", got.ParentRefreshTokenHash1)
	}
}

func TestRefreshToken_Tampered(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.Encode("handle-1", "", "nonce-1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	flipped := []byte(token)
	flipped[len(flipped)-1] ^= 1

	cases := map[string]string{
		"flipped byte":    string(flipped),
		"unknown version": "v2." + strings.TrimPrefix(token, "v1."),
		"no version":      strings.TrimPrefix(token, "v1."),
		"short body":      "v1.AAAA",
		"bad base64":      "v1.!!!",
		"empty":           "",
	}
	for name, tc := range cases {
		if _, err := codec.Decode(tc); !errors.Is(err, ErrTokenTampered) {
			t.Errorf("%s: want ErrTokenTampered, got %v", name, err)
		}
	}
}

func TestRefreshToken_WrongSecret(t *testing.T) {
	codec := newTestCodec(t)
	other, err := NewRefreshTokenCodec([]byte("another-secret"))
	if err != nil {
		t.Fatalf("NewRefreshTokenCodec: %v", err)
	}
	token, err := codec.Encode("handle-1", "", "nonce-1")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := other.Decode(token); !errors.Is(err, ErrTokenTampered) {
		t.Errorf("decode with wrong secret: want ErrTokenTampered, got %v", err)
	}
}

func TestNewRefreshTokenCodec_EmptySecret(t *testing.T) {
	if _, err := NewRefreshTokenCodec(nil); err == nil {
		t.Fatal("NewRefreshTokenCodec with empty secret should return error")
	}
}

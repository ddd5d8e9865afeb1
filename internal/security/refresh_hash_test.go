package security

import (
	"encoding/base64"
	"testing"
)

func TestHashToken_Deterministic(t *testing.T) {
	a := HashToken("token-1")
	b := HashToken("token-1")
	if a != b {
		t.Errorf("HashToken not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if HashToken("token-2") == a {
		t.Error("distinct tokens produced the same hash")
	}
}

func TestTokenHashEqual(t *testing.T) {
	hash := HashToken("token-1")
	if !TokenHashEqual("token-1", hash) {
		t.Error("TokenHashEqual rejected matching token")
	}
	if TokenHashEqual("token-2", hash) {
		t.Error("TokenHashEqual accepted non-matching token")
	}
	if TokenHashEqual("token-1", "") {
		t.Error("TokenHashEqual accepted empty stored hash")
	}
}

func TestGenerateRandomToken(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		tok, err := GenerateRandomToken()
		if err != nil {
			t.Fatalf("GenerateRandomToken: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token %q is not base64url: %v", tok, err)
		}
		if len(raw) != 16 {
			t.Fatalf("token carries %d bytes, want 16", len(raw))
		}
		if seen[tok] {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = true
	}
}

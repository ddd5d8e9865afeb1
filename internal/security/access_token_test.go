package security

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testPayload() AccessTokenPayload {
	return AccessTokenPayload{
		SessionHandle:           "handle-1",
		UserID:                  "u1",
		RefreshTokenHash1:       HashToken("some-refresh-token"),
		ParentRefreshTokenHash1: "",
		UserData:                json.RawMessage(`{"role":"admin"}`),
		AntiCsrfToken:           "",
		ExpiryTime:              time.Now().UnixMilli() + 3600_000,
	}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	priv, err := ParseRSAPrivateKey(TestPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	pub, err := ParseRSAPublicKey(TestPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey: %v", err)
	}

	want := testPayload()
	token, err := EncodeAccessToken(want, priv)
	if err != nil {
		t.Fatalf("EncodeAccessToken: %v", err)
	}
	if strings.ContainsAny(token, "+/=") {
		t.Errorf("token %q is not URL-safe", token)
	}

	got, err := DecodeAccessToken(token, pub)
	if err != nil {
		t.Fatalf("DecodeAccessToken: %v", err)
	}
	if got.SessionHandle != want.SessionHandle || got.UserID != want.UserID ||
		got.RefreshTokenHash1 != want.RefreshTokenHash1 || got.ExpiryTime != want.ExpiryTime {
		t.Errorf("decoded payload = %+v, want %+v", got, want)
	}
	if string(got.UserData) != string(want.UserData) {
		t.Errorf("UserData = %s, want %s", got.UserData, want.UserData)
	}
}

func TestAccessToken_WrongKey(t *testing.T) {
	priv, err := ParseRSAPrivateKey(TestPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	otherKey, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	token, err := EncodeAccessToken(testPayload(), priv)
	if err != nil {
		t.Fatalf("EncodeAccessToken: %v", err)
	}
	if _, err := DecodeAccessToken(token, &otherKey.PublicKey); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("decode with wrong key: want ErrTokenSignature, got %v", err)
	}
}

func TestAccessToken_Tampered(t *testing.T) {
	priv, err := ParseRSAPrivateKey(TestPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	pub, err := ParseRSAPublicKey(TestPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey: %v", err)
	}
	token, err := EncodeAccessToken(testPayload(), priv)
	if err != nil {
		t.Fatalf("EncodeAccessToken: %v", err)
	}

	payload := testPayload()
	payload.UserID = "attacker"
	forgedBody, _ := json.Marshal(payload)
	forged := base64.RawURLEncoding.EncodeToString(forgedBody) + "." + strings.SplitN(token, ".", 2)[1]

	cases := map[string]string{
		"forged payload": forged,
		"missing dot":    strings.ReplaceAll(token, ".", ""),
		"empty":          "",
		"garbage":        "not-a-token",
		"truncated sig":  token[:len(token)-4],
		"extra segment":  token + ".extra",
		"invalid base64": "!!!." + strings.SplitN(token, ".", 2)[1],
	}
	for name, tc := range cases {
		if _, err := DecodeAccessToken(tc, pub); !errors.Is(err, ErrTokenSignature) {
			t.Errorf("%s: want ErrTokenSignature, got %v", name, err)
		}
	}
}

func TestAccessToken_UnknownFieldLayout(t *testing.T) {
	priv, err := ParseRSAPrivateKey(TestPrivateKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPrivateKey: %v", err)
	}
	pub, err := ParseRSAPublicKey(TestPublicKeyPEM)
	if err != nil {
		t.Fatalf("ParseRSAPublicKey: %v", err)
	}

	// Signature is valid but the layout carries a field the codec does not know.
	body := []byte(`{"sessionHandle":"h","userId":"u","refreshTokenHash1":"r","userData":{},"expiryTime":1,"extra":true}`)
	signing := base64.RawURLEncoding.EncodeToString(body)
	sig, err := signRS256ForTest(signing, priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	token := signing + "." + base64.RawURLEncoding.EncodeToString(sig)
	if _, err := DecodeAccessToken(token, pub); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("unknown field layout: want ErrTokenSignature, got %v", err)
	}
}

func signRS256ForTest(signing string, key *rsa.PrivateKey) ([]byte, error) {
	return jwt.SigningMethodRS256.Sign(signing, key)
}

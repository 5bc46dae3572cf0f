package jwt

import (
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("test-secret")

	token, err := tm.GenerateAccessToken("token1", map[string]any{
		"user_id": "alice",
		"role":    "USER",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := tm.DecodeToken(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := GetPayloadString(claims, "user_id"); got != "alice" {
		t.Errorf("expected user_id alice, got %q", got)
	}
	if got := GetPayloadString(claims, "role"); got != "USER" {
		t.Errorf("expected role USER, got %q", got)
	}
	if got := GetPayloadString(claims, "missing"); got != "" {
		t.Errorf("expected empty for missing key, got %q", got)
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	token, err := NewTokenManager("secret-a").GenerateAccessToken("token1", map[string]any{"user_id": "alice"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := NewTokenManager("secret-b").DecodeToken(token); err == nil {
		t.Error("expected decode with wrong key to fail")
	}
}

func TestDecodeRejectsExpired(t *testing.T) {
	tm := NewTokenManager("test-secret")
	token, err := tm.GenerateAccessToken("token1", map[string]any{"user_id": "alice"}, time.Nanosecond)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := tm.DecodeToken(token); err == nil {
		t.Error("expected expired token to fail")
	}
}

func TestEmptyKeyRejected(t *testing.T) {
	tm := NewTokenManager("")
	if _, err := tm.GenerateAccessToken("token1", nil); err != ErrNeedTokenProvider {
		t.Errorf("expected ErrNeedTokenProvider, got %v", err)
	}
	if _, err := tm.DecodeToken("whatever"); err != ErrNeedTokenProvider {
		t.Errorf("expected ErrNeedTokenProvider, got %v", err)
	}
}

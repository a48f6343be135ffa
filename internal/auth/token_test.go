package auth

import (
	"encoding/hex"
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	t1, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken failed: %v", err)
	}
	t2, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken failed: %v", err)
	}
	if t1 == t2 {
		t.Error("tokens should be unique")
	}

	raw, err := hex.DecodeString(t1)
	if err != nil {
		t.Fatalf("token should be valid hex: %v", err)
	}
	if len(raw) != opaqueTokenBytes {
		t.Errorf("token should be %d random bytes, got %d", opaqueTokenBytes, len(raw))
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("some-token")
	h2 := HashToken("some-token")
	if h1 != h2 {
		t.Errorf("hash should be deterministic: %q != %q", h1, h2)
	}
	if HashToken("other-token") == h1 {
		t.Error("different tokens should produce different hashes")
	}

	decoded, err := hex.DecodeString(h1)
	if err != nil {
		t.Fatalf("hash should be valid hex: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("SHA-256 hash should be 32 bytes, got %d", len(decoded))
	}
}

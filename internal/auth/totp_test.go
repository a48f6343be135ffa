package auth

import (
	"encoding/base32"
	"strings"
	"testing"
	"time"
)

// totpCodeAt computes the expected code for a secret at a given instant.
func totpCodeAt(t *testing.T, secretBase32 string, at time.Time) string {
	t.Helper()
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	secret, err := enc.DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return hotpCode(secret, at.Unix()/totpPeriod)
}

func TestGenerateTOTPSecret(t *testing.T) {
	s1, err := GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret failed: %v", err)
	}
	s2, err := GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret failed: %v", err)
	}
	if s1 == s2 {
		t.Error("secrets should be unique")
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	raw, err := enc.DecodeString(s1)
	if err != nil {
		t.Fatalf("secret should be valid base32: %v", err)
	}
	if len(raw) != totpSecretBytes {
		t.Errorf("secret should be %d bytes, got %d", totpSecretBytes, len(raw))
	}
}

func TestVerifyTOTP(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret failed: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	code := totpCodeAt(t, secret, now)
	if !VerifyTOTP(secret, code, now) {
		t.Error("current code should verify")
	}
	if !VerifyTOTP(secret, " "+code+" ", now) {
		t.Error("surrounding whitespace should be tolerated")
	}

	// Codes from adjacent steps within the skew window still verify.
	past := totpCodeAt(t, secret, now.Add(-2*totpPeriod*time.Second))
	if !VerifyTOTP(secret, past, now) {
		t.Error("code from 2 steps back should verify within skew window")
	}
	future := totpCodeAt(t, secret, now.Add(2*totpPeriod*time.Second))
	if !VerifyTOTP(secret, future, now) {
		t.Error("code from 2 steps ahead should verify within skew window")
	}

	// Outside the window the code is rejected.
	stale := totpCodeAt(t, secret, now.Add(-3*totpPeriod*time.Second))
	if stale != code && VerifyTOTP(secret, stale, now) {
		t.Error("code from 3 steps back should not verify")
	}
}

func TestVerifyTOTP_RejectsMalformedCodes(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	if err != nil {
		t.Fatalf("GenerateTOTPSecret failed: %v", err)
	}
	now := time.Now()

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		if VerifyTOTP(secret, code, now) {
			t.Errorf("malformed code %q should not verify", code)
		}
	}
	if VerifyTOTP("not base32!!!", "123456", now) {
		t.Error("invalid secret should never verify")
	}
}

func TestProvisionURI(t *testing.T) {
	uri := ProvisionURI("ABCDEF234567", "user@x.com")
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Errorf("URI should use the otpauth scheme: %s", uri)
	}
	for _, want := range []string{"secret=ABCDEF234567", "issuer=CLUPSO", "digits=6", "period=30", "algorithm=SHA1"} {
		if !strings.Contains(uri, want) {
			t.Errorf("URI missing %q: %s", want, uri)
		}
	}
}

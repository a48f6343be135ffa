package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const opaqueTokenBytes = 32

// NewOpaqueToken returns a cryptographically random hex token used for
// device-approval links and password-reset tokens.
func NewOpaqueToken() (string, error) {
	raw := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// HashToken returns the SHA-256 digest of a token as hex. Reset tokens are
// stored only as this digest so a database leak does not expose usable
// tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

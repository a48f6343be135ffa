package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

// specialChars is the set counted toward the signup complexity rule.
const specialChars = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// dummyHash is a valid bcrypt hash of a throwaway value. It is compared
// against when the account does not exist so that unknown-email and
// wrong-password sign-ins take the same time.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// HashPassword computes a salted bcrypt hash of the plaintext.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether the candidate matches the stored hash.
func ComparePassword(hash, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// DummyCompare burns the same bcrypt work as a real comparison. Called on
// sign-in when no account matches the email.
func DummyCompare(candidate string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(candidate))
}

// ValidatePassword enforces the signup password policy: length of at least
// 7, at least 3 characters from the special set, and no 3-character run of
// the email's local part appearing in the password (case-insensitive).
func ValidatePassword(password, email string) error {
	if len(password) < 7 {
		return validationf("password must be at least 7 characters long")
	}

	specials := 0
	for _, r := range password {
		if strings.ContainsRune(specialChars, r) {
			specials++
		}
	}
	if specials < 3 {
		return validationf("password must contain at least 3 special characters")
	}

	local := email
	if at := strings.Index(email, "@"); at >= 0 {
		local = email[:at]
	}
	local = strings.ToLower(local)
	lower := strings.ToLower(password)
	for i := 0; i+3 <= len(local); i++ {
		if strings.Contains(lower, local[i:i+3]) {
			return validationf("password must not contain parts of your email address")
		}
	}

	return nil
}

// ValidateResetPassword enforces the reset-flow minimum. Kept deliberately
// looser than the signup policy to match existing client behavior.
func ValidateResetPassword(password string) error {
	if len(password) < 6 {
		return validationf("password must be at least 6 characters long")
	}
	return nil
}

package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// sessionExpiry is deliberately short: there is no server-side revocation
// list, so the token lifetime is the only bound on a stolen token.
const sessionExpiry = 7 * time.Minute

// SessionClaims represents the session token claims
type SessionClaims struct {
	UserID uuid.UUID `json:"sub"`
	jwt.RegisteredClaims
}

// JWTService handles session token operations
type JWTService struct {
	secret []byte
}

// NewJWTService creates a new JWT service
func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
	}
}

// SignSession creates a new session token for a user (7-minute expiry).
// Returns ErrNotConfigured if no signing secret is set; callers must treat
// that as a server error, never issue an unsigned token.
func (s *JWTService) SignSession(userID uuid.UUID, now time.Time) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNotConfigured
	}

	claims := &SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return tokenString, nil
}

// VerifySession verifies and parses a session token
func (s *JWTService) VerifySession(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

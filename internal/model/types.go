package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a vault account. TOTPSecret and the reset token fields
// are secret material and must never appear in API responses or logs.
type User struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	PhoneNumber    string
	TOTPSecret     string
	TOTPEnabled    bool
	ResetTokenHash *string
	ResetExpiresAt *time.Time
	CreatedAt      time.Time
}

// TrustedDevice is a device fingerprint the account has approved.
// A fingerprint appears at most once per account; trust lapses when
// TrustedUntil passes (expired rows are filtered at read time).
type TrustedDevice struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	DeviceID     string
	Browser      string
	OS           string
	AddedAt      time.Time
	TrustedUntil time.Time
}

// PendingDevice is a device awaiting email approval. At most one exists
// per account; a new unrecognized sign-in replaces it, invalidating the
// previous approval token.
type PendingDevice struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	DeviceID  string
	Token     string
	Browser   string
	OS        string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Directory groups credentials inside a user's vault.
type Directory struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	Icon        string
	CreatedAt   time.Time
}

// Credential is a stored vault entry. EncryptedPassword is opaque to the
// server: the client encrypts before upload.
type Credential struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	DirectoryID       *uuid.UUID
	Name              string
	Username          string
	EncryptedPassword string
	URL               string
	Notes             string
	CreatedAt         time.Time
}

// ActivityRecord is one row of the account audit trail.
type ActivityRecord struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Action    string
	Details   string
	IPAddress string
	Browser   string
	OS        string
	DeviceID  string
	Success   bool
	CreatedAt time.Time
}

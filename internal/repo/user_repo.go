package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/model"
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error
	EnableTOTP(ctx context.Context, id uuid.UUID) error
	DisableTOTP(ctx context.Context, id uuid.UUID) error
	SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, email, password_hash, phone_number, totp_secret, totp_enabled, reset_token_hash, reset_expires_at, created_at`

func scanUser(row *sql.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.PhoneNumber,
		&user.TOTPSecret,
		&user.TOTPEnabled,
		&user.ResetTokenHash,
		&user.ResetExpiresAt,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

// Create inserts a new user. Returns ErrConflict if the email is taken.
func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, phone_number)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		user.ID, strings.ToLower(user.Email), user.PasswordHash, user.PhoneNumber,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrConflict
		}
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	user.Email = strings.ToLower(user.Email)
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email (case-insensitive)
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// SetTOTPSecret stores a freshly generated secret without enabling TOTP yet.
func (r *userRepo) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	return r.exec(ctx, `UPDATE users SET totp_secret = $2, totp_enabled = FALSE WHERE id = $1`, id, secret)
}

// EnableTOTP marks the stored secret as confirmed.
func (r *userRepo) EnableTOTP(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE users SET totp_enabled = TRUE WHERE id = $1`, id)
}

// DisableTOTP clears the secret and disables the second factor.
func (r *userRepo) DisableTOTP(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, `UPDATE users SET totp_secret = '', totp_enabled = FALSE WHERE id = $1`, id)
}

// SetResetToken stores the hash of an outstanding reset token. A later call
// overwrites the previous token, so only the newest link works.
func (r *userRepo) SetResetToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	return r.exec(ctx, `UPDATE users SET reset_token_hash = $2, reset_expires_at = $3 WHERE id = $1`, id, tokenHash, expiresAt)
}

// FindByResetTokenHash looks up the user holding an unexpired reset token.
func (r *userRepo) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_token_hash = $1 AND reset_expires_at > $2`
	return scanUser(r.db.QueryRowContext(ctx, query, tokenHash, now))
}

// ResetPassword replaces the password hash and consumes the reset token.
func (r *userRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, reset_token_hash = NULL, reset_expires_at = NULL
		WHERE id = $1
	`
	return r.exec(ctx, query, id, passwordHash)
}

func (r *userRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/model"
)

// VaultRepo defines the interface for directory and credential operations.
// Every query is scoped by user ID so one account can never see or touch
// another account's entries.
type VaultRepo interface {
	CreateDirectory(ctx context.Context, dir model.Directory) (model.Directory, error)
	ListDirectories(ctx context.Context, userID uuid.UUID) ([]model.Directory, error)
	UpdateDirectory(ctx context.Context, dir model.Directory) (model.Directory, error)
	DeleteDirectory(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
	CreateCredential(ctx context.Context, cred model.Credential) (model.Credential, error)
	ListCredentials(ctx context.Context, userID uuid.UUID, directoryID *uuid.UUID) ([]model.Credential, error)
	GetCredential(ctx context.Context, userID uuid.UUID, id uuid.UUID) (model.Credential, error)
	UpdateCredential(ctx context.Context, cred model.Credential) (model.Credential, error)
	DeleteCredential(ctx context.Context, userID uuid.UUID, id uuid.UUID) error
}

type vaultRepo struct {
	db *sql.DB
}

// NewVaultRepo creates a new VaultRepo instance
func NewVaultRepo(db *sql.DB) VaultRepo {
	return &vaultRepo{db: db}
}

// CreateDirectory inserts a new directory.
func (r *vaultRepo) CreateDirectory(ctx context.Context, dir model.Directory) (model.Directory, error) {
	query := `
		INSERT INTO directories (id, user_id, name, description, icon)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		dir.ID, dir.UserID, dir.Name, dir.Description, dir.Icon,
	).Scan(&dir.CreatedAt)
	if err != nil {
		return model.Directory{}, fmt.Errorf("failed to create directory: %w", err)
	}
	return dir, nil
}

// ListDirectories returns the user's directories, newest first.
func (r *vaultRepo) ListDirectories(ctx context.Context, userID uuid.UUID) ([]model.Directory, error) {
	query := `
		SELECT id, user_id, name, description, icon, created_at
		FROM directories
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list directories: %w", err)
	}
	defer rows.Close()

	dirs := []model.Directory{}
	for rows.Next() {
		var d model.Directory
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Description, &d.Icon, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan directory: %w", err)
		}
		dirs = append(dirs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directories: %w", err)
	}
	return dirs, nil
}

// UpdateDirectory updates a directory owned by the user.
func (r *vaultRepo) UpdateDirectory(ctx context.Context, dir model.Directory) (model.Directory, error) {
	query := `
		UPDATE directories
		SET name = $3, description = $4, icon = $5
		WHERE id = $1 AND user_id = $2
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		dir.ID, dir.UserID, dir.Name, dir.Description, dir.Icon,
	).Scan(&dir.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Directory{}, ErrNotFound
		}
		return model.Directory{}, fmt.Errorf("failed to update directory: %w", err)
	}
	return dir, nil
}

// DeleteDirectory removes a directory and, via ON DELETE CASCADE, every
// credential filed under it.
func (r *vaultRepo) DeleteDirectory(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM directories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete directory: %w", err)
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

const credentialColumns = `id, user_id, directory_id, name, username, encrypted_password, url, notes, created_at`

func scanCredential(row interface{ Scan(...any) error }) (model.Credential, error) {
	var c model.Credential
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.DirectoryID,
		&c.Name,
		&c.Username,
		&c.EncryptedPassword,
		&c.URL,
		&c.Notes,
		&c.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("failed to query credential: %w", err)
	}
	return c, nil
}

// CreateCredential inserts a new vault entry.
func (r *vaultRepo) CreateCredential(ctx context.Context, cred model.Credential) (model.Credential, error) {
	query := `
		INSERT INTO credentials (id, user_id, directory_id, name, username, encrypted_password, url, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		cred.ID, cred.UserID, cred.DirectoryID, cred.Name,
		cred.Username, cred.EncryptedPassword, cred.URL, cred.Notes,
	).Scan(&cred.CreatedAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, nil
}

// ListCredentials returns the user's credentials, optionally filtered to one
// directory, newest first.
func (r *vaultRepo) ListCredentials(ctx context.Context, userID uuid.UUID, directoryID *uuid.UUID) ([]model.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM credentials
		WHERE user_id = $1 AND ($2::uuid IS NULL OR directory_id = $2)
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, directoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	creds := []model.Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credentials: %w", err)
	}
	return creds, nil
}

// GetCredential retrieves one credential owned by the user.
func (r *vaultRepo) GetCredential(ctx context.Context, userID uuid.UUID, id uuid.UUID) (model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1 AND user_id = $2`
	return scanCredential(r.db.QueryRowContext(ctx, query, id, userID))
}

// UpdateCredential updates a credential owned by the user.
func (r *vaultRepo) UpdateCredential(ctx context.Context, cred model.Credential) (model.Credential, error) {
	query := `
		UPDATE credentials
		SET directory_id = $3, name = $4, username = $5, encrypted_password = $6, url = $7, notes = $8
		WHERE id = $1 AND user_id = $2
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		cred.ID, cred.UserID, cred.DirectoryID, cred.Name,
		cred.Username, cred.EncryptedPassword, cred.URL, cred.Notes,
	).Scan(&cred.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, fmt.Errorf("failed to update credential: %w", err)
	}
	return cred, nil
}

// DeleteCredential removes a credential owned by the user.
func (r *vaultRepo) DeleteCredential(ctx context.Context, userID uuid.UUID, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
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

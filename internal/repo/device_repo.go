package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/model"
)

// DeviceRepo defines the interface for trusted and pending device operations
type DeviceRepo interface {
	UpsertTrusted(ctx context.Context, device model.TrustedDevice) (model.TrustedDevice, error)
	FindActiveTrusted(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (model.TrustedDevice, error)
	ListActiveTrusted(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.TrustedDevice, error)
	DeleteTrusted(ctx context.Context, userID uuid.UUID, deviceID string) (model.TrustedDevice, error)
	ReplacePending(ctx context.Context, pending model.PendingDevice) (model.PendingDevice, error)
	ConsumePendingByToken(ctx context.Context, token string, now time.Time) (model.PendingDevice, error)
}

type deviceRepo struct {
	db *sql.DB
}

// NewDeviceRepo creates a new DeviceRepo instance
func NewDeviceRepo(db *sql.DB) DeviceRepo {
	return &deviceRepo{db: db}
}

const trustedColumns = `id, user_id, device_id, browser, os, added_at, trusted_until`

func scanTrusted(row interface{ Scan(...any) error }) (model.TrustedDevice, error) {
	var d model.TrustedDevice
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.DeviceID,
		&d.Browser,
		&d.OS,
		&d.AddedAt,
		&d.TrustedUntil,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.TrustedDevice{}, ErrNotFound
		}
		return model.TrustedDevice{}, fmt.Errorf("failed to query trusted device: %w", err)
	}
	return d, nil
}

// UpsertTrusted inserts a trusted device or, if the fingerprint is already
// trusted on the account, refreshes its trust window and metadata in place.
func (r *deviceRepo) UpsertTrusted(ctx context.Context, device model.TrustedDevice) (model.TrustedDevice, error) {
	query := `
		INSERT INTO trusted_devices (id, user_id, device_id, browser, os, added_at, trusted_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, device_id) DO UPDATE
		SET browser = EXCLUDED.browser,
		    os = EXCLUDED.os,
		    added_at = EXCLUDED.added_at,
		    trusted_until = EXCLUDED.trusted_until
		RETURNING ` + trustedColumns + `
	`
	row := r.db.QueryRowContext(ctx, query,
		device.ID, device.UserID, device.DeviceID,
		device.Browser, device.OS, device.AddedAt, device.TrustedUntil,
	)
	return scanTrusted(row)
}

// FindActiveTrusted returns the trusted device row for the fingerprint if its
// trust window is still open.
func (r *deviceRepo) FindActiveTrusted(ctx context.Context, userID uuid.UUID, deviceID string, now time.Time) (model.TrustedDevice, error) {
	query := `
		SELECT ` + trustedColumns + `
		FROM trusted_devices
		WHERE user_id = $1 AND device_id = $2 AND trusted_until > $3
	`
	return scanTrusted(r.db.QueryRowContext(ctx, query, userID, deviceID, now))
}

// ListActiveTrusted returns all unexpired trusted devices for the account,
// newest first.
func (r *deviceRepo) ListActiveTrusted(ctx context.Context, userID uuid.UUID, now time.Time) ([]model.TrustedDevice, error) {
	query := `
		SELECT ` + trustedColumns + `
		FROM trusted_devices
		WHERE user_id = $1 AND trusted_until > $2
		ORDER BY added_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}
	defer rows.Close()

	devices := []model.TrustedDevice{}
	for rows.Next() {
		d, err := scanTrusted(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trusted devices: %w", err)
	}
	return devices, nil
}

// DeleteTrusted removes a trusted device by fingerprint and returns the
// deleted row so callers can tell whether the current device revoked itself.
func (r *deviceRepo) DeleteTrusted(ctx context.Context, userID uuid.UUID, deviceID string) (model.TrustedDevice, error) {
	query := `
		DELETE FROM trusted_devices
		WHERE user_id = $1 AND device_id = $2
		RETURNING ` + trustedColumns + `
	`
	return scanTrusted(r.db.QueryRowContext(ctx, query, userID, deviceID))
}

// ReplacePending installs a new pending device for the account, discarding
// any previous one. The per-user advisory lock serializes concurrent
// unrecognized sign-ins so exactly one approval token survives.
func (r *deviceRepo) ReplacePending(ctx context.Context, pending model.PendingDevice) (model.PendingDevice, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PendingDevice{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(1, hashtext($1))`, pending.UserID.String()); err != nil {
		return model.PendingDevice{}, fmt.Errorf("failed to acquire advisory lock: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_devices WHERE user_id = $1`, pending.UserID); err != nil {
		return model.PendingDevice{}, fmt.Errorf("failed to clear pending device: %w", err)
	}

	query := `
		INSERT INTO pending_devices (id, user_id, device_id, token, browser, os, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, query,
		pending.ID, pending.UserID, pending.DeviceID, pending.Token,
		pending.Browser, pending.OS, pending.ExpiresAt,
	).Scan(&pending.CreatedAt)
	if err != nil {
		return model.PendingDevice{}, fmt.Errorf("failed to insert pending device: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.PendingDevice{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return pending, nil
}

// ConsumePendingByToken atomically deletes the unexpired pending device
// matching the token and returns it. A second call with the same token
// finds nothing, so approval links are single-use.
func (r *deviceRepo) ConsumePendingByToken(ctx context.Context, token string, now time.Time) (model.PendingDevice, error) {
	query := `
		DELETE FROM pending_devices
		WHERE token = $1 AND expires_at > $2
		RETURNING id, user_id, device_id, token, browser, os, expires_at, created_at
	`
	var p model.PendingDevice
	err := r.db.QueryRowContext(ctx, query, token, now).Scan(
		&p.ID,
		&p.UserID,
		&p.DeviceID,
		&p.Token,
		&p.Browser,
		&p.OS,
		&p.ExpiresAt,
		&p.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.PendingDevice{}, ErrNotFound
		}
		return model.PendingDevice{}, fmt.Errorf("failed to consume pending device: %w", err)
	}
	return p, nil
}

package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/clupso/server/internal/model"
)

// ActivityRepo defines the interface for the account audit trail
type ActivityRepo interface {
	Record(ctx context.Context, rec model.ActivityRecord) error
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.ActivityRecord, error)
}

type activityRepo struct {
	db *sql.DB
}

// NewActivityRepo creates a new ActivityRepo instance
func NewActivityRepo(db *sql.DB) ActivityRepo {
	return &activityRepo{db: db}
}

// Record appends one entry to the audit trail.
func (r *activityRepo) Record(ctx context.Context, rec model.ActivityRecord) error {
	query := `
		INSERT INTO activity_log (id, user_id, action, details, ip_address, browser, os, device_id, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.Action, rec.Details,
		rec.IPAddress, rec.Browser, rec.OS, rec.DeviceID, rec.Success,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListRecent returns the newest entries for the account.
func (r *activityRepo) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]model.ActivityRecord, error) {
	query := `
		SELECT id, user_id, action, details, ip_address, browser, os, device_id, success, created_at
		FROM activity_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	records := []model.ActivityRecord{}
	for rows.Next() {
		var rec model.ActivityRecord
		err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Action,
			&rec.Details,
			&rec.IPAddress,
			&rec.Browser,
			&rec.OS,
			&rec.DeviceID,
			&rec.Success,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activity records: %w", err)
	}
	return records, nil
}

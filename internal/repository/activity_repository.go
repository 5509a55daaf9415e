package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aftab-edu/exam-studio-api/internal/models"
)

// ActivityRepository provides database access for the activity log.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository creates a new instance of ActivityRepository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts an activity entry and trims the log so at most
// models.ActivityLogCap rows remain, discarding the oldest.
func (r *ActivityRepository) Append(ctx context.Context, entry *models.ActivityLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	const insertQuery = `INSERT INTO activity_log (id, user_id, user_name, school_name, action, details, timestamp) VALUES (:id, :user_id, :user_name, :school_name, :action, :details, :timestamp)`
	if _, err := r.db.NamedExecContext(ctx, insertQuery, entry); err != nil {
		return fmt.Errorf("append activity: %w", err)
	}

	const trimQuery = `DELETE FROM activity_log WHERE id NOT IN (SELECT id FROM activity_log ORDER BY timestamp DESC LIMIT $1)`
	if _, err := r.db.ExecContext(ctx, trimQuery, models.ActivityLogCap); err != nil {
		return fmt.Errorf("trim activity log: %w", err)
	}
	return nil
}

// List returns activity entries newest first. An empty schoolName returns the
// entire log; limit <= 0 falls back to the retention cap.
func (r *ActivityRepository) List(ctx context.Context, schoolName string, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > models.ActivityLogCap {
		limit = models.ActivityLogCap
	}

	var entries []models.ActivityLog
	if schoolName == "" {
		const query = `SELECT id, user_id, user_name, school_name, action, details, timestamp FROM activity_log ORDER BY timestamp DESC LIMIT $1`
		if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
			return nil, fmt.Errorf("list activity: %w", err)
		}
		return entries, nil
	}

	const query = `SELECT id, user_id, user_name, school_name, action, details, timestamp FROM activity_log WHERE school_name = $1 ORDER BY timestamp DESC LIMIT $2`
	if err := r.db.SelectContext(ctx, &entries, query, schoolName, limit); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return entries, nil
}

package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite access to the local run history.
type Storage struct {
	db *sql.DB
}

// NewStorage opens (or creates) the run-history database at dbPath
// and brings the schema up to date.
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// CreateRun records a newly submitted run.
func (s *Storage) CreateRun(record *RunRecord) error {
	if record.Status == "" {
		record.Status = StatusPending
	}
	if record.StartedAt.IsZero() {
		record.StartedAt = time.Now().UTC()
	}

	query := `
	INSERT INTO rpa_runs
	(id, platform, login_url, target_url, user_id, status, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		record.ID,
		record.Platform,
		record.LoginURL,
		record.TargetURL,
		record.UserID,
		record.Status,
		record.StartedAt,
	)
	return err
}

// MarkRunning flips a pending run to running.
func (s *Storage) MarkRunning(id string) error {
	_, err := s.db.Exec(`UPDATE rpa_runs SET status = ? WHERE id = ?`, StatusRunning, id)
	return err
}

// CompleteRun records the outcome of a finished run.
func (s *Storage) CompleteRun(id string, success bool, customers, orders, items int, message string) error {
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}

	query := `
	UPDATE rpa_runs
	SET status = ?,
	    success = ?,
	    customers = ?,
	    orders = ?,
	    items = ?,
	    message = ?,
	    completed_at = CURRENT_TIMESTAMP
	WHERE id = ?
	`
	_, err := s.db.Exec(query, status, success, customers, orders, items, message, id)
	return err
}

// GetRun retrieves one run by id.
func (s *Storage) GetRun(id string) (*RunRecord, error) {
	query := `
	SELECT id, platform, login_url, target_url, user_id, status, success,
	       customers, orders, items, message, started_at, completed_at
	FROM rpa_runs WHERE id = ?
	`
	record := &RunRecord{}
	var completedAt sql.NullTime
	err := s.db.QueryRow(query, id).Scan(
		&record.ID,
		&record.Platform,
		&record.LoginURL,
		&record.TargetURL,
		&record.UserID,
		&record.Status,
		&record.Success,
		&record.Customers,
		&record.Orders,
		&record.Items,
		&record.Message,
		&record.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	return record, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Storage) ListRuns(limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, platform, login_url, target_url, user_id, status, success,
	       customers, orders, items, message, started_at, completed_at
	FROM rpa_runs
	ORDER BY started_at DESC, id DESC
	LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*RunRecord
	for rows.Next() {
		record := &RunRecord{}
		var completedAt sql.NullTime
		if err := rows.Scan(
			&record.ID,
			&record.Platform,
			&record.LoginURL,
			&record.TargetURL,
			&record.UserID,
			&record.Status,
			&record.Success,
			&record.Customers,
			&record.Orders,
			&record.Items,
			&record.Message,
			&record.StartedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			record.CompletedAt = &completedAt.Time
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetStats aggregates the last 30 days of run history.
func (s *Storage) GetStats() (*RunStats, error) {
	stats := &RunStats{}
	query := `
	SELECT
		COUNT(*) as total,
		COUNT(CASE WHEN status = 'completed' THEN 1 END) as completed,
		COUNT(CASE WHEN status = 'failed' THEN 1 END) as failed,
		COUNT(CASE WHEN status = 'running' THEN 1 END) as running,
		COALESCE(SUM(customers + orders + items), 0) as saved_rows
	FROM rpa_runs
	WHERE started_at > datetime('now', '-30 days')
	`
	err := s.db.QueryRow(query).Scan(
		&stats.Total,
		&stats.Completed,
		&stats.Failed,
		&stats.Running,
		&stats.SavedRows,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

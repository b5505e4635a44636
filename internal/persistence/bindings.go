package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveWorkerBinding stores the worker type a branch correlation key runs
// under, so a branch sticks with its worker across reloads and mid-run
// config edits. Uses ON CONFLICT to upsert, covering both first-save and
// resume.
func (s *SQLiteStore) SaveWorkerBinding(ctx context.Context, branchKey, workerType string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_bindings (branch_key, worker_type)
		VALUES (?, ?)
		ON CONFLICT(branch_key) DO UPDATE SET
			worker_type = excluded.worker_type
	`, branchKey, workerType)
	if err != nil {
		return fmt.Errorf("failed to save worker binding: %w", err)
	}
	return nil
}

// GetWorkerBinding retrieves the worker type bound to a branch
// correlation key. Returns a wrapped sql.ErrNoRows if no binding exists.
func (s *SQLiteStore) GetWorkerBinding(ctx context.Context, branchKey string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var workerType string
	err := s.db.QueryRowContext(ctx, `
		SELECT worker_type
		FROM worker_bindings
		WHERE branch_key = ?
	`, branchKey).Scan(&workerType)

	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no worker binding for branch %q: %w", branchKey, err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query worker binding: %w", err)
	}
	return workerType, nil
}

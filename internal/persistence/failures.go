package persistence

import (
	"context"
	"fmt"

	"github.com/oakbuild/foreman/internal/engine"
)

// SaveFailure appends a drained workflow failure to the audit trail.
// Failures are append-only; the engine has already taken the forced
// transition, this is the user-facing record of it.
func (s *SQLiteStore) SaveFailure(ctx context.Context, failure engine.WorkflowFailure) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failures (kind, task_id, task_title, attempts, reason, action)
		VALUES (?, ?, ?, ?, ?, ?)
	`, failure.Kind.String(), failure.TaskID, failure.TaskTitle, failure.Attempts, failure.Reason, failure.Action)
	if err != nil {
		return fmt.Errorf("failed to save failure: %w", err)
	}
	return nil
}

// ListFailures returns all recorded workflow failures in insertion order.
func (s *SQLiteStore) ListFailures(ctx context.Context) ([]engine.WorkflowFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, task_id, task_title, attempts, reason, action
		FROM failures
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var failures []engine.WorkflowFailure
	for rows.Next() {
		var f engine.WorkflowFailure
		var kind string
		if err := rows.Scan(&kind, &f.TaskID, &f.TaskTitle, &f.Attempts, &f.Reason, &f.Action); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		parsed, err := engine.ParseFailureKind(kind)
		if err != nil {
			return nil, fmt.Errorf("failed to parse failure kind: %w", err)
		}
		f.Kind = parsed
		failures = append(failures, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}
	return failures, nil
}

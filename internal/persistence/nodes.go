package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/oakbuild/foreman/internal/snapshot"
)

// SaveNodes replaces the persisted node set with the given records in a
// single transaction, preserving record order. Writing the whole
// snapshot keeps the store loss-less for mid-run states: a reload must
// resume exactly at the next unfinished step.
func (s *SQLiteStore) SaveNodes(ctx context.Context, records []snapshot.Record) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
		return fmt.Errorf("failed to clear nodes: %w", err)
	}

	for i, rec := range records {
		docs, err := json.Marshal(rec.Docs)
		if err != nil {
			return fmt.Errorf("failed to marshal docs for node %s: %w", rec.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, title, details, docs, role, status, parent_id, order_key, position, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		`, rec.ID, rec.Title, rec.Details, string(docs), rec.Role, rec.Status, rec.ParentID, rec.Order, i)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadNodes returns all persisted node records in their saved order.
func (s *SQLiteStore) LoadNodes(ctx context.Context) ([]snapshot.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, details, docs, role, status, parent_id, order_key
		FROM nodes
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var records []snapshot.Record
	for rows.Next() {
		var rec snapshot.Record
		var docs sql.NullString
		var parentID sql.NullString

		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Details, &docs, &rec.Role, &rec.Status, &parentID, &rec.Order); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		if parentID.Valid {
			rec.ParentID = parentID.String
		}
		if docs.Valid && docs.String != "" && docs.String != "null" {
			if err := json.Unmarshal([]byte(docs.String), &rec.Docs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal docs for node %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return records, nil
}

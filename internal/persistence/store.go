package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/oakbuild/foreman/internal/engine"
	"github.com/oakbuild/foreman/internal/snapshot"
)

// Store is the task store collaborator: the external representation the
// snapshot codec reads on load and writes on every externally visible
// state change. The engine treats it purely as a serialization target.
type Store interface {
	// Node records
	SaveNodes(ctx context.Context, records []snapshot.Record) error
	LoadNodes(ctx context.Context) ([]snapshot.Record, error)

	// Workflow failure audit trail
	SaveFailure(ctx context.Context, failure engine.WorkflowFailure) error
	ListFailures(ctx context.Context) ([]engine.WorkflowFailure, error)

	// Worker-type bindings keyed by branch correlation key
	SaveWorkerBinding(ctx context.Context, branchKey, workerType string) error
	GetWorkerBinding(ctx context.Context, branchKey string) (workerType string, err error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy
// timeout through the connection string.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for testing. A shared cache
// lets multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	return open(ctx, "file::memory:?mode=memory&cache=shared")
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite needs foreign keys enabled via PRAGMA.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

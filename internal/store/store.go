// Package store exports (source, paraphrase, label) pairs to SQLite so runs
// can be queried and compared after the TSV is written.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"backtranslate/internal/logging"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// NewRunID returns a fresh identifier for one augmentation run.
func NewRunID() string {
	return uuid.NewString()
}

// Models names the two translation directions a run used.
type Models struct {
	Forward  string
	Backward string
}

// Pair is one augmented row.
type Pair struct {
	Label      string
	Source     string
	Paraphrase string
}

// PairStore manages the pairs database.
type PairStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open creates or opens a pairs database at path.
func Open(path string) (*PairStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &PairStore{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *PairStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *PairStore) Path() string {
	return s.dbPath
}

func (s *PairStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS augmentations (
		run_id TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		label TEXT NOT NULL,
		source TEXT NOT NULL,
		paraphrase TEXT NOT NULL,
		forward_model TEXT NOT NULL,
		backward_model TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (run_id, row_index)
	);
	CREATE INDEX IF NOT EXISTS idx_augmentations_label ON augmentations(label);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SavePairs writes every row of a run in one transaction.
func (s *PairStore) SavePairs(ctx context.Context, runID string, models Models, pairs []Pair) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SavePairs")
	defer timer.Stop()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO augmentations
			(run_id, row_index, label, source, paraphrase, forward_model, backward_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i, p := range pairs {
		if _, err := stmt.ExecContext(ctx, runID, i, p.Label, p.Source, p.Paraphrase, models.Forward, models.Backward, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pairs: %w", err)
	}

	logging.Get(logging.CategoryStore).Info("Saved pairs",
		zap.String("run_id", runID),
		zap.Int("rows", len(pairs)),
		zap.String("path", s.dbPath))
	return nil
}

// CountRun returns how many rows a run stored.
func (s *PairStore) CountRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM augmentations WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count run %s: %w", runID, err)
	}
	return n, nil
}

// LoadRun returns a run's rows in row order.
func (s *PairStore) LoadRun(ctx context.Context, runID string) ([]Pair, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT label, source, paraphrase FROM augmentations WHERE run_id = ? ORDER BY row_index", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Pair
	for rows.Next() {
		var p Pair
		if err := rows.Scan(&p.Label, &p.Source, &p.Paraphrase); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

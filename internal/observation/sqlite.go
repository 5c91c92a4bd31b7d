package observation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite observation store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets history reads proceed while an observation is written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanObservation(s scanner) (*Observation, error) {
	obs := &Observation{}
	err := s.Scan(&obs.ID, &obs.EvaluationID, &obs.UserID, &obs.Text, &obs.CreatedAt, &obs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return obs, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS observaciones (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		evaluacion_id TEXT NOT NULL UNIQUE,
		user_id TEXT DEFAULT '',
		texto TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_observaciones_user ON observaciones(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Save creates or replaces the observation for an evaluation.
func (s *SQLiteStore) Save(ctx context.Context, obs *Observation) error {
	now := time.Now()

	var existingID int64
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at FROM observaciones WHERE evaluacion_id = ?",
		obs.EvaluationID,
	).Scan(&existingID, &createdAt)

	if err == nil {
		_, err = s.db.ExecContext(ctx,
			"UPDATE observaciones SET texto = ?, user_id = ?, updated_at = ? WHERE id = ?",
			obs.Text, obs.UserID, now, existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		obs.ID = existingID
		obs.CreatedAt = createdAt
		obs.UpdatedAt = now
		return nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to check existing: %w", err)
	}

	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}
	obs.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO observaciones (evaluacion_id, user_id, texto, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, obs.EvaluationID, obs.UserID, obs.Text, obs.CreatedAt, obs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	obs.ID = id

	return nil
}

// Get returns the observation for an evaluation.
func (s *SQLiteStore) Get(ctx context.Context, evaluationID string) (*Observation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, evaluacion_id, user_id, texto, created_at, updated_at
		FROM observaciones
		WHERE evaluacion_id = ?
	`, evaluationID)

	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return obs, nil
}

// ListFor returns observation texts for the given evaluations.
func (s *SQLiteStore) ListFor(ctx context.Context, evaluationIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(evaluationIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(evaluationIDs)), ",")
	args := make([]interface{}, len(evaluationIDs))
	for i, id := range evaluationIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT evaluacion_id, texto FROM observaciones WHERE evaluacion_id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, text string
		if err := rows.Scan(&id, &text); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out[id] = text
	}
	return out, rows.Err()
}

// Delete removes the observation for an evaluation.
func (s *SQLiteStore) Delete(ctx context.Context, evaluationID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM observaciones WHERE evaluacion_id = ?", evaluationID)
	return err
}

func (s *SQLiteStore) list(ctx context.Context, limit int) ([]*Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, evaluacion_id, user_id, texto, created_at, updated_at
		FROM observaciones
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, obs)
	}
	return result, rows.Err()
}

// ExportJSON exports all observations to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer) error {
	all, err := s.list(ctx, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list observations: %w", err)
	}
	return writeExport(w, all)
}

// ImportJSON imports observations from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, r io.Reader) (int, int, error) {
	return importInto(ctx, s, r)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

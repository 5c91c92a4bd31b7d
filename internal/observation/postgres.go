package observation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL observation store.
// It expects the observaciones table to exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL observation store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save creates or replaces the observation for an evaluation.
func (s *PostgresStore) Save(ctx context.Context, obs *Observation) error {
	now := time.Now()
	if obs.CreatedAt.IsZero() {
		obs.CreatedAt = now
	}

	query := `
		INSERT INTO observaciones (evaluacion_id, user_id, texto, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (evaluacion_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			texto = EXCLUDED.texto,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		obs.EvaluationID,
		obs.UserID,
		obs.Text,
		obs.CreatedAt,
		now,
	).Scan(&obs.ID, &obs.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}

	obs.UpdatedAt = now
	return nil
}

// Get returns the observation for an evaluation.
func (s *PostgresStore) Get(ctx context.Context, evaluationID string) (*Observation, error) {
	query := `
		SELECT id, evaluacion_id, user_id, texto, created_at, updated_at
		FROM observaciones
		WHERE evaluacion_id = $1
	`

	obs, err := scanObservation(s.db.QueryRowContext(ctx, query, evaluationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get observation: %w", err)
	}
	return obs, nil
}

// ListFor returns observation texts for the given evaluations.
func (s *PostgresStore) ListFor(ctx context.Context, evaluationIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(evaluationIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT evaluacion_id, texto FROM observaciones WHERE evaluacion_id = ANY($1)",
		pq.Array(evaluationIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
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
func (s *PostgresStore) Delete(ctx context.Context, evaluationID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM observaciones WHERE evaluacion_id = $1", evaluationID)
	if err != nil {
		return fmt.Errorf("failed to delete observation: %w", err)
	}
	return nil
}

// ExportJSON exports all observations to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, evaluacion_id, user_id, texto, created_at, updated_at
		FROM observaciones
		ORDER BY created_at DESC
		LIMIT $1
	`, maxExportLimit)
	if err != nil {
		return fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var all []*Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		all = append(all, obs)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return writeExport(w, all)
}

// ImportJSON imports observations from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, r io.Reader) (int, int, error) {
	return importInto(ctx, s, r)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

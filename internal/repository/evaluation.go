package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// EvaluationRepository persists evaluations in the evaluaciones table.
type EvaluationRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db *pgxpool.Pool, logger *logrus.Logger) *EvaluationRepository {
	return &EvaluationRepository{
		db:  db,
		log: logger,
	}
}

const evaluationColumns = `id, user_id, datos_paciente, prediccion, prediccion_codigo,
		   probabilidades, factores, confianza, created_at`

// Create inserts a new evaluation and returns the stored record.
func (r *EvaluationRepository) Create(ctx context.Context, userID string, patient domain.PatientData, prediction domain.PredictionResult) (*domain.EvaluationRecord, error) {
	rec, err := newRecord(userID, patient, prediction, time.Now())
	if err != nil {
		return nil, &domain.StoreError{Op: "create", Err: err}
	}

	query := `
		INSERT INTO evaluaciones (
			id, user_id, datos_paciente, prediccion, prediccion_codigo,
			probabilidades, factores, confianza, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err = r.db.Exec(ctx, query,
		rec.ID,
		rec.UserID,
		rec.DatosPaciente,
		rec.Prediccion,
		int(rec.PrediccionCodigo),
		rec.Probabilidades,
		rec.Factores,
		rec.Confianza,
		rec.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to create evaluation")
		return nil, &domain.StoreError{Op: "create", Err: err}
	}

	r.log.WithFields(logrus.Fields{
		"evaluation_id": rec.ID,
		"prediccion":    rec.Prediccion,
	}).Info("Evaluation stored")

	return rec, nil
}

// List returns one page of evaluations, newest first.
func (r *EvaluationRepository) List(ctx context.Context, opts domain.ListOptions) (*domain.EvaluationPage, error) {
	opts = opts.Normalize()

	var total int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM evaluaciones WHERE ($1 = '' OR user_id = $1)`,
		opts.UserID,
	).Scan(&total)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: fmt.Errorf("counting evaluations: %w", err)}
	}

	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluaciones
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	records, err := r.query(ctx, query, opts.UserID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}

	return &domain.EvaluationPage{Records: records, TotalCount: total}, nil
}

// All returns every evaluation for a user, newest first.
func (r *EvaluationRepository) All(ctx context.Context, userID string) ([]domain.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluaciones
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC`

	records, err := r.query(ctx, query, userID)
	if err != nil {
		return nil, &domain.StoreError{Op: "all", Err: err}
	}
	return records, nil
}

// Get retrieves one evaluation by id.
func (r *EvaluationRepository) Get(ctx context.Context, id string) (*domain.EvaluationRecord, error) {
	query := `
		SELECT ` + evaluationColumns + `
		FROM evaluaciones
		WHERE id = $1`

	rec, err := scanEvaluation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"evaluation_id": id,
			"error":         err,
		}).Error("Failed to get evaluation")
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return rec, nil
}

func (r *EvaluationRepository) query(ctx context.Context, query string, args ...interface{}) ([]domain.EvaluationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evaluations: %w", err)
	}
	defer rows.Close()

	records := make([]domain.EvaluationRecord, 0)
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning evaluation: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating evaluations: %w", err)
	}
	return records, nil
}

func scanEvaluation(row pgx.Row) (*domain.EvaluationRecord, error) {
	var (
		rec  domain.EvaluationRecord
		code int
	)
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.DatosPaciente,
		&rec.Prediccion,
		&code,
		&rec.Probabilidades,
		&rec.Factores,
		&rec.Confianza,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.PrediccionCodigo = domain.Severity(code)
	return &rec, nil
}

// newRecord builds the immutable record for an accepted prediction.
func newRecord(userID string, patient domain.PatientData, prediction domain.PredictionResult, now time.Time) (*domain.EvaluationRecord, error) {
	severity, err := prediction.Severity()
	if err != nil {
		return nil, err
	}

	factores := prediction.Factores
	if factores == nil {
		factores = []string{}
	}

	return &domain.EvaluationRecord{
		ID:               uuid.New().String(),
		UserID:           userID,
		DatosPaciente:    patient,
		Prediccion:       severity.Label(),
		PrediccionCodigo: severity,
		Probabilidades:   prediction.Probabilidades,
		Factores:         factores,
		Confianza:        prediction.Confianza,
		CreatedAt:        now,
	}, nil
}

var _ domain.EvaluationStore = (*EvaluationRepository)(nil)

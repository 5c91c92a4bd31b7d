package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// MemoryEvaluationStore keeps evaluations in process memory. It backs the
// demo deployment and tests.
type MemoryEvaluationStore struct {
	mu      sync.RWMutex
	records []domain.EvaluationRecord
	now     func() time.Time
	log     *logrus.Logger
}

// NewMemoryEvaluationStore creates an empty in-memory store.
func NewMemoryEvaluationStore(logger *logrus.Logger) *MemoryEvaluationStore {
	return &MemoryEvaluationStore{
		now: time.Now,
		log: logger,
	}
}

// Create stores a new evaluation.
func (s *MemoryEvaluationStore) Create(ctx context.Context, userID string, patient domain.PatientData, prediction domain.PredictionResult) (*domain.EvaluationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "create", Err: err}
	}

	rec, err := newRecord(userID, patient, prediction, s.now())
	if err != nil {
		return nil, &domain.StoreError{Op: "create", Err: err}
	}

	s.mu.Lock()
	s.records = append(s.records, *rec)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"evaluation_id": rec.ID,
		"prediccion":    rec.Prediccion,
	}).Debug("Evaluation stored in memory")

	out := *rec
	return &out, nil
}

// List returns one page of evaluations, newest first.
func (s *MemoryEvaluationStore) List(ctx context.Context, opts domain.ListOptions) (*domain.EvaluationPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	opts = opts.Normalize()

	all := s.snapshot(opts.UserID)
	page := &domain.EvaluationPage{
		Records:    []domain.EvaluationRecord{},
		TotalCount: len(all),
	}
	if opts.Offset >= len(all) {
		return page, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	page.Records = all[opts.Offset:end]
	return page, nil
}

// All returns every evaluation for a user, newest first.
func (s *MemoryEvaluationStore) All(ctx context.Context, userID string) ([]domain.EvaluationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "all", Err: err}
	}
	return s.snapshot(userID), nil
}

// Get retrieves one evaluation by id.
func (s *MemoryEvaluationStore) Get(ctx context.Context, id string) (*domain.EvaluationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "get", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ID == id {
			out := rec
			return &out, nil
		}
	}
	return nil, fmt.Errorf("evaluation %s: %w", id, domain.ErrNotFound)
}

// Len returns the number of stored evaluations.
func (s *MemoryEvaluationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// snapshot copies the matching records sorted newest first. Records created
// at the same instant keep reverse insertion order. An empty userID matches
// every record.
func (s *MemoryEvaluationStore) snapshot(userID string) []domain.EvaluationRecord {
	s.mu.RLock()
	out := make([]domain.EvaluationRecord, 0, len(s.records))
	for i := len(s.records) - 1; i >= 0; i-- {
		if rec := s.records[i]; userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

var _ domain.EvaluationStore = (*MemoryEvaluationStore)(nil)

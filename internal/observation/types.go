// Package observation stores free-text clinical observations attached to
// evaluations. An evaluation has at most one observation.
package observation

import (
	"context"
	"io"
	"time"
)

// MaxTextLength bounds the size of a single observation.
const MaxTextLength = 2000

// Observation is a clinician's note on one evaluation.
type Observation struct {
	ID           int64     `json:"id,omitempty"`
	EvaluationID string    `json:"evaluation_id"`
	UserID       string    `json:"user_id,omitempty"`
	Text         string    `json:"texto"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store defines the interface for observation storage operations.
type Store interface {
	// Save creates or replaces the observation for obs.EvaluationID.
	Save(ctx context.Context, obs *Observation) error

	// Get returns the observation for an evaluation, or nil if there is none.
	Get(ctx context.Context, evaluationID string) (*Observation, error)

	// ListFor returns observation texts keyed by evaluation id. Ids without
	// an observation are absent from the map.
	ListFor(ctx context.Context, evaluationIDs []string) (map[string]string, error)

	// Delete removes the observation for an evaluation. Deleting a missing
	// observation is not an error.
	Delete(ctx context.Context, evaluationID string) error

	// ExportJSON writes every observation to w.
	ExportJSON(ctx context.Context, w io.Writer) error

	// ImportJSON loads observations from r, skipping evaluations that already
	// have one.
	ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error)

	Close() error
}

// Export is the JSON export format.
type Export struct {
	Version      string         `json:"version"`
	ExportedAt   time.Time      `json:"exported_at"`
	Count        int            `json:"count"`
	Observations []*Observation `json:"observaciones"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries exported at once.
const maxExportLimit = 1000000

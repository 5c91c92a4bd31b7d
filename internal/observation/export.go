package observation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

func writeExport(w io.Writer, all []*Observation) error {
	export := &Export{
		Version:      exportVersion,
		ExportedAt:   time.Now(),
		Count:        len(all),
		Observations: all,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importInto decodes an export and saves every observation whose evaluation
// has none yet.
func importInto(ctx context.Context, s Store, r io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, obs := range export.Observations {
		if obs == nil || obs.EvaluationID == "" {
			skipped++
			continue
		}

		existing, err := s.Get(ctx, obs.EvaluationID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, obs); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

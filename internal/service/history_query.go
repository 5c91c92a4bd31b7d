package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// DefaultPageSize is the number of history rows per page.
const DefaultPageSize = 8

// HistoryFilter narrows the history listing. An empty Severity behaves like
// domain.SeverityAll.
type HistoryFilter struct {
	Search   string `json:"search"`
	Severity string `json:"severity"`
}

// SearchField extracts one searchable string from a record.
type SearchField func(domain.EvaluationRecord) string

// SearchFieldRegistry maps configuration names to extractors.
type SearchFieldRegistry struct {
	mu     sync.RWMutex
	fields map[string]SearchField
}

// NewSearchFieldRegistry returns a registry holding every built-in field.
func NewSearchFieldRegistry() *SearchFieldRegistry {
	r := &SearchFieldRegistry{fields: make(map[string]SearchField)}
	r.Register("id", func(e domain.EvaluationRecord) string { return e.ID })
	r.Register("prediccion", func(e domain.EvaluationRecord) string { return e.Prediccion })
	r.Register("grupo_edad", func(e domain.EvaluationRecord) string { return e.DatosPaciente.GrupoEdad })
	r.Register("sexo", func(e domain.EvaluationRecord) string { return e.DatosPaciente.Sexo })
	r.Register("area", func(e domain.EvaluationRecord) string { return e.DatosPaciente.Area })
	r.Register("estado_nutricional", func(e domain.EvaluationRecord) string { return e.DatosPaciente.EstadoNutricional })
	r.Register("hallazgo_examen_fisico", func(e domain.EvaluationRecord) string { return e.DatosPaciente.HallazgoExamenFisico })
	r.Register("triage", func(e domain.EvaluationRecord) string { return e.DatosPaciente.Triage })
	r.Register("vacunacion", func(e domain.EvaluationRecord) string { return e.DatosPaciente.Vacunacion })
	r.Register("antecedentes", func(e domain.EvaluationRecord) string { return e.DatosPaciente.Antecedentes })
	return r
}

// Register adds or replaces a named field.
func (r *SearchFieldRegistry) Register(name string, fn SearchField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[name] = fn
}

// Names lists registered field names in sorted order.
func (r *SearchFieldRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the extractors for the given names in the same order.
func (r *SearchFieldRegistry) Resolve(names []string) ([]SearchField, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SearchField, 0, len(names))
	for _, name := range names {
		fn, ok := r.fields[name]
		if !ok {
			return nil, fmt.Errorf("unknown search field %q", name)
		}
		out = append(out, fn)
	}
	return out, nil
}

// FilterEvaluations keeps the records matching both the severity filter and
// the search text. Search is a case-insensitive substring match against any
// of the given fields; an empty search matches everything. Input order is
// preserved.
func FilterEvaluations(records []domain.EvaluationRecord, filter HistoryFilter, fields []SearchField) []domain.EvaluationRecord {
	return pick(records, filterPositions(records, filter, fields))
}

func pick(records []domain.EvaluationRecord, positions []int) []domain.EvaluationRecord {
	out := make([]domain.EvaluationRecord, len(positions))
	for i, pos := range positions {
		out[i] = records[pos]
	}
	return out
}

func filterPositions(records []domain.EvaluationRecord, filter HistoryFilter, fields []SearchField) []int {
	q := strings.ToLower(filter.Search)
	severity := filter.Severity
	if severity == "" {
		severity = domain.SeverityAll
	}

	positions := make([]int, 0, len(records))
	for i, rec := range records {
		if matches(rec, q, severity, fields) {
			positions = append(positions, i)
		}
	}
	return positions
}

func matches(rec domain.EvaluationRecord, q, severity string, fields []SearchField) bool {
	if severity != domain.SeverityAll && rec.Prediccion != severity {
		return false
	}
	return q == "" || matchesAny(rec, q, fields)
}

func matchesAny(rec domain.EvaluationRecord, q string, fields []SearchField) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field(rec)), q) {
			return true
		}
	}
	return false
}

// HistoryPage is one page of filtered history.
type HistoryPage struct {
	Items        []domain.EvaluationRecord `json:"items"`
	Page         int                       `json:"page"`
	PageSize     int                       `json:"page_size"`
	TotalPages   int                       `json:"total_pages"`
	TotalMatches int                       `json:"total_matches"`
	Counts       SeverityCounts            `json:"counts"`
}

// SeverityCounts tallies the whole unfiltered collection.
type SeverityCounts struct {
	Leve     int `json:"leve"`
	Moderada int `json:"moderada"`
	Severa   int `json:"severa"`
}

// CountSeverities tallies records by severity code.
func CountSeverities(records []domain.EvaluationRecord) SeverityCounts {
	var c SeverityCounts
	for _, rec := range records {
		switch rec.PrediccionCodigo {
		case domain.SeverityLeve:
			c.Leve++
		case domain.SeverityModerada:
			c.Moderada++
		case domain.SeveritySevera:
			c.Severa++
		}
	}
	return c
}

// Paginate returns the 1-indexed page of records. Pages below 1 are clamped
// to 1 and a page past the end is empty. Items never exceeds pageSize.
func Paginate(records []domain.EvaluationRecord, page, pageSize int) HistoryPage {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	total := len(records)
	totalPages := (total + pageSize - 1) / pageSize

	start, end := total, total
	if page <= totalPages {
		start = (page - 1) * pageSize
		end = min(start+pageSize, total)
	}

	items := make([]domain.EvaluationRecord, end-start)
	copy(items, records[start:end])

	return HistoryPage{
		Items:        items,
		Page:         page,
		PageSize:     pageSize,
		TotalPages:   totalPages,
		TotalMatches: total,
	}
}

// HistoryState is the explicit view state of the history page.
type HistoryState struct {
	Search   string `json:"search"`
	Severity string `json:"severity"`
	Page     int    `json:"page"`
	Expanded string `json:"expanded,omitempty"`
}

// NewHistoryState returns the initial state: no search, every severity, page 1.
func NewHistoryState() HistoryState {
	return HistoryState{Severity: domain.SeverityAll, Page: 1}
}

// SetSearch changes the search text and returns to page 1.
func (s *HistoryState) SetSearch(q string) {
	s.Search = q
	s.Page = 1
}

// SetSeverity changes the severity filter and returns to page 1.
func (s *HistoryState) SetSeverity(severity string) {
	s.Severity = severity
	s.Page = 1
}

// SetPage moves to another page, keeping filters and collapsing any
// expanded row.
func (s *HistoryState) SetPage(page int) {
	s.Page = page
	s.Expanded = ""
}

// ToggleRow expands the given record, or collapses it if already expanded.
func (s *HistoryState) ToggleRow(id string) {
	if s.Expanded == id {
		s.Expanded = ""
		return
	}
	s.Expanded = id
}

// Filter returns the filter part of the state.
func (s HistoryState) Filter() HistoryFilter {
	return HistoryFilter{Search: s.Search, Severity: s.Severity}
}

// HistoryEngine filters and paginates a record snapshot. Filter results are
// memoized by input equality: the key covers the record ids of the snapshot
// and the filter, so results never depend on call order. Stored records are
// immutable, so an id always carries the same searchable values.
type HistoryEngine struct {
	fields   []SearchField
	pageSize int
	cache    *lru.Cache[string, []int]
	logger   *logrus.Logger
}

// NewHistoryEngine builds an engine for the configured search fields.
func NewHistoryEngine(logger *logrus.Logger, cfg domain.HistoryConfig, registry *SearchFieldRegistry) (*HistoryEngine, error) {
	names := cfg.SearchFields
	if len(names) == 0 {
		names = []string{"prediccion", "grupo_edad", "triage"}
	}
	fields, err := registry.Resolve(names)
	if err != nil {
		return nil, fmt.Errorf("resolving search fields: %w", err)
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, []int](size)
	if err != nil {
		return nil, fmt.Errorf("creating history cache: %w", err)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	logger.WithFields(logrus.Fields{
		"search_fields": names,
		"page_size":     pageSize,
	}).Debug("History engine configured")

	return &HistoryEngine{
		fields:   fields,
		pageSize: pageSize,
		cache:    cache,
		logger:   logger,
	}, nil
}

// PageSize returns the configured page size.
func (e *HistoryEngine) PageSize() int {
	return e.pageSize
}

// Filter applies the filter, reusing a memoized result for identical input.
// Only matching positions are cached, so the returned records always carry
// the caller's current values.
func (e *HistoryEngine) Filter(records []domain.EvaluationRecord, filter HistoryFilter) []domain.EvaluationRecord {
	key := e.cacheKey(records, filter)
	positions, ok := e.cache.Get(key)
	if !ok {
		positions = filterPositions(records, filter, e.fields)
		e.cache.Add(key, positions)
	}
	return pick(records, positions)
}

// Query filters the snapshot by state and returns the requested page.
func (e *HistoryEngine) Query(records []domain.EvaluationRecord, state HistoryState, pageSize int) HistoryPage {
	if pageSize <= 0 {
		pageSize = e.pageSize
	}
	page := Paginate(e.Filter(records, state.Filter()), state.Page, pageSize)
	page.Counts = CountSeverities(records)
	return page
}

func (e *HistoryEngine) cacheKey(records []domain.EvaluationRecord, filter HistoryFilter) string {
	h := sha256.New()
	io.WriteString(h, filter.Search)
	h.Write([]byte{0})
	io.WriteString(h, filter.Severity)
	for _, rec := range records {
		h.Write([]byte{0})
		io.WriteString(h, rec.ID)
	}
	return hex.EncodeToString(h.Sum(nil))
}

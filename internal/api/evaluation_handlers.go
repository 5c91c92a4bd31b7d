package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
	"github.com/febril-severity-server/internal/middleware"
	"github.com/febril-severity-server/internal/observation"
	"github.com/febril-severity-server/internal/service"
)

// maxPageSize bounds the page_size query parameter.
const maxPageSize = 100

func (s *Server) handlePredict(c *gin.Context) {
	var patient domain.PatientData
	if err := c.ShouldBindJSON(&patient); err != nil {
		s.bindError(c, err)
		return
	}
	if err := patient.Validate(); err != nil {
		s.handleError(c, err)
		return
	}

	state := middleware.StateFrom(c)
	result, err := s.deps.Predictor.Predict(c.Request.Context(), patient, state.Token)
	if err != nil {
		s.handleError(c, err)
		return
	}
	if result.Disclaimer == "" {
		result.Disclaimer = domain.Disclaimer
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleScore(c *gin.Context) {
	var in service.ScoreInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.bindError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.scorer.Score(in))
}

type createEvaluationRequest struct {
	DatosPaciente domain.PatientData      `json:"datos_paciente"`
	Prediccion    domain.PredictionResult `json:"prediccion"`
}

func (s *Server) handleCreateEvaluation(c *gin.Context) {
	var req createEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindError(c, err)
		return
	}
	if err := req.DatosPaciente.Validate(); err != nil {
		s.handleError(c, err)
		return
	}
	if _, err := req.Prediccion.Severity(); err != nil {
		s.handleError(c, domain.NewValidationError("prediccion", "predicción no válida", req.Prediccion.Prediccion))
		return
	}

	state := middleware.StateFrom(c)
	record, err := s.deps.Store.Create(c.Request.Context(), state.UserID(), req.DatosPaciente, req.Prediccion)
	if err != nil {
		s.handleError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"evaluation_id": record.ID,
		"user_id":       record.UserID,
		"prediccion":    record.Prediccion,
	}).Info("Evaluation saved")
	c.JSON(http.StatusCreated, record)
}

// parseSeverityFilter accepts "", the wildcard or a severity label and
// returns the canonical filter value.
func parseSeverityFilter(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, domain.SeverityAll) {
		return domain.SeverityAll, nil
	}
	severity, err := domain.ParseSeverity(raw)
	if err != nil {
		return "", domain.NewValidationError("severity", "severidad no válida", raw)
	}
	return severity.Label(), nil
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "debe ser un número entero", raw)
	}
	return n, nil
}

func (s *Server) handleListEvaluations(c *gin.Context) {
	severity, err := parseSeverityFilter(c.Query("severity"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		s.handleError(c, err)
		return
	}
	pageSize, err := queryInt(c, "page_size", s.deps.History.PageSize())
	if err != nil {
		s.handleError(c, err)
		return
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	state := service.NewHistoryState()
	state.SetSearch(strings.TrimSpace(c.Query("q")))
	state.SetSeverity(severity)
	state.SetPage(page)

	records, err := s.loadRecords(c.Request.Context(), middleware.StateFrom(c).UserID())
	if err != nil {
		s.logger.WithError(err).Error("Failed to load evaluation history")
		records = nil
	}

	c.JSON(http.StatusOK, s.deps.History.Query(records, state, pageSize))
}

// loadRecords fetches the caller's most recent records and joins their
// observations. A failing observation store leaves the records without notes.
func (s *Server) loadRecords(ctx context.Context, userID string) ([]domain.EvaluationRecord, error) {
	page, err := s.deps.Store.List(ctx, domain.ListOptions{
		UserID: userID,
		Limit:  s.configManager.GetConfig().History.FetchLimit,
	})
	if err != nil {
		return nil, err
	}
	s.attachObservations(ctx, page.Records)
	return page.Records, nil
}

func (s *Server) attachObservations(ctx context.Context, records []domain.EvaluationRecord) {
	if s.deps.Observations == nil || len(records) == 0 {
		return
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	notes, err := s.deps.Observations.ListFor(ctx, ids)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to load observations")
		return
	}
	for i := range records {
		records[i].Observacion = notes[records[i].ID]
	}
}

// ownedRecord returns the record if it belongs to the caller. Records of
// other users are reported as missing.
func (s *Server) ownedRecord(c *gin.Context) (*domain.EvaluationRecord, bool) {
	record, err := s.deps.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.handleError(c, err)
		return nil, false
	}
	if record.UserID != middleware.StateFrom(c).UserID() {
		s.handleError(c, domain.ErrNotFound)
		return nil, false
	}
	return record, true
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	record, ok := s.ownedRecord(c)
	if !ok {
		return
	}

	records := []domain.EvaluationRecord{*record}
	s.attachObservations(c.Request.Context(), records)
	c.JSON(http.StatusOK, records[0])
}

type observationRequest struct {
	Texto string `json:"texto"`
}

// handleSaveObservation stores the note for an evaluation. Blank text
// removes the note.
func (s *Server) handleSaveObservation(c *gin.Context) {
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindError(c, err)
		return
	}

	text := strings.TrimSpace(req.Texto)
	if utf8.RuneCountInString(text) > observation.MaxTextLength {
		s.handleError(c, domain.NewValidationError("texto", "La observación es demasiado larga", nil))
		return
	}

	record, ok := s.ownedRecord(c)
	if !ok {
		return
	}
	if s.deps.Observations == nil {
		s.handleError(c, errors.New("observation store not configured"))
		return
	}

	ctx := c.Request.Context()
	if text == "" {
		if err := s.deps.Observations.Delete(ctx, record.ID); err != nil {
			s.handleError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}

	obs := &observation.Observation{
		EvaluationID: record.ID,
		UserID:       record.UserID,
		Text:         text,
	}
	if err := s.deps.Observations.Save(ctx, obs); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, obs)
}

func (s *Server) handleDashboard(c *gin.Context) {
	c.JSON(http.StatusOK, service.Aggregate(s.allRecords(c), s.deps.Now()))
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, service.Performance(s.allRecords(c)))
}

// allRecords loads the caller's full collection. Failures are logged and
// yield an empty collection so the page still renders.
func (s *Server) allRecords(c *gin.Context) []domain.EvaluationRecord {
	records, err := s.deps.Store.All(c.Request.Context(), middleware.StateFrom(c).UserID())
	if err != nil {
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Failed to load evaluations")
		return nil
	}
	return records
}

func (s *Server) handleModelInfo(c *gin.Context) {
	info, err := s.deps.Models.ModelInfo(c.Request.Context(), middleware.StateFrom(c).Token)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleModelMetrics(c *gin.Context) {
	metrics, err := s.deps.Models.ModelMetrics(c.Request.Context(), middleware.StateFrom(c).Token)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
	"github.com/febril-severity-server/internal/middleware"
)

// Details returned to the dashboard.
const (
	MsgInvalidInput       = "Datos de entrada inválidos"
	MsgEvaluationNotFound = "Evaluación no encontrada"
	MsgStoreFailure       = "No se pudo guardar la evaluación"
	MsgInternal           = "Error interno del servidor. Intente nuevamente."
)

func (s *Server) respondError(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, domain.NewAPIError(code, detail, c.GetString(middleware.CorrelationIDKey)))
}

// handleError maps a domain error onto a status and the detail envelope.
func (s *Server) handleError(c *gin.Context, err error) {
	log := s.logger.WithFields(logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"path":           c.FullPath(),
	}).WithError(err)

	var (
		validationErr *domain.ValidationError
		authErr       *domain.AuthError
		predictionErr *domain.PredictionError
		storeErr      *domain.StoreError
	)
	switch {
	case errors.As(err, &validationErr):
		log.Debug("Request rejected")
		s.respondError(c, http.StatusUnprocessableEntity, domain.ErrValidation, validationErr.Message)
	case errors.As(err, &authErr):
		log.Info("Authentication failed")
		s.respondError(c, http.StatusUnauthorized, domain.ErrAuthentication, authErr.Message)
	case errors.As(err, &predictionErr):
		log.Warn("Prediction backend call failed")
		s.respondError(c, predictionErr.HTTPStatus(), domain.ErrPrediction, predictionErr.Error())
	case errors.Is(err, domain.ErrNotFound):
		s.respondError(c, http.StatusNotFound, domain.ErrInvalidInput, MsgEvaluationNotFound)
	case errors.As(err, &storeErr):
		log.Error("Store operation failed")
		s.respondError(c, http.StatusInternalServerError, domain.ErrStore, MsgStoreFailure)
	default:
		log.Error("Unhandled error")
		s.respondError(c, http.StatusInternalServerError, domain.ErrInternalServer, MsgInternal)
	}
}

// bindError answers a request whose body could not be decoded or bound.
func (s *Server) bindError(c *gin.Context, err error) {
	s.logger.WithError(err).WithField("path", c.FullPath()).Debug("Invalid request body")
	s.respondError(c, http.StatusUnprocessableEntity, domain.ErrInvalidInput, MsgInvalidInput+": "+err.Error())
}

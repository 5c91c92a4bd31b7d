package domain

import (
	"fmt"
	"net/http"
	"time"
)

// APIError is the error envelope returned by HTTP handlers. The detail field
// matches the shape produced by the model backend so clients parse both alike.
type APIError struct {
	Code      string    `json:"code"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrStore          = "STORE_ERROR"
	ErrPrediction     = "PREDICTION_ERROR"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrAuthentication = "AUTHENTICATION_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
	ErrValidation     = "VALIDATION_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, detail, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// StoreError wraps a failure of the evaluation store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("evaluation store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PredictionErrorKind classifies prediction failures.
type PredictionErrorKind string

const (
	PredictionUnauthorized PredictionErrorKind = "unauthorized"
	PredictionServerError  PredictionErrorKind = "server_error"
	PredictionNetworkError PredictionErrorKind = "network_error"
)

// GenericConnectionMessage is shown when the backend gave no usable detail.
const GenericConnectionMessage = "Error de conexión con el servidor"

// PredictionError is returned by Predictor implementations. Detail carries
// the backend message verbatim when one was provided.
type PredictionError struct {
	Kind   PredictionErrorKind
	Status int
	Detail string
	Err    error
}

func (e *PredictionError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return GenericConnectionMessage
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error to the status a handler should answer with.
func (e *PredictionError) HTTPStatus() int {
	switch e.Kind {
	case PredictionUnauthorized:
		return http.StatusUnauthorized
	case PredictionNetworkError:
		return http.StatusBadGateway
	default:
		if e.Status >= 400 {
			return e.Status
		}
		return http.StatusBadGateway
	}
}

// AuthError is a form-level authentication failure.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

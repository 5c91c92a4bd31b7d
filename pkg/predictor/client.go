// Package predictor is the HTTP client for the ML prediction backend.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/febril-severity-server/internal/domain"
)

// Config configures the prediction client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// AnonKey is sent as the apikey header when set.
	AnonKey string
}

// Client talks to the prediction backend. Calls are never retried; an open
// circuit breaker fails them fast while the backend is down.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewClient creates a new prediction client
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		anonKey: config.AnonKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PredictionBackend",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// Client errors mean the backend is up
		IsSuccessful: func(err error) bool {
			var perr *domain.PredictionError
			if errors.As(err, &perr) {
				return perr.Kind != domain.PredictionNetworkError && perr.Status < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c
}

// Predict sends the patient data to POST /api/predict.
func (c *Client) Predict(ctx context.Context, patient domain.PatientData, token string) (*domain.PredictionResult, error) {
	var result domain.PredictionResult
	if err := c.call(ctx, http.MethodPost, "/api/predict", token, patient, &result); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"prediccion": result.Prediccion,
		"confianza":  result.Confianza,
	}).Debug("Prediction received")

	return &result, nil
}

// Health reports whether GET /api/health answers 2xx. It bypasses the
// breaker so recovery is visible as soon as it happens.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Debug("Backend health check failed")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ModelInfo returns GET /api/model/info.
func (c *Client) ModelInfo(ctx context.Context, token string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.call(ctx, http.MethodGet, "/api/model/info", token, nil, &out); err != nil {
		return nil, withFallbackDetail(err, "Error obteniendo info del modelo")
	}
	return out, nil
}

// ModelMetrics returns GET /api/model/metrics.
func (c *Client) ModelMetrics(ctx context.Context, token string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.call(ctx, http.MethodGet, "/api/model/metrics", token, nil, &out); err != nil {
		return nil, withFallbackDetail(err, "Error obteniendo métricas del modelo")
	}
	return out, nil
}

// BreakerState reports the circuit breaker as "closed", "half-open" or "open".
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) call(ctx context.Context, method, path, token string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, path, token, body, out)
	})
	if err == nil {
		return nil
	}

	var perr *domain.PredictionError
	if errors.As(err, &perr) {
		return perr
	}
	// gobreaker.ErrOpenState and ErrTooManyRequests
	c.logger.WithError(err).WithField("path", path).Warn("Prediction backend call rejected")
	return &domain.PredictionError{Kind: domain.PredictionNetworkError, Err: err}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &domain.PredictionError{Kind: domain.PredictionServerError, Err: fmt.Errorf("encoding request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &domain.PredictionError{Kind: domain.PredictionNetworkError, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Error("Prediction backend unreachable")
		return &domain.PredictionError{Kind: domain.PredictionNetworkError, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.PredictionError{Kind: domain.PredictionNetworkError, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		perr := errorFromResponse(resp.StatusCode, raw)
		c.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
			"detail": perr.Detail,
		}).Warn("Prediction backend returned an error")
		return perr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.PredictionError{
			Kind:   domain.PredictionServerError,
			Status: http.StatusBadGateway,
			Err:    fmt.Errorf("failed to parse JSON response: %w", err),
		}
	}
	return nil
}

// errorFromResponse extracts the backend's detail message. A JSON body
// without a detail yields "Error <status>"; a non-JSON body yields no detail,
// so the generic connection message is shown.
func errorFromResponse(status int, raw []byte) *domain.PredictionError {
	kind := domain.PredictionServerError
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = domain.PredictionUnauthorized
	}
	perr := &domain.PredictionError{Kind: kind, Status: status}

	var envelope map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return perr
	}
	switch detail := envelope["detail"].(type) {
	case string:
		if detail != "" {
			perr.Detail = detail
			return perr
		}
	case nil:
	default:
		// Validation errors carry a structured detail
		if encoded, err := json.Marshal(detail); err == nil {
			perr.Detail = string(encoded)
			return perr
		}
	}
	perr.Detail = fmt.Sprintf("Error %d", status)
	return perr
}

func withFallbackDetail(err error, detail string) error {
	var perr *domain.PredictionError
	if errors.As(err, &perr) && perr.Detail == "" {
		perr.Detail = detail
	}
	return err
}

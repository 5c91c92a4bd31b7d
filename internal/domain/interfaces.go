package domain

import (
	"context"
)

// EvaluationStore persists evaluation records. It is the sole authority for
// durable records; List returns records newest-first by creation time.
type EvaluationStore interface {
	Create(ctx context.Context, userID string, patient PatientData, prediction PredictionResult) (*EvaluationRecord, error)
	List(ctx context.Context, opts ListOptions) (*EvaluationPage, error)
	All(ctx context.Context, userID string) ([]EvaluationRecord, error)
	Get(ctx context.Context, id string) (*EvaluationRecord, error)
}

// Predictor produces a PredictionResult for one patient.
type Predictor interface {
	Predict(ctx context.Context, patient PatientData, token string) (*PredictionResult, error)
	Health(ctx context.Context) bool
}

// ModelInspector exposes model metadata published by the prediction backend.
type ModelInspector interface {
	ModelInfo(ctx context.Context, token string) (map[string]interface{}, error)
	ModelMetrics(ctx context.Context, token string) (map[string]interface{}, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetBackendConfig() *BackendConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}

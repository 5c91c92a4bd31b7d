package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febril-severity-server/internal/domain"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return NewClient(Config{BaseURL: baseURL, Timeout: 2 * time.Second}, logger)
}

func samplePatient() domain.PatientData {
	pct := 0.4
	return domain.PatientData{
		GrupoEdad:              "2-5",
		Sexo:                   "Masculino",
		Area:                   "Rural",
		TiempoFiebre:           2,
		Vacunacion:             "Completo",
		Antecedentes:           "Asma",
		ContactoEpidemiologico: "Ninguno",
		ExposicionAmbiental:    "Tabaquismo",
		EstadoNutricional:      "Normal",
		HallazgoExamenFisico:   "Taquipnea",
		Glasgow:                14,
		Procalcitonina:         &pct,
	}
}

func TestClient_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/predict", r.URL.Path)
		assert.Equal(t, "Bearer token-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2-5", body["grupo_edad"])
		assert.Equal(t, 0.4, body["procalcitonina"])
		assert.Nil(t, body["leucocitos"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"prediccion": "Moderada",
			"codigo": 1,
			"confianza": 71.3,
			"probabilidades": {"leve": 20.1, "moderada": 71.3, "severa": 8.6},
			"factores": ["Taquipnea"],
			"disclaimer": "apoyo"
		}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Predict(context.Background(), samplePatient(), "token-123")
	require.NoError(t, err)

	assert.Equal(t, "Moderada", result.Prediccion)
	assert.Equal(t, 1, result.Codigo)
	assert.Equal(t, 71.3, result.Confianza)
	assert.Equal(t, domain.Probabilities{Leve: 20.1, Moderada: 71.3, Severa: 8.6}, result.Probabilidades)
	assert.Equal(t, []string{"Taquipnea"}, result.Factores)
}

func TestClient_PredictErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   domain.PredictionErrorKind
		wantDetail string
	}{
		{
			name:       "expired token surfaces detail",
			status:     http.StatusUnauthorized,
			body:       `{"detail":"Token expirado, inicie sesión nuevamente"}`,
			wantKind:   domain.PredictionUnauthorized,
			wantDetail: "Token expirado, inicie sesión nuevamente",
		},
		{
			name:       "server error with detail",
			status:     http.StatusInternalServerError,
			body:       `{"detail":"Error interno del servidor. Intente nuevamente."}`,
			wantKind:   domain.PredictionServerError,
			wantDetail: "Error interno del servidor. Intente nuevamente.",
		},
		{
			name:       "json without detail",
			status:     http.StatusServiceUnavailable,
			body:       `{"status":"down"}`,
			wantKind:   domain.PredictionServerError,
			wantDetail: "Error 503",
		},
		{
			name:       "non-json body uses generic message",
			status:     http.StatusBadGateway,
			body:       `<html>bad gateway</html>`,
			wantKind:   domain.PredictionServerError,
			wantDetail: domain.GenericConnectionMessage,
		},
		{
			name:       "structured validation detail",
			status:     http.StatusUnprocessableEntity,
			body:       `{"detail":[{"loc":["body","glasgow"],"msg":"too small"}]}`,
			wantKind:   domain.PredictionServerError,
			wantDetail: `[{"loc":["body","glasgow"],"msg":"too small"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)
			_, err := client.Predict(context.Background(), samplePatient(), "tok")

			var perr *domain.PredictionError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.wantKind, perr.Kind)
			assert.Equal(t, tt.status, perr.Status)
			assert.Equal(t, tt.wantDetail, perr.Error())
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.Predict(context.Background(), samplePatient(), "tok")

	var perr *domain.PredictionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.PredictionNetworkError, perr.Kind)
	assert.Equal(t, domain.GenericConnectionMessage, perr.Error())
	assert.False(t, client.Health(context.Background()))
}

func TestClient_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var calls int32
	status := int32(http.StatusBadRequest)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(int(atomic.LoadInt32(&status)))
		_, _ = w.Write([]byte(`{"detail":"x"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	ctx := context.Background()

	// Client errors do not trip the breaker
	for i := 0; i < 5; i++ {
		_, err := client.Predict(ctx, samplePatient(), "tok")
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateClosed.String(), client.BreakerState())

	atomic.StoreInt32(&status, http.StatusInternalServerError)
	for i := 0; i < 10; i++ {
		_, _ = client.Predict(ctx, samplePatient(), "tok")
	}
	assert.Equal(t, gobreaker.StateOpen.String(), client.BreakerState())

	before := atomic.LoadInt32(&calls)
	_, err := client.Predict(ctx, samplePatient(), "tok")
	var perr *domain.PredictionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.PredictionNetworkError, perr.Kind)
	assert.Equal(t, before, atomic.LoadInt32(&calls), "open breaker fails without calling the backend")
}

func TestClient_Health(t *testing.T) {
	healthy := int32(1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
		if atomic.LoadInt32(&healthy) == 1 {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	assert.True(t, client.Health(context.Background()))

	atomic.StoreInt32(&healthy, 0)
	assert.False(t, client.Health(context.Background()))
}

func TestClient_ModelInfoAndMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/model/info":
			_, _ = w.Write([]byte(`{"nombre":"XGBoost","version":"1.2"}`))
		case "/api/model/metrics":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`oops`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	info, err := client.ModelInfo(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "XGBoost", info["nombre"])

	_, err = client.ModelMetrics(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "Error obteniendo métricas del modelo", err.Error())
}

func TestClient_TrimsTrailingSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/health", r.URL.Path)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/")
	assert.True(t, client.Health(context.Background()))
}

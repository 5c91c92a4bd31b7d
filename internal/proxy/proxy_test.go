package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProxy(t *testing.T, backendURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	router := gin.New()
	router.Any("/api/*path", NewHandler(backendURL, 2*time.Second, logger).Handle)
	return router
}

func TestHandler_Target(t *testing.T) {
	h := NewHandler("http://backend:8000/", 0, logrus.New())

	assert.Equal(t, "http://backend:8000/api/predict", h.Target("/predict", ""))
	assert.Equal(t, "http://backend:8000/api/model/info?full=1&x=2", h.Target("/model/info", "full=1&x=2"))
}

func TestHandler_ForwardsRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/predict", r.URL.Path)
		assert.Equal(t, "debug=1", r.URL.RawQuery)
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("X-Custom"), "only Content-Type and Authorization are forwarded")

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"glasgow":14}`, string(body))

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"prediccion":"Leve","confianza":91.25}`))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/predict?debug=1", strings.NewReader(`{"glasgow":14}`))
	req.Header.Set("Authorization", "Bearer abc")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Custom", "drop-me")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"prediccion":"Leve","confianza":91.25}`, w.Body.String())
}

func TestHandler_GetHasNoBody(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/health", strings.NewReader(`ignored`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_PassesThroughText(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("a,b\n1,2\n"))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/export", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, "a,b\n1,2\n", w.Body.String())
}

func TestHandler_DefaultsToTextPlain(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Suppress net/http content sniffing
		w.Header()["Content-Type"] = nil
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/unknown", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
	assert.Equal(t, "not found", w.Body.String())
}

func TestHandler_UpstreamErrorKeepsStatus(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Token de autenticación inválido"}`))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"detail":"Token de autenticación inválido"}`, w.Body.String())
}

func TestHandler_BackendUnreachable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := backend.URL
	backend.Close()

	router := setupProxy(t, url)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, UnreachableDetail, body["detail"])
}

func TestHandler_UnreadableBody(t *testing.T) {
	called := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/predict", iotest.ErrReader(errors.New("connection reset")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, called, "a request with an unreadable body is not forwarded")
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, UnreadableBodyDetail, body["detail"])
}

func TestHandler_InvalidJSONFromBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"truncated":`))
	}))
	defer backend.Close()

	router := setupProxy(t, backend.URL)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/model/info", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

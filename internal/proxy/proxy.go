// Package proxy forwards /api/* requests from the dashboard to the ML backend
// so browsers only ever talk to one origin.
package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UnreachableDetail is returned with 502 when the backend cannot be reached.
const UnreachableDetail = "No se pudo conectar con el servidor backend"

// UnreadableBodyDetail is returned with 400 when the request body cannot be read.
const UnreadableBodyDetail = "No se pudo leer el cuerpo de la solicitud"

// Handler is a reverse proxy to the prediction backend. Only Content-Type and
// Authorization are forwarded; JSON responses are decoded and re-encoded and
// anything else is passed through as text.
type Handler struct {
	backend    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewHandler creates a proxy to backendURL.
func NewHandler(backendURL string, timeout time.Duration, logger *logrus.Logger) *Handler {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		backend: strings.TrimRight(backendURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			// Redirects are the client's business
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Target builds the upstream URL for a request path below /api and a raw
// query string.
func (h *Handler) Target(path, rawQuery string) string {
	target := h.backend + "/api/" + strings.TrimLeft(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

func hasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// Handle is the gin handler for ANY /api/*path.
func (h *Handler) Handle(c *gin.Context) {
	target := h.Target(c.Param("path"), c.Request.URL.RawQuery)

	var body io.Reader
	if hasBody(c.Request.Method) && c.Request.Body != nil {
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			h.logger.WithField("target", target).WithError(err).Warn("Error reading request body")
			c.JSON(http.StatusBadRequest, gin.H{"detail": UnreadableBodyDetail})
			return
		}
		if len(raw) > 0 {
			body = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, body)
	if err != nil {
		h.fail(c, target, err)
		return
	}
	if ct := c.GetHeader("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.fail(c, target, err)
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.fail(c, target, err)
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var data interface{}
		if err := dec.Decode(&data); err != nil {
			h.fail(c, target, err)
			return
		}
		c.JSON(resp.StatusCode, data)
		return
	}

	if contentType == "" {
		contentType = "text/plain"
	}
	c.Data(resp.StatusCode, contentType, raw)
}

func (h *Handler) fail(c *gin.Context, target string, err error) {
	h.logger.WithFields(logrus.Fields{
		"target": target,
		"method": c.Request.Method,
	}).WithError(err).Error("Error connecting to backend")
	c.JSON(http.StatusBadGateway, gin.H{"detail": UnreachableDetail})
}

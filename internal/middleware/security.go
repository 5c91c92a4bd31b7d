package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDKey is the gin context key holding the request's correlation id.
const CorrelationIDKey = "correlation_id"

// SecurityHeaders adds security headers to all responses
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")

		// Enforce HTTPS (only in production)
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		// JSON API only; nothing here should ever be rendered as a page
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		// Patient data must not be cached by intermediaries
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// CorrelationID adds a unique correlation ID to each request for audit trails
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()
	}
}

// RequestTimeout bounds the request context. Handlers and the clients they
// call observe the deadline through c.Request.Context().
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORS allows the dashboard origins to call the API with credentials.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"},
		ExposeHeaders:    []string{"X-Correlation-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type auditLine struct {
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
	UserID        string `json:"user_id,omitempty"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	Latency       string `json:"latency"`
	ClientIP      string `json:"client_ip"`
	UserAgent     string `json:"user_agent"`
	ResponseSize  int    `json:"response_size"`
}

// AuditLogger writes one JSON line per request. Query strings are left out
// because search terms may carry patient details.
func AuditLogger() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		line := auditLine{
			Timestamp:    param.TimeStamp.Format(time.RFC3339),
			Method:       param.Method,
			Path:         param.Request.URL.Path,
			Status:       param.StatusCode,
			Latency:      param.Latency.String(),
			ClientIP:     param.ClientIP,
			UserAgent:    param.Request.UserAgent(),
			ResponseSize: param.BodySize,
		}
		if id, ok := param.Keys[CorrelationIDKey].(string); ok {
			line.CorrelationID = id
		}
		if state := stateFromKeys(param.Keys); state != nil {
			line.UserID = state.UserID()
		}

		encoded, err := json.Marshal(line)
		if err != nil {
			return ""
		}
		return string(encoded) + "\n"
	})
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/febril-severity-server/internal/auth"
	"github.com/febril-severity-server/internal/domain"
)

// AppStateKey is the gin context key holding the request's *auth.AppState.
const AppStateKey = "app_state"

// MsgNotAuthenticated is returned when a protected route has no credentials.
const MsgNotAuthenticated = "No autenticado"

// Sessioner resolves a bearer token into application state.
type Sessioner interface {
	Bootstrap(ctx context.Context, token string) *auth.AppState
}

// Session resolves the caller's application state once per request.
func Session(sessions Sessioner) gin.HandlerFunc {
	return func(c *gin.Context) {
		state := sessions.Bootstrap(c.Request.Context(), BearerToken(c))
		c.Set(AppStateKey, state)
		c.Next()
	}
}

// RequireAuth rejects requests whose session did not resolve. The message of
// an authentication failure is passed through so an expired token can be
// told apart from an invalid one.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		state := StateFrom(c)
		if state.Authenticated() {
			c.Next()
			return
		}

		detail := MsgNotAuthenticated
		var authErr *domain.AuthError
		if errors.As(state.Failure, &authErr) {
			detail = authErr.Message
		} else if state.Token != "" || BearerToken(c) != "" {
			detail = auth.MsgTokenInvalid
		}

		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail})
	}
}

// StateFrom returns the state stored by Session, or an anonymous state.
func StateFrom(c *gin.Context) *auth.AppState {
	if v, ok := c.Get(AppStateKey); ok {
		if state, ok := v.(*auth.AppState); ok && state != nil {
			return state
		}
	}
	return auth.Anonymous()
}

func stateFromKeys(keys map[string]any) *auth.AppState {
	state, _ := keys[AppStateKey].(*auth.AppState)
	return state
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

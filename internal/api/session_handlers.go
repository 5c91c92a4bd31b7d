package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/febril-severity-server/internal/auth"
	"github.com/febril-severity-server/internal/domain"
	"github.com/febril-severity-server/internal/middleware"
)

// MsgConfirmationPending is returned when a new account must be confirmed
// before it can sign in.
const MsgConfirmationPending = "Registro exitoso. Revise su correo para confirmar la cuenta."

type sessionResponse struct {
	AccessToken   string `json:"access_token,omitempty"`
	Authenticated bool   `json:"authenticated"`
	*auth.AppState
}

func newSessionResponse(state *auth.AppState, withToken bool) sessionResponse {
	resp := sessionResponse{
		Authenticated: state.Authenticated(),
		AppState:      state,
	}
	if withToken {
		resp.AccessToken = state.Token
	}
	return resp
}

type loginRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindError(c, err)
		return
	}

	login := strings.TrimSpace(req.Email)
	if login == "" {
		login = strings.TrimSpace(req.Username)
	}
	if login == "" {
		s.handleError(c, domain.NewValidationError("email", "El usuario es obligatorio", nil))
		return
	}

	state, err := s.deps.Sessions.Login(c.Request.Context(), login, req.Password)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(state, true))
}

func (s *Server) handleRegister(c *gin.Context) {
	var reg auth.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		s.bindError(c, err)
		return
	}

	state, err := s.deps.Sessions.Register(c.Request.Context(), reg)
	if err != nil {
		// Sign-up failures are form errors, not a rejected credential
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			status := http.StatusBadRequest
			if authErr.Message == auth.MsgUserExists {
				status = http.StatusConflict
			}
			s.respondError(c, status, domain.ErrAuthentication, authErr.Message)
			return
		}
		s.handleError(c, err)
		return
	}

	if state == nil {
		c.JSON(http.StatusAccepted, gin.H{"detail": MsgConfirmationPending})
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(state, true))
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.deps.Sessions.Teardown(c.Request.Context(), middleware.StateFrom(c)); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, newSessionResponse(middleware.StateFrom(c), false))
}

type themeRequest struct {
	Theme string `json:"theme" binding:"required"`
}

func (s *Server) handleSetTheme(c *gin.Context) {
	var req themeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindError(c, err)
		return
	}

	state := middleware.StateFrom(c)
	if err := s.deps.Sessions.SetTheme(c.Request.Context(), state, req.Theme); err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(state, false))
}

func (s *Server) handleGetProfile(c *gin.Context) {
	profile, err := s.deps.Sessions.Profile(c.Request.Context(), middleware.StateFrom(c))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var update auth.ProfileUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		s.bindError(c, err)
		return
	}

	profile, err := s.deps.Sessions.UpdateProfile(c.Request.Context(), middleware.StateFrom(c), update)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

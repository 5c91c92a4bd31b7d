// Package auth resolves who is calling and keeps per-session application
// state (identity, profile, theme) between requests.
package auth

import (
	"context"
	"strings"

	"github.com/febril-severity-server/internal/domain"
)

// Messages shown to the clinician on authentication failures.
const (
	MsgTokenExpired       = "Token expirado, inicie sesión nuevamente"
	MsgTokenInvalid       = "Token de autenticación inválido"
	MsgAuthFailed         = "Error de autenticación"
	MsgBadCredentials     = "Credenciales incorrectas. Verifique usuario y contraseña."
	MsgPasswordMismatch   = "Las contraseñas no coinciden"
	MsgPasswordTooShort   = "La contraseña debe tener al menos 6 caracteres"
	MsgNameRequired       = "El nombre es obligatorio"
	MsgUserExists         = "El usuario ya está registrado"
	MsgServiceUnavailable = "Servicio de autenticación no disponible"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// Identity is the authenticated caller.
type Identity struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Nombre       string `json:"nombre,omitempty"`
	Especialidad string `json:"especialidad,omitempty"`
	Rol          string `json:"rol,omitempty"`
}

// Session is the result of a successful sign-in.
type Session struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"user"`
}

// Registration carries the sign-up form.
type Registration struct {
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password"`
	Nombre          string `json:"nombre"`
	Especialidad    string `json:"especialidad"`
}

// Provider authenticates callers against an identity service.
type Provider interface {
	// Authenticate resolves a bearer token to an identity.
	Authenticate(ctx context.Context, token string) (*Identity, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SignUp registers a new user. A nil session means the account needs
	// confirmation before it can sign in.
	SignUp(ctx context.Context, reg Registration) (*Session, error)
	SignOut(ctx context.Context, token string) error
}

// ValidateRegistration applies the sign-up form rules in order: password
// confirmation, password length, then name.
func ValidateRegistration(reg Registration) error {
	if reg.Password != reg.ConfirmPassword {
		return domain.NewValidationError("confirm_password", MsgPasswordMismatch, nil)
	}
	if len(reg.Password) < MinPasswordLength {
		return domain.NewValidationError("password", MsgPasswordTooShort, nil)
	}
	if strings.TrimSpace(reg.Nombre) == "" {
		return domain.NewValidationError("nombre", MsgNameRequired, nil)
	}
	return nil
}

func authError(msg string, err error) *domain.AuthError {
	return &domain.AuthError{Message: msg, Err: err}
}

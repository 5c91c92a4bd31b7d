package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/domain"
)

// DefaultBootstrapTimeout bounds how long a request waits for its session.
const DefaultBootstrapTimeout = 5 * time.Second

// Service ties a provider, the session store and the profile store into the
// session lifecycle used by the HTTP layer.
type Service struct {
	provider Provider
	sessions SessionStore
	profiles ProfileStore
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewService creates the session lifecycle service.
func NewService(provider Provider, sessions SessionStore, profiles ProfileStore, timeout time.Duration, logger *logrus.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultBootstrapTimeout
	}
	return &Service{
		provider: provider,
		sessions: sessions,
		profiles: profiles,
		timeout:  timeout,
		logger:   logger,
	}
}

type bootstrapResult struct {
	state *AppState
	err   error
}

// Bootstrap resolves the state for token within the configured timeout. It
// never fails: on timeout or error the caller continues unauthenticated, and
// the reason is kept in AppState.Failure.
func (s *Service) Bootstrap(ctx context.Context, token string) *AppState {
	if token == "" {
		return Anonymous()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan bootstrapResult, 1)
	go func() {
		state, err := s.resolve(ctx, token)
		done <- bootstrapResult{state: state, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			anon := Anonymous()
			anon.Failure = res.err
			return anon
		}
		return res.state
	case <-ctx.Done():
		s.logger.WithField("timeout", s.timeout).Warn("Session bootstrap timed out, continuing without session")
		anon := Anonymous()
		anon.Failure = authError(MsgAuthFailed, ctx.Err())
		return anon
	}
}

func (s *Service) resolve(ctx context.Context, token string) (*AppState, error) {
	state, err := s.sessions.Get(ctx, token)
	if err != nil {
		s.logger.WithError(err).Warn("Session lookup failed")
	}
	if state != nil {
		return state, nil
	}

	identity, err := s.provider.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, token, identity)
}

// open builds and stores the state for a freshly authenticated identity.
func (s *Service) open(ctx context.Context, token string, identity *Identity) (*AppState, error) {
	profile, err := s.profiles.Ensure(ctx, *identity)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", identity.ID).Warn("Profile unavailable")
	}

	state := &AppState{
		Token:    token,
		Identity: identity,
		Profile:  profile,
		Theme:    DefaultTheme,
	}
	if err := s.sessions.Put(ctx, state); err != nil {
		s.logger.WithError(err).Warn("Failed to store session")
	}
	return state, nil
}

// Login signs in and opens a session.
func (s *Service) Login(ctx context.Context, email, password string) (*AppState, error) {
	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.logger.WithField("user_id", session.Identity.ID).Info("User signed in")
	return s.open(ctx, session.Token, session.Identity)
}

// Register creates an account. The returned state is nil when the identity
// service requires confirmation before the first sign-in.
func (s *Service) Register(ctx context.Context, reg Registration) (*AppState, error) {
	if err := ValidateRegistration(reg); err != nil {
		return nil, err
	}
	session, err := s.provider.SignUp(ctx, reg)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return s.open(ctx, session.Token, session.Identity)
}

// Teardown ends the session: the stored state is dropped and the provider is
// told to revoke the token.
func (s *Service) Teardown(ctx context.Context, state *AppState) error {
	if state == nil || state.Token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, state.Token); err != nil {
		return fmt.Errorf("ending session: %w", err)
	}
	if err := s.provider.SignOut(ctx, state.Token); err != nil {
		s.logger.WithError(err).Warn("Provider sign-out failed")
	}
	s.logger.WithField("user_id", state.UserID()).Info("User signed out")
	return nil
}

// SetTheme stores the theme preference on the session.
func (s *Service) SetTheme(ctx context.Context, state *AppState, theme string) error {
	if !ValidTheme(theme) {
		return domain.NewValidationError("theme", "tema no soportado", theme)
	}
	state.Theme = theme
	return s.sessions.Put(ctx, state)
}

// Profile returns the caller's profile.
func (s *Service) Profile(ctx context.Context, state *AppState) (*Profile, error) {
	profile, err := s.profiles.Get(ctx, state.UserID())
	if errors.Is(err, domain.ErrNotFound) {
		return s.profiles.Ensure(ctx, *state.Identity)
	}
	return profile, err
}

// UpdateProfile applies the update and refreshes the session copy.
func (s *Service) UpdateProfile(ctx context.Context, state *AppState, update ProfileUpdate) (*Profile, error) {
	if _, err := s.Profile(ctx, state); err != nil {
		return nil, err
	}
	profile, err := s.profiles.Update(ctx, state.UserID(), update)
	if err != nil {
		return nil, err
	}
	state.Profile = profile
	if err := s.sessions.Put(ctx, state); err != nil {
		s.logger.WithError(err).Warn("Failed to refresh session profile")
	}
	return profile, nil
}

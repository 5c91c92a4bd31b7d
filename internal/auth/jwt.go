package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// DevIdentity is returned when token verification is not configured.
var DevIdentity = Identity{ID: "dev-user", Email: "dev@local"}

// JWTConfig configures the JWT provider.
type JWTConfig struct {
	Secret   string
	Audience string
	// URL is the identity service base URL used for sign-in and sign-up.
	URL     string
	AnonKey string
	Timeout time.Duration
}

// JWTProvider verifies HS256 access tokens issued by the identity service
// and forwards sign-in and sign-up to its password endpoints.
type JWTProvider struct {
	key        []byte
	audience   string
	url        string
	anonKey    string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewJWTProvider creates a JWT provider. The secret is base64-decoded when it
// is valid base64 and used as raw text otherwise.
func NewJWTProvider(cfg JWTConfig, logger *logrus.Logger) *JWTProvider {
	if cfg.Audience == "" {
		cfg.Audience = "authenticated"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	p := &JWTProvider{
		audience:   cfg.Audience,
		url:        strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
	if cfg.Secret != "" {
		p.key = decodeSecret(cfg.Secret)
		logger.WithField("bytes", len(p.key)).Info("JWT secret loaded")
	}
	return p
}

func decodeSecret(secret string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil && len(decoded) > 0 {
		return decoded
	}
	return []byte(secret)
}

type accessClaims struct {
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// Authenticate verifies the token signature, expiry and audience.
func (p *JWTProvider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if p.key == nil {
		p.logger.Warn("JWT secret not configured, skipping token verification")
		id := DevIdentity
		return &id, nil
	}

	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		p.logger.Warn("JWT expired")
		return nil, authError(MsgTokenExpired, err)
	case err != nil:
		p.logger.WithError(err).Warn("JWT rejected")
		return nil, authError(MsgTokenInvalid, err)
	case !parsed.Valid:
		return nil, authError(MsgTokenInvalid, nil)
	}

	identity := &Identity{
		ID:    claims.Subject,
		Email: claims.Email,
		Rol:   claims.Role,
	}
	if nombre, ok := claims.UserMetadata["nombre"].(string); ok {
		identity.Nombre = nombre
	}
	if esp, ok := claims.UserMetadata["especialidad"].(string); ok {
		identity.Especialidad = esp
	}

	p.logger.WithField("user_id", identity.ID).Debug("JWT verified")
	return identity, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID           string                 `json:"id"`
		Email        string                 `json:"email"`
		UserMetadata map[string]interface{} `json:"user_metadata"`
	} `json:"user"`
}

func (r *tokenResponse) identity() *Identity {
	id := &Identity{ID: r.User.ID, Email: r.User.Email}
	if nombre, ok := r.User.UserMetadata["nombre"].(string); ok {
		id.Nombre = nombre
	}
	if esp, ok := r.User.UserMetadata["especialidad"].(string); ok {
		id.Especialidad = esp
	}
	return id
}

// SignIn exchanges email and password for an access token.
func (p *JWTProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var out tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := p.post(ctx, "/auth/v1/token?grant_type=password", "", body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, authError(MsgBadCredentials, nil)
	}
	return &Session{Token: out.AccessToken, Identity: out.identity()}, nil
}

// SignUp registers a user with nombre and especialidad as metadata. The
// service may require email confirmation, in which case no session is
// returned.
func (p *JWTProvider) SignUp(ctx context.Context, reg Registration) (*Session, error) {
	if err := ValidateRegistration(reg); err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{"nombre": strings.TrimSpace(reg.Nombre)}
	if esp := strings.TrimSpace(reg.Especialidad); esp != "" {
		metadata["especialidad"] = esp
	} else {
		metadata["especialidad"] = nil
	}
	body := map[string]interface{}{
		"email":    reg.Email,
		"password": reg.Password,
		"data":     metadata,
	}

	var out tokenResponse
	if err := p.post(ctx, "/auth/v1/signup", "", body, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, nil
	}
	return &Session{Token: out.AccessToken, Identity: out.identity()}, nil
}

// SignOut revokes the token at the identity service. Failures are logged and
// not returned; the local session is dropped regardless.
func (p *JWTProvider) SignOut(ctx context.Context, token string) error {
	if p.url == "" {
		return nil
	}
	if err := p.post(ctx, "/auth/v1/logout", token, nil, nil); err != nil {
		p.logger.WithError(err).Warn("Remote sign-out failed")
	}
	return nil
}

func (p *JWTProvider) post(ctx context.Context, path, token string, body, out interface{}) error {
	if p.url == "" {
		return authError(MsgServiceUnavailable, errors.New("auth.url not configured"))
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding auth request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+path, reader)
	if err != nil {
		return fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.anonKey != "" {
		req.Header.Set("apikey", p.anonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.WithError(err).Error("Identity service unreachable")
		return authError(MsgServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return authError(MsgServiceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := serviceMessage(raw)
		p.logger.WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode,
		}).Warn("Identity service rejected request")
		return authError(msg, fmt.Errorf("identity service returned %d", resp.StatusCode))
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding auth response: %w", err)
	}
	return nil
}

// serviceMessage picks the human-readable message out of an identity
// service error body.
func serviceMessage(raw []byte) string {
	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return MsgAuthFailed
	}
	for _, key := range []string{"error_description", "msg", "message"} {
		if msg, ok := body[key].(string); ok && msg != "" {
			return msg
		}
	}
	return MsgAuthFailed
}

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febril-severity-server/internal/domain"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func signToken(t *testing.T, key []byte, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   "user-123",
		"email": "medico@hospital.co",
		"aud":   "authenticated",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]interface{}{
			"nombre":       "Dra. Ruiz",
			"especialidad": "Pediatría",
		},
	}
}

func TestJWTProvider_Authenticate(t *testing.T) {
	provider := NewJWTProvider(JWTConfig{Secret: testSecret}, quietLogger())

	identity, err := provider.Authenticate(context.Background(), signToken(t, []byte(testSecret), validClaims(), jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "user-123", identity.ID)
	assert.Equal(t, "medico@hospital.co", identity.Email)
	assert.Equal(t, "Dra. Ruiz", identity.Nombre)
	assert.Equal(t, "Pediatría", identity.Especialidad)
}

func TestJWTProvider_Base64Secret(t *testing.T) {
	raw := []byte("raw-key-bytes-0123456789abcdef!!")
	provider := NewJWTProvider(JWTConfig{Secret: base64.StdEncoding.EncodeToString(raw)}, quietLogger())

	_, err := provider.Authenticate(context.Background(), signToken(t, raw, validClaims(), jwt.SigningMethodHS256))
	assert.NoError(t, err)
}

func TestJWTProvider_Rejections(t *testing.T) {
	provider := NewJWTProvider(JWTConfig{Secret: testSecret}, quietLogger())
	key := []byte(testSecret)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongAudience := validClaims()
	wrongAudience["aud"] = "anon"

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	tests := []struct {
		name    string
		token   string
		wantMsg string
	}{
		{"expired", signToken(t, key, expired, jwt.SigningMethodHS256), MsgTokenExpired},
		{"wrong audience", signToken(t, key, wrongAudience, jwt.SigningMethodHS256), MsgTokenInvalid},
		{"missing expiry", signToken(t, key, noExpiry, jwt.SigningMethodHS256), MsgTokenInvalid},
		{"wrong key", signToken(t, []byte("another-secret"), validClaims(), jwt.SigningMethodHS256), MsgTokenInvalid},
		{"wrong algorithm", signToken(t, key, validClaims(), jwt.SigningMethodHS512), MsgTokenInvalid},
		{"garbage", "not.a.jwt", MsgTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Authenticate(context.Background(), tt.token)
			var authErr *domain.AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.wantMsg, authErr.Message)
		})
	}
}

func TestJWTProvider_NoSecretReturnsDevIdentity(t *testing.T) {
	provider := NewJWTProvider(JWTConfig{}, quietLogger())

	identity, err := provider.Authenticate(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, "dev-user", identity.ID)
	assert.Equal(t, "dev@local", identity.Email)
}

func TestJWTProvider_SignIn(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "anon", r.Header.Get("apikey"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "correcta" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-1","user":{"id":"u-9","email":"a@b.co","user_metadata":{"nombre":"Ana"}}}`))
	}))
	defer server.Close()

	provider := NewJWTProvider(JWTConfig{Secret: testSecret, URL: server.URL, AnonKey: "anon"}, quietLogger())

	session, err := provider.SignIn(context.Background(), "a@b.co", "correcta")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.Token)
	assert.Equal(t, "u-9", session.Identity.ID)
	assert.Equal(t, "Ana", session.Identity.Nombre)

	_, err = provider.SignIn(context.Background(), "a@b.co", "mala")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Invalid login credentials", authErr.Message)
}

func TestJWTProvider_SignUpPendingConfirmation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/signup", r.URL.Path)

		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ana", body.Data["nombre"])
		assert.Nil(t, body.Data["especialidad"])

		_, _ = w.Write([]byte(`{"id":"u-10","email":"a@b.co"}`))
	}))
	defer server.Close()

	provider := NewJWTProvider(JWTConfig{URL: server.URL}, quietLogger())

	session, err := provider.SignUp(context.Background(), Registration{
		Email: "a@b.co", Password: "123456", ConfirmPassword: "123456", Nombre: " Ana ",
	})
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestJWTProvider_SignInWithoutURL(t *testing.T) {
	provider := NewJWTProvider(JWTConfig{Secret: testSecret}, quietLogger())

	_, err := provider.SignIn(context.Background(), "a@b.co", "x")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgServiceUnavailable, authErr.Message)
}

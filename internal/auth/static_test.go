package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/febril-severity-server/internal/domain"
)

func newTestStaticProvider(t *testing.T) *StaticProvider {
	t.Helper()
	provider, err := NewStaticProvider(StaticConfig{DemoUser: "prueba", DemoPassword: "0258"}, quietLogger())
	require.NoError(t, err)
	return provider
}

func TestStaticProvider_DemoCredential(t *testing.T) {
	provider := newTestStaticProvider(t)
	ctx := context.Background()

	session, err := provider.SignIn(ctx, "prueba", "0258")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "Dr. Prueba", session.Identity.Nombre)
	assert.Equal(t, "Investigador", session.Identity.Rol)

	identity, err := provider.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "prueba", identity.ID)
}

func TestStaticProvider_BadCredentials(t *testing.T) {
	provider := newTestStaticProvider(t)

	for _, creds := range [][2]string{{"prueba", "0000"}, {"otro", "0258"}, {"", ""}} {
		_, err := provider.SignIn(context.Background(), creds[0], creds[1])
		var authErr *domain.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, MsgBadCredentials, authErr.Message)
	}
}

func TestStaticProvider_SignUpThenSignIn(t *testing.T) {
	provider := newTestStaticProvider(t)
	ctx := context.Background()
	reg := Registration{Email: "Ana@Hospital.co", Password: "123456", ConfirmPassword: "123456", Nombre: "Ana"}

	session, err := provider.SignUp(ctx, reg)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "Ana", session.Identity.Nombre)

	again, err := provider.SignIn(ctx, "ana@hospital.co", "123456")
	require.NoError(t, err)
	assert.Equal(t, session.Identity.ID, again.Identity.ID)

	_, err = provider.SignUp(ctx, reg)
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, MsgUserExists, authErr.Message)
}

func TestStaticProvider_SignUpValidates(t *testing.T) {
	provider := newTestStaticProvider(t)

	_, err := provider.SignUp(context.Background(), Registration{Email: "x", Password: "123456", ConfirmPassword: "654321", Nombre: "X"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgPasswordMismatch, verr.Message)
}

func TestStaticProvider_SignOutAndExpiry(t *testing.T) {
	provider, err := NewStaticProvider(StaticConfig{DemoUser: "prueba", DemoPassword: "0258", TokenTTL: 50 * time.Millisecond}, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := provider.SignIn(ctx, "prueba", "0258")
	require.NoError(t, err)
	require.NoError(t, provider.SignOut(ctx, first.Token))
	_, err = provider.Authenticate(ctx, first.Token)
	assert.Error(t, err)

	second, err := provider.SignIn(ctx, "prueba", "0258")
	require.NoError(t, err)
	time.Sleep(150 * time.Millisecond)
	_, err = provider.Authenticate(ctx, second.Token)
	assert.Error(t, err, "tokens expire after the TTL")
}

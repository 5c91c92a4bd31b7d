package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionStoreContract(t *testing.T, store SessionStore) {
	ctx := context.Background()

	missing, err := store.Get(ctx, "unknown-token")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Error(t, store.Put(ctx, &AppState{}), "a token is required")

	state := &AppState{
		Token:    "tok-" + time.Now().Format("150405.000000"),
		Identity: &Identity{ID: "u1", Email: "u1@x.co"},
		Profile:  &Profile{ID: "u1", Nombre: "Ana"},
		Theme:    ThemeDark,
	}
	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, state.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state.Token, got.Token)
	assert.Equal(t, "u1", got.Identity.ID)
	assert.Equal(t, "Ana", got.Profile.Nombre)
	assert.Equal(t, ThemeDark, got.Theme)

	require.NoError(t, store.Delete(ctx, state.Token))
	gone, err := store.Get(ctx, state.Token)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	defer store.Close()

	sessionStoreContract(t, store)
}

func TestMemorySessionStore_Expires(t *testing.T) {
	store := NewMemorySessionStore(10, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &AppState{Token: "t", Identity: &Identity{ID: "u"}}))
	time.Sleep(100 * time.Millisecond)

	got, err := store.Get(ctx, "t")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionStore(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	store, err := NewRedisSessionStore(context.Background(), redisURL, time.Minute, quietLogger())
	require.NoError(t, err)
	defer store.Close()

	sessionStoreContract(t, store)
}

func TestSessionKeyHidesToken(t *testing.T) {
	key := sessionKey("secret-token")
	assert.NotContains(t, key, "secret-token")
	assert.Equal(t, key, sessionKey("secret-token"))
	assert.NotEqual(t, key, sessionKey("other-token"))
}

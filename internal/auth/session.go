package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Themes the dashboard can render in.
const (
	ThemeLight   = "light"
	ThemeDark    = "dark"
	DefaultTheme = ThemeLight
)

// ValidTheme reports whether theme is a supported theme name.
func ValidTheme(theme string) bool {
	return theme == ThemeLight || theme == ThemeDark
}

// AppState is everything the dashboard needs to know about the current
// session. It is resolved once per request and passed to handlers
// explicitly.
type AppState struct {
	Token    string    `json:"-"`
	Identity *Identity `json:"user"`
	Profile  *Profile  `json:"profile"`
	Theme    string    `json:"theme"`
	// Failure records why a presented token did not resolve.
	Failure error `json:"-"`
}

// Anonymous returns an unauthenticated state.
func Anonymous() *AppState {
	return &AppState{Theme: DefaultTheme}
}

// Authenticated reports whether the state carries an identity.
func (s *AppState) Authenticated() bool {
	return s != nil && s.Identity != nil
}

// UserID returns the identity id, or "" when unauthenticated.
func (s *AppState) UserID() string {
	if !s.Authenticated() {
		return ""
	}
	return s.Identity.ID
}

// SessionStore keeps application state between requests, keyed by token.
type SessionStore interface {
	// Get returns the state for token, or nil if there is none.
	Get(ctx context.Context, token string) (*AppState, error)
	Put(ctx context.Context, state *AppState) error
	Delete(ctx context.Context, token string) error
	Close() error
}

// MemorySessionStore holds sessions in a bounded, expiring LRU.
type MemorySessionStore struct {
	cache *expirable.LRU[string, AppState]
}

// NewMemorySessionStore creates a memory session store.
func NewMemorySessionStore(maxEntries int, ttl time.Duration) *MemorySessionStore {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &MemorySessionStore{cache: expirable.NewLRU[string, AppState](maxEntries, nil, ttl)}
}

func (s *MemorySessionStore) Get(ctx context.Context, token string) (*AppState, error) {
	state, ok := s.cache.Get(token)
	if !ok {
		return nil, nil
	}
	state.Token = token
	return &state, nil
}

func (s *MemorySessionStore) Put(ctx context.Context, state *AppState) error {
	if state.Token == "" {
		return errors.New("session token is required")
	}
	stored := *state
	stored.Failure = nil
	s.cache.Add(state.Token, stored)
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.cache.Remove(token)
	return nil
}

func (s *MemorySessionStore) Close() error {
	s.cache.Purge()
	return nil
}

// RedisSessionStore keeps sessions in Redis so several server instances share
// them. Keys are derived from a hash of the token.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

const sessionKeyPrefix = "febril:session:"

// NewRedisSessionStore connects to Redis and verifies the connection.
func NewRedisSessionStore(ctx context.Context, redisURL string, ttl time.Duration, logger *logrus.Logger) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.WithField("addr", opts.Addr).Info("Session store connected to Redis")
	return &RedisSessionStore{client: client, ttl: ttl, logger: logger}, nil
}

func sessionKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return sessionKeyPrefix + hex.EncodeToString(sum[:])
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (*AppState, error) {
	raw, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}

	var state AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.WithError(err).Warn("Discarding unreadable session")
		return nil, nil
	}
	state.Token = token
	return &state, nil
}

func (s *RedisSessionStore) Put(ctx context.Context, state *AppState) error {
	if state.Token == "" {
		return errors.New("session token is required")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(state.Token), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

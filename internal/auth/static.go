package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// StaticConfig configures the demo provider.
type StaticConfig struct {
	DemoUser     string
	DemoPassword string
	TokenTTL     time.Duration
	MaxTokens    int
}

type account struct {
	hash     []byte
	identity Identity
}

// StaticProvider authenticates against a fixed demo credential plus accounts
// registered in memory. Tokens are opaque and expire after TokenTTL.
type StaticProvider struct {
	mu       sync.RWMutex
	accounts map[string]account
	tokens   *expirable.LRU[string, Identity]
	logger   *logrus.Logger
}

// NewStaticProvider creates the demo provider with its built-in account.
func NewStaticProvider(cfg StaticConfig, logger *logrus.Logger) (*StaticProvider, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 10000
	}

	p := &StaticProvider{
		accounts: make(map[string]account),
		tokens:   expirable.NewLRU[string, Identity](cfg.MaxTokens, nil, cfg.TokenTTL),
		logger:   logger,
	}

	if cfg.DemoUser != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DemoPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		p.accounts[normalizeLogin(cfg.DemoUser)] = account{
			hash:     hash,
			identity: DemoIdentity(cfg.DemoUser),
		}
	}
	return p, nil
}

// DemoIdentity is the identity of the built-in demo account.
func DemoIdentity(user string) Identity {
	return Identity{ID: user, Email: user, Nombre: "Dr. Prueba", Rol: "Investigador"}
}

func normalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Authenticate resolves a token issued by SignIn or SignUp.
func (p *StaticProvider) Authenticate(ctx context.Context, token string) (*Identity, error) {
	identity, ok := p.tokens.Get(token)
	if !ok {
		return nil, authError(MsgTokenInvalid, nil)
	}
	return &identity, nil
}

// SignIn checks the credential and issues a new token.
func (p *StaticProvider) SignIn(ctx context.Context, email, password string) (*Session, error) {
	p.mu.RLock()
	acct, ok := p.accounts[normalizeLogin(email)]
	p.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		p.logger.WithField("login", email).Info("Sign-in rejected")
		return nil, authError(MsgBadCredentials, nil)
	}
	return p.issue(acct.identity), nil
}

// SignUp registers an in-memory account and signs it in.
func (p *StaticProvider) SignUp(ctx context.Context, reg Registration) (*Session, error) {
	if err := ValidateRegistration(reg); err != nil {
		return nil, err
	}

	login := normalizeLogin(reg.Email)
	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	identity := Identity{
		ID:           uuid.New().String(),
		Email:        strings.TrimSpace(reg.Email),
		Nombre:       strings.TrimSpace(reg.Nombre),
		Especialidad: strings.TrimSpace(reg.Especialidad),
	}

	p.mu.Lock()
	if _, exists := p.accounts[login]; exists {
		p.mu.Unlock()
		return nil, authError(MsgUserExists, nil)
	}
	p.accounts[login] = account{hash: hash, identity: identity}
	p.mu.Unlock()

	p.logger.WithField("user_id", identity.ID).Info("Account registered")
	return p.issue(identity), nil
}

// SignOut invalidates the token.
func (p *StaticProvider) SignOut(ctx context.Context, token string) error {
	p.tokens.Remove(token)
	return nil
}

func (p *StaticProvider) issue(identity Identity) *Session {
	token := uuid.New().String()
	p.tokens.Add(token, identity)
	id := identity
	return &Session{Token: token, Identity: &id}
}

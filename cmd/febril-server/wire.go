package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/febril-severity-server/internal/api"
	"github.com/febril-severity-server/internal/auth"
	"github.com/febril-severity-server/internal/config"
	"github.com/febril-severity-server/internal/database"
	"github.com/febril-severity-server/internal/domain"
	"github.com/febril-severity-server/internal/middleware"
	"github.com/febril-severity-server/internal/observation"
	"github.com/febril-severity-server/internal/proxy"
	"github.com/febril-severity-server/internal/repository"
	"github.com/febril-severity-server/internal/service"
	"github.com/febril-severity-server/pkg/predictor"
)

// app holds the wired dependencies and what must be closed on shutdown.
type app struct {
	deps    api.Dependencies
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build selects and connects every adapter named by the configuration.
func build(ctx context.Context, manager *config.Manager, logger *logrus.Logger) (*app, error) {
	cfg := manager.GetConfig()
	a := &app{deps: api.Dependencies{Logger: logger}}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var profiles auth.ProfileStore
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, database.ConfigFrom(cfg.Database), logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.deps.StoreHealth = db.Health
		a.deps.Store = repository.NewEvaluationRepository(db.Pool, logger)
		profiles = auth.NewPostgresProfileStore(db.Pool, logger)
	default:
		store := repository.NewMemoryEvaluationStore(logger)
		if cfg.Store.Seed && cfg.Auth.DemoUser != "" {
			store.Seed(auth.DemoIdentity(cfg.Auth.DemoUser).ID)
		}
		a.deps.Store = store
		profiles = auth.NewMemoryProfileStore()
	}

	observations, err := openObservations(manager)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = observations.Close() })
	a.deps.Observations = observations

	var sessions auth.SessionStore
	if cfg.Session.Backend == "redis" {
		redisStore, err := auth.NewRedisSessionStore(ctx, cfg.Session.RedisURL, cfg.Session.TTL, logger)
		if err != nil {
			return nil, err
		}
		sessions = redisStore
	} else {
		sessions = auth.NewMemorySessionStore(cfg.Session.MaxEntries, cfg.Session.TTL)
	}
	a.closers = append(a.closers, func() { _ = sessions.Close() })

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.deps.Sessions = auth.NewService(provider, sessions, profiles, cfg.Auth.BootstrapTimeout, logger)

	if cfg.Backend.Mode == "live" {
		client := predictor.NewClient(predictor.Config{
			BaseURL: cfg.Backend.URL,
			Timeout: cfg.Backend.Timeout,
			AnonKey: cfg.Backend.AnonKey,
		}, logger)
		a.deps.Predictor = client
		a.deps.Models = client
		a.deps.Proxy = proxy.NewHandler(cfg.Backend.URL, cfg.Backend.Timeout, logger)
	} else {
		heuristic := service.NewHeuristicPredictor(logger)
		a.deps.Predictor = heuristic
		a.deps.Models = heuristic
	}

	history, err := service.NewHistoryEngine(logger, cfg.History, service.NewSearchFieldRegistry())
	if err != nil {
		return nil, err
	}
	a.deps.History = history

	if cfg.RateLimit.Enabled {
		limiter, err := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, cfg.RateLimit.MaxClients, logger)
		if err != nil {
			return nil, err
		}
		a.deps.RateLimiter = limiter
	}

	logger.WithFields(logrus.Fields{
		"store":        cfg.Store.Driver,
		"observations": cfg.Observation.Driver,
		"sessions":     cfg.Session.Backend,
		"auth":         cfg.Auth.Provider,
		"backend_mode": cfg.Backend.Mode,
	}).Info("Components wired")

	ok = true
	return a, nil
}

func openObservations(manager *config.Manager) (observation.Store, error) {
	cfg := manager.GetConfig().Observation
	if cfg.Driver == "postgres" {
		return observation.NewPostgresStoreFromURL(manager.GetDatabaseURL())
	}

	path := cfg.Path
	if path == "" {
		path = config.DefaultLiteConfig().ObservationDBPath()
	}
	return observation.NewSQLiteStore(path)
}

func newProvider(cfg *domain.Config, logger *logrus.Logger) (auth.Provider, error) {
	switch cfg.Auth.Provider {
	case "jwt":
		return auth.NewJWTProvider(auth.JWTConfig{
			Secret:   cfg.Auth.JWTSecret,
			Audience: cfg.Auth.Audience,
			URL:      cfg.Auth.URL,
			AnonKey:  cfg.Backend.AnonKey,
		}, logger), nil
	case "static":
		return auth.NewStaticProvider(auth.StaticConfig{
			DemoUser:     cfg.Auth.DemoUser,
			DemoPassword: cfg.Auth.DemoPassword,
			TokenTTL:     cfg.Session.TTL,
			MaxTokens:    cfg.Session.MaxEntries,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", cfg.Auth.Provider)
	}
}

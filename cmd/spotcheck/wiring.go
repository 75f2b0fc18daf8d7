package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"spotcheck/internal/adapters/api"
	"spotcheck/internal/adapters/observability"
	"spotcheck/internal/adapters/provider"
	redisad "spotcheck/internal/adapters/redis"
	"spotcheck/internal/app"
	"spotcheck/internal/domain"
	"spotcheck/internal/shared"
	"spotcheck/internal/storage/sqlstore"
)

// env is everything a command needs; built once per invocation.
type env struct {
	cfg        shared.Config
	sessions   *app.SessionManager
	places     *app.PlaceService
	reconciler *app.PlaceReconciler
	closers    []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Debug().Err(err).Msg("close failed")
		}
	}
}

type sessionStore interface {
	domain.KVStore
	Close() error
}

func openStore(ctx context.Context, cfg shared.Config) (sessionStore, error) {
	switch cfg.SessionBackend {
	case "mysql":
		return sqlstore.OpenMySQL(ctx, cfg.MySQLDSN)
	case "redis":
		s := redisad.NewStore(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o700); err != nil {
			return nil, err
		}
		return sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
	}
}

func buildEnv(ctx context.Context, cfg shared.Config) (*env, error) {
	domain.ObserveDecodeFallbacks(observability.ObserveDecodeFallback)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	e := &env{cfg: cfg, closers: []func() error{store.Close}}

	client, err := api.New(cfg.APIBaseURL, cfg.HTTPTimeout, 20)
	if err != nil {
		e.Close()
		return nil, err
	}

	var cache domain.Cache
	if cfg.SessionBackend == "redis" {
		c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		e.closers = append(e.closers, c.Close)
		cache = c
	}

	var prov domain.PlaceProvider
	if cfg.ProviderKey != "" {
		p, err := provider.New(cfg.ProviderBaseURL, cfg.ProviderKey, cfg.ProviderRPS)
		if err != nil {
			e.Close()
			return nil, err
		}
		prov = p
	}

	e.sessions = app.NewSessionManager(client, store)
	e.sessions.Initialize(ctx)
	e.places = app.NewPlaceService(client, e.sessions, prov, cache, cfg.CacheTTL)
	e.reconciler = app.NewPlaceReconciler(client, cache, cfg.CacheTTL, cfg.ReconcileWorkers)
	return e, nil
}

// loginNav records that a guarded flow asked for the login screen.
type loginNav struct{ asked bool }

func (n *loginNav) ToLogin() { n.asked = true }

var errLoginFirst = errors.New("you are not signed in; run `spotcheck login` first")

// Package app wires configuration into a running dispatcher and HTTP
// server. Both the long-running server and the Lambda entrypoint use it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/chunkjob/internal/catalog"
	"github.com/JonMunkholm/chunkjob/internal/config"
	"github.com/JonMunkholm/chunkjob/internal/core"
	"github.com/JonMunkholm/chunkjob/internal/handler"
	"github.com/JonMunkholm/chunkjob/internal/search"
	"github.com/JonMunkholm/chunkjob/internal/store/memory"
	"github.com/JonMunkholm/chunkjob/internal/store/postgres"
	"github.com/JonMunkholm/chunkjob/internal/store/redis"
	"github.com/JonMunkholm/chunkjob/internal/store/sqlite"
	"github.com/JonMunkholm/chunkjob/internal/web"
)

// App holds everything Build wires together.
type App struct {
	Dispatcher *core.Dispatcher
	Server     *web.Server

	closers []func()
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build connects the configured backends and returns the wired app.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	checks := map[string]web.HealthCheck{}

	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		pool, err = Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		checks["database"] = pool.Ping
	}

	store, locker, err := a.jobStore(ctx, cfg, pool, logger, checks)
	if err != nil {
		return nil, err
	}

	deps, err := catalogDeps(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}
	deps.Logger = logger

	reg := core.NewRegistry()
	handler.RegisterAll(reg, deps)
	logger.Info("operations registered", "operations", strings.Join(reg.Operations(), ","))

	a.Dispatcher = core.NewDispatcher(reg, store,
		core.WithLogger(logger),
		core.WithLocker(locker),
		core.WithDefaultLimit(cfg.Jobs.DefaultLimit),
		core.WithMaxLimit(cfg.Jobs.MaxLimit),
		core.WithErrorSampleSize(cfg.Jobs.ErrorSampleSize),
		core.WithStepTimeout(cfg.Jobs.StepTimeout),
	)

	a.Server = web.NewServer(a.Dispatcher, cfg)
	for name, check := range checks {
		a.Server.AddHealthCheck(name, check)
	}
	return a, nil
}

// jobStore opens the configured job store. Redis also supplies the step
// locker so steps are serialized across instances.
func (a *App) jobStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger, checks map[string]web.HealthCheck) (core.Store, core.Locker, error) {
	locker := core.Locker(core.NewKeyedLocker(cfg.Store.LockTimeout))

	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memory.New(memory.WithTTL(cfg.Store.TTL)), locker, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(cfg.Store.SQLitePath, sqlite.WithTTL(cfg.Store.TTL), sqlite.WithLogger(logger))
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = s.Close() })
		checks["store"] = s.Ping
		return s, locker, nil

	case config.BackendPostgres:
		s := postgres.New(pool, postgres.WithTTL(cfg.Store.TTL), postgres.WithLogger(logger))
		if err := s.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate job store: %w", err)
		}
		return s, locker, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		s := redis.New(client, redis.WithTTL(cfg.Store.TTL), redis.WithLogger(logger))
		if err := s.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		checks["store"] = s.Ping
		return s, redis.NewLocker(client, cfg.Store.LockTimeout), nil
	}
	return nil, nil, fmt.Errorf("unknown job store %q", cfg.Store.Backend)
}

func catalogDeps(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (handler.Deps, error) {
	if cfg.Jobs.Catalog != config.BackendPostgres {
		cat := catalog.NewMemory()
		return handler.Deps{Source: cat, Writer: cat, Indexer: search.NewMemory(cat)}, nil
	}

	cat := catalog.NewPostgres(pool)
	if err := cat.Migrate(ctx); err != nil {
		return handler.Deps{}, fmt.Errorf("migrate catalog: %w", err)
	}
	idx := search.NewPostgres(pool)
	if err := idx.Migrate(ctx); err != nil {
		return handler.Deps{}, fmt.Errorf("migrate search index: %w", err)
	}
	return handler.Deps{Source: cat, Writer: cat, Indexer: idx}, nil
}

// Connect opens and pings a pgx pool sized from cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.URL); err == nil {
		logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}
	return pool, nil
}

package cli

import (
	"context"
	"time"

	"github.com/butp-hub/destination-predictor/config"
	"github.com/butp-hub/destination-predictor/internal/application/command"
	"github.com/butp-hub/destination-predictor/internal/domain/cohort"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/postgres"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/projections"
	"github.com/butp-hub/destination-predictor/internal/infrastructure/persistence/redis"
	"github.com/butp-hub/destination-predictor/internal/interface/http/handlers"
	"github.com/butp-hub/destination-predictor/pkg/circuitbreaker"
	"github.com/butp-hub/destination-predictor/pkg/logger"
	"github.com/butp-hub/destination-predictor/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN STORE
// ══════════════════════════════════════════════════════════════════════════════

// runStore is the opened run repository. pinger is nil for the in-memory view.
type runStore struct {
	repo   cohort.RunRepository
	pinger handlers.Pinger
	close  func()
}

// openRunStore returns postgres when DATABASE_URL is set and an in-memory view
// otherwise. With run persistence switched off repo is nil.
func (a *App) openRunStore(ctx context.Context, migrate bool) (runStore, error) {
	noop := runStore{close: func() {}}
	log := a.Logger.With(logger.Component("run-store"))

	if !a.Config.Features.IsEnabled(config.FeatureRunPersistence) {
		log.Info("run persistence disabled")
		return noop, nil
	}
	if a.Config.Database.URL == "" {
		log.Info("no database configured, runs are kept in memory")
		return runStore{repo: projections.NewRunView(), close: func() {}}, nil
	}

	conn, err := a.connectDatabase(ctx)
	if err != nil {
		return noop, err
	}

	if migrate {
		n, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return noop, err
		}
		log.Info("database schema is up to date", logger.Int("applied", n))
	}

	return runStore{
		repo:   postgres.NewPredictionRepository(conn),
		pinger: conn,
		close:  conn.Close,
	}, nil
}

// connectDatabase dials postgres, retrying while the database comes up.
func (a *App) connectDatabase(ctx context.Context) (*postgres.Connection, error) {
	db := a.Config.Database
	if db.URL == "" {
		return nil, shared.NewDomainError("run", "Connect", shared.ErrConfiguration, "DATABASE_URL is not set")
	}

	pg := postgres.DefaultConfig()
	pg.URL = db.URL
	if db.MaxConns > 0 {
		pg.MaxConns = int32(db.MaxConns)
	}
	if db.MinConns >= 0 {
		pg.MinConns = int32(db.MinConns)
	}
	if db.ConnMaxLifetime > 0 {
		pg.MaxConnLifetime = db.ConnMaxLifetime
	}
	if db.ConnMaxIdleTime > 0 {
		pg.MaxConnIdleTime = db.ConnMaxIdleTime
	}
	if db.ConnectTimeout > 0 {
		pg.ConnectTimeout = db.ConnectTimeout
	}

	log := a.Logger.With(logger.Component("postgres"))
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pg)
	}, retry.DatabaseRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("database not reachable, retrying",
			logger.Int("attempt", attempt), logger.Err(err), logger.Duration("delay", delay))
	})...)
	if err != nil {
		return nil, shared.WrapError("run", "Connect", shared.ErrServiceUnavailable, "cannot connect to database", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULT CACHE
// ══════════════════════════════════════════════════════════════════════════════

type resultCache struct {
	cache  command.ResultCache
	pinger handlers.Pinger
	close  func()
}

// openResultCache connects the Redis result cache. The cache is optional: when
// it is disabled or unreachable the search runs uncached.
func (a *App) openResultCache(ctx context.Context) resultCache {
	noop := resultCache{close: func() {}}
	rc := a.Config.Redis
	log := a.Logger.With(logger.Component("result-cache"))

	if rc.Disabled || !a.Config.Features.IsEnabled(config.FeatureResultCache) {
		return noop
	}

	client, err := a.dialRedis(ctx)
	if err != nil {
		log.Warn("result cache unavailable, continuing without it", logger.Err(err))
		return noop
	}

	breaker := circuitbreaker.ResultCacheBreaker(redis.IsBackendFailure, func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name), logger.String("from", from.String()), logger.String("to", to.String()))
	})
	log.Info("result cache connected", logger.String("addr", client.Addr()), logger.Duration("ttl", rc.ResultTTL))

	return resultCache{
		cache:  redis.NewThresholdCache(client, rc.ResultTTL).WithBreaker(breaker),
		pinger: client,
		close:  func() { _ = client.Close() },
	}
}

// dialRedis connects to the configured Redis, retrying briefly.
func (a *App) dialRedis(ctx context.Context) (*redis.Cache, error) {
	rc := a.Config.Redis
	log := a.Logger.With(logger.Component("redis"))

	cfg := redis.DefaultConfig()
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cfg.MinIdleConns = rc.MinIdleConns
	}
	if rc.DialTimeout > 0 {
		cfg.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		cfg.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		cfg.WriteTimeout = rc.WriteTimeout
	}

	return retry.DoWithData(ctx, func(context.Context) (*redis.Cache, error) {
		return redis.NewCache(cfg)
	}, retry.CacheRetrier(func(attempt int, err error, delay time.Duration) {
		log.Debug("redis not reachable, retrying", logger.Int("attempt", attempt), logger.Err(err))
	})...)
}

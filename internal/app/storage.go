package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/djbooking/funnel/internal/config"
	"github.com/djbooking/funnel/internal/repository"
	"github.com/djbooking/funnel/internal/repository/memory"
	"github.com/djbooking/funnel/internal/repository/postgres"
	redisrepo "github.com/djbooking/funnel/internal/repository/redis"
	"github.com/djbooking/funnel/migrations"
	"github.com/djbooking/funnel/pkg/database"
)

// storage is the progress backend chosen at startup together with the
// connections it owns.
type storage struct {
	repo repository.ProgressRepository
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// openStorage selects the progress backend from configuration. Without
// POSTGRES_HOST progress lives in memory and is lost on restart. With it,
// progress is stored in PostgreSQL and, when REDIS_ADDR is set, read through
// a Redis cache.
func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	pgCfg := cfg.Postgres()
	if !pgCfg.Configured() {
		logger.Warn("POSTGRES_HOST not set, booking progress is kept in memory and lost on restart")
		if cfg.Redis().Configured() {
			logger.Info("progress cache disabled for the in-memory store")
		}
		return &storage{repo: memory.NewProgressStore()}, nil
	}

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", pgCfg.Host),
		slog.Int("port", pgCfg.Port),
		slog.String("database", pgCfg.DBName),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	s := &storage{
		repo: postgres.NewProgressRepository(pool),
		pool: pool,
	}

	if rc := cfg.Redis(); rc.Configured() {
		rdb, err := database.NewRedisClient(ctx, rc)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", rc.Addr),
			slog.Int("db", rc.DB),
			slog.Duration("ttl", cfg.ProgressCacheTTL()),
		)
		s.rdb = rdb
		s.repo = redisrepo.NewCachedProgressRepository(s.repo, rdb, cfg.ProgressCacheTTL(), logger)
	}

	return s, nil
}

func (s *storage) close() error {
	var err error
	if s.rdb != nil {
		err = s.rdb.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

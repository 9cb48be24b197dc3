package app

import (
	"context"
	"database/sql"

	"bff-auth/internal/config"
	"bff-auth/internal/db"
	"bff-auth/internal/logger"
	"bff-auth/internal/redis"

	_ "github.com/lib/pq"
)

// Infra holds the optional external backends. Redis is connected only
// when it backs the session store; postgres only when a user database is
// configured.
type Infra struct {
	DB    *db.DB
	Redis *redis.Client
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	infra := &Infra{}

	if cfg.DatabaseDSN != "" {
		sqlDB, err := sql.Open("postgres", cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}

		if err := sqlDB.PingContext(ctx); err != nil {
			return nil, err
		}

		if err := db.RunUserMigration(ctx, sqlDB); err != nil {
			return nil, err
		}

		logger.Info("database ready", nil)
		infra.DB = &db.DB{DB: sqlDB}
	}

	if cfg.SessionStorage == config.StorageRedis {
		redisClient, err := redis.New(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, err
		}

		logger.Info("redis ready", nil)
		infra.Redis = redisClient
	}

	return infra, nil
}

func (i *Infra) close() error {
	if i.DB != nil {
		return i.DB.Close()
	}
	return nil
}

package storage

import (
	"github.com/kyleking/lyre/internal/config"
	"github.com/kyleking/lyre/internal/logging"
)

// OpenFromConfig opens the configured database with its pool settings
func OpenFromConfig(cfg *config.Config, logger *logging.Logger) (*Store, error) {
	queryTimeout, maxLifetime, maxIdle, err := cfg.Database.Durations()
	if err != nil {
		return nil, err
	}

	return Open(config.ExpandPath(cfg.Database.Path), Options{
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdle,
		QueryTimeout:    queryTimeout,
		SchemaCacheSize: cfg.Cache.RelationCacheSize,
		Logger:          logger,
	})
}

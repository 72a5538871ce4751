package app

import (
	"fmt"

	"concierge-automation/internal/common/cache"
	"concierge-automation/internal/common/logging"
	"concierge-automation/internal/storage"
	"concierge-automation/internal/storage/postgres"
	"concierge-automation/internal/storage/sqlite"
)

// initializeStorage selects the backend from DATABASE_TYPE.
func (app *App) initializeStorage() error {
	var (
		store storage.Storage
		err   error
	)
	switch app.Config.DatabaseType {
	case "memory":
		store = storage.NewMemoryStorage()
	case "sqlite":
		factory := &sqlite.Factory{}
		store, err = factory.Create(&sqlite.Config{Path: app.Config.DatabasePath})
	case "postgres":
		factory := &postgres.Factory{}
		store, err = factory.Create(&postgres.Config{
			Host:     app.Config.PostgresHost,
			Port:     app.Config.PostgresPort,
			Database: app.Config.PostgresDB,
			User:     app.Config.PostgresUser,
			Password: app.Config.PostgresPassword,
			SSLMode:  app.Config.PostgresSSLMode,
		})
	default:
		return fmt.Errorf("unknown database type: %s", app.Config.DatabaseType)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", app.Config.DatabaseType, err)
	}

	app.Storage = store
	app.Logger.Info("storage initialized", logging.String("type", app.Config.DatabaseType))
	return nil
}

// initializeDedup prefers redis so restarted monitors share seen-message
// state; a redis failure degrades to the in-process store.
func (app *App) initializeDedup() {
	if app.Config.RedisEnabled {
		address, password, db, poolSize := app.Config.RedisSettings()
		dedup, err := cache.NewRedisDedup(&cache.RedisConfig{
			Address:  address,
			Password: password,
			DB:       db,
			PoolSize: poolSize,
		})
		if err == nil {
			app.Dedup = dedup
			app.Logger.Info("redis dedup store initialized", logging.String("address", address))
			return
		}
		app.Logger.Warn("redis unavailable, falling back to in-memory dedup", logging.Err(err))
	}
	app.Dedup = cache.NewMemoryDedup()
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/verdantio/greenhouse-backend/internal/api"
	"github.com/verdantio/greenhouse-backend/internal/cache"
	"github.com/verdantio/greenhouse-backend/internal/config"
	"github.com/verdantio/greenhouse-backend/internal/db"
	"github.com/verdantio/greenhouse-backend/internal/observ"
	"github.com/verdantio/greenhouse-backend/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no request deadline: take as long as the database
	// needs. Once serving, every request carries its own context.
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.ApplySchema(context.Background()); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	// The favorite cache is an optimization; a dead Redis must not stop
	// the service from coming up.
	favoriteCache, err := cache.NewFavoriteCache(cfg.RedisURL, logger)
	if err != nil {
		logger.Warn("favorite cache disabled", zap.Error(err))
		favoriteCache = nil
	} else {
		defer favoriteCache.Close()
	}

	pool := database.Pool()
	moduleStore := postgres.NewModuleStore(pool)
	greenhouseStore := postgres.NewGreenhouseStore(pool)
	favoriteStore := postgres.NewFavoriteStore(pool)
	telemetryStore := postgres.NewTelemetryStore(pool)
	userStore := postgres.NewUserStore(pool)

	handlers := api.Handlers{
		Auth:       api.NewAuthHandler(userStore, cfg.JWTSecret, logger),
		Modules:    api.NewModuleHandler(moduleStore, favoriteCache, logger),
		Greenhouse: api.NewGreenhouseHandler(greenhouseStore, favoriteCache, logger),
		Favorite:   api.NewFavoriteHandler(favoriteStore, favoriteCache, logger),
		Device:     api.NewDeviceHandler(moduleStore, telemetryStore, logger),
		Telemetry:  api.NewTelemetryHandler(telemetryStore, moduleStore, logger),
	}

	router := api.NewRouter(handlers, cfg.JWTSecret, func() error {
		return database.Health(context.Background())
	})

	logger.Info("starting greenhouse backend",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	return router.Run(":" + cfg.Port)
}

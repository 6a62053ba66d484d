package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/isdelr/userdir-be/internal/api"
	"github.com/isdelr/userdir-be/internal/config"
	"github.com/isdelr/userdir-be/internal/database"
	"github.com/isdelr/userdir-be/internal/logger"
	"github.com/isdelr/userdir-be/internal/monitoring"
	"github.com/isdelr/userdir-be/internal/ratelimit"
	"github.com/isdelr/userdir-be/internal/repository"
	"github.com/isdelr/userdir-be/internal/services"
	"github.com/isdelr/userdir-be/internal/websocket"
)

// storage bundles the repositories for the configured backend.
type storage struct {
	users     repository.UserRepository
	events    repository.EventRepository
	optimizer repository.Optimizer
	close     func()
}

func main() {
	// A missing .env file is fine; the environment may already be populated.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty && !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up storage
	store, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("Failed to initialize storage")
	}
	defer store.close()

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run(ctx)

	// Set up services
	eventService := services.NewEventService(store.events)
	userService := services.NewUserService(store.users, eventService, hub, cfg.BcryptCost)

	// Set up the background maintenance scheduler
	var scheduler *monitoring.Scheduler
	if cfg.MaintenanceCron != "" && store.optimizer != nil {
		scheduler, err = monitoring.NewScheduler(cfg.MaintenanceCron, store.optimizer, eventService)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure maintenance scheduler")
		}
		scheduler.Start()
	}

	opts := api.Options{
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:      cfg.StaticDir,
	}
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis ping failed; rate limiter will fail open until it recovers")
		}
		cancel()
		opts.RegisterLimiter = ratelimit.NewRedisLimiter(redisClient, cfg.RegisterRateWindow, cfg.RegisterRateMax)
	}

	// Set up router
	router := api.NewRouter(opts, hub, userService, eventService)

	// Set up server
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("driver", cfg.DatabaseDriver).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := database.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		users := repository.NewPostgresUserRepository(pool)
		return &storage{
			users:     users,
			events:    repository.NewPostgresEventRepository(pool),
			optimizer: users,
			close:     pool.Close,
		}, nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		return &storage{
			users:  repository.NewMemoryUserRepository(),
			events: repository.NewMemoryEventRepository(),
			close:  func() {},
		}, nil

	default:
		db, err := database.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		users := repository.NewSQLiteUserRepository(db)
		return &storage{
			users:     users,
			events:    repository.NewSQLiteEventRepository(db),
			optimizer: users,
			close:     func() { db.Close() },
		}, nil
	}
}

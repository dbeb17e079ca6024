package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mediafinder/backend/internal/config"
	"github.com/mediafinder/backend/internal/gateway"
	"github.com/mediafinder/backend/internal/handlers"
	"github.com/mediafinder/backend/internal/logger"
	"github.com/mediafinder/backend/internal/middleware"
	"github.com/mediafinder/backend/internal/repositories"
	"github.com/mediafinder/backend/internal/services"
	"github.com/mediafinder/backend/internal/statestore"
)

const (
	tokenCacheSize = 4096
	tokenCacheTTL  = 10 * time.Minute
	evictionPeriod = 24 * time.Hour
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting MediaFinder backend")

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db); err != nil {
		logger.Logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Connect to redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer startupCancel()
	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		logger.Logger.Fatal("Failed to connect to redis", zap.Error(err))
	}

	// Initialize repositories
	mediaRepo := repositories.NewMediaRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Load runtime tunables
	settings := config.NewSettings(settingsRepo)
	if err := settings.Load(startupCtx); err != nil {
		logger.Logger.Fatal("Failed to load settings", zap.Error(err))
	}

	// Chat-platform agent client
	agent := gateway.NewClient(cfg.Gateway)

	// Per-user interaction trail
	interactions := statestore.NewInteractionStore(redisClient)

	// Initialize services
	searchService := services.NewSearchService(mediaRepo, agent, cfg.Search, logger.Logger)
	tokenCache := services.NewTokenCache(tokenCacheSize, tokenCacheTTL)
	relayService := services.NewRelayService(
		mediaRepo, agent, agent, agent,
		tokenCache, settings, cfg.Relay, logger.Logger,
	)

	// Background eviction
	evictionCtx, evictionCancel := context.WithCancel(context.Background())
	defer evictionCancel()
	scheduler := services.NewEvictionScheduler(mediaRepo, settings, evictionPeriod, logger.Logger)
	go scheduler.Run(evictionCtx)

	// Initialize handlers
	searchHandler := handlers.NewSearchHandler(searchService, interactions, settings, cfg.Search, logger.Logger)
	relayHandler := handlers.NewRelayHandler(relayService, interactions, logger.Logger)

	// Setup router
	r := chi.NewRouter()

	// Apply middleware
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.LoggerMiddleware(logger.Logger))
	r.Use(middleware.RecoveryMiddleware(logger.Logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))
	r.Use(middleware.MetricsMiddleware())
	r.Use(httprate.LimitByIP(100, time.Minute))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Scope router to /api/v1
	r.Route("/api/v1", func(r chi.Router) {
		searchHandler.RegisterRoutes(r)
		relayHandler.RegisterRoutes(r)
	})

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Relay.OverallBudget + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Logger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down server...")
	evictionCancel()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Logger.Info("Server exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	driver, err := mysql.WithInstance(db, &mysql.Config{
		MigrationsTable: "mediafinder_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	migrationPath := "file://migrations"
	if _, err := os.Stat("migrations"); os.IsNotExist(err) {
		// Try parent directory if running from cmd
		if _, err := os.Stat("../migrations"); err == nil {
			migrationPath = "file://../migrations"
		}
	}

	m, err := migrate.NewWithDatabaseInstance(
		migrationPath,
		"mysql",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

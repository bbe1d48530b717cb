package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/api"
	"predix-engine/pkg/cache"
	"predix-engine/pkg/config"
	"predix-engine/pkg/database"
	"predix-engine/pkg/ledger"
	"predix-engine/pkg/oracle"
	"predix-engine/pkg/store"
	"predix-engine/pkg/websocket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Setup logging
	setupLogging(cfg)

	logrus.Info("Starting Predix Engine...")

	// Initialize database
	if err := database.Initialize(cfg); err != nil {
		logrus.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		logrus.Fatalf("Failed to run database migrations: %v", err)
	}

	// Seed initial data
	if cfg.IsDevelopment() {
		if err := database.SeedData(cfg); err != nil {
			logrus.Fatalf("Failed to seed database: %v", err)
		}
	}

	// Initialize Redis cache
	redisCache, err := cache.Initialize(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer cache.Close()

	// WebSocket hub and redis indexer channel both receive engine events
	hub := websocket.NewHub()
	notifier := engine.MultiNotifier{hub, cache.NewEventPublisher()}

	// Build the settlement engine on the database-backed ledger and journal
	journal := store.New(database.GetDB())
	eng, err := engine.New(engine.Options{
		FeeBps:        cfg.Market.FeeBps,
		MinBet:        cfg.Market.MinBet,
		EscrowAccount: cfg.Market.EscrowAccount,
		Admin:         cfg.Market.AdminAccount,
		Ledger:        ledger.New(database.GetDB()),
		Notifier:      notifier,
		Journal:       journal,
	})
	if err != nil {
		logrus.Fatalf("Failed to create settlement engine: %v", err)
	}

	// Resume journalled state from a previous run
	snapshot, found, err := journal.LoadSnapshot()
	if err != nil {
		logrus.Fatalf("Failed to load journalled state: %v", err)
	}
	if found {
		if err := eng.Restore(snapshot); err != nil {
			logrus.Fatalf("Failed to restore journalled state: %v", err)
		}
		logrus.WithField("markets", len(snapshot.Markets)).Info("Restored journalled state")
	} else {
		logrus.Info("No journalled state found, starting fresh")
	}

	// Price feed: external service when configured, admin-posted prices
	// otherwise
	var static *oracle.StaticSource
	var source oracle.PriceSource
	if cfg.Market.OracleURL != "" {
		source = oracle.NewHTTPSource(cfg.Market.OracleURL)
		logrus.WithField("url", cfg.Market.OracleURL).Info("Using external price feed")
	} else {
		static = oracle.NewStaticSource()
		source = static
		logrus.Warn("No ORACLE_URL configured, prices must be posted through the admin API")
	}
	adapter := oracle.NewAdapter(source, cfg.Market.PriceMaxAge)

	// Setup HTTP server
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	// In production, specify allowed origins instead of allowing all
	if cfg.IsDevelopment() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{
			"https://yourdomain.com", // Replace with your actual domain
			"https://www.yourdomain.com",
		}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Initialize API routes
	api.SetupRoutes(router, eng, hub, adapter, static, cfg, redisCache)

	// Start background workers
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	go hub.Run(workerCtx)

	scheduler := oracle.NewScheduler(eng, adapter, cfg.Market.ResolveInterval)
	go scheduler.Run(workerCtx)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logrus.Infof("Predix Engine server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down Predix Engine...")

	stopWorkers()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Predix Engine stopped successfully")
}

func setupLogging(cfg *config.Config) {
	// Set log format
	logrus.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	// Set log level
	if cfg.IsDevelopment() {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging initialized")
}

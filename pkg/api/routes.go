package api

import (
	"net/http"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/auth"
	"predix-engine/pkg/cache"
	"predix-engine/pkg/config"
	"predix-engine/pkg/database"
	"predix-engine/pkg/ledger"
	"predix-engine/pkg/middleware"
	"predix-engine/pkg/oracle"
	"predix-engine/pkg/websocket"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, eng *engine.Engine, hub *websocket.Hub, adapter *oracle.Adapter, static *oracle.StaticSource, cfg *config.Config, redisCache *cache.RedisCache) {
	// Initialize authentication services
	jwtService := auth.NewJWTService(
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessTokenTTL)*time.Second,
		time.Duration(cfg.Auth.RefreshTokenTTL)*time.Second,
	)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService, database.GetDB(), eng)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(redisCache)

	// Initialize handlers
	handlers := NewHandlers(eng, hub, adapter, static)
	authHandlers := NewAuthHandlers(database.GetDB(), jwtService, ledger.New(database.GetDB()))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "predix-engine",
			"version": "1.0.0",
		})
	})

	// Apply global rate limiting to all routes
	router.Use(rateLimitMiddleware.IPRateLimit(middleware.DefaultRateLimit))

	// API version group
	v1 := router.Group("/api/v1")
	{
		// Public authentication endpoints (no auth required)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandlers.Register)
			authGroup.POST("/login", authHandlers.Login)
		}

		// Protected authentication endpoints (auth required)
		authProtected := v1.Group("/auth")
		authProtected.Use(authMiddleware.JWTAuth())
		{
			authProtected.GET("/profile", authHandlers.GetProfile)
			authProtected.GET("/balance", authHandlers.GetBalance)
		}

		// Public market endpoints (higher rate limits). Resolution is open
		// to anyone once the deadline passes; the verified oracle price
		// decides the outcome, not the caller.
		markets := v1.Group("/markets")
		markets.Use(rateLimitMiddleware.PublicRateLimit())
		{
			markets.GET("", handlers.GetMarkets)
			markets.GET("/:marketId", handlers.GetMarket)
			markets.GET("/:marketId/bets", handlers.GetMarketBets)
			markets.POST("/:marketId/resolve", handlers.ResolveMarket)
		}

		// Betting and claiming endpoints (require authentication)
		betting := v1.Group("/markets")
		betting.Use(authMiddleware.JWTAuth())
		betting.Use(rateLimitMiddleware.BettingRateLimit())
		{
			betting.POST("/:marketId/bets", handlers.PlaceBet)
			betting.GET("/:marketId/bets/me", handlers.GetMyBets)
			betting.GET("/:marketId/payout", handlers.GetPayout)
			betting.POST("/:marketId/claim", handlers.ClaimWinnings)
			betting.POST("/:marketId/refund", handlers.ClaimRefund)
		}

		// WebSocket endpoint for settlement events
		ws := v1.Group("/ws")
		ws.Use(authMiddleware.OptionalAuth()) // Allow both authenticated and anonymous connections
		{
			ws.GET("", handlers.HandleWebSocket)
		}
	}

	// Admin endpoints (require admin authentication)
	admin := router.Group("/admin")
	admin.Use(authMiddleware.JWTAuth())
	admin.Use(authMiddleware.RequireAdmin())
	{
		admin.POST("/markets", handlers.CreateMarket)
		admin.DELETE("/markets/:marketId", handlers.CancelMarket)
		admin.POST("/markets/:marketId/override", handlers.OverrideResolution)
		admin.GET("/admins", handlers.GetAdmins)
		admin.POST("/admins", handlers.AddAdmin)
		admin.DELETE("/admins/:account", handlers.RemoveAdmin)
		admin.GET("/treasury", handlers.GetTreasury)
		admin.POST("/oracle/price", handlers.PostOraclePrice)
		admin.GET("/health/database", CheckDatabaseHealth)
		admin.GET("/health/redis", CheckRedisHealth)
		admin.GET("/metrics", handlers.GetMetrics)
		admin.GET("/ws/stats", handlers.GetWebSocketStats)
	}
}

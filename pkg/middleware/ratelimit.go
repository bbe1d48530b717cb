package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"predix-engine/pkg/cache"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests   int                         // Number of requests
	Window     time.Duration               // Time window
	KeyFunc    func(c *gin.Context) string // Function to generate rate limit key
	Message    string                      // Error message to return
	StatusCode int                         // HTTP status code to return
}

// Default rate limiting configurations
var (
	DefaultRateLimit = RateLimitConfig{
		Requests:   100,
		Window:     time.Minute,
		KeyFunc:    func(c *gin.Context) string { return c.ClientIP() },
		Message:    "Too many requests, please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	PublicRateLimit = RateLimitConfig{
		Requests:   1000,
		Window:     time.Minute,
		KeyFunc:    func(c *gin.Context) string { return c.ClientIP() },
		Message:    "Too many requests, please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	BettingRateLimit = RateLimitConfig{
		Requests: 10,
		Window:   time.Second,
		KeyFunc: func(c *gin.Context) string {
			if account, exists := c.Get("account"); exists {
				return fmt.Sprintf("account:%v", account)
			}
			return c.ClientIP()
		},
		Message:    "Betting rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
)

// RateLimitMiddleware handles rate limiting
type RateLimitMiddleware struct {
	cache *cache.RedisCache
}

// NewRateLimitMiddleware creates a new rate limiting middleware
func NewRateLimitMiddleware(cache *cache.RedisCache) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		cache: cache,
	}
}

// IPRateLimit creates a rate limiting middleware for IP addresses
func (rl *RateLimitMiddleware) IPRateLimit(config RateLimitConfig) gin.HandlerFunc {
	return rl.RateLimit(config)
}

// PublicRateLimit creates a rate limiting middleware for public endpoints
func (rl *RateLimitMiddleware) PublicRateLimit() gin.HandlerFunc {
	return rl.RateLimit(PublicRateLimit)
}

// BettingRateLimit creates a rate limiting middleware for betting endpoints
func (rl *RateLimitMiddleware) BettingRateLimit() gin.HandlerFunc {
	return rl.RateLimit(BettingRateLimit)
}

// RateLimit creates a rate limiting middleware with the given configuration
func (rl *RateLimitMiddleware) RateLimit(config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := config.KeyFunc(c)
		rateLimitKey := fmt.Sprintf("rate_limit:%s", key)

		allowed, err := rl.checkRateLimitRedis(rateLimitKey, config)
		if err != nil {
			// If rate limiting fails, allow the request rather than taking
			// the whole API down with it.
			c.Next()
			return
		}

		if !allowed {
			c.JSON(config.StatusCode, gin.H{"error": config.Message})
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRateLimitRedis checks rate limiting using a Redis sliding window
func (rl *RateLimitMiddleware) checkRateLimitRedis(key string, config RateLimitConfig) (bool, error) {
	if rl.cache == nil || rl.cache.Client() == nil {
		return false, cache.ErrNotInitialized
	}

	now := time.Now().Unix()
	expiredTime := now - int64(config.Window.Seconds())

	// Remove expired entries
	_, err := rl.cache.Client().ZRemRangeByScore(rl.cache.Context(), key, "0", strconv.FormatInt(expiredTime, 10)).Result()
	if err != nil {
		return false, err
	}

	// Count current requests
	count, err := rl.cache.Client().ZCard(rl.cache.Context(), key).Result()
	if err != nil {
		return false, err
	}

	// Check if limit exceeded
	if count >= int64(config.Requests) {
		return false, nil
	}

	// Add current request
	err = rl.cache.Client().ZAdd(rl.cache.Context(), key, &redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d-%d", now, time.Now().UnixNano()),
	}).Err()
	if err != nil {
		return false, err
	}

	// Set expiration
	err = rl.cache.Client().Expire(rl.cache.Context(), key, config.Window).Err()
	if err != nil {
		return false, err
	}

	return true, nil
}

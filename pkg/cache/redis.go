package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"predix-engine/pkg/config"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

var (
	RedisClient *redis.Client
	ctx         = context.Background()
)

// RedisCache wraps the shared client for components that want an injectable
// handle instead of the package-level helpers.
type RedisCache struct {
	client *redis.Client
}

// Client returns the underlying redis client.
func (r *RedisCache) Client() *redis.Client { return r.client }

// Context returns the cache context.
func (r *RedisCache) Context() context.Context { return ctx }

// Initialize Redis connection
func Initialize(cfg *config.Config) (*RedisCache, error) {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisURL(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	// Test connection
	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.Info("Redis connected successfully")
	return &RedisCache{client: RedisClient}, nil
}

// Cache keys constants
const (
	KeyMarketView  = "market:view:%d"  // market:view:42
	KeyMarketList  = "market:list"     // market:list
	KeyOraclePrice = "oracle:price:%s" // oracle:price:<feed hex>
	KeyUserBets    = "user:bets:%d:%s" // user:bets:42:alice
)

// ChannelSettlementEvents carries engine events for the external indexer.
const ChannelSettlementEvents = "events:settlement"

// Cache expiration times
const (
	ExpireMarketView  = 2 * time.Second
	ExpireMarketList  = 5 * time.Second
	ExpireOraclePrice = 10 * time.Second
	ExpireUserBets    = 2 * time.Second
)

// ErrNotInitialized is returned by the package helpers before Initialize has
// connected the shared client.
var ErrNotInitialized = fmt.Errorf("redis client not initialized")

// Set stores a value in Redis with expiration
func Set(key string, value interface{}, expiration time.Duration) error {
	if RedisClient == nil {
		return ErrNotInitialized
	}

	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	err = RedisClient.Set(ctx, key, jsonValue, expiration).Err()
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Get retrieves a value from Redis
func Get(key string, dest interface{}) error {
	if RedisClient == nil {
		return ErrNotInitialized
	}

	val, err := RedisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("key %s not found", key)
		}
		return fmt.Errorf("failed to get key %s: %w", key, err)
	}

	err = json.Unmarshal([]byte(val), dest)
	if err != nil {
		return fmt.Errorf("failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Delete removes a key from Redis
func Delete(key string) error {
	if RedisClient == nil {
		return ErrNotInitialized
	}

	err := RedisClient.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Publish publishes a message to a channel
func Publish(channel string, message interface{}) error {
	if RedisClient == nil {
		return ErrNotInitialized
	}

	jsonMessage, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = RedisClient.Publish(ctx, channel, jsonMessage).Err()
	if err != nil {
		return fmt.Errorf("failed to publish message to channel %s: %w", channel, err)
	}

	return nil
}

// Subscribe subscribes to Redis channels
func Subscribe(channels ...string) *redis.PubSub {
	return RedisClient.Subscribe(ctx, channels...)
}

// Close closes the Redis connection
func Close() error {
	if RedisClient != nil {
		return RedisClient.Close()
	}
	return nil
}

// HealthCheck checks if Redis is healthy
func HealthCheck() error {
	if RedisClient == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	_, err := RedisClient.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}

	return nil
}

// Helper functions for common cache operations

// CacheMarketView caches one market view
func CacheMarketView(marketID uint64, view interface{}) error {
	key := fmt.Sprintf(KeyMarketView, marketID)
	return Set(key, view, ExpireMarketView)
}

// GetMarketView retrieves a cached market view
func GetMarketView(marketID uint64, dest interface{}) error {
	key := fmt.Sprintf(KeyMarketView, marketID)
	return Get(key, dest)
}

// InvalidateMarketView removes a cached market view
func InvalidateMarketView(marketID uint64) error {
	key := fmt.Sprintf(KeyMarketView, marketID)
	return Delete(key)
}

// CacheOraclePrice caches the latest verified price for a feed
func CacheOraclePrice(feed string, price interface{}) error {
	key := fmt.Sprintf(KeyOraclePrice, feed)
	return Set(key, price, ExpireOraclePrice)
}

// GetOraclePrice retrieves the cached price for a feed
func GetOraclePrice(feed string, dest interface{}) error {
	key := fmt.Sprintf(KeyOraclePrice, feed)
	return Get(key, dest)
}

// PublishSettlementEvent forwards an engine event to the indexer channel
func PublishSettlementEvent(event interface{}) error {
	return Publish(ChannelSettlementEvents, event)
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Market   MarketConfig   `yaml:"market"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	Environment  string        `yaml:"environment"`
}

type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     string        `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	MaxLife  time.Duration `yaml:"max_life"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	PoolSize int    `yaml:"pool_size"`
}

type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`  // seconds
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"` // seconds
}

type MarketConfig struct {
	// FeeBps is the protocol fee in basis points (200 = 2.00%), taken on the
	// gross payout at claim time.
	FeeBps uint64 `yaml:"fee_bps"`
	// MinBet is the smallest accepted stake in base units.
	MinBet uint64 `yaml:"min_bet"`
	// EscrowAccount holds staked value between bet and claim.
	EscrowAccount string `yaml:"escrow_account"`
	// AdminAccount is the initial admin principal on a fresh deployment.
	AdminAccount string `yaml:"admin_account"`
	// OracleURL is the base URL of the price feed service. Empty selects the
	// in-process static source, which is only useful for development.
	OracleURL string `yaml:"oracle_url"`
	// PriceMaxAge rejects oracle prices older than this.
	PriceMaxAge time.Duration `yaml:"price_max_age"`
	// ResolveInterval is how often the scheduler looks for due markets.
	ResolveInterval time.Duration `yaml:"resolve_interval"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "predix_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxOpen:  getIntEnv("DB_MAX_OPEN", 25),
			MaxIdle:  getIntEnv("DB_MAX_IDLE", 5),
			MaxLife:  getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			Database: getIntEnv("REDIS_DATABASE", 0),
			PoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_SECRET_KEY", "predix-engine-secret-key"),
			AccessTokenTTL:  getIntEnv("JWT_ACCESS_TTL", 900),
			RefreshTokenTTL: getIntEnv("JWT_REFRESH_TTL", 86400),
		},
		Market: MarketConfig{
			FeeBps:          getUint64Env("MARKET_FEE_BPS", 200),
			MinBet:          getUint64Env("MARKET_MIN_BET", 1),
			EscrowAccount:   getEnv("MARKET_ESCROW_ACCOUNT", "escrow"),
			AdminAccount:    getEnv("MARKET_ADMIN_ACCOUNT", "admin"),
			OracleURL:       getEnv("ORACLE_URL", ""),
			PriceMaxAge:     getDurationEnv("ORACLE_PRICE_MAX_AGE", 60*time.Second),
			ResolveInterval: getDurationEnv("ORACLE_RESOLVE_INTERVAL", 10*time.Second),
		},
	}

	// Optional YAML overlay for deployments that prefer a config file over
	// environment variables.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if cfg.Market.FeeBps > 10000 {
		return nil, fmt.Errorf("MARKET_FEE_BPS must be at most 10000, got %d", cfg.Market.FeeBps)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if u, err := strconv.ParseUint(value, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func (c *Config) GetDatabaseURL() string {
	return "postgres://" + c.Database.User + ":" + c.Database.Password + "@" + c.Database.Host + ":" + c.Database.Port + "/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

func (c *Config) GetRedisURL() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func (c *Config) GetServerAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

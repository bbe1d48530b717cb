package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"predix-engine/pkg/config"
	"predix-engine/pkg/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Initialize database connection
func Initialize(cfg *config.Config) error {
	dsn := cfg.GetDatabaseURL()

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Connection pool configuration
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.Database.MaxLife)

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = db
	log.Println("Database connected successfully")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	err := DB.AutoMigrate(
		&models.User{},
		&models.Balance{},
		// Engine journal models
		&models.Market{},
		&models.MarketTotals{},
		&models.UserBet{},
		&models.Admin{},
		&models.EngineState{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}

// SeedData creates initial data for testing
func SeedData(cfg *config.Config) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	users := []struct {
		account string
		email   string
		funds   string
	}{
		{cfg.Market.AdminAccount, "admin@example.com", "0"},
		{"alice", "alice@example.com", "10000000"},
		{"bob", "bob@example.com", "10000000"},
	}

	for _, u := range users {
		var existing models.User
		result := DB.Where("account = ?", u.account).First(&existing)
		if result.Error != nil {
			if result.Error != gorm.ErrRecordNotFound {
				return fmt.Errorf("failed to check user %s: %w", u.account, result.Error)
			}

			hash, err := bcrypt.GenerateFromPassword([]byte(u.account+"-dev-password"), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password for %s: %w", u.account, err)
			}
			user := models.User{
				Account:      u.account,
				Email:        u.email,
				PasswordHash: string(hash),
				IsActive:     true,
			}
			if err := DB.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user %s: %w", u.account, err)
			}
			log.Printf("Created user: %s", u.account)

			balance := models.Balance{
				Account:   u.account,
				Available: models.DecimalFromString(u.funds),
			}
			if err := DB.Create(&balance).Error; err != nil {
				return fmt.Errorf("failed to create balance for %s: %w", u.account, err)
			}
		}
	}

	log.Println("Database seeding completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Health check for database
func HealthCheck() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

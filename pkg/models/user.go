package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents a participant account. The Account field is the principal
// identity the settlement engine sees (bettor, admin, creator).
type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Account      string         `gorm:"unique;not null;size:64" json:"account"`
	Email        string         `gorm:"unique;not null" json:"email"`
	PasswordHash string         `gorm:"not null" json:"-"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

// Balance is one ledger account balance in base units. The escrow and
// treasury accounts live in the same table as user accounts.
type Balance struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Account   string          `gorm:"unique;not null;size:64" json:"account"`
	Available decimal.Decimal `gorm:"type:decimal(30,0);default:0" json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BeforeCreate hook for Balance
func (b *Balance) BeforeCreate(tx *gorm.DB) error {
	if b.Available.IsZero() {
		b.Available = decimal.Zero
	}
	return nil
}

// TableName methods
func (User) TableName() string    { return "users" }
func (Balance) TableName() string { return "balances" }

package models

import "time"

// Market journals one settlement engine market. IDs are allocated by the
// engine, monotonically from 1, and never reused.
type Market struct {
	ID          uint64  `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Question    string  `gorm:"not null;size:500" json:"question"`
	Asset       string  `gorm:"not null;size:64" json:"asset"` // hex feed id
	Threshold   uint64  `gorm:"not null" json:"threshold"`
	Deadline    uint64  `gorm:"not null;index" json:"deadline"`
	CreatedAt   uint64  `gorm:"not null" json:"created_at"` // basis unit, not wall time
	Status      string  `gorm:"not null;size:10;index" json:"status"`
	WinningSide *bool   `json:"winning_side,omitempty"`
	FinalPrice  *uint64 `json:"final_price,omitempty"`
	Creator     string  `gorm:"not null;size:64" json:"creator"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Totals MarketTotals `gorm:"foreignKey:MarketID" json:"totals,omitempty"`
	Bets   []UserBet    `gorm:"foreignKey:MarketID" json:"bets,omitempty"`
}

// MarketTotals journals the aggregate stake pools of one market. Created
// atomically with the market; the totals only grow while the market is open.
type MarketTotals struct {
	MarketID  uint64    `gorm:"primaryKey;autoIncrement:false" json:"market_id"`
	YesTotal  uint64    `gorm:"not null;default:0" json:"yes_total"`
	NoTotal   uint64    `gorm:"not null;default:0" json:"no_total"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName methods
func (Market) TableName() string       { return "markets" }
func (MarketTotals) TableName() string { return "market_totals" }

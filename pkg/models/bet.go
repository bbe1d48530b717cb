package models

import "time"

// UserBet journals one participant's accumulated position on a market.
// Identity is the (market, account) pair; amounts only grow while the market
// is open and claimed flips to true exactly once.
type UserBet struct {
	MarketID  uint64    `gorm:"primaryKey;autoIncrement:false" json:"market_id"`
	Account   string    `gorm:"primaryKey;size:64" json:"account"`
	YesAmount uint64    `gorm:"not null;default:0" json:"yes_amount"`
	NoAmount  uint64    `gorm:"not null;default:0" json:"no_amount"`
	Claimed   bool      `gorm:"not null;default:false" json:"claimed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Admin journals membership of the engine admin set.
type Admin struct {
	Principal string    `gorm:"primaryKey;size:64" json:"principal"`
	CreatedAt time.Time `json:"created_at"`
}

// EngineState holds singleton engine counters; currently only the treasury
// fee accumulator. Always row id 1.
type EngineState struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Treasury  uint64    `gorm:"not null;default:0" json:"treasury"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName methods
func (UserBet) TableName() string     { return "user_bets" }
func (Admin) TableName() string       { return "admins" }
func (EngineState) TableName() string { return "engine_state" }

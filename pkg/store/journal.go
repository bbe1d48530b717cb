package store

import (
	"fmt"

	"predix-engine/internal/engine"
	"predix-engine/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Journal is the write-behind persistence for the settlement engine. Every
// engine mutation is mirrored into the markets/user_bets/admins tables, and
// LoadSnapshot replays them into a fresh engine at startup.
type Journal struct {
	db *gorm.DB
}

// New creates a journal backed by the given database.
func New(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// SaveMarket upserts a market together with its totals.
func (j *Journal) SaveMarket(m engine.Market, t engine.Totals) error {
	return j.db.Transaction(func(tx *gorm.DB) error {
		record := models.Market{
			ID:          m.ID,
			Question:    m.Question,
			Asset:       m.Asset.String(),
			Threshold:   m.Threshold,
			Deadline:    m.Deadline,
			CreatedAt:   m.CreatedAt,
			Status:      string(m.Status),
			WinningSide: m.WinningSide,
			FinalPrice:  m.FinalPrice,
			Creator:     m.Creator,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save market %d: %w", m.ID, err)
		}

		totals := models.MarketTotals{
			MarketID: m.ID,
			YesTotal: t.Yes,
			NoTotal:  t.No,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&totals).Error; err != nil {
			return fmt.Errorf("failed to save totals for market %d: %w", m.ID, err)
		}
		return nil
	})
}

// SaveBet upserts one participant's position.
func (j *Journal) SaveBet(marketID uint64, account string, b engine.UserBet) error {
	record := models.UserBet{
		MarketID:  marketID,
		Account:   account,
		YesAmount: b.YesAmount,
		NoAmount:  b.NoAmount,
		Claimed:   b.Claimed,
	}
	if err := j.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to save bet (%d, %s): %w", marketID, account, err)
	}
	return nil
}

// SaveAdmin records admin set membership changes.
func (j *Journal) SaveAdmin(principal string, member bool) error {
	if member {
		record := models.Admin{Principal: principal}
		if err := j.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to save admin %s: %w", principal, err)
		}
		return nil
	}
	if err := j.db.Delete(&models.Admin{}, "principal = ?", principal).Error; err != nil {
		return fmt.Errorf("failed to remove admin %s: %w", principal, err)
	}
	return nil
}

// SaveTreasury persists the fee accumulator.
func (j *Journal) SaveTreasury(total uint64) error {
	record := models.EngineState{ID: 1, Treasury: total}
	if err := j.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to save engine state: %w", err)
	}
	return nil
}

// LoadSnapshot reads the journalled state back into an engine snapshot.
// Returns ok=false when the journal is empty (fresh deployment).
func (j *Journal) LoadSnapshot() (engine.Snapshot, bool, error) {
	var snap engine.Snapshot

	var admins []models.Admin
	if err := j.db.Find(&admins).Error; err != nil {
		return snap, false, fmt.Errorf("failed to load admins: %w", err)
	}
	if len(admins) == 0 {
		return snap, false, nil
	}
	for _, a := range admins {
		snap.Admins = append(snap.Admins, a.Principal)
	}

	var state models.EngineState
	if err := j.db.First(&state, 1).Error; err == nil {
		snap.Treasury = state.Treasury
	} else if err != gorm.ErrRecordNotFound {
		return snap, false, fmt.Errorf("failed to load engine state: %w", err)
	}

	var markets []models.Market
	if err := j.db.Preload("Totals").Preload("Bets").Order("id").Find(&markets).Error; err != nil {
		return snap, false, fmt.Errorf("failed to load markets: %w", err)
	}
	for _, m := range markets {
		asset, err := engine.ParseFeedID(m.Asset)
		if err != nil {
			return snap, false, fmt.Errorf("market %d has a corrupt feed id: %w", m.ID, err)
		}
		ms := engine.MarketSnapshot{
			Market: engine.Market{
				ID:          m.ID,
				Question:    m.Question,
				Asset:       asset,
				Threshold:   m.Threshold,
				Deadline:    m.Deadline,
				CreatedAt:   m.CreatedAt,
				Status:      engine.MarketStatus(m.Status),
				WinningSide: m.WinningSide,
				FinalPrice:  m.FinalPrice,
				Creator:     m.Creator,
			},
			Totals: engine.Totals{Yes: m.Totals.YesTotal, No: m.Totals.NoTotal},
			Bets:   make(map[string]engine.UserBet, len(m.Bets)),
		}
		for _, b := range m.Bets {
			ms.Bets[b.Account] = engine.UserBet{
				YesAmount: b.YesAmount,
				NoAmount:  b.NoAmount,
				Claimed:   b.Claimed,
			}
		}
		snap.Markets = append(snap.Markets, ms)
	}
	return snap, true, nil
}

package ledger

import (
	"fmt"

	"predix-engine/internal/engine"
	"predix-engine/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormLedger implements the engine's Ledger interface on top of the balances
// table. Each debit/credit runs in its own database transaction with a row
// lock, so concurrent transfers against the same account serialize.
type GormLedger struct {
	db *gorm.DB
}

// New creates a ledger backed by the given database.
func New(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// Debit removes funds from an account. A missing account or a balance below
// the requested amount fails with ErrInsufficientBalance.
func (l *GormLedger) Debit(account string, amount uint64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var balance models.Balance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account = ?", account).
			First(&balance).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("%w: account %s has no balance", engine.ErrInsufficientBalance, account)
			}
			return fmt.Errorf("failed to load balance for %s: %w", account, err)
		}

		amt := models.DecimalFromUint64(amount)
		if balance.Available.LessThan(amt) {
			return fmt.Errorf("%w: account %s has %s, needs %s",
				engine.ErrInsufficientBalance, account, balance.Available, amt)
		}

		balance.Available = balance.Available.Sub(amt)
		if err := tx.Save(&balance).Error; err != nil {
			return fmt.Errorf("failed to debit %s: %w", account, err)
		}
		return nil
	})
}

// Credit adds funds to an account, creating the balance row on first use.
func (l *GormLedger) Credit(account string, amount uint64) error {
	return l.db.Transaction(func(tx *gorm.DB) error {
		var balance models.Balance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("account = ?", account).
			First(&balance).Error
		if err == gorm.ErrRecordNotFound {
			balance = models.Balance{
				Account:   account,
				Available: models.DecimalFromUint64(amount),
			}
			if err := tx.Create(&balance).Error; err != nil {
				return fmt.Errorf("failed to create balance for %s: %w", account, err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load balance for %s: %w", account, err)
		}

		balance.Available = balance.Available.Add(models.DecimalFromUint64(amount))
		if err := tx.Save(&balance).Error; err != nil {
			return fmt.Errorf("failed to credit %s: %w", account, err)
		}
		return nil
	})
}

// Balance returns the available funds of an account, zero if unknown.
func (l *GormLedger) Balance(account string) (uint64, error) {
	var balance models.Balance
	err := l.db.Where("account = ?", account).First(&balance).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance for %s: %w", account, err)
	}
	return models.Uint64FromDecimal(balance.Available), nil
}

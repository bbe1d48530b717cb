package engine

import "github.com/sirupsen/logrus"

// PlaceBet escrows a stake on one side of an open market. The ledger debit,
// the bet record update and the totals update happen as one atomic unit: all
// validation (including overflow checks) runs before the debit, and the debit
// runs before any state is touched, so a failure leaves nothing behind.
// Repeat bets by the same participant accumulate; a participant may hold both
// a YES and a NO position on the same market.
func (e *Engine) PlaceBet(caller string, marketID uint64, side bool, amount, now uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	if ms.market.Status != MarketStatusOpen {
		return ErrMarketNotOpen
	}
	if now >= ms.market.Deadline {
		return ErrDeadlinePassed
	}
	if amount < e.minBet {
		return ErrInvalidAmount
	}

	key := betKey{marketID: marketID, account: caller}
	bet := e.bets[key]
	if bet == nil {
		bet = &UserBet{}
	}

	// Pre-compute every new value so overflow is caught before the debit.
	newBet := *bet
	newTotals := ms.totals
	var err error
	if side {
		if newBet.YesAmount, err = addChecked(bet.YesAmount, amount); err != nil {
			return err
		}
		if newTotals.Yes, err = addChecked(ms.totals.Yes, amount); err != nil {
			return err
		}
	} else {
		if newBet.NoAmount, err = addChecked(bet.NoAmount, amount); err != nil {
			return err
		}
		if newTotals.No, err = addChecked(ms.totals.No, amount); err != nil {
			return err
		}
	}

	if err := e.ledger.Debit(caller, amount); err != nil {
		return err
	}
	if err := e.ledger.Credit(e.escrow, amount); err != nil {
		// Undo the debit so the transfer is all-or-nothing.
		if cerr := e.ledger.Credit(caller, amount); cerr != nil {
			logrus.WithError(cerr).WithField("account", caller).Error("ledger: debit rollback failed")
		}
		return err
	}

	newBetRecord := newBet
	e.bets[key] = &newBetRecord
	ms.totals = newTotals
	e.journalMarket(ms)
	e.journalBet(marketID, caller, newBetRecord)

	e.emit(EventBetPlaced, map[string]interface{}{
		"market_id": marketID,
		"account":   caller,
		"side":      side,
		"amount":    amount,
		"yes_total": ms.totals.Yes,
		"no_total":  ms.totals.No,
	})
	return nil
}

// GetUserBets returns the participant's position on a market, or a zeroed
// record if they never bet. Never errors.
func (e *Engine) GetUserBets(marketID uint64, participant string) UserBet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if bet, ok := e.bets[betKey{marketID: marketID, account: participant}]; ok {
		return *bet
	}
	return UserBet{}
}

// MarketBets returns all positions on a market keyed by participant.
func (e *Engine) MarketBets(marketID uint64) map[string]UserBet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]UserBet)
	for key, bet := range e.bets {
		if key.marketID == marketID {
			out[key.account] = *bet
		}
	}
	return out
}

func (e *Engine) journalBet(marketID uint64, account string, bet UserBet) {
	if err := e.journal.SaveBet(marketID, account, bet); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"market_id": marketID,
			"account":   account,
		}).Warn("journal: bet write failed")
	}
}

package engine

import "github.com/sirupsen/logrus"

// CalculatePayout returns the net amount a participant is entitled to on a
// resolved market. Read-only and idempotent; a participant with no bet or a
// losing-side-only position gets 0. The payout is the winning stake plus a
// proportional share of the losing pool, minus the protocol fee taken on the
// gross. All arithmetic is unsigned floor division and overflow-checked.
func (e *Engine) CalculatePayout(marketID uint64, participant string) (uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	net, _, err := e.payoutLocked(marketID, participant)
	return net, err
}

// payoutLocked computes (net, fee) for a participant. Caller holds at least
// the read lock.
func (e *Engine) payoutLocked(marketID uint64, participant string) (uint64, uint64, error) {
	ms, ok := e.markets[marketID]
	if !ok {
		return 0, 0, ErrMarketNotFound
	}
	if ms.market.WinningSide == nil {
		return 0, 0, ErrNotResolved
	}

	bet := UserBet{}
	if b, ok := e.bets[betKey{marketID: marketID, account: participant}]; ok {
		bet = *b
	}

	var userWinningBet, winnerPool, loserPool uint64
	if *ms.market.WinningSide {
		userWinningBet = bet.YesAmount
		winnerPool = ms.totals.Yes
		loserPool = ms.totals.No
	} else {
		userWinningBet = bet.NoAmount
		winnerPool = ms.totals.No
		loserPool = ms.totals.Yes
	}

	if userWinningBet == 0 {
		return 0, 0, nil
	}

	// No losers: proportional share is zero and the winner just gets the
	// stake back, minus the fee.
	var proportional uint64
	if winnerPool > 0 && loserPool > 0 {
		p, err := mulDiv(userWinningBet, loserPool, winnerPool)
		if err != nil {
			return 0, 0, err
		}
		proportional = p
	}

	gross, err := addChecked(userWinningBet, proportional)
	if err != nil {
		return 0, 0, err
	}
	fee, err := mulDiv(gross, e.feeBps, MaxFeeBps)
	if err != nil {
		return 0, 0, err
	}
	return gross - fee, fee, nil
}

// ClaimWinnings pays out a winner on a resolved market exactly once. Betting
// on the losing side surfaces the same error as never having bet at all.
func (e *Engine) ClaimWinnings(caller string, marketID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.markets[marketID]
	if !ok {
		return 0, ErrMarketNotFound
	}
	if ms.market.Status != MarketStatusResolved {
		return 0, ErrNotResolved
	}
	key := betKey{marketID: marketID, account: caller}
	bet, ok := e.bets[key]
	if !ok {
		return 0, ErrNotWinner
	}
	if bet.Claimed {
		return 0, ErrAlreadyClaimed
	}

	payout, fee, err := e.payoutLocked(marketID, caller)
	if err != nil {
		return 0, err
	}
	if payout == 0 {
		return 0, ErrNotWinner
	}

	if err := e.transferOut(caller, payout); err != nil {
		return 0, err
	}

	bet.Claimed = true
	e.treasury += fee
	e.journalBet(marketID, caller, *bet)
	e.journalTreasury()

	e.emit(EventWinningsClaimed, map[string]interface{}{
		"market_id": marketID,
		"account":   caller,
		"amount":    payout,
		"fee":       fee,
	})
	return payout, nil
}

// ClaimRefund returns a participant's full stake on a cancelled market
// exactly once. Refunds are fee-exempt.
func (e *Engine) ClaimRefund(caller string, marketID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.markets[marketID]
	if !ok {
		return 0, ErrMarketNotFound
	}
	if ms.market.Status != MarketStatusCancelled {
		return 0, ErrMarketNotCancelled
	}
	key := betKey{marketID: marketID, account: caller}
	bet, ok := e.bets[key]
	if !ok {
		return 0, ErrNotWinner
	}
	if bet.Claimed {
		return 0, ErrAlreadyClaimed
	}

	refund, err := addChecked(bet.YesAmount, bet.NoAmount)
	if err != nil {
		return 0, err
	}
	if refund == 0 {
		return 0, ErrNotWinner
	}

	if err := e.transferOut(caller, refund); err != nil {
		return 0, err
	}

	bet.Claimed = true
	e.journalBet(marketID, caller, *bet)

	e.emit(EventRefundClaimed, map[string]interface{}{
		"market_id": marketID,
		"account":   caller,
		"amount":    refund,
	})
	return refund, nil
}

// transferOut moves value from escrow to the recipient, undoing the escrow
// debit if the credit fails so the transfer stays all-or-nothing.
func (e *Engine) transferOut(account string, amount uint64) error {
	if err := e.ledger.Debit(e.escrow, amount); err != nil {
		return err
	}
	if err := e.ledger.Credit(account, amount); err != nil {
		if cerr := e.ledger.Credit(e.escrow, amount); cerr != nil {
			logrus.WithError(cerr).Error("ledger: escrow rollback failed")
		}
		return err
	}
	return nil
}

func (e *Engine) journalTreasury() {
	if err := e.journal.SaveTreasury(e.treasury); err != nil {
		logrus.WithError(err).Warn("journal: treasury write failed")
	}
}

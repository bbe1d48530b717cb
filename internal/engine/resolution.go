package engine

// ResolveMarket settles an open market once its deadline has been reached.
// The final price arrives from the oracle boundary as a direct input; the
// call is unrestricted because the price itself carries the trust. YES wins
// when the final price is at or above the threshold. Returns the winning
// side. Resolved and cancelled markets cannot be resolved again.
func (e *Engine) ResolveMarket(marketID uint64, finalPrice, now uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ms, ok := e.markets[marketID]
	if !ok {
		return false, ErrMarketNotFound
	}
	if ms.market.Status != MarketStatusOpen {
		return false, ErrMarketNotOpen
	}
	if now < ms.market.Deadline {
		return false, ErrDeadlineNotReached
	}

	winningSide := finalPrice >= ms.market.Threshold
	e.settle(ms, winningSide, finalPrice)

	e.emit(EventMarketResolved, map[string]interface{}{
		"market_id":    marketID,
		"winning_side": winningSide,
		"final_price":  finalPrice,
	})
	return winningSide, nil
}

// OverrideResolution asserts the outcome of an open market directly. This is
// the manual recovery path for oracle outages: admin-only and, deliberately,
// not deadline-gated.
func (e *Engine) OverrideResolution(caller string, marketID uint64, winningSide bool, finalPrice uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.admins[caller] {
		return ErrNotAuthorized
	}
	ms, ok := e.markets[marketID]
	if !ok {
		return ErrMarketNotFound
	}
	if ms.market.Status != MarketStatusOpen {
		return ErrAlreadyResolved
	}

	e.settle(ms, winningSide, finalPrice)

	e.emit(EventAdminOverride, map[string]interface{}{
		"market_id":    marketID,
		"winning_side": winningSide,
		"final_price":  finalPrice,
		"caller":       caller,
	})
	return nil
}

// settle applies the one-way Open -> Resolved transition. Caller holds the
// write lock and has already validated the current status.
func (e *Engine) settle(ms *marketState, winningSide bool, finalPrice uint64) {
	side := winningSide
	price := finalPrice
	ms.market.Status = MarketStatusResolved
	ms.market.WinningSide = &side
	ms.market.FinalPrice = &price
	e.unindexDeadline(ms.market.Deadline, ms.market.ID)
	e.journalMarket(ms)
}

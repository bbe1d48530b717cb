package engine

import "github.com/sirupsen/logrus"

// CreateMarket validates and registers a new market. Validations run in
// order and short-circuit: caller must be an admin, the question must be
// 1..500 characters, the threshold positive, and the deadline strictly in the
// future. Returns the new market id; ids start at 1 and are never reused.
func (e *Engine) CreateMarket(caller, question string, asset FeedID, threshold, deadline, now uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.admins[caller] {
		return 0, ErrNotAuthorized
	}
	if len(question) == 0 || len(question) > MaxQuestionLen {
		return 0, ErrInvalidQuestion
	}
	if threshold == 0 {
		return 0, ErrInvalidThreshold
	}
	if deadline <= now {
		return 0, ErrInvalidDeadline
	}

	id := e.nextID
	e.nextID++

	ms := &marketState{
		market: Market{
			ID:        id,
			Question:  question,
			Asset:     asset,
			Threshold: threshold,
			Deadline:  deadline,
			CreatedAt: now,
			Status:    MarketStatusOpen,
			Creator:   caller,
		},
	}
	e.markets[id] = ms
	e.indexDeadline(deadline, id)
	e.journalMarket(ms)

	e.emit(EventMarketCreated, map[string]interface{}{
		"market_id": id,
		"question":  question,
		"asset":     asset.String(),
		"threshold": threshold,
		"deadline":  deadline,
		"creator":   caller,
	})
	return id, nil
}

// CancelMarket moves an open market to the cancelled state. Irreversible;
// participants recover their stakes through ClaimRefund.
func (e *Engine) CancelMarket(caller string, marketID uint64) error {
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
		return ErrMarketAlreadyFinalized
	}

	ms.market.Status = MarketStatusCancelled
	e.unindexDeadline(ms.market.Deadline, marketID)
	e.journalMarket(ms)

	e.emit(EventMarketCancelled, map[string]interface{}{
		"market_id": marketID,
	})
	return nil
}

// GetMarketInfo returns the market merged with its stake totals.
func (e *Engine) GetMarketInfo(marketID uint64) (MarketView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ms, ok := e.markets[marketID]
	if !ok {
		return MarketView{}, ErrMarketNotFound
	}
	return MarketView{
		Market:   ms.market,
		YesTotal: ms.totals.Yes,
		NoTotal:  ms.totals.No,
	}, nil
}

// ListMarkets returns views of all markets in id order.
func (e *Engine) ListMarkets() []MarketView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]MarketView, 0, len(e.markets))
	for id := uint64(1); id < e.nextID; id++ {
		if ms, ok := e.markets[id]; ok {
			out = append(out, MarketView{
				Market:   ms.market,
				YesTotal: ms.totals.Yes,
				NoTotal:  ms.totals.No,
			})
		}
	}
	return out
}

func (e *Engine) journalMarket(ms *marketState) {
	if err := e.journal.SaveMarket(ms.market, ms.totals); err != nil {
		logrus.WithError(err).WithField("market_id", ms.market.ID).Warn("journal: market write failed")
	}
}

package engine

import (
	"fmt"

	"github.com/huandu/skiplist"
)

// MarketSnapshot bundles one market with its totals and bets for persistence.
type MarketSnapshot struct {
	Market Market
	Totals Totals
	Bets   map[string]UserBet
}

// Snapshot is the full persistent state of the engine.
type Snapshot struct {
	Markets  []MarketSnapshot
	Admins   []string
	Treasury uint64
}

// Snapshot returns a deep copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{Treasury: e.treasury}
	for p := range e.admins {
		snap.Admins = append(snap.Admins, p)
	}
	for id := uint64(1); id < e.nextID; id++ {
		ms, ok := e.markets[id]
		if !ok {
			continue
		}
		m := MarketSnapshot{
			Market: ms.market,
			Totals: ms.totals,
			Bets:   make(map[string]UserBet),
		}
		for key, bet := range e.bets {
			if key.marketID == id {
				m.Bets[key.account] = *bet
			}
		}
		snap.Markets = append(snap.Markets, m)
	}
	return snap
}

// Restore replaces the engine state with a previously persisted snapshot.
// Called once at startup before the engine serves requests.
func (e *Engine) Restore(snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(snap.Admins) == 0 {
		return fmt.Errorf("engine: snapshot has no admins")
	}

	e.admins = make(map[string]bool, len(snap.Admins))
	for _, p := range snap.Admins {
		e.admins[p] = true
	}
	e.markets = make(map[uint64]*marketState, len(snap.Markets))
	e.bets = make(map[betKey]*UserBet)
	e.byDeadline = skiplist.New(skiplist.Uint64)
	e.nextID = 1
	e.treasury = snap.Treasury

	for _, m := range snap.Markets {
		if m.Market.ID == 0 {
			return fmt.Errorf("engine: snapshot market with id 0")
		}
		ms := &marketState{market: m.Market, totals: m.Totals}
		e.markets[m.Market.ID] = ms
		if m.Market.Status == MarketStatusOpen {
			e.indexDeadline(m.Market.Deadline, m.Market.ID)
		}
		for account, bet := range m.Bets {
			b := bet
			e.bets[betKey{marketID: m.Market.ID, account: account}] = &b
		}
		if m.Market.ID >= e.nextID {
			e.nextID = m.Market.ID + 1
		}
	}
	return nil
}

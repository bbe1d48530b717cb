package engine

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/huandu/skiplist"
)

// MarketStatus represents the lifecycle state of a market
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// MaxQuestionLen bounds the market question length.
const MaxQuestionLen = 500

// MaxFeeBps is the denominator of the protocol fee (100% in basis points).
const MaxFeeBps = 10000

// FeedID is an opaque 32-byte identifier naming a price series in the
// oracle system.
type FeedID [32]byte

// ParseFeedID decodes a 64-character hex string into a FeedID.
func ParseFeedID(s string) (FeedID, error) {
	var id FeedID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid feed id: %w", err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid feed id: expected %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (f FeedID) String() string {
	return hex.EncodeToString(f[:])
}

// Market is a snapshot of a market record. Amounts, prices and thresholds are
// unsigned integers in the oracle's price scale; Deadline and CreatedAt are in
// the monotonic basis unit (e.g. block height).
type Market struct {
	ID          uint64       `json:"id"`
	Question    string       `json:"question"`
	Asset       FeedID       `json:"asset"`
	Threshold   uint64       `json:"threshold"`
	Deadline    uint64       `json:"deadline"`
	CreatedAt   uint64       `json:"created_at"`
	Status      MarketStatus `json:"status"`
	WinningSide *bool        `json:"winning_side,omitempty"`
	FinalPrice  *uint64      `json:"final_price,omitempty"`
	Creator     string       `json:"creator"`
}

// Totals holds the per-market aggregate stake pools. They only grow while the
// market is open and must always equal the sums over the individual bets.
type Totals struct {
	Yes uint64 `json:"yes_total"`
	No  uint64 `json:"no_total"`
}

// UserBet is one participant's accumulated position on a market.
type UserBet struct {
	YesAmount uint64 `json:"yes_amount"`
	NoAmount  uint64 `json:"no_amount"`
	Claimed   bool   `json:"claimed"`
}

// MarketView merges a market record with its totals for read queries.
type MarketView struct {
	Market
	YesTotal uint64 `json:"yes_total"`
	NoTotal  uint64 `json:"no_total"`
}

// Journal persists engine mutations so a restarted process can resume with
// identical state. Journal failures are logged by the caller but never undo
// the in-memory mutation; the engine state is authoritative.
type Journal interface {
	SaveMarket(m Market, t Totals) error
	SaveBet(marketID uint64, account string, b UserBet) error
	SaveAdmin(principal string, member bool) error
	SaveTreasury(total uint64) error
}

type noopJournal struct{}

func (noopJournal) SaveMarket(Market, Totals) error { return nil }

func (noopJournal) SaveBet(uint64, string, UserBet) error { return nil }

func (noopJournal) SaveAdmin(string, bool) error { return nil }

func (noopJournal) SaveTreasury(uint64) error { return nil }

type betKey struct {
	marketID uint64
	account  string
}

type marketState struct {
	market Market
	totals Totals
}

// Options configures a new Engine.
type Options struct {
	// FeeBps is the protocol fee in basis points (0..10000), applied to the
	// gross payout at claim time. Refunds are fee-exempt.
	FeeBps uint64
	// MinBet is the smallest accepted stake in base units.
	MinBet uint64
	// EscrowAccount is the ledger account holding staked value.
	EscrowAccount string
	// Admin is the initial admin principal; the admin set is never empty.
	Admin string
	// Ledger performs the actual value transfers.
	Ledger Ledger
	// Notifier receives settlement events. Optional.
	Notifier Notifier
	// Journal persists mutations for restart recovery. Optional.
	Journal Journal
}

// Engine owns all market, stake and admin state and serializes every mutation
// behind a single write lock, so each entry point is atomic and no partial
// state is ever visible. Read queries take the read lock and observe a
// consistent snapshot.
type Engine struct {
	mu sync.RWMutex

	markets  map[uint64]*marketState
	bets     map[betKey]*UserBet
	admins   map[string]bool
	nextID   uint64
	treasury uint64

	// byDeadline orders open markets by deadline so the resolution scheduler
	// can find due markets without scanning. Key: deadline, value: id set.
	byDeadline *skiplist.SkipList

	feeBps   uint64
	minBet   uint64
	escrow   string
	ledger   Ledger
	notifier Notifier
	journal  Journal
}

// New creates an Engine with the given options.
func New(opts Options) (*Engine, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("engine: ledger is required")
	}
	if opts.Admin == "" {
		return nil, fmt.Errorf("engine: initial admin is required")
	}
	if opts.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("engine: fee %d exceeds %d bps", opts.FeeBps, MaxFeeBps)
	}
	if opts.EscrowAccount == "" {
		opts.EscrowAccount = "escrow"
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}
	if opts.Journal == nil {
		opts.Journal = noopJournal{}
	}

	e := &Engine{
		markets:    make(map[uint64]*marketState),
		bets:       make(map[betKey]*UserBet),
		admins:     map[string]bool{opts.Admin: true},
		nextID:     1,
		byDeadline: skiplist.New(skiplist.Uint64),
		feeBps:     opts.FeeBps,
		minBet:     opts.MinBet,
		escrow:     opts.EscrowAccount,
		ledger:     opts.Ledger,
		notifier:   opts.Notifier,
		journal:    opts.Journal,
	}
	return e, nil
}

// FeeBps returns the protocol fee in basis points.
func (e *Engine) FeeBps() uint64 { return e.feeBps }

// MinBet returns the minimum accepted stake.
func (e *Engine) MinBet() uint64 { return e.minBet }

// Treasury returns the total protocol fees collected so far.
func (e *Engine) Treasury() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.treasury
}

// deadline index maintenance; callers hold the write lock.

func (e *Engine) indexDeadline(deadline, id uint64) {
	if elem := e.byDeadline.Get(deadline); elem != nil {
		elem.Value.(map[uint64]struct{})[id] = struct{}{}
		return
	}
	e.byDeadline.Set(deadline, map[uint64]struct{}{id: {}})
}

func (e *Engine) unindexDeadline(deadline, id uint64) {
	elem := e.byDeadline.Get(deadline)
	if elem == nil {
		return
	}
	set := elem.Value.(map[uint64]struct{})
	delete(set, id)
	if len(set) == 0 {
		e.byDeadline.Remove(deadline)
	}
}

// DueMarkets returns the ids of open markets whose deadline has been reached,
// in deadline order. Used by the oracle scheduler to trigger resolution.
func (e *Engine) DueMarkets(now uint64) []uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var due []uint64
	for elem := e.byDeadline.Front(); elem != nil; elem = elem.Next() {
		if elem.Key().(uint64) > now {
			break
		}
		for id := range elem.Value.(map[uint64]struct{}) {
			due = append(due, id)
		}
	}
	return due
}

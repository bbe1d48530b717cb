package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// setupResolvedMarket builds the reference market: threshold 10,000,000,
// user1 3M YES, user2 2M NO, user3 1M YES, resolved YES at 10,500,000.
func setupResolvedMarket(t *testing.T, feeBps uint64) (*Engine, *MemoryLedger, uint64) {
	t.Helper()

	e, ledger := newTestEngine(t, feeBps)
	id, err := e.CreateMarket("admin", "BTC above 10M?", testFeed, 10_000_000, 1000, 1)
	require.NoError(t, err)

	ledger.Deposit("user1", 3_000_000)
	ledger.Deposit("user2", 2_000_000)
	ledger.Deposit("user3", 1_000_000)
	require.NoError(t, e.PlaceBet("user1", id, true, 3_000_000, 10))
	require.NoError(t, e.PlaceBet("user2", id, false, 2_000_000, 10))
	require.NoError(t, e.PlaceBet("user3", id, true, 1_000_000, 10))

	side, err := e.ResolveMarket(id, 10_500_000, 1000)
	require.NoError(t, err)
	require.True(t, side)
	return e, ledger, id
}

func TestCalculatePayoutProportional(t *testing.T) {
	e, _, id := setupResolvedMarket(t, 200)

	// user1: 3M stake + floor(3M*2M/4M)=1.5M -> gross 4.5M, fee 2% = 90k.
	payout, err := e.CalculatePayout(id, "user1")
	require.NoError(t, err)
	require.Equal(t, uint64(4_410_000), payout)

	// user3: 1M stake + 500k -> gross 1.5M, fee 30k.
	payout, err = e.CalculatePayout(id, "user3")
	require.NoError(t, err)
	require.Equal(t, uint64(1_470_000), payout)

	// Losers and strangers both get zero without error.
	payout, err = e.CalculatePayout(id, "user2")
	require.NoError(t, err)
	require.Zero(t, payout)

	payout, err = e.CalculatePayout(id, "nobody")
	require.NoError(t, err)
	require.Zero(t, payout)

	// Idempotent: recomputing changes nothing.
	payout, err = e.CalculatePayout(id, "user1")
	require.NoError(t, err)
	require.Equal(t, uint64(4_410_000), payout)
}

func TestCalculatePayoutErrors(t *testing.T) {
	e, _ := newTestEngine(t, 200)

	_, err := e.CalculatePayout(42, "user1")
	require.ErrorIs(t, err, ErrMarketNotFound)

	id, err := e.CreateMarket("admin", "Unresolved?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	_, err = e.CalculatePayout(id, "user1")
	require.ErrorIs(t, err, ErrNotResolved)
}

func TestCalculatePayoutNoLosers(t *testing.T) {
	e, ledger := newTestEngine(t, 200)
	ledger.Deposit("alice", 1_000_000)

	id, err := e.CreateMarket("admin", "One-sided?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	require.NoError(t, e.PlaceBet("alice", id, true, 1_000_000, 10))
	_, err = e.ResolveMarket(id, 20, 100)
	require.NoError(t, err)

	// No loser pool: stake back minus the fee on gross.
	payout, err := e.CalculatePayout(id, "alice")
	require.NoError(t, err)
	require.Equal(t, uint64(980_000), payout)
}

func TestClaimWinnings(t *testing.T) {
	e, ledger, id := setupResolvedMarket(t, 200)

	paid, err := e.ClaimWinnings("user1", id)
	require.NoError(t, err)
	require.Equal(t, uint64(4_410_000), paid)
	require.Equal(t, uint64(4_410_000), ledger.Balance("user1"))
	require.Equal(t, uint64(90_000), e.Treasury())

	// Second claim always fails and transfers nothing.
	_, err = e.ClaimWinnings("user1", id)
	require.ErrorIs(t, err, ErrAlreadyClaimed)
	require.Equal(t, uint64(4_410_000), ledger.Balance("user1"))

	// Losing side surfaces the same error as never having bet.
	_, err = e.ClaimWinnings("user2", id)
	require.ErrorIs(t, err, ErrNotWinner)
	_, err = e.ClaimWinnings("nobody", id)
	require.ErrorIs(t, err, ErrNotWinner)
}

func TestClaimWinningsStateErrors(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	_, err := e.ClaimWinnings("user1", 42)
	require.ErrorIs(t, err, ErrMarketNotFound)

	open, err := e.CreateMarket("admin", "Open?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	_, err = e.ClaimWinnings("user1", open)
	require.ErrorIs(t, err, ErrNotResolved)

	cancelled, err := e.CreateMarket("admin", "Cancelled?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	require.NoError(t, e.CancelMarket("admin", cancelled))
	_, err = e.ClaimWinnings("user1", cancelled)
	require.ErrorIs(t, err, ErrNotResolved)
}

func TestClaimWinningsLedgerFailureLeavesClaimable(t *testing.T) {
	ledger := &failingLedger{MemoryLedger: NewMemoryLedger(), failCredit: "user1"}
	e, err := New(Options{MinBet: 1, EscrowAccount: "escrow", Admin: "admin", Ledger: ledger})
	require.NoError(t, err)

	id, err := e.CreateMarket("admin", "Flaky ledger?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	ledger.Deposit("user1", 500)
	require.NoError(t, e.PlaceBet("user1", id, true, 500, 10))
	_, err = e.ResolveMarket(id, 20, 100)
	require.NoError(t, err)

	_, err = e.ClaimWinnings("user1", id)
	require.Error(t, err)

	// The claim did not burn: escrow is intact and claimed stays false.
	require.Equal(t, uint64(500), ledger.Balance("escrow"))
	require.False(t, e.GetUserBets(id, "user1").Claimed)
	require.Zero(t, e.Treasury())
}

func TestClaimRefund(t *testing.T) {
	e, ledger := newTestEngine(t, 200)
	ledger.Deposit("alice", 3_000_000)

	id, err := e.CreateMarket("admin", "Refund?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	require.NoError(t, e.PlaceBet("alice", id, true, 2_000_000, 10))
	require.NoError(t, e.PlaceBet("alice", id, false, 1_000_000, 10))
	require.NoError(t, e.CancelMarket("admin", id))

	// Full stake back, both sides, no fee.
	refund, err := e.ClaimRefund("alice", id)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000_000), refund)
	require.Equal(t, uint64(3_000_000), ledger.Balance("alice"))
	require.Zero(t, e.Treasury())

	_, err = e.ClaimRefund("alice", id)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	_, err = e.ClaimRefund("nobody", id)
	require.ErrorIs(t, err, ErrNotWinner)
}

func TestClaimRefundStateErrors(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	_, err := e.ClaimRefund("alice", 42)
	require.ErrorIs(t, err, ErrMarketNotFound)

	open, err := e.CreateMarket("admin", "Open?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	_, err = e.ClaimRefund("alice", open)
	require.ErrorIs(t, err, ErrMarketNotCancelled)

	resolved, err := e.CreateMarket("admin", "Resolved?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	_, err = e.ResolveMarket(resolved, 20, 100)
	require.NoError(t, err)
	_, err = e.ClaimRefund("alice", resolved)
	require.ErrorIs(t, err, ErrMarketNotCancelled)
}

// Conservation: everything paid out plus the fee never exceeds what was
// staked, and the proportional winnings never exceed the losing pool.
func TestPayoutConservation(t *testing.T) {
	e, ledger := newTestEngine(t, 137)

	id, err := e.CreateMarket("admin", "Conservation?", testFeed, 10, 1000, 1)
	require.NoError(t, err)

	stakes := []struct {
		account string
		side    bool
		amount  uint64
	}{
		{"u1", true, 3_333_333}, {"u2", false, 1_111_111}, {"u3", true, 7},
		{"u4", false, 999_999}, {"u5", true, 123_456_789},
	}
	var totalStaked uint64
	for _, s := range stakes {
		ledger.Deposit(s.account, s.amount)
		require.NoError(t, e.PlaceBet(s.account, id, s.side, s.amount, 10))
		totalStaked += s.amount
	}

	_, err = e.ResolveMarket(id, 20, 1000)
	require.NoError(t, err)

	var totalPaid uint64
	for _, s := range stakes {
		paid, err := e.ClaimWinnings(s.account, id)
		if err != nil {
			require.ErrorIs(t, err, ErrNotWinner)
			continue
		}
		totalPaid += paid
	}

	require.LessOrEqual(t, totalPaid+e.Treasury(), totalStaked)
	// Floor-division dust stays in escrow.
	require.Equal(t, totalStaked-totalPaid, ledger.Balance("escrow"))
}

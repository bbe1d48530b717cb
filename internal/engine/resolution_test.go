package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveMarket(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	_, err := e.ResolveMarket(42, 10, 100)
	require.ErrorIs(t, err, ErrMarketNotFound)

	id, err := e.CreateMarket("admin", "Above threshold?", testFeed, 10_000_000, 100, 1)
	require.NoError(t, err)

	_, err = e.ResolveMarket(id, 10_500_000, 99)
	require.ErrorIs(t, err, ErrDeadlineNotReached)

	side, err := e.ResolveMarket(id, 10_500_000, 100)
	require.NoError(t, err)
	require.True(t, side, "price above threshold means YES wins")

	view, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	require.Equal(t, MarketStatusResolved, view.Status)
	require.NotNil(t, view.WinningSide)
	require.True(t, *view.WinningSide)
	require.NotNil(t, view.FinalPrice)
	require.Equal(t, uint64(10_500_000), *view.FinalPrice)

	// Resolving twice fails; resolved is absorbing.
	_, err = e.ResolveMarket(id, 9_000_000, 200)
	require.ErrorIs(t, err, ErrMarketNotOpen)
}

func TestResolveMarketThresholdBoundary(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	exact, err := e.CreateMarket("admin", "Exactly at threshold?", testFeed, 100, 10, 1)
	require.NoError(t, err)
	side, err := e.ResolveMarket(exact, 100, 10)
	require.NoError(t, err)
	require.True(t, side, "price equal to threshold counts as YES")

	below, err := e.CreateMarket("admin", "Below threshold?", testFeed, 100, 10, 1)
	require.NoError(t, err)
	side, err = e.ResolveMarket(below, 99, 10)
	require.NoError(t, err)
	require.False(t, side)
}

func TestResolveCancelledMarket(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	id, err := e.CreateMarket("admin", "Cancelled?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	require.NoError(t, e.CancelMarket("admin", id))

	_, err = e.ResolveMarket(id, 20, 100)
	require.ErrorIs(t, err, ErrMarketNotOpen)
}

func TestOverrideResolution(t *testing.T) {
	e, _ := newTestEngine(t, 0)

	id, err := e.CreateMarket("admin", "Override?", testFeed, 10, 100, 1)
	require.NoError(t, err)

	require.ErrorIs(t, e.OverrideResolution("alice", id, true, 42), ErrNotAuthorized)
	require.ErrorIs(t, e.OverrideResolution("admin", 99, true, 42), ErrMarketNotFound)

	// No deadline gate: the override lands well before the deadline.
	require.NoError(t, e.OverrideResolution("admin", id, false, 42))

	view, err := e.GetMarketInfo(id)
	require.NoError(t, err)
	require.Equal(t, MarketStatusResolved, view.Status)
	require.False(t, *view.WinningSide)
	require.Equal(t, uint64(42), *view.FinalPrice)

	require.ErrorIs(t, e.OverrideResolution("admin", id, true, 50), ErrAlreadyResolved)

	cancelled, err := e.CreateMarket("admin", "Cancelled?", testFeed, 10, 100, 1)
	require.NoError(t, err)
	require.NoError(t, e.CancelMarket("admin", cancelled))
	require.ErrorIs(t, e.OverrideResolution("admin", cancelled, true, 50), ErrAlreadyResolved)
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/oracle"
	"predix-engine/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFeedHex = "deadbeef" + strings.Repeat("00", 28)

// testAccount injects the principal from a header the way JWTAuth would after
// validating a token.
func testAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if account := c.GetHeader("X-Test-Account"); account != "" {
			c.Set("account", account)
		}
		c.Next()
	}
}

type fixture struct {
	router *gin.Engine
	eng    *engine.Engine
	ledger *engine.MemoryLedger
	static *oracle.StaticSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := engine.NewMemoryLedger()
	eng, err := engine.New(engine.Options{
		FeeBps:        200,
		MinBet:        10,
		EscrowAccount: "escrow",
		Admin:         "admin",
		Ledger:        ledger,
	})
	require.NoError(t, err)

	static := oracle.NewStaticSource()
	handlers := NewHandlers(eng, websocket.NewHub(), oracle.NewAdapter(static, time.Minute), static)

	router := gin.New()
	router.Use(testAccount())
	router.GET("/markets", handlers.GetMarkets)
	router.GET("/markets/:marketId", handlers.GetMarket)
	router.GET("/markets/:marketId/bets", handlers.GetMarketBets)
	router.POST("/markets", handlers.CreateMarket)
	router.DELETE("/markets/:marketId", handlers.CancelMarket)
	router.POST("/markets/:marketId/bets", handlers.PlaceBet)
	router.GET("/markets/:marketId/bets/me", handlers.GetMyBets)
	router.GET("/markets/:marketId/payout", handlers.GetPayout)
	router.POST("/markets/:marketId/claim", handlers.ClaimWinnings)
	router.POST("/markets/:marketId/refund", handlers.ClaimRefund)
	router.POST("/markets/:marketId/resolve", handlers.ResolveMarket)
	router.POST("/markets/:marketId/override", handlers.OverrideResolution)
	router.GET("/admins", handlers.GetAdmins)
	router.POST("/admins", handlers.AddAdmin)
	router.DELETE("/admins/:account", handlers.RemoveAdmin)
	router.GET("/treasury", handlers.GetTreasury)
	router.POST("/oracle/price", handlers.PostOraclePrice)

	return &fixture{router: router, eng: eng, ledger: ledger, static: static}
}

func (f *fixture) do(t *testing.T, method, path, account string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		req.Header.Set("X-Test-Account", account)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// openMarket creates a market whose deadline is an hour away.
func (f *fixture) openMarket(t *testing.T) uint64 {
	t.Helper()
	now := uint64(time.Now().Unix())
	id, err := f.eng.CreateMarket("admin", "Will the price close above threshold?", mustFeed(t), 10_000_000, now+3600, now)
	require.NoError(t, err)
	return id
}

// dueMarket creates a market whose deadline has already passed on the wall
// clock; the engine accepted it because creation used an earlier basis.
func (f *fixture) dueMarket(t *testing.T) uint64 {
	t.Helper()
	id, err := f.eng.CreateMarket("admin", "Will the price close above threshold?", mustFeed(t), 10_000_000, 100, 50)
	require.NoError(t, err)
	return id
}

func mustFeed(t *testing.T) engine.FeedID {
	t.Helper()
	feed, err := engine.ParseFeedID(testFeedHex)
	require.NoError(t, err)
	return feed
}

func TestGetMarkets(t *testing.T) {
	f := newFixture(t)
	f.openMarket(t)
	f.openMarket(t)

	rec := f.do(t, http.MethodGet, "/markets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    []engine.MarketView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Len(t, resp.Data, 2)
}

func TestGetMarket(t *testing.T) {
	f := newFixture(t)
	id := f.openMarket(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/markets/%d", id), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/markets/999", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/markets/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMarketHandler(t *testing.T) {
	f := newFixture(t)
	deadline := uint64(time.Now().Unix()) + 3600

	body := CreateMarketRequest{
		Question:  "Will the price close above threshold?",
		Asset:     testFeedHex,
		Threshold: 10_000_000,
		Deadline:  deadline,
	}

	rec := f.do(t, http.MethodPost, "/markets", "admin", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Non-admin caller is rejected by the engine
	rec = f.do(t, http.MethodPost, "/markets", "mallory", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Bad feed id fails validation before the engine sees it
	bad := body
	bad.Asset = "not-hex"
	rec = f.do(t, http.MethodPost, "/markets", "admin", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Deadline in the past
	bad = body
	bad.Deadline = 100
	rec = f.do(t, http.MethodPost, "/markets", "admin", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No principal at all
	rec = f.do(t, http.MethodPost, "/markets", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceBetHandler(t *testing.T) {
	f := newFixture(t)
	id := f.openMarket(t)
	f.ledger.Deposit("alice", 1_000)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", id), "alice", PlaceBetRequest{Side: "yes", Amount: 600})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint64(400), f.ledger.Balance("alice"))
	assert.Equal(t, uint64(600), f.ledger.Balance("escrow"))

	// Below minimum stake
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", id), "alice", PlaceBetRequest{Side: "no", Amount: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown side never reaches the engine
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", id), "alice", PlaceBetRequest{Side: "maybe", Amount: 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Insufficient balance
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", id), "alice", PlaceBetRequest{Side: "yes", Amount: 5_000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Betting after the deadline conflicts
	due := f.dueMarket(t)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", due), "alice", PlaceBetRequest{Side: "yes", Amount: 100})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetMyBets(t *testing.T) {
	f := newFixture(t)
	id := f.openMarket(t)
	f.ledger.Deposit("alice", 1_000)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/bets", id), "alice", PlaceBetRequest{Side: "yes", Amount: 600})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/markets/%d/bets/me", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data engine.UserBet `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(600), resp.Data.YesAmount)

	// No position reads as zero, missing market is a 404
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/markets/%d/bets/me", id), "bob", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/markets/999/bets/me", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveHandler(t *testing.T) {
	f := newFixture(t)
	id := f.dueMarket(t)

	// No price recorded yet
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/resolve", id), "alice", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	f.static.SetPrice(mustFeed(t), 10_500_000, 12)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/resolve", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			WinningSide string `json:"winning_side"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "yes", resp.Data.WinningSide)

	// Second resolution conflicts
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/resolve", id), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// A market before its deadline conflicts
	open := f.openMarket(t)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/resolve", open), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestClaimFlow(t *testing.T) {
	f := newFixture(t)
	id := f.dueMarket(t)
	f.ledger.Deposit("alice", 1_000)
	f.ledger.Deposit("bob", 1_000)
	require.NoError(t, f.eng.PlaceBet("alice", id, true, 1_000, 60))
	require.NoError(t, f.eng.PlaceBet("bob", id, false, 1_000, 60))

	// Claiming before resolution conflicts
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/claim", id), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.static.SetPrice(mustFeed(t), 10_500_000, 12)
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/resolve", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Quote then claim: 2000 gross, 2% fee
	rec = f.do(t, http.MethodGet, fmt.Sprintf("/markets/%d/payout", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var quote struct {
		Data struct {
			Payout uint64 `json:"payout"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, uint64(1_960), quote.Data.Payout)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/claim", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1_960), f.ledger.Balance("alice"))

	// Double claim conflicts
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/claim", id), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Loser cannot claim
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/claim", id), "bob", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefundFlow(t *testing.T) {
	f := newFixture(t)
	id := f.openMarket(t)
	f.ledger.Deposit("alice", 1_000)
	require.NoError(t, f.eng.PlaceBet("alice", id, true, 1_000, uint64(time.Now().Unix())))

	// Refund on an open market conflicts
	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/refund", id), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/markets/%d", id), "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/refund", id), "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1_000), f.ledger.Balance("alice"))

	// Refund is one-shot
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/refund", id), "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestOverrideHandler(t *testing.T) {
	f := newFixture(t)
	id := f.openMarket(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/override", id), "mallory", OverrideResolutionRequest{WinningSide: "no", FinalPrice: 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/override", id), "admin", OverrideResolutionRequest{WinningSide: "sideways", FinalPrice: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/markets/%d/override", id), "admin", OverrideResolutionRequest{WinningSide: "no", FinalPrice: 9_000_000})
	require.Equal(t, http.StatusOK, rec.Code)

	view, err := f.eng.GetMarketInfo(id)
	require.NoError(t, err)
	assert.Equal(t, engine.MarketStatusResolved, view.Status)
	require.NotNil(t, view.WinningSide)
	assert.False(t, *view.WinningSide)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admins", "admin", AdminRequest{Account: "carol"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"admin", "carol"}, f.eng.Admins())

	rec = f.do(t, http.MethodPost, "/admins", "mallory", AdminRequest{Account: "mallory"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admins/carol", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"admin"}, f.eng.Admins())

	// Removing the last admin is rejected
	rec = f.do(t, http.MethodDelete, "/admins/admin", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTreasuryEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.dueMarket(t)
	f.ledger.Deposit("alice", 1_000)
	f.ledger.Deposit("bob", 1_000)
	require.NoError(t, f.eng.PlaceBet("alice", id, true, 1_000, 60))
	require.NoError(t, f.eng.PlaceBet("bob", id, false, 1_000, 60))
	require.NoError(t, f.eng.OverrideResolution("admin", id, true, 10_500_000))

	_, err := f.eng.ClaimWinnings("alice", id)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/treasury", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Treasury uint64 `json:"treasury"`
			FeeBps   uint64 `json:"fee_bps"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(40), resp.Data.Treasury)
	assert.Equal(t, uint64(200), resp.Data.FeeBps)
}

func TestPostOraclePrice(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/oracle/price", "admin", gin.H{"asset": testFeedHex, "value": 10_500_000, "conf": 12})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/oracle/price", "admin", gin.H{"asset": "junk", "value": 1, "conf": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

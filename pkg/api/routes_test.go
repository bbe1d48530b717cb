package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/config"
	"predix-engine/pkg/oracle"
	"predix-engine/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoutedRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng, err := engine.New(engine.Options{
		FeeBps:        200,
		MinBet:        10,
		EscrowAccount: "escrow",
		Admin:         "admin",
		Ledger:        engine.NewMemoryLedger(),
	})
	require.NoError(t, err)

	static := oracle.NewStaticSource()
	cfg, err := config.Load()
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, eng, websocket.NewHub(), oracle.NewAdapter(static, time.Minute), static, cfg, nil)
	return router, eng
}

func TestResolveRouteIsPublic(t *testing.T) {
	router, _ := newRoutedRouter(t)

	// No Authorization header. A public route reaches the engine and gets a
	// 404 for the missing market; a JWT-guarded one would answer 401.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/markets/999/resolve", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBettingRoutesRequireAuth(t *testing.T) {
	router, eng := newRoutedRouter(t)

	now := uint64(time.Now().Unix())
	id, err := eng.CreateMarket("admin", "Will the price close above threshold?", mustFeed(t), 10_000_000, now+3600, now)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/markets/1/bets", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, uint64(1), id)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

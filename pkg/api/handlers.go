package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"predix-engine/internal/engine"
	"predix-engine/pkg/cache"
	"predix-engine/pkg/database"
	"predix-engine/pkg/middleware"
	"predix-engine/pkg/models"
	"predix-engine/pkg/oracle"
	"predix-engine/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handlers contains the market and settlement handlers
type Handlers struct {
	engine  *engine.Engine
	hub     *websocket.Hub
	adapter *oracle.Adapter

	// static is non-nil when the deployment runs without a feed service and
	// prices are posted through the admin API instead.
	static *oracle.StaticSource
}

// NewHandlers creates new settlement handlers
func NewHandlers(eng *engine.Engine, hub *websocket.Hub, adapter *oracle.Adapter, static *oracle.StaticSource) *Handlers {
	return &Handlers{
		engine:  eng,
		hub:     hub,
		adapter: adapter,
		static:  static,
	}
}

// basisNow is the current value of the deadline clock. Deadlines and bet
// cutoffs are compared in unix seconds.
func basisNow() uint64 {
	return uint64(time.Now().Unix())
}

// engineError maps an engine error to an HTTP response.
func engineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, engine.ErrMarketNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidQuestion),
		errors.Is(err, engine.ErrInvalidThreshold),
		errors.Is(err, engine.ErrInvalidDeadline),
		errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrAmountOverflow),
		errors.Is(err, engine.ErrLastAdmin):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrMarketNotOpen),
		errors.Is(err, engine.ErrMarketNotCancelled),
		errors.Is(err, engine.ErrMarketAlreadyFinalized),
		errors.Is(err, engine.ErrAlreadyResolved),
		errors.Is(err, engine.ErrNotResolved),
		errors.Is(err, engine.ErrAlreadyClaimed),
		errors.Is(err, engine.ErrNotWinner),
		errors.Is(err, engine.ErrDeadlinePassed),
		errors.Is(err, engine.ErrDeadlineNotReached):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrStalePrice):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func parseMarketID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("marketId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid market id"})
		return 0, false
	}
	return id, true
}

// Market Handlers

// GetMarkets returns all markets
func (h *Handlers) GetMarkets(c *gin.Context) {
	var cached []engine.MarketView
	if err := cache.Get(cache.KeyMarketList, &cached); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    cached,
		})
		return
	}

	markets := h.engine.ListMarkets()
	if err := cache.Set(cache.KeyMarketList, markets, cache.ExpireMarketList); err != nil {
		logrus.WithError(err).Debug("Failed to cache market list")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
	})
}

// GetMarket returns a specific market
func (h *Handlers) GetMarket(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	var cached engine.MarketView
	if err := cache.GetMarketView(marketID, &cached); err == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    cached,
		})
		return
	}

	view, err := h.engine.GetMarketInfo(marketID)
	if err != nil {
		engineError(c, err)
		return
	}

	if err := cache.CacheMarketView(marketID, view); err != nil {
		logrus.WithError(err).Debug("Failed to cache market view")
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    view,
	})
}

// CreateMarket creates a new market
func (h *Handlers) CreateMarket(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if errs := ValidateCreateMarketRequest(req); len(errs) > 0 {
		SendValidationErrors(c, errs)
		return
	}

	feed, err := engine.ParseFeedID(req.Asset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	marketID, err := h.engine.CreateMarket(account, req.Question, feed, req.Threshold, req.Deadline, basisNow())
	if err != nil {
		engineError(c, err)
		return
	}

	h.invalidateMarketCaches(marketID)

	view, err := h.engine.GetMarketInfo(marketID)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    view,
	})
}

// CancelMarket cancels an open market and makes its stakes refundable
func (h *Handlers) CancelMarket(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	if err := h.engine.CancelMarket(account, marketID); err != nil {
		engineError(c, err)
		return
	}

	h.invalidateMarketCaches(marketID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Market cancelled",
	})
}

// Bet Handlers

// PlaceBet stakes on one side of an open market
func (h *Handlers) PlaceBet(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	side, errs := ValidatePlaceBetRequest(req)
	if len(errs) > 0 {
		SendValidationErrors(c, errs)
		return
	}

	if err := h.engine.PlaceBet(account, marketID, side, req.Amount, basisNow()); err != nil {
		engineError(c, err)
		return
	}

	h.invalidateMarketCaches(marketID)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    h.engine.GetUserBets(marketID, account),
	})
}

// GetMyBets returns the authenticated user's position on a market
func (h *Handlers) GetMyBets(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	// A user with no bets gets the zero position rather than an error, but a
	// missing market is still reported.
	if _, err := h.engine.GetMarketInfo(marketID); err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.engine.GetUserBets(marketID, account),
	})
}

// GetMarketBets returns every position on a market
func (h *Handlers) GetMarketBets(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	if _, err := h.engine.GetMarketInfo(marketID); err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.engine.MarketBets(marketID),
	})
}

// Settlement Handlers

// GetPayout quotes the authenticated user's claimable payout on a resolved
// market without moving value
func (h *Handlers) GetPayout(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	payout, err := h.engine.CalculatePayout(marketID, account)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"market_id": marketID,
			"account":   account,
			"payout":    payout,
		},
	})
}

// ClaimWinnings pays out the authenticated user's winning position
func (h *Handlers) ClaimWinnings(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	payout, err := h.engine.ClaimWinnings(account, marketID)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"market_id": marketID,
			"account":   account,
			"payout":    payout,
		},
	})
}

// ClaimRefund returns the authenticated user's stake on a cancelled market
func (h *Handlers) ClaimRefund(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	refund, err := h.engine.ClaimRefund(account, marketID)
	if err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"market_id": marketID,
			"account":   account,
			"refund":    refund,
		},
	})
}

// Resolution Handlers

// ResolveMarket resolves a due market against the verified oracle price
func (h *Handlers) ResolveMarket(c *gin.Context) {
	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	view, err := h.engine.GetMarketInfo(marketID)
	if err != nil {
		engineError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	price, err := h.adapter.VerifiedPrice(ctx, view.Asset)
	if err != nil {
		engineError(c, err)
		return
	}

	side, err := h.engine.ResolveMarket(marketID, price.Value, basisNow())
	if err != nil {
		engineError(c, err)
		return
	}

	h.invalidateMarketCaches(marketID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"market_id":    marketID,
			"final_price":  price.Value,
			"winning_side": sideName(side),
		},
	})
}

// OverrideResolution lets an admin settle a market directly, bypassing the
// oracle. Used when a feed is broken or was resolved incorrectly upstream.
func (h *Handlers) OverrideResolution(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	marketID, ok := parseMarketID(c)
	if !ok {
		return
	}

	var req OverrideResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validator := NewValidator()
	side := validator.ValidateSide("winning_side", req.WinningSide)
	if validator.HasErrors() {
		SendValidationErrors(c, validator.GetErrors())
		return
	}

	if err := h.engine.OverrideResolution(account, marketID, side, req.FinalPrice); err != nil {
		engineError(c, err)
		return
	}

	h.invalidateMarketCaches(marketID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"market_id":    marketID,
			"winning_side": req.WinningSide,
		},
	})
}

// Admin Handlers

// GetAdmins lists the admin set
func (h *Handlers) GetAdmins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.engine.Admins(),
	})
}

// AddAdmin grants admin rights to an account
func (h *Handlers) AddAdmin(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	var req AdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	validator := NewValidator()
	validator.ValidateAccount("account", req.Account)
	if validator.HasErrors() {
		SendValidationErrors(c, validator.GetErrors())
		return
	}

	if err := h.engine.AddAdmin(account, req.Account); err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.engine.Admins(),
	})
}

// RemoveAdmin revokes admin rights from an account
func (h *Handlers) RemoveAdmin(c *gin.Context) {
	account, exists := middleware.GetAccountFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.engine.RemoveAdmin(account, c.Param("account")); err != nil {
		engineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.engine.Admins(),
	})
}

// GetTreasury returns the accumulated protocol fees
func (h *Handlers) GetTreasury(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"treasury": h.engine.Treasury(),
			"fee_bps":  h.engine.FeeBps(),
			"min_bet":  h.engine.MinBet(),
		},
	})
}

// PostOraclePrice records a price on the in-process static source. Only
// available when the deployment runs without a feed service.
func (h *Handlers) PostOraclePrice(c *gin.Context) {
	if h.static == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Deployment uses an external price feed"})
		return
	}

	var req struct {
		Asset string `json:"asset"`
		Value uint64 `json:"value"`
		Conf  uint64 `json:"conf"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	feed, err := engine.ParseFeedID(req.Asset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.static.SetPrice(feed, req.Value, req.Conf)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Price recorded",
	})
}

// WebSocket Handler

// HandleWebSocket upgrades the connection and attaches it to the event hub
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	h.hub.HandleWebSocket(c)
}

// GetWebSocketStats returns event hub statistics
func (h *Handlers) GetWebSocketStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.hub.GetStats(),
	})
}

// Health Handlers

// CheckDatabaseHealth checks database connectivity
func CheckDatabaseHealth(c *gin.Context) {
	if err := database.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// CheckRedisHealth checks Redis connectivity
func CheckRedisHealth(c *gin.Context) {
	if err := cache.HealthCheck(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// GetMetrics returns system metrics
func (h *Handlers) GetMetrics(c *gin.Context) {
	var userCount, marketCount, betCount int64
	database.GetDB().Model(&models.User{}).Count(&userCount)
	database.GetDB().Model(&models.Market{}).Count(&marketCount)
	database.GetDB().Model(&models.UserBet{}).Count(&betCount)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"users":    userCount,
			"markets":  marketCount,
			"bets":     betCount,
			"treasury": h.engine.Treasury(),
		},
	})
}

// invalidateMarketCaches drops the cached list and one market's view after a
// mutation so reads converge immediately instead of waiting out the TTL.
func (h *Handlers) invalidateMarketCaches(marketID uint64) {
	if err := cache.InvalidateMarketView(marketID); err != nil {
		logrus.WithError(err).Debug("Failed to invalidate market view cache")
	}
	if err := cache.Delete(cache.KeyMarketList); err != nil {
		logrus.WithError(err).Debug("Failed to invalidate market list cache")
	}
}

func sideName(side bool) string {
	if side {
		return "yes"
	}
	return "no"
}

package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ticker_backend/services/market"
	"ticker_backend/services/predictions"
	"ticker_backend/services/quotes"
)

// TickSource reports when the next scheduler tick fires
type TickSource interface {
	NextTick() time.Time
	IsRunning() bool
}

// MarketController serves quotes and the market clock
type MarketController struct {
	service *predictions.Service
	ticks   TickSource
	now     func() time.Time
}

// NewMarketController creates a new market controller
func NewMarketController(service *predictions.Service, ticks TickSource) *MarketController {
	return &MarketController{service: service, ticks: ticks, now: market.Now}
}

// GetQuote returns a fresh quote for a symbol
// GET /api/v1/quotes/:symbol
func (mc *MarketController) GetQuote(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	quote, err := mc.service.Check(c.Request.Context(), symbol)
	if err != nil {
		if quotes.IsUnavailable(err) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "Quote unavailable", "symbol": symbol})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch quote"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": quote})
}

// GetClock returns the current session state and the next tick
// GET /api/v1/market/clock
func (mc *MarketController) GetClock(c *gin.Context) {
	now := mc.now()

	resp := gin.H{
		"now":            now,
		"is_market_open": market.IsMarketOpen(now),
		"next_boundary":  market.NextBoundary(now),
		"scheduler":      gin.H{"running": false},
	}
	if mc.ticks != nil && mc.ticks.IsRunning() {
		resp["scheduler"] = gin.H{"running": true, "next_tick": mc.ticks.NextTick()}
	}

	c.JSON(http.StatusOK, resp)
}

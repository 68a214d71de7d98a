package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ticker_backend/models"
	"ticker_backend/services/commands"
	"ticker_backend/services/market"
	"ticker_backend/services/predictions"
	"ticker_backend/services/quotes"
)

type quoteMap map[string]*models.Quote

func (m quoteMap) Fetch(ctx context.Context, symbol string) (*models.Quote, error) {
	if q, ok := m[symbol]; ok {
		return q, nil
	}
	return nil, &quotes.QuoteUnavailableError{Symbol: symbol, Cause: errors.New("unknown")}
}

type fixedTicks struct{ next time.Time }

func (f fixedTicks) NextTick() time.Time { return f.next }
func (f fixedTicks) IsRunning() bool     { return !f.next.IsZero() }

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store, err := predictions.NewGormStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher := quoteMap{"AAPL": {Symbol: "AAPL", LatestPrice: 200, PreviousClose: 200, PercentChange: 0.5}}
	service := predictions.NewService(fetcher, store)

	commandController := NewCommandController(commands.NewHandler(service, nil))
	marketController := NewMarketController(service, fixedTicks{next: market.NextBoundary(market.Now())})
	predictionController := NewPredictionController(service)

	router := gin.New()
	api := router.Group("/api/v1")
	api.POST("/commands", commandController.Run)
	api.GET("/quotes/:symbol", marketController.GetQuote)
	api.GET("/market/clock", marketController.GetClock)
	api.GET("/predictions", predictionController.List)
	api.POST("/predictions", predictionController.Submit)
	return router
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestRunCheckCommand(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/commands", gin.H{
		"sender":  gin.H{"nick": "alice"},
		"message": "!check aapl",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Symbol: AAPL | Current: 200.00 | Daily Change: +0.50%", decode(t, w)["plain"])
}

func TestRunUnknownCommand(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/commands", gin.H{
		"sender":  gin.H{"nick": "alice"},
		"message": "hello there",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunIgnoredRelay(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/commands", gin.H{
		"sender":  gin.H{"nick": "mallory"},
		"message": "<bob> !check AAPL",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["ignored"])
}

func TestGetQuote(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quotes/aapl", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "AAPL", data["symbol"])

	w = doJSON(router, http.MethodGet, "/api/v1/quotes/nope", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSubmitAndListPredictions(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/predictions", gin.H{
		"submitter": "alice",
		"symbol":    "aapl",
		"percent":   -5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["message"], "Prediction by alice for AAPL")

	w = doJSON(router, http.MethodGet, "/api/v1/predictions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(1), body["total"])
	first := body["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "190", first["predicted_price"])
}

func TestSubmitValidation(t *testing.T) {
	router := setupRouter(t)

	tests := []struct {
		name string
		body gin.H
		code int
	}{
		{"missing target", gin.H{"submitter": "a", "symbol": "AAPL"}, http.StatusBadRequest},
		{"both targets", gin.H{"submitter": "a", "symbol": "AAPL", "price": 1, "percent": 1}, http.StatusBadRequest},
		{"negative price", gin.H{"submitter": "a", "symbol": "AAPL", "price": -1}, http.StatusBadRequest},
		{"unknown symbol", gin.H{"submitter": "a", "symbol": "NOPE", "price": 1}, http.StatusBadGateway},
		{"missing submitter", gin.H{"symbol": "AAPL", "price": 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/v1/predictions", tt.body)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestGetClock(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/market/clock", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Contains(t, body, "is_market_open")
	assert.Contains(t, body, "next_boundary")
	assert.Equal(t, true, body["scheduler"].(map[string]any)["running"])
}

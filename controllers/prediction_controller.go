package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ticker_backend/services/commands"
	"ticker_backend/services/format"
	"ticker_backend/services/predictions"
	"ticker_backend/services/quotes"
)

// PredictionController handles prediction submission and listing
type PredictionController struct {
	service *predictions.Service
}

// NewPredictionController creates a new prediction controller
func NewPredictionController(service *predictions.Service) *PredictionController {
	return &PredictionController{service: service}
}

// SubmitRequest predicts either an absolute price or a signed percentage move
type SubmitRequest struct {
	Submitter string   `json:"submitter" binding:"required"`
	Symbol    string   `json:"symbol" binding:"required"`
	Price     *float64 `json:"price"`
	Percent   *float64 `json:"percent"`
}

// Submit stores a prediction, replacing the submitter's previous one for the symbol
// POST /api/v1/predictions
func (pc *PredictionController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var target predictions.Target
	switch {
	case req.Price != nil && req.Percent != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Set either price or percent, not both"})
		return
	case req.Price != nil:
		target = predictions.PriceTarget(*req.Price)
	case req.Percent != nil:
		target = predictions.PercentTarget(*req.Percent)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "price or percent is required"})
		return
	}

	conf, err := pc.service.Submit(c.Request.Context(), req.Submitter, req.Symbol, target)
	if err != nil {
		switch {
		case errors.Is(err, predictions.ErrInvalidTarget):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case quotes.IsUnavailable(err):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Quote unavailable", "symbol": req.Symbol})
		default:
			log.Error().Err(err).Str("symbol", req.Symbol).Msg("Failed to save prediction")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save prediction"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":    conf,
		"message": format.Strip(commands.FormatConfirmation(conf.Prediction.Submitter, conf)),
	})
}

// List returns every outstanding prediction
// GET /api/v1/predictions
func (pc *PredictionController) List(c *gin.Context) {
	preds, err := pc.service.Pending(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list predictions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  preds,
		"total": len(preds),
	})
}

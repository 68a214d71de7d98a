package routes

import (
	"github.com/gin-gonic/gin"

	"ticker_backend/controllers"
	"ticker_backend/middleware"
	"ticker_backend/services/commands"
	"ticker_backend/services/metrics"
	"ticker_backend/services/notify"
	"ticker_backend/services/predictions"
)

// Dependencies are the services the routes are wired to
type Dependencies struct {
	Commands  *commands.Handler
	Service   *predictions.Service
	Ticks     controllers.TickSource
	Hub       *notify.Hub
	RateLimit *middleware.RateLimiter
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	// Initialize controllers
	commandController := controllers.NewCommandController(deps.Commands)
	marketController := controllers.NewMarketController(deps.Service, deps.Ticks)
	predictionController := controllers.NewPredictionController(deps.Service)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Hub != nil {
		router.GET("/ws", func(c *gin.Context) {
			deps.Hub.HandleWebSocket(c.Writer, c.Request)
		})
	}

	// API v1 group
	api := router.Group("/api/v1")
	if deps.RateLimit != nil {
		api.Use(deps.RateLimit.Middleware())
	}
	{
		api.POST("/commands", commandController.Run)

		api.GET("/quotes/:symbol", marketController.GetQuote)
		api.GET("/market/clock", marketController.GetClock)

		predictionRoutes := api.Group("/predictions")
		{
			predictionRoutes.GET("", predictionController.List)
			predictionRoutes.POST("", predictionController.Submit)
		}
	}
}

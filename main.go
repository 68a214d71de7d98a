package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ticker_backend/config"
	"ticker_backend/middleware"
	"ticker_backend/routes"
	"ticker_backend/scheduler"
	"ticker_backend/services/commands"
	"ticker_backend/services/notify"
	"ticker_backend/services/predictions"
	"ticker_backend/services/quotes"
	"ticker_backend/services/ticker"
)

func main() {
	// Load configuration; this also sets up the global logger
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("stocks", len(cfg.Stocks)).
		Int("channels", len(cfg.Channels)).
		Str("store", cfg.StoreDriver).
		Msg("Market ticker starting")

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open prediction store")
	}

	// Output channels: structured log plus websocket subscribers
	hub := notify.NewHub()
	sink := notify.Multi{notify.LogSink{}, hub}

	fetcher := quotes.NewClient(quotes.ClientConfig{
		BaseURL:           cfg.IEXBaseURL,
		Token:             cfg.IEXToken,
		RequestsPerMinute: cfg.QuoteRPM,
	})

	broadcaster := ticker.NewBroadcaster(fetcher, sink, cfg.Stocks, cfg.Channels)
	resolver := predictions.NewResolver(fetcher, store, sink, cfg.Channels, cfg.SymbolPause)
	service := predictions.NewService(fetcher, store)
	handler := commands.NewHandler(service, cfg.RelayBots)

	jobScheduler := scheduler.NewScheduler(broadcaster, resolver, store, scheduler.Options{
		PhasePause:       cfg.PhasePause,
		PredictionMaxAge: cfg.PredictionMaxAge,
	})

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())

	setupHealthEndpoints(router, store)

	limiter := middleware.NewRateLimiter(60, 20, 10*time.Minute)
	limiter.StartCleanup(5 * time.Minute)

	routes.SetupRoutes(router, routes.Dependencies{
		Commands:  handler,
		Service:   service,
		Ticks:     jobScheduler,
		Hub:       hub,
		RateLimit: limiter,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	jobScheduler.Start()

	gracefulShutdown(server, jobScheduler, hub, limiter, store)
}

// openStore opens the prediction store for the configured driver
func openStore(cfg *config.Config) (predictions.Store, error) {
	if cfg.StoreDriver == config.StoreMongo {
		return predictions.NewMongoStore(context.Background(), cfg.MongoURI, cfg.MongoDB)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, err
	}
	return predictions.NewGormStore(db)
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine, store predictions.Store) {
	// Liveness probe - always returns OK if server is running
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// Readiness probe - checks the prediction store is reachable
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Prediction store ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	})
}

// gracefulShutdown handles graceful shutdown of the server
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler, hub *notify.Hub,
	limiter *middleware.RateLimiter, store predictions.Store) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully")

	// Stop scheduler first so no new tick starts
	jobScheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := jobScheduler.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Tick still running at shutdown")
	}

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Shutdown()
	limiter.Stop()

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close prediction store")
	} else {
		log.Info().Msg("Prediction store closed")
	}

	log.Info().Msg("Server shutdown completed")
}

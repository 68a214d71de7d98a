package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestLogger logs failed or slow requests. Probe and scrape paths are skipped.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" || path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			log.Error().Str("method", c.Request.Method).Str("path", path).Int("status", status).
				Dur("duration", duration).Str("ip", c.ClientIP()).Msg("Request failed")
		case status >= http.StatusBadRequest || duration > time.Second:
			log.Warn().Str("method", c.Request.Method).Str("path", path).Int("status", status).
				Dur("duration", duration).Str("ip", c.ClientIP()).Msg("Request")
		default:
			log.Debug().Str("method", c.Request.Method).Str("path", path).Int("status", status).
				Dur("duration", duration).Msg("Request")
		}
	}
}

// CORS allows browser dashboards on other origins to reach the API and websocket
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

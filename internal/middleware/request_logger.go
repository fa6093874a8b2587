// Package middleware provides gin middleware shared by all routes.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mondominator/audiora/internal/logger"
)

// RequestLogger logs HTTP requests and their outcome.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health checks are noise
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.Debug("%s %s -> %d (%s)",
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			time.Since(start),
		)

		for _, err := range c.Errors {
			logger.Error("request error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err.Err)
		}
	}
}

// CORS allows cross-origin requests from the web client.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// Package server assembles the HTTP surface: middleware, health endpoint,
// and every module's routes.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mondominator/audiora/internal/modules/modulemanager"
)

var startedAt = time.Now()

// BuildRouter configures the router with middleware, the health endpoint,
// and the routes of every registered module.
func BuildRouter(registry *modulemanager.Registry, mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	for _, m := range mw {
		r.Use(m)
	}

	r.GET("/api/health", healthCheck)

	registry.RegisterRoutes(r)
	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(startedAt).Round(time.Second).String(),
	})
}

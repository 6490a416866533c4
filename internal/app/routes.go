package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smartbrief/core/internal/middleware"
	"github.com/smartbrief/core/internal/modules/credit"
	"github.com/smartbrief/core/internal/modules/health"
	"github.com/smartbrief/core/internal/modules/summary"
	"github.com/smartbrief/core/internal/pkg/metrics"
	"github.com/smartbrief/core/internal/pkg/response"
)

const apiPrefix = "/api"

var appInfo = gin.H{
	"name":    "smartbrief-core",
	"version": "1.0.0",
}

func (a *App) registerRoutes() {
	r := a.router

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "Route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, gin.H{"ok": 0, "code": http.StatusMethodNotAllowed, "message": "Method not allowed"})
	})

	if a.registry != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(a.registry)))
	}

	api := r.Group(apiPrefix)
	api.Use(middleware.Idempotence(a.redis, a.logger.Named("idempotence")))
	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })

	probes := []health.Probe{{Name: "store", Pinger: a.store}}
	if a.redis.Enabled() {
		probes = append(probes, health.Probe{Name: "redis", Pinger: a.redis, Optional: true})
	}
	health.NewHandler(a.started, probes...).RegisterRoutes(api)

	authMW := middleware.Auth(a.gate)
	// Charged routes are throttled per user after authentication.
	throttle := middleware.RateLimit(a.redis, a.cfg.RateLimit.PerMinute, a.logger.Named("ratelimit"))

	credit.NewHandler(a.ledger).RegisterRoutes(api, authMW)
	summary.NewHandler(a.summaries, a.gateway).RegisterRoutes(api, authMW, throttle)
}

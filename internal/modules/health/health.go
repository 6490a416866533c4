package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 3 * time.Second

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe is one named dependency. Optional probes degrade the status
// without failing it.
type Probe struct {
	Name     string
	Pinger   Pinger
	Optional bool
}

type Handler struct {
	probes  []Probe
	started time.Time
}

func NewHandler(started time.Time, probes ...Probe) *Handler {
	return &Handler{probes: probes, started: started}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.health)
	rg.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	rg.GET("/uptime", func(c *gin.Context) {
		up := time.Since(h.started)
		c.JSON(http.StatusOK, gin.H{
			"timestamp": up.Milliseconds(),
			"humanize":  humanizeDuration(up),
		})
	})
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(gin.H, len(h.probes))
	for _, p := range h.probes {
		ok := p.Pinger != nil && p.Pinger.Ping(ctx) == nil
		checks[p.Name] = ok
		if ok {
			continue
		}
		if p.Optional {
			if status == "ok" {
				status = "degraded"
			}
			continue
		}
		status = "down"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return d.Truncate(time.Second).String()
	case d < time.Hour:
		return d.Truncate(time.Minute).String()
	case d < 24*time.Hour:
		return d.Truncate(time.Hour).String()
	}
	return d.Truncate(24 * time.Hour).String()
}

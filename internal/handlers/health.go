package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Cache       string `json:"cache"`
	Storage     string `json:"storage"`
	Environment string `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	check := func(name string, p Pinger) string {
		if p == nil {
			return "disabled"
		}
		if err := p.Ping(ctx); err != nil {
			healthy = false
			h.log.Error().Err(err).Msgf("%s ping failed", name)
			return "error"
		}
		return "ok"
	}

	resp := healthResponse{
		Status:      "ok",
		Database:    check("database", h.health.Database),
		Cache:       check("redis", h.health.Cache),
		Storage:     check("storage", h.health.Storage),
		Environment: h.cfg.Environment,
	}

	status := http.StatusOK
	if !healthy {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

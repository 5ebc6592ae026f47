package server

import (
	"context"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/aethra/keybot/pkg/logger"
)

const (
	statusHealthy  = "healthy"
	statusNotReady = "not_ready"
)

// CreateHealthHandler runs every readiness check and answers 503 when any
// of them fails.
func CreateHealthHandler(version string, checks map[string]ReadinessCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()
		ready := true
		components := gin.H{}
		for _, name := range names {
			component := gin.H{"ready": true}
			if err := checks[name](ctx); err != nil {
				ready = false
				component["ready"] = false
				component["error"] = err.Error()
				logger.FromContext(ctx).Warn("Readiness check failed", "component", name, "error", err)
			}
			components[name] = component
		}
		status, code := statusHealthy, http.StatusOK
		if !ready {
			status, code = statusNotReady, http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"data": gin.H{
				"status":     status,
				"ready":      ready,
				"version":    version,
				"components": components,
			},
			"message": "Success",
		})
	}
}

package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker reports liveness of the relay and its backing store.
type HealthChecker struct {
	startedAt time.Time
	checks    []func(ctx context.Context) error
	stats     func() (participants, rooms int)
}

func NewHealthChecker(stats func() (participants, rooms int), checks ...func(ctx context.Context) error) *HealthChecker {
	return &HealthChecker{
		startedAt: time.Now(),
		checks:    checks,
		stats:     stats,
	}
}

// Handler returns a gin handler for the health endpoint.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		code := http.StatusOK
		for _, check := range h.checks {
			if err := check(ctx); err != nil {
				status = "degraded"
				code = http.StatusServiceUnavailable
				break
			}
		}

		participants, rooms := 0, 0
		if h.stats != nil {
			participants, rooms = h.stats()
		}

		c.JSON(code, gin.H{
			"status":         status,
			"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
			"participants":   participants,
			"rooms":          rooms,
		})
	}
}

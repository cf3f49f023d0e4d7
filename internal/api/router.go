package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/northcloud/eventorch/internal/logger"
)

// NewRouter builds the gin engine exposing the core's operations, in the
// same style as the teacher's crawler API: release mode, recovery, request
// logging, no default gin logging.
func NewRouter(h *Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/schedules/trigger-now", h.TriggerScheduleNow)
	v1.POST("/instagram/trigger-all", h.TriggerAllActiveInstagramScrapes)
	v1.POST("/jobs/statuses", h.GetJobStatuses)
	v1.POST("/jobs/cancel", h.CancelJobs)

	return router
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}

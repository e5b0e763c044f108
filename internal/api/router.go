package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/terrascan/terrascan/internal/analysis"
	"github.com/terrascan/terrascan/internal/properties"
	"github.com/terrascan/terrascan/internal/session"
)

// SetupRouter wires the dashboard API.
func SetupRouter(store *session.Store, service *analysis.Service, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Logger(logger), CORS())

	h := &Handler{
		store:   store,
		service: service,
		log:     logger.WithField("component", "api"),
		now:     time.Now,
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"version":  properties.Version,
			"provider": service.ProviderName(),
		})
	})

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		{
			sessions.GET("", h.ListSessions)
			sessions.POST("", h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.DELETE("/:id", h.DeleteSession)
			sessions.PUT("/:id/aoi", h.SetArea)
			sessions.PUT("/:id/threshold", h.SetThreshold)
			sessions.POST("/:id/analyses", h.Analyze)
			sessions.GET("/:id/report.csv", h.Report)
			sessions.GET("/:id/history", h.History)
			sessions.GET("/:id/images/:file", h.Image)
		}
	}

	return r
}

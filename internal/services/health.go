package services

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookdeck/hostnode/internal/service"
	"github.com/hookdeck/hostnode/internal/worker"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// HealthHandler reports the supervisor's worker health. Disconnected
// services show up as degraded and do not fail the check.
func HealthHandler(supervisor *worker.WorkerSupervisor) gin.HandlerFunc {
	return func(c *gin.Context) {
		tracker := supervisor.GetHealthTracker()
		status := tracker.GetStatus()
		if tracker.IsHealthy() {
			c.JSON(http.StatusOK, status)
		} else {
			c.JSON(http.StatusServiceUnavailable, status)
		}
	}
}

// ServicesHandler lists the runtime state of every local service.
func ServicesHandler(runtimes []*service.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := make([]service.Info, 0, len(runtimes))
		for _, svc := range runtimes {
			infos = append(infos, svc.Info())
		}
		c.JSON(http.StatusOK, gin.H{"services": infos})
	}
}

// NewBaseRouter creates the health router. Requests are traced when
// otelServiceName is set.
func NewBaseRouter(supervisor *worker.WorkerSupervisor, runtimes []*service.Service, ginMode, otelServiceName string) *gin.Engine {
	gin.SetMode(ginMode)
	r := gin.New()
	r.Use(gin.Recovery())
	if otelServiceName != "" {
		r.Use(otelgin.Middleware(otelServiceName))
	}

	r.GET("/healthz", HealthHandler(supervisor))
	r.GET("/services", ServicesHandler(runtimes))

	return r
}

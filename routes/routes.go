package routes

import (
	"time"

	"bookline/config"
	"bookline/handlers"
	"bookline/middleware"
	"bookline/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter builds the ops HTTP surface. Monitoring and incident handling
// only; booking itself happens over chat.
func SetupRouter(hb *handlers.HandlerBundle) *gin.Engine {
	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(utils.ErrorHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", hb.HealthHandler)

	ops := r.Group("/api/ops")
	ops.Use(middleware.OpsAuthMiddleware(config.AppConfig.OpsToken))
	{
		ops.GET("/appointments", hb.ListAppointmentsHandler)
		ops.GET("/appointments/:id", hb.GetAppointmentHandler)
		ops.POST("/appointments/:id/cancel", hb.CancelAppointmentHandler)
		ops.POST("/appointments/:id/events/:event", hb.ApplyEventHandler)
	}

	return r
}

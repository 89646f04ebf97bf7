package handlers

import (
	"kilnfire/internal/logger"
	"kilnfire/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs the HTTP handler with its dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Live progress push over the same port.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		kiln := api.Group("/kiln")
		{
			kiln.GET("/progress", h.getProgress)
			kiln.GET("/settings", h.getSettings)
			kiln.PUT("/settings", h.updateSettings)
			kiln.GET("/element-hours", h.getElementHours)
			kiln.POST("/start", h.startFiring)
			kiln.POST("/stop", h.stopFiring)
			kiln.POST("/pause", h.pauseFiring)
			kiln.POST("/resume", h.resumeFiring)
			kiln.POST("/skip", h.skipSegment)
			kiln.POST("/autotune", h.startAutotune)
			kiln.DELETE("/autotune", h.stopAutotune)
			kiln.POST("/clear-emergency", h.clearEmergency)
		}

		profiles := api.Group("/profiles")
		{
			profiles.GET("", h.listProfiles)
			profiles.POST("", h.saveProfile)
			profiles.POST("/cone-fire", h.coneFire)
			profiles.GET("/:id", h.getProfile)
			profiles.PUT("/:id", h.updateProfile)
			profiles.DELETE("/:id", h.deleteProfile)
		}

		history := api.Group("/history")
		{
			history.GET("", h.getHistory)
			history.GET("/:id/trace", h.getTrace)
			history.DELETE("", h.clearHistory)
		}
	}
}

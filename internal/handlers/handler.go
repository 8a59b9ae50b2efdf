package handlers

import (
	"fuelwatch/internal/logger"
	"fuelwatch/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
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

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", h.health)

	api := router.Group("/api/v1")
	{
		api.POST("/ingest", h.ingestSamples)

		vehicles := api.Group("/vehicles")
		{
			vehicles.GET("", h.listVehicles)
			vehicles.GET("/:id/state", h.getVehicleState)
			vehicles.GET("/:id/metrics", h.getVehicleMetrics)
			vehicles.POST("/:id/state/clear", h.clearFuelState)
			vehicles.POST("/:id/mpg/clear", h.clearMpgState)
		}

		refuels := api.Group("/refuels")
		{
			refuels.GET("", h.listRefuels)
			refuels.GET("/rejected", h.listRefuelRejections)
		}
	}

	// Live state stream, same port.
	router.GET("/ws", h.wsConnect)

	return router
}

// logAndJSONError centralizes error logging and the JSON error response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(200, gin.H{"status": "ok"})
}

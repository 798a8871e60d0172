package routes

import (
	"riderx/controllers"
	"riderx/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupWebSocketRoutes configures WebSocket related routes. The upgrade
// endpoint authenticates itself since browsers pass the token as a query
// parameter.
func SetupWebSocketRoutes(router *gin.Engine, api *gin.RouterGroup, wsController *controllers.WebSocketController, redis *redis.Client) {
	if redis != nil {
		router.GET("/ws", middleware.WebSocketRateLimit(redis), wsController.HandleWebSocket)
	} else {
		router.GET("/ws", wsController.HandleWebSocket)
	}

	api.GET("/ws/stats", wsController.GetConnectionStats)
}

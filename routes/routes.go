package routes

import (
	"riderx/controllers"
	"riderx/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Controllers is everything the router dispatches to.
type Controllers struct {
	Ride      *controllers.RideController
	Emergency *controllers.EmergencyController
	WebSocket *controllers.WebSocketController
	Health    *controllers.HealthController
}

type Options struct {
	Environment      string
	Redis            *redis.Client // nil disables rate limiting
	RateLimitRequest int
	RateLimitWindow  int // minutes
}

// SetupRoutes initializes all application routes
func SetupRoutes(ctrl *Controllers, auth *middleware.AuthMiddleware, opts Options) *gin.Engine {
	router := gin.New()

	setupGlobalMiddleware(router, opts)

	// Health check
	router.GET("/health", ctrl.Health.HealthCheck)

	api := router.Group("/api/v1")
	api.Use(auth.RequireAuth())
	if opts.Redis != nil {
		api.Use(middleware.APIRateLimit(opts.Redis, opts.RateLimitRequest, rateLimitWindow(opts)))
	}

	SetupRideRoutes(api, ctrl.Ride)
	SetupEmergencyRoutes(api, ctrl.Emergency, opts.Redis)
	SetupWebSocketRoutes(router, api, ctrl.WebSocket, opts.Redis)

	return router
}

func setupGlobalMiddleware(router *gin.Engine, opts Options) {
	router.Use(middleware.NewErrorHandler(opts.Environment, logrus.StandardLogger()).Handle())
	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(middleware.CORSMiddleware(opts.Environment))
}

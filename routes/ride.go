package routes

import (
	"time"

	"riderx/controllers"

	"github.com/gin-gonic/gin"
)

// SetupRideRoutes configures active ride, ride history and fuel settings routes
func SetupRideRoutes(router *gin.RouterGroup, rideController *controllers.RideController) {
	rides := router.Group("/rides")
	{
		rides.POST("", rideController.StartRide)

		// static segments before :rideId
		rides.GET("/history", rideController.GetHistory)
		rides.GET("/history/:rideId", rideController.GetHistoryRide)
		rides.DELETE("/history/:rideId", rideController.DeleteHistoryRide)

		rides.POST("/:rideId/fixes", rideController.AddFix)
		rides.POST("/:rideId/refuel", rideController.Refuel)
		rides.GET("/:rideId/stats", rideController.GetRideStats)
		rides.POST("/:rideId/stop", rideController.StopRide)
	}

	settings := router.Group("/settings")
	{
		settings.GET("/fuel", rideController.GetFuelSettings)
		settings.PUT("/fuel", rideController.UpdateFuelSettings)
	}
}

func rateLimitWindow(opts Options) time.Duration {
	if opts.RateLimitWindow <= 0 {
		return time.Minute
	}
	return time.Duration(opts.RateLimitWindow) * time.Minute
}

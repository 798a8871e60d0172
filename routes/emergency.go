package routes

import (
	"riderx/controllers"
	"riderx/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupEmergencyRoutes configures crash report and emergency contact routes
func SetupEmergencyRoutes(router *gin.RouterGroup, emergencyController *controllers.EmergencyController, redis *redis.Client) {
	reports := router.Group("/crash-reports")
	{
		create := []gin.HandlerFunc{emergencyController.ReportCrash}
		if redis != nil {
			create = append([]gin.HandlerFunc{middleware.CrashReportRateLimit(redis)}, create...)
		}
		reports.POST("", create...)
		reports.GET("", emergencyController.GetCrashReports)
		reports.GET("/:reportId", emergencyController.GetCrashReport)
		reports.POST("/:reportId/notify", emergencyController.NotifyContacts)
	}

	contacts := router.Group("/contacts")
	{
		contacts.GET("", emergencyController.GetContacts)
		contacts.POST("", emergencyController.AddContact)
		contacts.PUT("/:contactId", emergencyController.UpdateContact)
		contacts.DELETE("/:contactId", emergencyController.DeleteContact)
		contacts.POST("/:contactId/test", emergencyController.TestContact)
	}
}

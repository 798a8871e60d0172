package controllers

import (
	"strconv"

	"riderx/models"
	"riderx/services"
	"riderx/utils"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type RideController struct {
	rideService *services.RideService
	validator   *utils.ValidationService
}

func NewRideController(rideService *services.RideService) *RideController {
	return &RideController{
		rideService: rideService,
		validator:   utils.NewValidationService(),
	}
}

// =================== ACTIVE RIDE ===================

func (rc *RideController) StartRide(c *gin.Context) {
	riderID := utils.GetRiderID(c)
	if riderID == "" {
		utils.UnauthorizedResponse(c, "Rider not authenticated")
		return
	}

	var req models.StartRideRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.BadRequestResponse(c, "Invalid request body")
			return
		}
	}
	snapshot, err := rc.rideService.StartRide(c.Request.Context(), riderID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Ride started", snapshot)
}

func (rc *RideController) AddFix(c *gin.Context) {
	riderID := utils.GetRiderID(c)
	rideID := c.Param("rideId")

	var req models.AddFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := rc.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	result, err := rc.rideService.AddFix(c.Request.Context(), riderID, rideID, req.ToFix())
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	message := "Fix recorded"
	if result.Ignored {
		message = "Fix ignored"
	}
	utils.SuccessResponse(c, message, result)
}

func (rc *RideController) Refuel(c *gin.Context) {
	riderID := utils.GetRiderID(c)
	rideID := c.Param("rideId")

	var req models.RefuelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := rc.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	fuel, err := rc.rideService.Refuel(c.Request.Context(), riderID, rideID, req.Amount)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Refuel recorded", fuel)
}

func (rc *RideController) GetRideStats(c *gin.Context) {
	snapshot, err := rc.rideService.GetRide(c.Request.Context(), utils.GetRiderID(c), c.Param("rideId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride stats retrieved", snapshot)
}

func (rc *RideController) StopRide(c *gin.Context) {
	record, err := rc.rideService.StopRide(c.Request.Context(), utils.GetRiderID(c), c.Param("rideId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride saved", gin.H{
		"ride":     record,
		"duration": utils.FormatClock(record.Stats.DurationSec),
	})
}

// =================== HISTORY ===================

func (rc *RideController) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			utils.BadRequestResponse(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rides, err := rc.rideService.History(c.Request.Context(), utils.GetRiderID(c), limit)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride history retrieved", rides)
}

func (rc *RideController) GetHistoryRide(c *gin.Context) {
	ride, err := rc.rideService.GetHistoryRide(c.Request.Context(), utils.GetRiderID(c), c.Param("rideId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride retrieved", ride)
}

func (rc *RideController) DeleteHistoryRide(c *gin.Context) {
	if err := rc.rideService.DeleteHistoryRide(c.Request.Context(), utils.GetRiderID(c), c.Param("rideId")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride deleted", nil)
}

// =================== FUEL SETTINGS ===================

func (rc *RideController) GetFuelSettings(c *gin.Context) {
	settings, err := rc.rideService.GetFuelSettings(c.Request.Context(), utils.GetRiderID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Fuel settings retrieved", fuelSettingsView(settings))
}

func (rc *RideController) UpdateFuelSettings(c *gin.Context) {
	var req models.FuelSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := rc.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	settings, err := rc.rideService.UpdateFuelSettings(c.Request.Context(), utils.GetRiderID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Fuel settings updated", fuelSettingsView(settings))
}

func fuelSettingsView(s models.FuelSettings) gin.H {
	return gin.H{
		"settings":     s,
		"fuelRange":    s.FuelRange(),
		"lowFuelRange": s.LowFuelRange(),
		"isLowFuel":    s.IsLowFuel(),
	}
}

package controllers

import (
	"riderx/models"
	"riderx/services"
	"riderx/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NotificationQueue hands crash reports to the background notifier.
type NotificationQueue interface {
	Submit(riderID, reportID string) error
}

type EmergencyController struct {
	emergencyService *services.EmergencyService
	queue            NotificationQueue
	validator        *utils.ValidationService
}

func NewEmergencyController(emergencyService *services.EmergencyService, queue NotificationQueue) *EmergencyController {
	return &EmergencyController{
		emergencyService: emergencyService,
		queue:            queue,
		validator:        utils.NewValidationService(),
	}
}

// =================== CRASH REPORTS ===================

// ReportCrash stores the incident and queues the contact notifications. When
// the queue cannot take the job the contacts are notified inline.
func (ec *EmergencyController) ReportCrash(c *gin.Context) {
	riderID := utils.GetRiderID(c)
	if riderID == "" {
		utils.UnauthorizedResponse(c, "Rider not authenticated")
		return
	}

	var req models.CreateCrashReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := ec.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	report, err := ec.emergencyService.ReportCrash(c.Request.Context(), riderID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	response := gin.H{"report": report}
	if !report.NotifyRequested {
		utils.CreatedResponse(c, "Crash report saved", response)
		return
	}

	if ec.queue != nil {
		err := ec.queue.Submit(riderID, report.ID)
		if err == nil {
			response["notification"] = "queued"
			utils.AcceptedResponse(c, "Crash report saved, notifying emergency contacts", response)
			return
		}
		logrus.Warnf("Notification queue rejected report %s, notifying inline: %v", report.ID, err)
	}

	_, summary, err := ec.emergencyService.NotifyContacts(c.Request.Context(), riderID, report.ID)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}
	response["notification"] = summary
	utils.CreatedResponse(c, summary.Message, response)
}

func (ec *EmergencyController) GetCrashReports(c *gin.Context) {
	reports, err := ec.emergencyService.ListReports(c.Request.Context(), utils.GetRiderID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Crash reports retrieved", reports)
}

func (ec *EmergencyController) GetCrashReport(c *gin.Context) {
	report, err := ec.emergencyService.GetReport(c.Request.Context(), utils.GetRiderID(c), c.Param("reportId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Crash report retrieved", report)
}

// NotifyContacts retries the notification run for a report. Contacts already
// reached are skipped.
func (ec *EmergencyController) NotifyContacts(c *gin.Context) {
	result, summary, err := ec.emergencyService.NotifyContacts(c.Request.Context(), utils.GetRiderID(c), c.Param("reportId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, summary.Message, gin.H{
		"summary":  summary,
		"attempts": result.Attempts,
	})
}

// =================== EMERGENCY CONTACTS ===================

func (ec *EmergencyController) GetContacts(c *gin.Context) {
	contacts, err := ec.emergencyService.ListContacts(c.Request.Context(), utils.GetRiderID(c))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency contacts retrieved", contacts)
}

func (ec *EmergencyController) AddContact(c *gin.Context) {
	var req models.AddEmergencyContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := ec.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	contact, err := ec.emergencyService.AddContact(c.Request.Context(), utils.GetRiderID(c), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Emergency contact added", contact)
}

func (ec *EmergencyController) UpdateContact(c *gin.Context) {
	var req models.UpdateEmergencyContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}
	if errs := ec.validator.ValidateStruct(req); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	contact, err := ec.emergencyService.UpdateContact(c.Request.Context(), utils.GetRiderID(c), c.Param("contactId"), req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency contact updated", contact)
}

func (ec *EmergencyController) DeleteContact(c *gin.Context) {
	if err := ec.emergencyService.DeleteContact(c.Request.Context(), utils.GetRiderID(c), c.Param("contactId")); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Emergency contact deleted", nil)
}

func (ec *EmergencyController) TestContact(c *gin.Context) {
	result, err := ec.emergencyService.TestNotification(c.Request.Context(), utils.GetRiderID(c), c.Param("contactId"))
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	message := "Test notification sent"
	if len(result.NotifiedIDs) == 0 {
		message = "Test notification failed"
	}
	utils.SuccessResponse(c, message, result)
}

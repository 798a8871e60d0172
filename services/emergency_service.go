package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"riderx/models"
	"riderx/repositories"
	"riderx/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ActiveRideProvider exposes the rider's current ride so crash reports can
// carry its statistics.
type ActiveRideProvider interface {
	ActiveRide(riderID string) (string, models.RideStats, bool)
}

type EmergencyService struct {
	reportRepo    repositories.CrashReportStore
	contactRepo   repositories.ContactStore
	dispatcher    *NotificationDispatcher
	rides         ActiveRideProvider
	publisher     EventPublisher
	notifyTimeout time.Duration

	// one notification run per report at a time
	runs singleflight.Group
}

func NewEmergencyService(
	reportRepo repositories.CrashReportStore,
	contactRepo repositories.ContactStore,
	dispatcher *NotificationDispatcher,
	rides ActiveRideProvider,
	publisher EventPublisher,
	notifyTimeout time.Duration,
) *EmergencyService {
	if notifyTimeout <= 0 {
		notifyTimeout = 2 * time.Minute
	}
	return &EmergencyService{
		reportRepo:    reportRepo,
		contactRepo:   contactRepo,
		dispatcher:    dispatcher,
		rides:         rides,
		publisher:     publisher,
		notifyTimeout: notifyTimeout,
	}
}

// =================== CRASH REPORTS ===================

// ReportCrash stores a new incident and returns the stored version. Resending
// a request with an existing report id returns the incident as first saved.
func (es *EmergencyService) ReportCrash(ctx context.Context, riderID string, req models.CreateCrashReportRequest) (models.CrashReport, error) {
	report, err := es.buildReport(riderID, req)
	if err != nil {
		return models.CrashReport{}, err
	}

	if existing, found, err := es.reportRepo.Get(ctx, report.ID); err != nil {
		return models.CrashReport{}, utils.NewDatabaseError("get crash report", err)
	} else if found && existing.RiderID != riderID {
		return models.CrashReport{}, utils.NewConflictError("report id already in use", models.ErrInvalidReport)
	}

	if err := es.reportRepo.Save(ctx, report); err != nil {
		if errors.Is(err, models.ErrInvalidReport) {
			return models.CrashReport{}, err
		}
		return models.CrashReport{}, utils.NewDatabaseError("save crash report", err)
	}

	stored, found, err := es.reportRepo.Get(ctx, report.ID)
	if err != nil {
		return models.CrashReport{}, utils.NewDatabaseError("get crash report", err)
	}
	if !found {
		return models.CrashReport{}, models.ErrReportNotFound
	}

	logrus.WithFields(logrus.Fields{
		"reportId": stored.ID,
		"riderId":  riderID,
		"status":   stored.UserStatus,
	}).Warn("Crash reported")

	if es.publisher != nil {
		if err := es.publisher.PublishCrashReported(ctx, stored); err != nil {
			logrus.Warnf("Failed to publish crash report: %v", err)
		}
	}

	return stored, nil
}

func (es *EmergencyService) buildReport(riderID string, req models.CreateCrashReportRequest) (models.CrashReport, error) {
	if req.Latitude == nil || req.Longitude == nil || !utils.IsValidCoordinate(*req.Latitude, *req.Longitude) {
		return models.CrashReport{}, models.ErrInvalidReport
	}
	if !req.UserStatus.Valid() {
		return models.CrashReport{}, models.ErrInvalidReport
	}

	report := models.CrashReport{
		ID:      strings.TrimSpace(req.ReportID),
		RiderID: riderID,
		RideID:  req.RideID,
		Location: &models.CrashLocation{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Address:   strings.TrimSpace(req.Address),
		},
		UserStatus:         req.UserStatus,
		Details:            strings.TrimSpace(req.Details),
		NotifyRequested:    req.ShouldNotify(),
		NotifiedContactIDs: []string{},
		CreatedAt:          time.Now(),
	}
	if report.ID == "" {
		report.ID = utils.GenerateUUID()
	}

	report.Timestamp = time.Now()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		report.Timestamp = *req.Timestamp
	}

	if es.rides != nil {
		if rideID, stats, ok := es.rides.ActiveRide(riderID); ok {
			report.RideStats = &stats
			if report.RideID == "" {
				report.RideID = rideID
			}
		}
	}

	return report, nil
}

// NotifyContacts reaches every emergency contact of the rider who has not yet
// been notified for the report. The returned summary covers all of the
// rider's contacts, including those reached by earlier calls. A call made
// while a run for the same report is in progress waits for that run and
// shares its outcome.
func (es *EmergencyService) NotifyContacts(ctx context.Context, riderID, reportID string) (NotifyResult, models.NotificationSummary, error) {
	if _, err := es.GetReport(ctx, riderID, reportID); err != nil {
		return NotifyResult{}, models.NotificationSummary{}, err
	}

	v, err, shared := es.runs.Do(reportID, func() (interface{}, error) {
		return es.runNotify(ctx, riderID, reportID)
	})
	if err != nil {
		return NotifyResult{}, models.NotificationSummary{}, err
	}
	if shared {
		logrus.WithField("reportId", reportID).Debug("Joined notification run in progress")
	}
	run := v.(notifyRun)
	return run.result, run.summary, nil
}

type notifyRun struct {
	result  NotifyResult
	summary models.NotificationSummary
}

func (es *EmergencyService) runNotify(ctx context.Context, riderID, reportID string) (notifyRun, error) {
	// Re-read inside the run so contacts reached by a run that just ended
	// are skipped.
	report, err := es.GetReport(ctx, riderID, reportID)
	if err != nil {
		return notifyRun{}, err
	}

	contacts, err := es.contactRepo.ListByRider(ctx, riderID)
	if err != nil {
		return notifyRun{}, utils.NewDatabaseError("list emergency contacts", err)
	}
	if len(contacts) == 0 {
		logrus.WithField("reportId", reportID).Warn("No emergency contacts to notify")
	}

	notifyCtx, cancel := context.WithTimeout(ctx, es.notifyTimeout)
	defer cancel()

	result := es.dispatcher.Notify(notifyCtx, report, contacts)

	reached := make(map[string]bool, len(contacts))
	for _, id := range report.NotifiedContactIDs {
		reached[id] = true
	}
	for _, id := range result.NotifiedIDs {
		reached[id] = true
	}
	notified := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if reached[c.ID] {
			notified = append(notified, c.ID)
		}
	}
	summary := models.NewNotificationSummary(report.ID, notified, len(contacts))

	if es.publisher != nil {
		if err := es.publisher.PublishNotificationResult(ctx, riderID, summary); err != nil {
			logrus.Warnf("Failed to publish notification result: %v", err)
		}
	}

	return notifyRun{result: result, summary: summary}, nil
}

func (es *EmergencyService) GetReport(ctx context.Context, riderID, reportID string) (models.CrashReport, error) {
	report, found, err := es.reportRepo.Get(ctx, reportID)
	if err != nil {
		return models.CrashReport{}, utils.NewDatabaseError("get crash report", err)
	}
	if !found || report.RiderID != riderID {
		return models.CrashReport{}, models.ErrReportNotFound
	}
	return report, nil
}

func (es *EmergencyService) ListReports(ctx context.Context, riderID string) ([]models.CrashReport, error) {
	reports, err := es.reportRepo.ListByRider(ctx, riderID)
	if err != nil {
		return nil, utils.NewDatabaseError("list crash reports", err)
	}
	return reports, nil
}

// PendingReports lists reports made since the given time that still have
// at least one of the rider's contacts left to reach.
func (es *EmergencyService) PendingReports(ctx context.Context, since time.Time) ([]models.CrashReport, error) {
	reports, err := es.reportRepo.List(ctx)
	if err != nil {
		return nil, utils.NewDatabaseError("list crash reports", err)
	}

	contactsByRider := make(map[string][]models.EmergencyContact)
	pending := []models.CrashReport{}

	for _, report := range reports {
		if !report.NotifyRequested || report.Timestamp.Before(since) {
			continue
		}

		contacts, ok := contactsByRider[report.RiderID]
		if !ok {
			contacts, err = es.contactRepo.ListByRider(ctx, report.RiderID)
			if err != nil {
				return nil, utils.NewDatabaseError("list emergency contacts", err)
			}
			contactsByRider[report.RiderID] = contacts
		}

		for _, c := range contacts {
			if !report.HasNotified(c.ID) {
				pending = append(pending, report)
				break
			}
		}
	}
	return pending, nil
}

// =================== EMERGENCY CONTACTS ===================

func (es *EmergencyService) ListContacts(ctx context.Context, riderID string) ([]models.EmergencyContact, error) {
	return es.contactRepo.ListByRider(ctx, riderID)
}

func (es *EmergencyService) AddContact(ctx context.Context, riderID string, req models.AddEmergencyContactRequest) (models.EmergencyContact, error) {
	now := time.Now()
	contact := models.EmergencyContact{
		ID:           utils.GenerateUUID(),
		RiderID:      riderID,
		Name:         strings.TrimSpace(req.Name),
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.TrimSpace(req.Email),
		Relationship: strings.TrimSpace(req.Relationship),
		IsPrimary:    req.IsPrimary,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateContact(contact); err != nil {
		return models.EmergencyContact{}, err
	}

	if err := es.contactRepo.Create(ctx, contact); err != nil {
		return models.EmergencyContact{}, err
	}
	if contact.IsPrimary {
		es.demoteOtherPrimaries(ctx, riderID, contact.ID)
	}
	return contact, nil
}

func (es *EmergencyService) UpdateContact(ctx context.Context, riderID, contactID string, req models.UpdateEmergencyContactRequest) (models.EmergencyContact, error) {
	contact, err := es.contactRepo.Get(ctx, riderID, contactID)
	if err != nil {
		return models.EmergencyContact{}, err
	}

	if req.Name != nil {
		contact.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		contact.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		contact.Email = strings.TrimSpace(*req.Email)
	}
	if req.Relationship != nil {
		contact.Relationship = strings.TrimSpace(*req.Relationship)
	}
	if req.IsPrimary != nil {
		contact.IsPrimary = *req.IsPrimary
	}
	contact.UpdatedAt = time.Now()

	if err := validateContact(contact); err != nil {
		return models.EmergencyContact{}, err
	}
	if err := es.contactRepo.Update(ctx, contact); err != nil {
		return models.EmergencyContact{}, err
	}
	if contact.IsPrimary {
		es.demoteOtherPrimaries(ctx, riderID, contact.ID)
	}
	return contact, nil
}

func (es *EmergencyService) DeleteContact(ctx context.Context, riderID, contactID string) error {
	return es.contactRepo.Delete(ctx, riderID, contactID)
}

// demoteOtherPrimaries keeps at most one primary contact per rider.
func (es *EmergencyService) demoteOtherPrimaries(ctx context.Context, riderID, primaryID string) {
	contacts, err := es.contactRepo.ListByRider(ctx, riderID)
	if err != nil {
		logrus.Warnf("Failed to load contacts for primary update: %v", err)
		return
	}
	for _, c := range contacts {
		if c.ID == primaryID || !c.IsPrimary {
			continue
		}
		c.IsPrimary = false
		c.UpdatedAt = time.Now()
		if err := es.contactRepo.Update(ctx, c); err != nil {
			logrus.Warnf("Failed to demote primary contact %s: %v", c.ID, err)
		}
	}
}

func validateContact(c models.EmergencyContact) error {
	switch {
	case c.Name == "":
		return utils.NewBadRequestError("contact name is required", models.ErrInvalidContact)
	case c.Phone == "" || !utils.IsE164(c.Phone):
		return utils.NewBadRequestError("contact phone must be an E.164 number", models.ErrInvalidContact)
	case c.Email == "":
		return utils.NewBadRequestError("contact email is required", models.ErrInvalidContact)
	}
	return nil
}

// =================== TEST NOTIFICATION ===================

type discardRecorder struct{}

func (discardRecorder) MarkNotified(context.Context, string, string) error { return nil }

// TestNotification sends a clearly labelled test alert to one contact. It
// goes through the real channels but is never stored as a crash report.
func (es *EmergencyService) TestNotification(ctx context.Context, riderID, contactID string) (NotifyResult, error) {
	contact, err := es.contactRepo.Get(ctx, riderID, contactID)
	if err != nil {
		return NotifyResult{}, err
	}

	report := models.CrashReport{
		ID:        "test-" + utils.GenerateUUID(),
		RiderID:   riderID,
		Timestamp: time.Now(),
		Location: &models.CrashLocation{
			Address: "Test Location - This is a test notification",
		},
		UserStatus:         models.UserStatusOK,
		Details:            "This is a test of the emergency notification system. No action is required.",
		NotifiedContactIDs: []string{},
		CreatedAt:          time.Now(),
	}

	notifyCtx, cancel := context.WithTimeout(ctx, es.notifyTimeout)
	defer cancel()

	result := es.dispatcher.WithRecorder(discardRecorder{}).Notify(notifyCtx, report, []models.EmergencyContact{contact})

	logrus.WithFields(logrus.Fields{
		"riderId":   riderID,
		"contactId": contactID,
		"reached":   len(result.NotifiedIDs) > 0,
	}).Info("Test notification sent")

	return result, nil
}

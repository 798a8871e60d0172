package services

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"riderx/models"

	"github.com/sirupsen/logrus"
)

const CrashEmailSubject = "EMERGENCY ALERT - Motorcycle Crash Report"

var crashEmailTemplate = template.Must(template.New("crash_email").Parse(`EMERGENCY ALERT - Motorcycle Crash Report

Dear {{.Name}},

This is an automated emergency alert from RiderX.

A crash has been reported for the rider at {{.Time}}.

CRASH DETAILS:
- Time: {{.Time}}
- Location: {{.Location}}
- User Status: {{.Status}}
- Details: {{.Details}}
- GPS Coordinates: {{.Coordinates}}
{{- if .Stats}}
- Distance ridden: {{.Stats}}
{{- end}}

EMERGENCY ACTIONS:
1. Please contact the rider immediately
2. If no response, contact emergency services
3. Use the GPS coordinates to locate the rider

This is an automated message. Please respond immediately.

Best regards,
RiderX Emergency System`))

type crashEmailData struct {
	Name        string
	Time        string
	Location    string
	Status      models.UserStatus
	Details     string
	Coordinates string
	Stats       string
}

// ComposeCrashEmail renders the subject and plain text body sent to one contact.
func ComposeCrashEmail(contact models.EmergencyContact, report models.CrashReport) (string, string) {
	data := crashEmailData{
		Name:        contact.Name,
		Time:        report.Timestamp.UTC().Format(time.RFC1123),
		Location:    report.LocationText(),
		Status:      report.UserStatus,
		Details:     report.Details,
		Coordinates: report.Coordinates(),
	}
	if data.Details == "" {
		data.Details = "none provided"
	}
	if report.RideStats != nil {
		data.Stats = fmt.Sprintf("%.1f km in %.0f min", report.RideStats.DistanceKm, report.RideStats.DurationSec/60)
	}

	var buf bytes.Buffer
	if err := crashEmailTemplate.Execute(&buf, data); err != nil {
		logrus.Errorf("Failed to render crash email: %v", err)
		return CrashEmailSubject, ComposeCrashSMS(contact, report)
	}
	return CrashEmailSubject, strings.TrimSpace(buf.String())
}

// ComposeCrashSMS renders the single text message sent to one contact.
func ComposeCrashSMS(_ models.EmergencyContact, report models.CrashReport) string {
	location := "GPS coordinates available"
	if report.Location != nil && report.Location.Address != "" {
		location = report.Location.Address
	}
	return fmt.Sprintf("EMERGENCY: Motorcycle crash reported. Location: %s. Status: %s. Call immediately.",
		location, report.UserStatus)
}

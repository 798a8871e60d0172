package models

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeFailure AttemptOutcome = "failure"
)

// NotificationAttempt is one send try on one channel for one contact.
// Attempts for the same (report, contact, channel) are numbered from 1.
type NotificationAttempt struct {
	ReportID      string         `json:"reportId" bson:"reportId"`
	ContactID     string         `json:"contactId" bson:"contactId"`
	Channel       Channel        `json:"channel" bson:"channel"`
	AttemptNumber int            `json:"attemptNumber" bson:"attemptNumber"`
	Outcome       AttemptOutcome `json:"outcome" bson:"outcome"`
	Reason        string         `json:"reason,omitempty" bson:"reason,omitempty"`
	Retryable     bool           `json:"retryable,omitempty" bson:"retryable,omitempty"`
	Timestamp     time.Time      `json:"timestamp" bson:"timestamp"`
}

func (a NotificationAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// NotificationSummary is the user facing outcome of a notify run.
type NotificationSummary struct {
	ReportID    string   `json:"reportId"`
	Notified    int      `json:"notified"`
	Total       int      `json:"total"`
	NotifiedIDs []string `json:"notifiedIds"`
	Message     string   `json:"message"`
}

func NewNotificationSummary(reportID string, notifiedIDs []string, total int) NotificationSummary {
	return NotificationSummary{
		ReportID:    reportID,
		Notified:    len(notifiedIDs),
		Total:       total,
		NotifiedIDs: append([]string{}, notifiedIDs...),
		Message:     fmt.Sprintf("%d of %d contacts reached", len(notifiedIDs), total),
	}
}

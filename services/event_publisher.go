package services

import (
	"context"

	"riderx/models"

	"github.com/sirupsen/logrus"
)

// EventPublisher pushes ride and crash events to whoever is listening:
// connected clients, the message broker, or both.
type EventPublisher interface {
	PublishRideAlert(ctx context.Context, riderID, rideID string, alert models.Alert) error
	PublishCrashReported(ctx context.Context, report models.CrashReport) error
	PublishNotificationResult(ctx context.Context, riderID string, summary models.NotificationSummary) error
}

// MultiPublisher fans every event out to all of its publishers. A failing
// publisher is logged and does not stop the others.
type MultiPublisher []EventPublisher

func (m MultiPublisher) PublishRideAlert(ctx context.Context, riderID, rideID string, alert models.Alert) error {
	for _, p := range m {
		if err := p.PublishRideAlert(ctx, riderID, rideID, alert); err != nil {
			logrus.Warnf("Failed to publish ride alert: %v", err)
		}
	}
	return nil
}

func (m MultiPublisher) PublishCrashReported(ctx context.Context, report models.CrashReport) error {
	for _, p := range m {
		if err := p.PublishCrashReported(ctx, report); err != nil {
			logrus.Warnf("Failed to publish crash report: %v", err)
		}
	}
	return nil
}

func (m MultiPublisher) PublishNotificationResult(ctx context.Context, riderID string, summary models.NotificationSummary) error {
	for _, p := range m {
		if err := p.PublishNotificationResult(ctx, riderID, summary); err != nil {
			logrus.Warnf("Failed to publish notification result: %v", err)
		}
	}
	return nil
}

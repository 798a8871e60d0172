package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riderx/models"
)

const (
	EventRideAlert          = "ride.alert"
	EventCrashReported      = "crash.reported"
	EventCrashNotifications = "crash.notified"
)

// Publisher is anything that can put a message on an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// Envelope is the body of every event on the events exchange.
type Envelope struct {
	Event     string      `json:"event"`
	RiderID   string      `json:"riderId"`
	RideID    string      `json:"rideId,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventPublisher sends ride and crash events to RabbitMQ.
type EventPublisher struct {
	pub      Publisher
	exchange string
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub, exchange: EventsExchange}
}

// RideAlertRoutingKey is ride.alert.<kind>, e.g. ride.alert.low_fuel.
func RideAlertRoutingKey(kind models.AlertKind) string {
	return fmt.Sprintf("%s.%s", EventRideAlert, kind)
}

func (p *EventPublisher) PublishRideAlert(ctx context.Context, riderID, rideID string, alert models.Alert) error {
	return p.publish(ctx, RideAlertRoutingKey(alert.Kind), Envelope{
		Event:   EventRideAlert,
		RiderID: riderID,
		RideID:  rideID,
		Data:    alert,
	})
}

func (p *EventPublisher) PublishCrashReported(ctx context.Context, report models.CrashReport) error {
	return p.publish(ctx, EventCrashReported, Envelope{
		Event:   EventCrashReported,
		RiderID: report.RiderID,
		RideID:  report.RideID,
		Data:    report,
	})
}

func (p *EventPublisher) PublishNotificationResult(ctx context.Context, riderID string, summary models.NotificationSummary) error {
	return p.publish(ctx, EventCrashNotifications, Envelope{
		Event:   EventCrashNotifications,
		RiderID: riderID,
		Data:    summary,
	})
}

func (p *EventPublisher) publish(ctx context.Context, routingKey string, env Envelope) error {
	env.Timestamp = time.Now()
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", env.Event, err)
	}
	return p.pub.Publish(ctx, p.exchange, routingKey, body)
}

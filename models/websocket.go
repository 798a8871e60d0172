// models/websocket.go
package models

import (
	"encoding/json"
	"time"
)

// WebSocket Message Types
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	RiderID   string      `json:"riderId,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// WSRequest is a message sent by a client.
type WSRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// WSFixRequest streams one position fix for an active ride.
type WSFixRequest struct {
	RideID string `json:"rideId" validate:"required"`
	AddFixRequest
}

type WSRideAlert struct {
	RideID string `json:"rideId"`
	Alert  Alert  `json:"alert"`
}

type WSCrashReported struct {
	ReportID   string         `json:"reportId"`
	UserStatus UserStatus     `json:"userStatus"`
	Location   *CrashLocation `json:"location"`
	Timestamp  time.Time      `json:"timestamp"`
}

type WSContactNotified struct {
	ReportID    string `json:"reportId"`
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WSTypeFix                = "fix"
	WSTypeFixResult          = "fix_result"
	WSTypeRideAlert          = "ride_alert"
	WSTypeCrashReported      = "crash_reported"
	WSTypeContactNotified    = "contact_notified"
	WSTypeNotificationResult = "notification_result"
	WSTypePing               = "ping"
	WSTypePong               = "pong"
	WSTypeError              = "error"
)

const (
	WSErrorInvalidMessage = "INVALID_MESSAGE"
	WSErrorRateLimit      = "RATE_LIMIT"
	WSErrorFixRejected    = "FIX_REJECTED"
)

package models

import (
	"fmt"
	"time"
)

type UserStatus string

const (
	UserStatusOK          UserStatus = "ok"
	UserStatusInjured     UserStatus = "injured"
	UserStatusUnconscious UserStatus = "unconscious"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusOK, UserStatusInjured, UserStatusUnconscious:
		return true
	}
	return false
}

// EmergencyContact is a person to reach when the rider reports a crash.
// The ID never changes once the contact is created.
type EmergencyContact struct {
	ID           string    `json:"id" bson:"_id"`
	RiderID      string    `json:"riderId" bson:"riderId"`
	Name         string    `json:"name" bson:"name" validate:"required"`
	Phone        string    `json:"phone" bson:"phone" validate:"required,phone"`
	Email        string    `json:"email" bson:"email" validate:"required,email"`
	Relationship string    `json:"relationship" bson:"relationship"`
	IsPrimary    bool      `json:"isPrimary" bson:"isPrimary"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

type CrashLocation struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
	Address   string  `json:"address,omitempty" bson:"address,omitempty"`
}

// CrashReport is an incident record. Everything except NotifiedContactIDs is
// fixed by the first save; NotifiedContactIDs only ever grows.
type CrashReport struct {
	ID                 string         `json:"id" bson:"_id"`
	RiderID            string         `json:"riderId,omitempty" bson:"riderId,omitempty"`
	RideID             string         `json:"rideId,omitempty" bson:"rideId,omitempty"`
	Timestamp          time.Time      `json:"timestamp" bson:"timestamp"`
	Location           *CrashLocation `json:"location" bson:"location"`
	UserStatus         UserStatus     `json:"userStatus" bson:"userStatus"`
	Details            string         `json:"details" bson:"details"`
	RideStats          *RideStats     `json:"rideStats,omitempty" bson:"rideStats,omitempty"`
	NotifyRequested    bool           `json:"notifyRequested" bson:"notifyRequested"`
	NotifiedContactIDs []string       `json:"notifiedContactIds" bson:"notifiedContactIds"`
	CreatedAt          time.Time      `json:"createdAt" bson:"createdAt"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r CrashReport) Clone() CrashReport {
	out := r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	if r.RideStats != nil {
		stats := *r.RideStats
		out.RideStats = &stats
	}
	out.NotifiedContactIDs = append([]string{}, r.NotifiedContactIDs...)
	return out
}

func (r CrashReport) HasNotified(contactID string) bool {
	for _, id := range r.NotifiedContactIDs {
		if id == contactID {
			return true
		}
	}
	return false
}

// LocationText is the address when known, otherwise the coordinates.
func (r CrashReport) LocationText() string {
	if r.Location == nil {
		return "unknown location"
	}
	if r.Location.Address != "" {
		return r.Location.Address
	}
	return r.Coordinates()
}

func (r CrashReport) Coordinates() string {
	if r.Location == nil {
		return ""
	}
	return fmt.Sprintf("%.6f, %.6f", r.Location.Latitude, r.Location.Longitude)
}

// =================== REQUEST/RESPONSE MODELS ===================

type CreateCrashReportRequest struct {
	ReportID   string     `json:"reportId,omitempty" validate:"omitempty,max=64"`
	RideID     string     `json:"rideId,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Latitude   *float64   `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude  *float64   `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address    string     `json:"address,omitempty" validate:"max=256"`
	UserStatus UserStatus `json:"userStatus" validate:"required,oneof=ok injured unconscious"`
	Details    string     `json:"details" validate:"max=2000"`
	Notify     *bool      `json:"notifyEmergencyContacts,omitempty"`
}

func (r CreateCrashReportRequest) ShouldNotify() bool {
	return r.Notify == nil || *r.Notify
}

type AddEmergencyContactRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Phone        string `json:"phone" validate:"required,phone"`
	Email        string `json:"email" validate:"required,email"`
	Relationship string `json:"relationship" validate:"max=50"`
	IsPrimary    bool   `json:"isPrimary"`
}

type UpdateEmergencyContactRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,phone"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Relationship *string `json:"relationship,omitempty" validate:"omitempty,max=50"`
	IsPrimary    *bool   `json:"isPrimary,omitempty"`
}

package models

import "time"

type AlertKind string

const (
	AlertKindLowFuel   AlertKind = "low_fuel"
	AlertKindOverSpeed AlertKind = "over_speed"
)

// Alert is a threshold crossing raised during a ride.
type Alert struct {
	Kind      AlertKind `json:"kind" bson:"kind"`
	Value     float64   `json:"value" bson:"value"`
	Threshold float64   `json:"threshold" bson:"threshold"`
	FiredAt   time.Time `json:"firedAt" bson:"firedAt"`
}

// AlertState is the per ride memory the evaluator needs between fixes.
type AlertState struct {
	LowFuelActive   bool      `json:"lowFuelActive"`
	LastOverSpeedAt time.Time `json:"lastOverSpeedAt,omitempty"`
}

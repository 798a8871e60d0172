package models

import "time"

// PositionFix is a single GPS sample. Speed is the speed over ground in m/s
// as reported by the device, nil when the device did not report one.
type PositionFix struct {
	Latitude  float64   `json:"latitude" bson:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" bson:"longitude" validate:"gte=-180,lte=180"`
	Speed     *float64  `json:"speed,omitempty" bson:"speed,omitempty" validate:"omitempty,gte=0"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp" validate:"required"`
}

// RouteTrace is the ordered list of fixes recorded for one ride.
type RouteTrace []PositionFix

// Clone returns an independent copy of the trace.
func (t RouteTrace) Clone() RouteTrace {
	if t == nil {
		return RouteTrace{}
	}
	out := make(RouteTrace, len(t))
	copy(out, t)
	return out
}

// RideStats is the derived telemetry snapshot of a ride.
type RideStats struct {
	DistanceKm      float64 `json:"distanceKm" bson:"distanceKm"`
	DurationSec     float64 `json:"durationSec" bson:"durationSec"`
	AverageSpeedKmh float64 `json:"averageSpeedKmh" bson:"averageSpeedKmh"`
	MaxSpeedKmh     float64 `json:"maxSpeedKmh" bson:"maxSpeedKmh"`
	CurrentSpeedKmh float64 `json:"currentSpeedKmh" bson:"currentSpeedKmh"`
}

// FuelSettings are the rider supplied fuel parameters. Units are whatever the
// rider uses (gallons and miles in the defaults), as long as they are consistent.
type FuelSettings struct {
	TankCapacity     float64 `json:"tankCapacity" bson:"tankCapacity" validate:"gt=0"`
	CurrentFuel      float64 `json:"currentFuel" bson:"currentFuel" validate:"gte=0,ltefield=TankCapacity"`
	FuelEfficiency   float64 `json:"fuelEfficiency" bson:"fuelEfficiency" validate:"gt=0"`
	LowFuelThreshold float64 `json:"lowFuelThreshold" bson:"lowFuelThreshold" validate:"gte=0,ltefield=TankCapacity"`
}

func DefaultFuelSettings() FuelSettings {
	return FuelSettings{
		TankCapacity:     15,
		CurrentFuel:      12,
		FuelEfficiency:   45,
		LowFuelThreshold: 2,
	}
}

// FuelRange is the distance the current fuel allows.
func (s FuelSettings) FuelRange() float64 {
	return s.CurrentFuel * s.FuelEfficiency
}

// LowFuelRange is the distance left once the low fuel threshold is reached.
func (s FuelSettings) LowFuelRange() float64 {
	return s.LowFuelThreshold * s.FuelEfficiency
}

func (s FuelSettings) IsLowFuel() bool {
	return s.CurrentFuel <= s.LowFuelThreshold
}

// FuelState is the fuel model of an active ride. Remaining is not clamped:
// a negative value means the model ran out of fuel.
type FuelState struct {
	FuelSettings `bson:",inline"`
	FuelUsed     float64 `json:"fuelUsed" bson:"fuelUsed"`
	Remaining    float64 `json:"remaining" bson:"remaining"`
}

func (f FuelState) RemainingRange() float64 {
	return f.Remaining * f.FuelEfficiency
}

func (f FuelState) OutOfFuel() bool {
	return f.Remaining <= 0
}

// RideRecord is a completed ride kept in the ride history.
type RideRecord struct {
	ID        string     `json:"id" bson:"_id"`
	RiderID   string     `json:"riderId" bson:"riderId"`
	Date      time.Time  `json:"date" bson:"date"`
	EndedAt   time.Time  `json:"endedAt" bson:"endedAt"`
	Stats     RideStats  `json:"stats" bson:"stats"`
	FuelUsed  float64    `json:"fuelUsed" bson:"fuelUsed"`
	Route     RouteTrace `json:"route" bson:"route"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
}

// RideSnapshot is the cached live view of an active ride.
type RideSnapshot struct {
	RideID    string    `json:"rideId"`
	RiderID   string    `json:"riderId"`
	Stats     RideStats `json:"stats"`
	Fuel      FuelState `json:"fuel"`
	FixCount  int       `json:"fixCount"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// =================== REQUEST/RESPONSE MODELS ===================

type StartRideRequest struct {
	StartTime *time.Time    `json:"startTime,omitempty"`
	Fuel      *FuelSettings `json:"fuel,omitempty" validate:"omitempty"`
}

type AddFixRequest struct {
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Speed     *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

func (r AddFixRequest) ToFix() PositionFix {
	return PositionFix{
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Speed:     r.Speed,
		Timestamp: r.Timestamp,
	}
}

type RefuelRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

// FixResult is what a ride returns for every accepted or ignored fix.
type FixResult struct {
	Stats   RideStats `json:"stats"`
	Fuel    FuelState `json:"fuel"`
	Alerts  []Alert   `json:"alerts,omitempty"`
	Ignored bool      `json:"ignored,omitempty"`
}

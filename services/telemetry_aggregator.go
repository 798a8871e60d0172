package services

import (
	"math"
	"sync/atomic"
	"time"

	"riderx/models"
	"riderx/utils"
)

// TelemetryAggregator derives ride statistics from the fixes of one ride.
//
// It has a single writer: the location source feeds AddFix sequentially.
// Overlapping calls are detected with an atomic in-flight flag and rejected
// with models.ErrConcurrentFix instead of being serialized by a lock.
type TelemetryAggregator struct {
	trace     models.RouteTrace
	startTime time.Time
	stats     models.RideStats
	fuel      models.FuelSettings

	started  atomic.Bool
	closed   atomic.Bool
	inFlight atomic.Bool
}

func NewTelemetryAggregator() *TelemetryAggregator {
	return &TelemetryAggregator{}
}

// Start resets the trace and statistics. It must be called exactly once,
// before the first AddFix.
func (a *TelemetryAggregator) Start(startTime time.Time, fuel models.FuelSettings) error {
	if !a.started.CompareAndSwap(false, true) {
		return models.ErrSessionAlreadyStarted
	}
	a.trace = make(models.RouteTrace, 0, 64)
	a.startTime = startTime
	a.stats = models.RideStats{}
	a.fuel = fuel
	return nil
}

// AddFix records a fix and returns the recomputed statistics. A fix whose
// timestamp is not strictly after the last recorded one is ignored and the
// previous statistics are returned with a nil error.
func (a *TelemetryAggregator) AddFix(fix models.PositionFix) (models.RideStats, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return models.RideStats{}, models.ErrConcurrentFix
	}
	defer a.inFlight.Store(false)

	if a.closed.Load() {
		return a.stats, models.ErrSessionClosed
	}
	if !a.started.Load() {
		return a.stats, models.ErrSessionNotStarted
	}
	if !utils.IsValidCoordinate(fix.Latitude, fix.Longitude) || fix.Timestamp.IsZero() {
		return a.stats, models.ErrInvalidFix
	}
	if fix.Speed != nil && (math.IsNaN(*fix.Speed) || *fix.Speed < 0) {
		return a.stats, models.ErrInvalidFix
	}

	n := len(a.trace)
	if n > 0 && !fix.Timestamp.After(a.trace[n-1].Timestamp) {
		return a.stats, nil
	}

	a.trace = append(a.trace, fix)

	distance := utils.TraceDistanceKm(a.trace)
	duration := fix.Timestamp.Sub(a.startTime).Seconds()
	if duration < 0 {
		duration = 0
	}

	current := a.instantaneousSpeed(fix)

	a.stats = models.RideStats{
		DistanceKm:      distance,
		DurationSec:     duration,
		AverageSpeedKmh: utils.SpeedKmh(distance, duration),
		MaxSpeedKmh:     math.Max(a.stats.MaxSpeedKmh, current),
		CurrentSpeedKmh: current,
	}

	return a.stats, nil
}

// instantaneousSpeed prefers the device reported speed and falls back to the
// speed over the last segment of the trace.
func (a *TelemetryAggregator) instantaneousSpeed(fix models.PositionFix) float64 {
	if fix.Speed != nil {
		return utils.MetersPerSecondToKmh(*fix.Speed)
	}

	n := len(a.trace)
	if n < 2 {
		return 0
	}
	prev := a.trace[n-2]
	return utils.SpeedKmh(utils.DistanceKm(prev, fix), fix.Timestamp.Sub(prev.Timestamp).Seconds())
}

// Stats returns the latest statistics snapshot.
func (a *TelemetryAggregator) Stats() models.RideStats {
	return a.stats
}

// FixCount is the number of fixes accepted so far.
func (a *TelemetryAggregator) FixCount() int {
	return len(a.trace)
}

// LastFix returns the most recent accepted fix.
func (a *TelemetryAggregator) LastFix() (models.PositionFix, bool) {
	if len(a.trace) == 0 {
		return models.PositionFix{}, false
	}
	return a.trace[len(a.trace)-1], true
}

// CurrentFuel derives the fuel state from the distance covered so far.
func (a *TelemetryAggregator) CurrentFuel() models.FuelState {
	used := 0.0
	if a.fuel.FuelEfficiency > 0 {
		used = a.stats.DistanceKm / a.fuel.FuelEfficiency
	}
	return models.FuelState{
		FuelSettings: a.fuel,
		FuelUsed:     used,
		Remaining:    a.fuel.CurrentFuel - used,
	}
}

// Refuel adds fuel to the tank. The tank never holds more than its capacity.
func (a *TelemetryAggregator) Refuel(amount float64) (models.FuelState, error) {
	if a.closed.Load() {
		return a.CurrentFuel(), models.ErrSessionClosed
	}
	if !a.started.Load() {
		return a.CurrentFuel(), models.ErrSessionNotStarted
	}
	if amount <= 0 || math.IsNaN(amount) {
		return a.CurrentFuel(), models.ErrInvalidRefuel
	}

	state := a.CurrentFuel()
	remaining := math.Min(math.Max(state.Remaining, 0)+amount, a.fuel.TankCapacity)
	a.fuel.CurrentFuel = remaining + state.FuelUsed

	return a.CurrentFuel(), nil
}

// Trace returns a copy of the recorded fixes.
func (a *TelemetryAggregator) Trace() models.RouteTrace {
	return a.trace.Clone()
}

// Stop freezes the aggregator and returns the final snapshot. Later AddFix
// calls fail with models.ErrSessionClosed.
func (a *TelemetryAggregator) Stop() (models.RideStats, models.RouteTrace) {
	a.closed.Store(true)
	return a.stats, a.trace.Clone()
}

func (a *TelemetryAggregator) Closed() bool {
	return a.closed.Load()
}

package services

import (
	"time"

	"riderx/models"
)

const (
	DefaultOverSpeedLimitKmh = 120.0
	DefaultOverSpeedCooldown = 60 * time.Second
)

type AlertPolicy struct {
	OverSpeedLimitKmh float64
	OverSpeedCooldown time.Duration
}

func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{
		OverSpeedLimitKmh: DefaultOverSpeedLimitKmh,
		OverSpeedCooldown: DefaultOverSpeedCooldown,
	}
}

// ThresholdAlertEvaluator turns telemetry into alerts. It keeps no state of
// its own; the caller carries models.AlertState from one call to the next.
//
// Low fuel is edge triggered: it fires once when remaining fuel reaches the
// threshold and re-arms only after remaining rises above it again.
// Overspeed is rate limited: sustained overspeed re-alerts once per cooldown.
type ThresholdAlertEvaluator struct {
	policy AlertPolicy
}

func NewThresholdAlertEvaluator(policy AlertPolicy) ThresholdAlertEvaluator {
	if policy.OverSpeedLimitKmh <= 0 {
		policy.OverSpeedLimitKmh = DefaultOverSpeedLimitKmh
	}
	if policy.OverSpeedCooldown < 0 {
		policy.OverSpeedCooldown = DefaultOverSpeedCooldown
	}
	return ThresholdAlertEvaluator{policy: policy}
}

func (e ThresholdAlertEvaluator) Policy() AlertPolicy {
	return e.policy
}

// Evaluate returns the alerts raised at time at, if any, and the new state.
func (e ThresholdAlertEvaluator) Evaluate(fuel models.FuelState, stats models.RideStats, at time.Time, prior models.AlertState) ([]models.Alert, models.AlertState) {
	var alerts []models.Alert
	state := prior

	switch {
	case fuel.Remaining <= fuel.LowFuelThreshold && !state.LowFuelActive:
		state.LowFuelActive = true
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertKindLowFuel,
			Value:     fuel.Remaining,
			Threshold: fuel.LowFuelThreshold,
			FiredAt:   at,
		})
	case fuel.Remaining > fuel.LowFuelThreshold:
		state.LowFuelActive = false
	}

	if stats.CurrentSpeedKmh > e.policy.OverSpeedLimitKmh && e.overSpeedCooledDown(state, at) {
		state.LastOverSpeedAt = at
		alerts = append(alerts, models.Alert{
			Kind:      models.AlertKindOverSpeed,
			Value:     stats.CurrentSpeedKmh,
			Threshold: e.policy.OverSpeedLimitKmh,
			FiredAt:   at,
		})
	}

	return alerts, state
}

func (e ThresholdAlertEvaluator) overSpeedCooledDown(state models.AlertState, at time.Time) bool {
	if state.LastOverSpeedAt.IsZero() {
		return true
	}
	return at.Sub(state.LastOverSpeedAt) >= e.policy.OverSpeedCooldown
}

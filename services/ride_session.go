package services

import (
	"sync"
	"sync/atomic"
	"time"

	"riderx/models"

	"github.com/sirupsen/logrus"
)

// RideSession owns the telemetry and alert state of one tracked ride.
//
// Fixes are expected from a single producer. A fix submitted while another
// is being processed is rejected with models.ErrConcurrentFix rather than
// queued behind it. Readers and refuels only delay a fix, never reject it.
type RideSession struct {
	id      string
	riderID string

	// set while a fix is in flight
	fixing     atomic.Bool
	mu         sync.RWMutex
	aggregator *TelemetryAggregator
	evaluator  ThresholdAlertEvaluator
	alertState models.AlertState
	startTime  time.Time
	updatedAt  time.Time
	// wall clock time of the last accepted fix or refuel
	lastActivity time.Time

	subsMu sync.Mutex
	subs   map[int]chan models.Alert
	nextID int
	closed bool
}

func NewRideSession(id, riderID string, policy AlertPolicy) *RideSession {
	return &RideSession{
		id:         id,
		riderID:    riderID,
		aggregator: NewTelemetryAggregator(),
		evaluator:  NewThresholdAlertEvaluator(policy),
		subs:       make(map[int]chan models.Alert),
	}
}

func (s *RideSession) ID() string      { return s.id }
func (s *RideSession) RiderID() string { return s.riderID }

func (s *RideSession) Start(startTime time.Time, fuel models.FuelSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.aggregator.Start(startTime, fuel); err != nil {
		return err
	}
	s.startTime = startTime
	s.updatedAt = startTime
	s.lastActivity = time.Now()
	return nil
}

// AddFix feeds one fix through the aggregator and the alert evaluator.
// Out of order fixes come back with Ignored set and raise no alerts.
func (s *RideSession) AddFix(fix models.PositionFix) (models.FixResult, error) {
	if !s.fixing.CompareAndSwap(false, true) {
		return models.FixResult{}, models.ErrConcurrentFix
	}
	defer s.fixing.Store(false)

	s.mu.Lock()

	before := s.aggregator.FixCount()
	stats, err := s.aggregator.AddFix(fix)
	if err != nil {
		s.mu.Unlock()
		return models.FixResult{}, err
	}

	result := models.FixResult{
		Stats: stats,
		Fuel:  s.aggregator.CurrentFuel(),
	}
	if s.aggregator.FixCount() == before {
		result.Ignored = true
		s.mu.Unlock()
		return result, nil
	}

	s.updatedAt = fix.Timestamp
	s.lastActivity = time.Now()
	result.Alerts, s.alertState = s.evaluator.Evaluate(result.Fuel, stats, fix.Timestamp, s.alertState)
	s.mu.Unlock()

	s.broadcast(result.Alerts)
	return result, nil
}

// Refuel tops up the tank and re-evaluates fuel so a cleared low fuel
// condition re-arms its alert.
func (s *RideSession) Refuel(amount float64, at time.Time) (models.FuelState, []models.Alert, error) {
	s.mu.Lock()
	fuel, err := s.aggregator.Refuel(amount)
	if err != nil {
		s.mu.Unlock()
		return fuel, nil, err
	}

	s.lastActivity = time.Now()
	stats := s.aggregator.Stats()
	// Speed alerts belong to fixes, not to refuelling.
	stats.CurrentSpeedKmh = 0

	var alerts []models.Alert
	alerts, s.alertState = s.evaluator.Evaluate(fuel, stats, at, s.alertState)
	s.mu.Unlock()

	s.broadcast(alerts)
	return fuel, alerts, nil
}

func (s *RideSession) Snapshot() models.RideSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.RideSnapshot{
		RideID:    s.id,
		RiderID:   s.riderID,
		Stats:     s.aggregator.Stats(),
		Fuel:      s.aggregator.CurrentFuel(),
		FixCount:  s.aggregator.FixCount(),
		UpdatedAt: s.updatedAt,
	}
}

func (s *RideSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *RideSession) Stats() models.RideStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator.Stats()
}

func (s *RideSession) LastFix() (models.PositionFix, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregator.LastFix()
}

// Stop ends the ride, closes every subscription and returns the completed
// ride record.
func (s *RideSession) Stop(endedAt time.Time) (models.RideRecord, error) {
	s.mu.Lock()
	if s.aggregator.Closed() {
		s.mu.Unlock()
		return models.RideRecord{}, models.ErrSessionClosed
	}
	fuel := s.aggregator.CurrentFuel()
	stats, route := s.aggregator.Stop()
	s.mu.Unlock()

	s.closeSubscribers()

	record := models.RideRecord{
		ID:        s.id,
		RiderID:   s.riderID,
		Date:      s.startTime,
		EndedAt:   endedAt,
		Stats:     stats,
		FuelUsed:  fuel.FuelUsed,
		Route:     route,
		CreatedAt: time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"rideId":   s.id,
		"riderId":  s.riderID,
		"distance": stats.DistanceKm,
		"fixes":    len(route),
	}).Info("Ride stopped")

	return record, nil
}

// Subscribe returns a stream of alerts for this ride and a function that
// ends the subscription. Slow subscribers miss alerts instead of blocking
// the fix path. The channel is closed when the ride stops.
func (s *RideSession) Subscribe(buffer int) (<-chan models.Alert, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan models.Alert, buffer)

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

func (s *RideSession) broadcast(alerts []models.Alert) {
	if len(alerts) == 0 {
		return
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	for _, alert := range alerts {
		for _, ch := range s.subs {
			select {
			case ch <- alert:
			default:
				logrus.WithField("rideId", s.id).Warnf("Dropping %s alert for slow subscriber", alert.Kind)
			}
		}
	}
}

func (s *RideSession) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	s.closed = true
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

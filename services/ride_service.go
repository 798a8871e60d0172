package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"riderx/models"
	"riderx/repositories"
	"riderx/utils"

	"github.com/sirupsen/logrus"
)

type FuelSettingsStore interface {
	Get(ctx context.Context, riderID string) (models.FuelSettings, error)
	Save(ctx context.Context, riderID string, settings models.FuelSettings) error
}

type SnapshotCache interface {
	Put(ctx context.Context, snapshot models.RideSnapshot) error
	Get(ctx context.Context, rideID string) (models.RideSnapshot, bool, error)
	Delete(ctx context.Context, rideID string) error
}

// RideService keeps the active ride sessions of every rider, one at a time
// per rider, and moves finished rides into the history.
type RideService struct {
	rideRepo     repositories.RideStore
	fuelSettings FuelSettingsStore
	snapshots    SnapshotCache
	publisher    EventPublisher
	policy       AlertPolicy
	validator    *utils.ValidationService

	mu       sync.RWMutex
	sessions map[string]*RideSession
	byRider  map[string]string
	// stopped rides whose record has not reached the store yet
	unsaved map[string]models.RideRecord
}

func NewRideService(
	rideRepo repositories.RideStore,
	fuelSettings FuelSettingsStore,
	snapshots SnapshotCache,
	publisher EventPublisher,
	policy AlertPolicy,
) *RideService {
	return &RideService{
		rideRepo:     rideRepo,
		fuelSettings: fuelSettings,
		snapshots:    snapshots,
		publisher:    publisher,
		policy:       policy,
		validator:    utils.NewValidationService(),
		sessions:     make(map[string]*RideSession),
		byRider:      make(map[string]string),
		unsaved:      make(map[string]models.RideRecord),
	}
}

func (rs *RideService) StartRide(ctx context.Context, riderID string, req models.StartRideRequest) (models.RideSnapshot, error) {
	fuel, err := rs.startingFuel(ctx, riderID, req.Fuel)
	if err != nil {
		return models.RideSnapshot{}, err
	}

	startTime := time.Now()
	if req.StartTime != nil && !req.StartTime.IsZero() {
		startTime = *req.StartTime
	}

	rs.mu.Lock()
	if activeID, ok := rs.byRider[riderID]; ok {
		rs.mu.Unlock()
		return models.RideSnapshot{}, utils.NewConflictError("rider already has an active ride "+activeID, models.ErrSessionAlreadyStarted)
	}

	session := NewRideSession(utils.GenerateUUID(), riderID, rs.policy)
	if err := session.Start(startTime, fuel); err != nil {
		rs.mu.Unlock()
		return models.RideSnapshot{}, err
	}
	rs.sessions[session.ID()] = session
	rs.byRider[riderID] = session.ID()
	rs.mu.Unlock()

	snapshot := session.Snapshot()
	rs.cacheSnapshot(ctx, snapshot)

	logrus.WithFields(logrus.Fields{
		"rideId":  session.ID(),
		"riderId": riderID,
	}).Info("Ride started")

	return snapshot, nil
}

func (rs *RideService) startingFuel(ctx context.Context, riderID string, override *models.FuelSettings) (models.FuelSettings, error) {
	if override != nil {
		if errs := rs.validator.ValidateStruct(override); len(errs) > 0 {
			return models.FuelSettings{}, utils.NewBadRequestError("invalid fuel settings", errors.New(errs[0].Message))
		}
		return *override, nil
	}
	if rs.fuelSettings == nil {
		return models.DefaultFuelSettings(), nil
	}
	return rs.fuelSettings.Get(ctx, riderID)
}

// AddFix records a fix on the rider's ride and publishes any alerts it raised.
func (rs *RideService) AddFix(ctx context.Context, riderID, rideID string, fix models.PositionFix) (models.FixResult, error) {
	session, err := rs.session(riderID, rideID)
	if err != nil {
		return models.FixResult{}, err
	}

	result, err := session.AddFix(fix)
	if err != nil {
		return result, err
	}
	if result.Ignored {
		return result, nil
	}

	rs.cacheSnapshot(ctx, session.Snapshot())

	for _, alert := range result.Alerts {
		logrus.WithFields(logrus.Fields{
			"rideId":    rideID,
			"kind":      alert.Kind,
			"value":     alert.Value,
			"threshold": alert.Threshold,
		}).Info("Ride alert raised")

		if rs.publisher != nil {
			if err := rs.publisher.PublishRideAlert(ctx, riderID, rideID, alert); err != nil {
				logrus.Warnf("Failed to publish ride alert: %v", err)
			}
		}
	}

	return result, nil
}

func (rs *RideService) Refuel(ctx context.Context, riderID, rideID string, amount float64) (models.FuelState, error) {
	session, err := rs.session(riderID, rideID)
	if err != nil {
		return models.FuelState{}, err
	}

	fuel, alerts, err := session.Refuel(amount, time.Now())
	if err != nil {
		return fuel, err
	}

	rs.cacheSnapshot(ctx, session.Snapshot())
	if rs.publisher != nil {
		for _, alert := range alerts {
			if err := rs.publisher.PublishRideAlert(ctx, riderID, rideID, alert); err != nil {
				logrus.Warnf("Failed to publish ride alert: %v", err)
			}
		}
	}
	return fuel, nil
}

// GetRide returns the live view of an active ride, falling back to the
// shared snapshot cache when the ride lives on another instance.
func (rs *RideService) GetRide(ctx context.Context, riderID, rideID string) (models.RideSnapshot, error) {
	session, err := rs.session(riderID, rideID)
	if err == nil {
		return session.Snapshot(), nil
	}
	if rs.snapshots == nil {
		return models.RideSnapshot{}, err
	}

	snapshot, ok, cacheErr := rs.snapshots.Get(ctx, rideID)
	if cacheErr != nil {
		logrus.Warnf("Failed to read ride snapshot %s: %v", rideID, cacheErr)
	}
	if !ok || snapshot.RiderID != riderID {
		return models.RideSnapshot{}, err
	}
	return snapshot, nil
}

// ActiveRide returns the rider's active ride id and current stats.
func (rs *RideService) ActiveRide(riderID string) (string, models.RideStats, bool) {
	rs.mu.RLock()
	rideID, ok := rs.byRider[riderID]
	session := rs.sessions[rideID]
	rs.mu.RUnlock()

	if !ok || session == nil {
		return "", models.RideStats{}, false
	}
	return rideID, session.Stats(), true
}

// ActiveRideRef names one active ride.
type ActiveRideRef struct {
	RiderID string
	RideID  string
}

// StaleRides lists active rides with no fix or refuel for at least idle.
func (rs *RideService) StaleRides(idle time.Duration, now time.Time) []ActiveRideRef {
	rs.mu.RLock()
	sessions := make([]*RideSession, 0, len(rs.sessions))
	for _, s := range rs.sessions {
		sessions = append(sessions, s)
	}
	rs.mu.RUnlock()

	var stale []ActiveRideRef
	for _, s := range sessions {
		if now.Sub(s.LastActivity()) >= idle {
			stale = append(stale, ActiveRideRef{RiderID: s.RiderID(), RideID: s.ID()})
		}
	}
	return stale
}

// SubscribeAlerts streams alerts of an active ride.
func (rs *RideService) SubscribeAlerts(riderID, rideID string, buffer int) (<-chan models.Alert, func(), error) {
	session, err := rs.session(riderID, rideID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe(buffer)
	return ch, cancel, nil
}

// StopRide ends the ride, saves it to the history and carries the fuel left
// in the tank over to the rider's settings. When the save fails the ride
// stays registered, and calling StopRide again retries the save.
func (rs *RideService) StopRide(ctx context.Context, riderID, rideID string) (models.RideRecord, error) {
	session, err := rs.session(riderID, rideID)
	if err != nil {
		return models.RideRecord{}, err
	}

	fuel := session.Snapshot().Fuel
	record, err := rs.stopSession(session)
	if err != nil {
		return models.RideRecord{}, err
	}

	if err := rs.rideRepo.Save(ctx, record); err != nil {
		rs.mu.Lock()
		rs.unsaved[rideID] = record
		rs.mu.Unlock()
		return record, utils.NewDatabaseError("save ride", err)
	}

	rs.mu.Lock()
	delete(rs.sessions, rideID)
	delete(rs.unsaved, rideID)
	if rs.byRider[riderID] == rideID {
		delete(rs.byRider, riderID)
	}
	rs.mu.Unlock()

	if rs.snapshots != nil {
		if err := rs.snapshots.Delete(ctx, rideID); err != nil {
			logrus.Warnf("Failed to drop ride snapshot %s: %v", rideID, err)
		}
	}

	if rs.fuelSettings != nil {
		settings := fuel.FuelSettings
		settings.CurrentFuel = math.Max(fuel.Remaining, 0)
		if err := rs.fuelSettings.Save(ctx, riderID, settings); err != nil {
			logrus.Warnf("Failed to carry over fuel level for %s: %v", riderID, err)
		}
	}

	return record, nil
}

// stopSession returns the record of a ride stopped earlier but not saved,
// or stops the session now.
func (rs *RideService) stopSession(session *RideSession) (models.RideRecord, error) {
	rs.mu.RLock()
	record, ok := rs.unsaved[session.ID()]
	rs.mu.RUnlock()
	if ok {
		return record, nil
	}
	return session.Stop(time.Now())
}

func (rs *RideService) History(ctx context.Context, riderID string, limit int) ([]models.RideRecord, error) {
	return rs.rideRepo.ListByRider(ctx, riderID, limit)
}

func (rs *RideService) GetHistoryRide(ctx context.Context, riderID, rideID string) (models.RideRecord, error) {
	return rs.rideRepo.Get(ctx, riderID, rideID)
}

func (rs *RideService) DeleteHistoryRide(ctx context.Context, riderID, rideID string) error {
	return rs.rideRepo.Delete(ctx, riderID, rideID)
}

func (rs *RideService) GetFuelSettings(ctx context.Context, riderID string) (models.FuelSettings, error) {
	if rs.fuelSettings == nil {
		return models.DefaultFuelSettings(), nil
	}
	return rs.fuelSettings.Get(ctx, riderID)
}

func (rs *RideService) UpdateFuelSettings(ctx context.Context, riderID string, settings models.FuelSettings) (models.FuelSettings, error) {
	if errs := rs.validator.ValidateStruct(settings); len(errs) > 0 {
		return models.FuelSettings{}, utils.NewBadRequestError("invalid fuel settings", errors.New(errs[0].Message))
	}
	if rs.fuelSettings == nil {
		return models.FuelSettings{}, utils.NewUnavailableError("fuel settings storage not configured")
	}
	if err := rs.fuelSettings.Save(ctx, riderID, settings); err != nil {
		return models.FuelSettings{}, utils.NewDatabaseError("save fuel settings", err)
	}
	return settings, nil
}

func (rs *RideService) session(riderID, rideID string) (*RideSession, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	session, ok := rs.sessions[rideID]
	if !ok || session.RiderID() != riderID {
		return nil, models.ErrRideNotFound
	}
	return session, nil
}

func (rs *RideService) cacheSnapshot(ctx context.Context, snapshot models.RideSnapshot) {
	if rs.snapshots == nil {
		return
	}
	if err := rs.snapshots.Put(ctx, snapshot); err != nil {
		logrus.Warnf("Failed to cache ride snapshot %s: %v", snapshot.RideID, err)
	}
}

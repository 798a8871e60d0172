package workers

import (
	"context"
	"sync"
	"time"

	"riderx/models"
	"riderx/services"

	"github.com/sirupsen/logrus"
)

// RideCloser is the part of the ride service the cleanup worker drives.
type RideCloser interface {
	StaleRides(idle time.Duration, now time.Time) []services.ActiveRideRef
	StopRide(ctx context.Context, riderID, rideID string) (models.RideRecord, error)
}

// CleanupWorker saves and closes rides the device stopped reporting on, so
// they reach the history and free the rider for a new ride.
type CleanupWorker struct {
	rides  RideCloser
	config CleanupWorkerConfig

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      CleanupWorkerStats
	statsMutex sync.RWMutex
}

type CleanupWorkerConfig struct {
	Interval    time.Duration `json:"interval"`
	IdleTimeout time.Duration `json:"idleTimeout"`
	StopTimeout time.Duration `json:"stopTimeout"`
}

type CleanupWorkerStats struct {
	Runs          int64     `json:"runs"`
	RidesClosed   int64     `json:"ridesClosed"`
	RidesFailed   int64     `json:"ridesFailed"`
	LastCleanupAt time.Time `json:"lastCleanupAt"`
	StartTime     time.Time `json:"startTime"`
}

func DefaultCleanupWorkerConfig() CleanupWorkerConfig {
	return CleanupWorkerConfig{
		Interval:    10 * time.Minute,
		IdleTimeout: 2 * time.Hour,
		StopTimeout: 30 * time.Second,
	}
}

func NewCleanupWorker(rides RideCloser, config CleanupWorkerConfig) *CleanupWorker {
	defaults := DefaultCleanupWorkerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}

	return &CleanupWorker{
		rides:  rides,
		config: config,
		stats: CleanupWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (cw *CleanupWorker) Start() {
	cw.mutex.Lock()
	defer cw.mutex.Unlock()

	if cw.isRunning {
		logrus.Warn("Cleanup worker is already running")
		return
	}

	cw.ctx, cw.cancel = context.WithCancel(context.Background())
	cw.isRunning = true

	cw.wg.Add(1)
	go cw.loop()

	logrus.Infof("Cleanup worker started (idle timeout %s)", cw.config.IdleTimeout)
}

func (cw *CleanupWorker) Stop() {
	cw.mutex.Lock()
	if !cw.isRunning {
		cw.mutex.Unlock()
		return
	}
	cw.isRunning = false
	cw.cancel()
	cw.mutex.Unlock()

	cw.wg.Wait()
	logrus.Info("Cleanup worker stopped")
}

func (cw *CleanupWorker) loop() {
	defer cw.wg.Done()

	ticker := time.NewTicker(cw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-cw.ctx.Done():
			return
		case <-ticker.C:
			cw.RunOnce(cw.ctx, time.Now())
		}
	}
}

// RunOnce closes every ride idle at now and returns how many were saved.
func (cw *CleanupWorker) RunOnce(ctx context.Context, now time.Time) int {
	closed, failed := 0, 0
	for _, ref := range cw.rides.StaleRides(cw.config.IdleTimeout, now) {
		if ctx.Err() != nil {
			break
		}

		stopCtx, cancel := context.WithTimeout(ctx, cw.config.StopTimeout)
		record, err := cw.rides.StopRide(stopCtx, ref.RiderID, ref.RideID)
		cancel()

		if err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"rideId":  ref.RideID,
				"riderId": ref.RiderID,
			}).Warnf("Failed to close idle ride: %v", err)
			continue
		}
		closed++
		logrus.WithFields(logrus.Fields{
			"rideId":     record.ID,
			"riderId":    record.RiderID,
			"distanceKm": record.Stats.DistanceKm,
		}).Info("Closed idle ride")
	}

	cw.statsMutex.Lock()
	cw.stats.Runs++
	cw.stats.RidesClosed += int64(closed)
	cw.stats.RidesFailed += int64(failed)
	cw.stats.LastCleanupAt = now
	cw.statsMutex.Unlock()

	return closed
}

func (cw *CleanupWorker) GetStats() CleanupWorkerStats {
	cw.statsMutex.RLock()
	defer cw.statsMutex.RUnlock()
	return cw.stats
}

package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"riderx/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	fuelSettingsPrefix = "fuel_settings:"
	rideSnapshotPrefix = "ride_snapshot:"
	DefaultSnapshotTTL = 12 * time.Hour
)

// FuelSettingsRepository stores each rider's fuel parameters in Redis.
// Riders who never saved settings get models.DefaultFuelSettings.
type FuelSettingsRepository struct {
	redis *redis.Client
}

func NewFuelSettingsRepository(client *redis.Client) *FuelSettingsRepository {
	return &FuelSettingsRepository{redis: client}
}

func (r *FuelSettingsRepository) Get(ctx context.Context, riderID string) (models.FuelSettings, error) {
	raw, err := r.redis.Get(ctx, fuelSettingsPrefix+riderID).Bytes()
	if err == redis.Nil {
		return models.DefaultFuelSettings(), nil
	}
	if err != nil {
		logrus.Errorf("Failed to load fuel settings for %s: %v", riderID, err)
		return models.FuelSettings{}, err
	}

	var settings models.FuelSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		logrus.Warnf("Discarding corrupt fuel settings for %s: %v", riderID, err)
		return models.DefaultFuelSettings(), nil
	}
	return settings, nil
}

func (r *FuelSettingsRepository) Save(ctx context.Context, riderID string, settings models.FuelSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode fuel settings: %w", err)
	}
	return r.redis.Set(ctx, fuelSettingsPrefix+riderID, raw, 0).Err()
}

// RideSnapshotCache keeps the latest live view of each active ride so other
// API instances and reconnecting clients can read it without the session.
type RideSnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRideSnapshotCache(client *redis.Client, ttl time.Duration) *RideSnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RideSnapshotCache{redis: client, ttl: ttl}
}

func (c *RideSnapshotCache) Put(ctx context.Context, snapshot models.RideSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode ride snapshot: %w", err)
	}
	return c.redis.Set(ctx, rideSnapshotPrefix+snapshot.RideID, raw, c.ttl).Err()
}

func (c *RideSnapshotCache) Get(ctx context.Context, rideID string) (models.RideSnapshot, bool, error) {
	raw, err := c.redis.Get(ctx, rideSnapshotPrefix+rideID).Bytes()
	if err == redis.Nil {
		return models.RideSnapshot{}, false, nil
	}
	if err != nil {
		return models.RideSnapshot{}, false, err
	}

	var snapshot models.RideSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return models.RideSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func (c *RideSnapshotCache) Delete(ctx context.Context, rideID string) error {
	return c.redis.Del(ctx, rideSnapshotPrefix+rideID).Err()
}

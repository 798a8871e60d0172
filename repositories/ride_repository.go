package repositories

import (
	"context"
	"sort"
	"sync"

	"riderx/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RideStore is the history of completed rides. ListByRider leaves the route
// out of its results; Get returns the full record.
type RideStore interface {
	Save(ctx context.Context, ride models.RideRecord) error
	Get(ctx context.Context, riderID, rideID string) (models.RideRecord, error)
	ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRecord, error)
	Delete(ctx context.Context, riderID, rideID string) error
}

type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[string]models.RideRecord
}

func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{rides: make(map[string]models.RideRecord)}
}

func (s *MemoryRideStore) Save(ctx context.Context, ride models.RideRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride.Route = ride.Route.Clone()
	s.rides[ride.ID] = ride
	return nil
}

func (s *MemoryRideStore) Get(ctx context.Context, riderID, rideID string) (models.RideRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[rideID]
	if !ok || ride.RiderID != riderID {
		return models.RideRecord{}, models.ErrRideNotFound
	}
	ride.Route = ride.Route.Clone()
	return ride, nil
}

func (s *MemoryRideStore) ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.RideRecord{}
	for _, ride := range s.rides {
		if ride.RiderID == riderID {
			ride.Route = nil
			out = append(out, ride)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRideStore) Delete(ctx context.Context, riderID, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok || ride.RiderID != riderID {
		return models.ErrRideNotFound
	}
	delete(s.rides, rideID)
	return nil
}

type MongoRideRepository struct {
	collection *mongo.Collection
}

func NewMongoRideRepository(database *mongo.Database) *MongoRideRepository {
	return &MongoRideRepository{
		collection: database.Collection("rides"),
	}
}

func (r *MongoRideRepository) Save(ctx context.Context, ride models.RideRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": ride.ID}, ride, opts)
	if err != nil {
		logrus.Errorf("Failed to save ride %s: %v", ride.ID, err)
		return err
	}
	return nil
}

func (r *MongoRideRepository) Get(ctx context.Context, riderID, rideID string) (models.RideRecord, error) {
	var ride models.RideRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": rideID, "riderId": riderID}).Decode(&ride)
	if err == mongo.ErrNoDocuments {
		return models.RideRecord{}, models.ErrRideNotFound
	}
	if err != nil {
		logrus.Errorf("Failed to get ride %s: %v", rideID, err)
		return models.RideRecord{}, err
	}
	return ride, nil
}

// ListByRider returns rides newest first.
func (r *MongoRideRepository) ListByRider(ctx context.Context, riderID string, limit int) ([]models.RideRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetProjection(bson.M{"route": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"riderId": riderID}, opts)
	if err != nil {
		logrus.Errorf("Failed to list rides: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	rides := []models.RideRecord{}
	if err := cursor.All(ctx, &rides); err != nil {
		return nil, err
	}
	return rides, nil
}

func (r *MongoRideRepository) Delete(ctx context.Context, riderID, rideID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": rideID, "riderId": riderID})
	if err != nil {
		logrus.Errorf("Failed to delete ride %s: %v", rideID, err)
		return err
	}
	if result.DeletedCount == 0 {
		return models.ErrRideNotFound
	}
	return nil
}

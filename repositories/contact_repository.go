package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"riderx/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ContactStore holds each rider's emergency contacts.
type ContactStore interface {
	ListByRider(ctx context.Context, riderID string) ([]models.EmergencyContact, error)
	Get(ctx context.Context, riderID, contactID string) (models.EmergencyContact, error)
	Create(ctx context.Context, contact models.EmergencyContact) error
	Update(ctx context.Context, contact models.EmergencyContact) error
	Delete(ctx context.Context, riderID, contactID string) error
}

// sortContacts puts primary contacts first, then oldest first.
func sortContacts(contacts []models.EmergencyContact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].IsPrimary != contacts[j].IsPrimary {
			return contacts[i].IsPrimary
		}
		if !contacts[i].CreatedAt.Equal(contacts[j].CreatedAt) {
			return contacts[i].CreatedAt.Before(contacts[j].CreatedAt)
		}
		return contacts[i].ID < contacts[j].ID
	})
}

// =================== IN-MEMORY STORE ===================

type MemoryContactStore struct {
	mu       sync.RWMutex
	contacts map[string]models.EmergencyContact
}

func NewMemoryContactStore() *MemoryContactStore {
	return &MemoryContactStore{contacts: make(map[string]models.EmergencyContact)}
}

func (s *MemoryContactStore) ListByRider(ctx context.Context, riderID string) ([]models.EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.EmergencyContact{}
	for _, c := range s.contacts {
		if c.RiderID == riderID {
			out = append(out, c)
		}
	}
	sortContacts(out)
	return out, nil
}

func (s *MemoryContactStore) Get(ctx context.Context, riderID, contactID string) (models.EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contacts[contactID]
	if !ok || c.RiderID != riderID {
		return models.EmergencyContact{}, models.ErrContactNotFound
	}
	return c, nil
}

func (s *MemoryContactStore) Create(ctx context.Context, contact models.EmergencyContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.contacts[contact.ID]; exists {
		return models.ErrInvalidContact
	}
	s.contacts[contact.ID] = contact
	return nil
}

func (s *MemoryContactStore) Update(ctx context.Context, contact models.EmergencyContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[contact.ID]
	if !ok || existing.RiderID != contact.RiderID {
		return models.ErrContactNotFound
	}
	contact.CreatedAt = existing.CreatedAt
	s.contacts[contact.ID] = contact
	return nil
}

func (s *MemoryContactStore) Delete(ctx context.Context, riderID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.contacts[contactID]
	if !ok || existing.RiderID != riderID {
		return models.ErrContactNotFound
	}
	delete(s.contacts, contactID)
	return nil
}

// =================== MONGODB STORE ===================

type MongoContactRepository struct {
	collection *mongo.Collection
}

func NewMongoContactRepository(database *mongo.Database) *MongoContactRepository {
	return &MongoContactRepository{
		collection: database.Collection("emergency_contacts"),
	}
}

func (r *MongoContactRepository) ListByRider(ctx context.Context, riderID string) ([]models.EmergencyContact, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "isPrimary", Value: -1},
		{Key: "createdAt", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, bson.M{"riderId": riderID}, opts)
	if err != nil {
		logrus.Errorf("Failed to list emergency contacts: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	contacts := []models.EmergencyContact{}
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (r *MongoContactRepository) Get(ctx context.Context, riderID, contactID string) (models.EmergencyContact, error) {
	var contact models.EmergencyContact
	err := r.collection.FindOne(ctx, bson.M{"_id": contactID, "riderId": riderID}).Decode(&contact)
	if err == mongo.ErrNoDocuments {
		return models.EmergencyContact{}, models.ErrContactNotFound
	}
	if err != nil {
		logrus.Errorf("Failed to get emergency contact: %v", err)
		return models.EmergencyContact{}, err
	}
	return contact, nil
}

func (r *MongoContactRepository) Create(ctx context.Context, contact models.EmergencyContact) error {
	_, err := r.collection.InsertOne(ctx, contact)
	if mongo.IsDuplicateKeyError(err) {
		return models.ErrInvalidContact
	}
	if err != nil {
		logrus.Errorf("Failed to create emergency contact: %v", err)
		return err
	}
	return nil
}

func (r *MongoContactRepository) Update(ctx context.Context, contact models.EmergencyContact) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": contact.ID, "riderId": contact.RiderID},
		bson.M{"$set": bson.M{
			"name":         contact.Name,
			"phone":        contact.Phone,
			"email":        contact.Email,
			"relationship": contact.Relationship,
			"isPrimary":    contact.IsPrimary,
			"updatedAt":    time.Now(),
		}},
	)
	if err != nil {
		logrus.Errorf("Failed to update emergency contact: %v", err)
		return err
	}
	if result.MatchedCount == 0 {
		return models.ErrContactNotFound
	}
	return nil
}

func (r *MongoContactRepository) Delete(ctx context.Context, riderID, contactID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": contactID, "riderId": riderID})
	if err != nil {
		logrus.Errorf("Failed to delete emergency contact: %v", err)
		return err
	}
	if result.DeletedCount == 0 {
		return models.ErrContactNotFound
	}
	return nil
}

package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"riderx/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func namespace(mt *mtest.T) string {
	return mt.Coll.Database().Name() + "." + mt.Coll.Name()
}

func TestMongoCrashReportRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save upserts", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
		))

		if err := repo.Save(context.Background(), newReport("r1", "details", "a")); err != nil {
			mt.Fatalf("save error: %v", err)
		}
	})

	mt.Run("save retries a lost upsert race", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}),
		)

		if err := repo.Save(context.Background(), newReport("r1", "details")); err != nil {
			mt.Fatalf("expected merge after duplicate key, got %v", err)
		}
	})

	mt.Run("save rejects invalid reports", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		if err := repo.Save(context.Background(), newReport("", "")); !errors.Is(err, models.ErrInvalidReport) {
			mt.Fatalf("expected ErrInvalidReport, got %v", err)
		}
	})

	mt.Run("mark notified on missing report", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		if err := repo.MarkNotified(context.Background(), "missing", "a"); !errors.Is(err, models.ErrReportNotFound) {
			mt.Fatalf("expected ErrReportNotFound, got %v", err)
		}
	})

	mt.Run("get decodes report", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "r1"},
			{Key: "riderId", Value: "rider-1"},
			{Key: "timestamp", Value: reportTime},
			{Key: "location", Value: bson.D{{Key: "latitude", Value: 37.77}, {Key: "longitude", Value: -122.41}}},
			{Key: "userStatus", Value: "injured"},
			{Key: "details", Value: "first"},
		}))

		report, found, err := repo.Get(context.Background(), "r1")
		if err != nil || !found {
			mt.Fatalf("get error: %v %v", found, err)
		}
		if report.Details != "first" || report.Location.Latitude != 37.77 {
			mt.Fatalf("unexpected report: %+v", report)
		}
		if report.NotifiedContactIDs == nil {
			mt.Fatalf("notified ids should default to an empty list")
		}
	})

	mt.Run("get missing report", func(mt *mtest.T) {
		repo := &MongoCrashReportRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		if _, found, err := repo.Get(context.Background(), "missing"); found || err != nil {
			mt.Fatalf("expected not found without error, got %v %v", found, err)
		}
	})
}

func TestMongoRideRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	date := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	mt.Run("list by rider", func(mt *mtest.T) {
		repo := &MongoRideRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "r2"}, {Key: "riderId", Value: "rider-1"}, {Key: "date", Value: date.Add(time.Hour)}},
			bson.D{{Key: "_id", Value: "r1"}, {Key: "riderId", Value: "rider-1"}, {Key: "date", Value: date}},
		))

		rides, err := repo.ListByRider(context.Background(), "rider-1", 10)
		if err != nil {
			mt.Fatalf("list error: %v", err)
		}
		if len(rides) != 2 || rides[0].ID != "r2" {
			mt.Fatalf("unexpected rides: %v", rides)
		}
	})

	mt.Run("get missing ride", func(mt *mtest.T) {
		repo := &MongoRideRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		if _, err := repo.Get(context.Background(), "rider-1", "missing"); !errors.Is(err, models.ErrRideNotFound) {
			mt.Fatalf("expected ErrRideNotFound, got %v", err)
		}
	})

	mt.Run("delete missing ride", func(mt *mtest.T) {
		repo := &MongoRideRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		if err := repo.Delete(context.Background(), "rider-1", "missing"); !errors.Is(err, models.ErrRideNotFound) {
			mt.Fatalf("expected ErrRideNotFound, got %v", err)
		}
	})

	mt.Run("save", func(mt *mtest.T) {
		repo := &MongoRideRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		if err := repo.Save(context.Background(), models.RideRecord{ID: "r1", RiderID: "rider-1", Date: date}); err != nil {
			mt.Fatalf("save error: %v", err)
		}
	})
}

func TestMongoContactRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("create duplicate", func(mt *mtest.T) {
		repo := &MongoContactRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.Create(context.Background(), models.EmergencyContact{ID: "c1", RiderID: "rider-1"})
		if !errors.Is(err, models.ErrInvalidContact) {
			mt.Fatalf("expected ErrInvalidContact, got %v", err)
		}
	})

	mt.Run("update missing", func(mt *mtest.T) {
		repo := &MongoContactRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.Update(context.Background(), models.EmergencyContact{ID: "c1", RiderID: "rider-1"})
		if !errors.Is(err, models.ErrContactNotFound) {
			mt.Fatalf("expected ErrContactNotFound, got %v", err)
		}
	})

	mt.Run("list", func(mt *mtest.T) {
		repo := &MongoContactRepository{collection: mt.Coll}
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "c1"}, {Key: "riderId", Value: "rider-1"}, {Key: "name", Value: "Alice"}, {Key: "isPrimary", Value: true}},
		))

		contacts, err := repo.ListByRider(context.Background(), "rider-1")
		if err != nil || len(contacts) != 1 || contacts[0].Name != "Alice" {
			mt.Fatalf("unexpected contacts: %v %v", contacts, err)
		}
	})
}

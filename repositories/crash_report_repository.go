package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"riderx/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CrashReportStore keeps incident reports keyed by report ID.
//
// Saving an ID that already exists never overwrites the incident facts of the
// first save; only the notified contact set is merged. Read accessors return
// copies the caller is free to mutate.
type CrashReportStore interface {
	Save(ctx context.Context, report models.CrashReport) error
	MarkNotified(ctx context.Context, reportID, contactID string) error
	Get(ctx context.Context, id string) (models.CrashReport, bool, error)
	List(ctx context.Context) ([]models.CrashReport, error)
	ListByRider(ctx context.Context, riderID string) ([]models.CrashReport, error)
}

// ValidateCrashReport checks the fields every stored report must carry.
func ValidateCrashReport(report models.CrashReport) error {
	switch {
	case report.ID == "":
		return fmt.Errorf("%w: id is required", models.ErrInvalidReport)
	case report.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", models.ErrInvalidReport)
	case report.Location == nil:
		return fmt.Errorf("%w: location is required", models.ErrInvalidReport)
	case !report.UserStatus.Valid():
		return fmt.Errorf("%w: userStatus %q is not valid", models.ErrInvalidReport, report.UserStatus)
	}
	return nil
}

// sortReports orders newest incident first.
func sortReports(reports []models.CrashReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].Timestamp.Equal(reports[j].Timestamp) {
			return reports[i].Timestamp.After(reports[j].Timestamp)
		}
		return reports[i].ID < reports[j].ID
	})
}

// =================== IN-MEMORY STORE ===================

type MemoryCrashReportStore struct {
	mu      sync.RWMutex
	reports map[string]*models.CrashReport
}

func NewMemoryCrashReportStore() *MemoryCrashReportStore {
	return &MemoryCrashReportStore{reports: make(map[string]*models.CrashReport)}
}

func (s *MemoryCrashReportStore) Save(ctx context.Context, report models.CrashReport) error {
	if err := ValidateCrashReport(report); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reports[report.ID]
	if !ok {
		stored := report.Clone()
		stored.NotifiedContactIDs = mergeIDs(nil, report.NotifiedContactIDs)
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = time.Now()
		}
		s.reports[report.ID] = &stored
		return nil
	}

	existing.NotifiedContactIDs = mergeIDs(existing.NotifiedContactIDs, report.NotifiedContactIDs)
	return nil
}

func (s *MemoryCrashReportStore) MarkNotified(ctx context.Context, reportID, contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reports[reportID]
	if !ok {
		return models.ErrReportNotFound
	}
	existing.NotifiedContactIDs = mergeIDs(existing.NotifiedContactIDs, []string{contactID})
	return nil
}

func (s *MemoryCrashReportStore) Get(ctx context.Context, id string) (models.CrashReport, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	existing, ok := s.reports[id]
	if !ok {
		return models.CrashReport{}, false, nil
	}
	return existing.Clone(), true, nil
}

func (s *MemoryCrashReportStore) List(ctx context.Context) ([]models.CrashReport, error) {
	return s.filter(func(models.CrashReport) bool { return true }), nil
}

func (s *MemoryCrashReportStore) ListByRider(ctx context.Context, riderID string) ([]models.CrashReport, error) {
	return s.filter(func(r models.CrashReport) bool { return r.RiderID == riderID }), nil
}

func (s *MemoryCrashReportStore) filter(keep func(models.CrashReport) bool) []models.CrashReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.CrashReport, 0, len(s.reports))
	for _, r := range s.reports {
		if keep(*r) {
			out = append(out, r.Clone())
		}
	}
	sortReports(out)
	return out
}

// mergeIDs appends the ids from add that are not yet in base, keeping order.
func mergeIDs(base, add []string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]bool, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// =================== MONGODB STORE ===================

type MongoCrashReportRepository struct {
	collection *mongo.Collection
}

func NewMongoCrashReportRepository(database *mongo.Database) *MongoCrashReportRepository {
	return &MongoCrashReportRepository{
		collection: database.Collection("crash_reports"),
	}
}

// Save upserts the report. Incident facts are only written on insert and the
// notified set is merged with $addToSet, so concurrent or delayed duplicate
// submissions converge on the first version.
func (r *MongoCrashReportRepository) Save(ctx context.Context, report models.CrashReport) error {
	if err := ValidateCrashReport(report); err != nil {
		return err
	}

	createdAt := report.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	notified := mergeIDs(nil, report.NotifiedContactIDs)

	update := bson.M{
		"$setOnInsert": bson.M{
			"riderId":         report.RiderID,
			"rideId":          report.RideID,
			"timestamp":       report.Timestamp,
			"location":        report.Location,
			"userStatus":      report.UserStatus,
			"details":         report.Details,
			"rideStats":       report.RideStats,
			"notifyRequested": report.NotifyRequested,
			"createdAt":       createdAt,
		},
		"$addToSet": bson.M{
			"notifiedContactIds": bson.M{"$each": notified},
		},
	}
	opts := options.Update().SetUpsert(true)

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": report.ID}, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race; the document exists now, so this is a merge.
		_, err = r.collection.UpdateOne(ctx, bson.M{"_id": report.ID}, update)
	}
	if err != nil {
		logrus.Errorf("Failed to save crash report %s: %v", report.ID, err)
		return err
	}
	return nil
}

func (r *MongoCrashReportRepository) MarkNotified(ctx context.Context, reportID, contactID string) error {
	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": reportID},
		bson.M{"$addToSet": bson.M{"notifiedContactIds": contactID}},
	)
	if err != nil {
		logrus.Errorf("Failed to mark contact %s notified for report %s: %v", contactID, reportID, err)
		return err
	}
	if result.MatchedCount == 0 {
		return models.ErrReportNotFound
	}
	return nil
}

func (r *MongoCrashReportRepository) Get(ctx context.Context, id string) (models.CrashReport, bool, error) {
	var report models.CrashReport
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return models.CrashReport{}, false, nil
	}
	if err != nil {
		logrus.Errorf("Failed to get crash report %s: %v", id, err)
		return models.CrashReport{}, false, err
	}
	if report.NotifiedContactIDs == nil {
		report.NotifiedContactIDs = []string{}
	}
	return report, true, nil
}

func (r *MongoCrashReportRepository) List(ctx context.Context) ([]models.CrashReport, error) {
	return r.find(ctx, bson.M{})
}

func (r *MongoCrashReportRepository) ListByRider(ctx context.Context, riderID string) ([]models.CrashReport, error) {
	return r.find(ctx, bson.M{"riderId": riderID})
}

func (r *MongoCrashReportRepository) find(ctx context.Context, filter bson.M) ([]models.CrashReport, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.Errorf("Failed to list crash reports: %v", err)
		return nil, err
	}
	defer cursor.Close(ctx)

	reports := []models.CrashReport{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	for i := range reports {
		if reports[i].NotifiedContactIDs == nil {
			reports[i].NotifiedContactIDs = []string{}
		}
	}
	return reports, nil
}

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"riderx/models"
	"riderx/repositories"
	"riderx/utils"
)

type memoryFuelStore struct {
	mu       sync.Mutex
	settings map[string]models.FuelSettings
}

func newMemoryFuelStore() *memoryFuelStore {
	return &memoryFuelStore{settings: map[string]models.FuelSettings{}}
}

func (m *memoryFuelStore) Get(ctx context.Context, riderID string) (models.FuelSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[riderID]; ok {
		return s, nil
	}
	return models.DefaultFuelSettings(), nil
}

func (m *memoryFuelStore) Save(ctx context.Context, riderID string, settings models.FuelSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[riderID] = settings
	return nil
}

type memorySnapshots struct {
	mu    sync.Mutex
	items map[string]models.RideSnapshot
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{items: map[string]models.RideSnapshot{}}
}

func (m *memorySnapshots) Put(ctx context.Context, snapshot models.RideSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[snapshot.RideID] = snapshot
	return nil
}

func (m *memorySnapshots) Get(ctx context.Context, rideID string) (models.RideSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[rideID]
	return s, ok, nil
}

func (m *memorySnapshots) Delete(ctx context.Context, rideID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, rideID)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	alerts    []models.Alert
	reports   []models.CrashReport
	summaries []models.NotificationSummary
	alertErr  error
}

func (p *recordingPublisher) PublishRideAlert(ctx context.Context, riderID, rideID string, alert models.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, alert)
	return p.alertErr
}

func (p *recordingPublisher) PublishCrashReported(ctx context.Context, report models.CrashReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return nil
}

func (p *recordingPublisher) PublishNotificationResult(ctx context.Context, riderID string, summary models.NotificationSummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return nil
}

type rideFixture struct {
	svc       *RideService
	rides     *repositories.MemoryRideStore
	fuel      *memoryFuelStore
	snapshots *memorySnapshots
	publisher *recordingPublisher
}

func newRideFixture() rideFixture {
	f := rideFixture{
		rides:     repositories.NewMemoryRideStore(),
		fuel:      newMemoryFuelStore(),
		snapshots: newMemorySnapshots(),
		publisher: &recordingPublisher{},
	}
	f.svc = NewRideService(f.rides, f.fuel, f.snapshots, f.publisher, DefaultAlertPolicy())
	return f
}

func TestRideServiceLifecycle(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	start := t0
	snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{StartTime: &start})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	rideID := snapshot.RideID
	if _, ok, _ := f.snapshots.Get(ctx, rideID); !ok {
		t.Fatalf("expected cached snapshot")
	}

	speed := 40.0
	fix := fixAt(0, 0, time.Second)
	fix.Speed = &speed
	result, err := f.svc.AddFix(ctx, "rider-1", rideID, fix)
	if err != nil {
		t.Fatalf("add error: %v", err)
	}
	if len(result.Alerts) != 1 || len(f.publisher.alerts) != 1 {
		t.Fatalf("expected one published alert, got %v", f.publisher.alerts)
	}

	if _, err := f.svc.AddFix(ctx, "rider-1", rideID, fixAt(0.02, 0, 2*time.Minute)); err != nil {
		t.Fatalf("add error: %v", err)
	}

	record, err := f.svc.StopRide(ctx, "rider-1", rideID)
	if err != nil {
		t.Fatalf("stop error: %v", err)
	}
	if len(record.Route) != 2 {
		t.Fatalf("expected 2 fixes in the route, got %d", len(record.Route))
	}

	saved, err := f.svc.GetHistoryRide(ctx, "rider-1", rideID)
	if err != nil || saved.ID != rideID {
		t.Fatalf("ride not saved: %v", err)
	}
	if _, ok, _ := f.snapshots.Get(ctx, rideID); ok {
		t.Fatalf("snapshot should be dropped after stop")
	}

	carried, _ := f.fuel.Get(ctx, "rider-1")
	want := models.DefaultFuelSettings().CurrentFuel - record.FuelUsed
	if carried.CurrentFuel-want > 1e-9 || want-carried.CurrentFuel > 1e-9 {
		t.Fatalf("expected carried fuel %v, got %v", want, carried.CurrentFuel)
	}

	if _, err := f.svc.AddFix(ctx, "rider-1", rideID, fixAt(0, 0, time.Hour)); !errors.Is(err, models.ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound after stop, got %v", err)
	}
}

func TestRideServiceOneActiveRidePerRider(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	if _, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{}); err != nil {
		t.Fatalf("start error: %v", err)
	}
	_, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{})
	if utils.StatusForError(err) != http.StatusConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := f.svc.StartRide(ctx, "rider-2", models.StartRideRequest{}); err != nil {
		t.Fatalf("other riders may ride: %v", err)
	}
}

func TestRideServiceRejectsInvalidFuelOverride(t *testing.T) {
	f := newRideFixture()
	bad := models.FuelSettings{TankCapacity: 0, CurrentFuel: 1, FuelEfficiency: 40}

	_, err := f.svc.StartRide(context.Background(), "rider-1", models.StartRideRequest{Fuel: &bad})
	if utils.StatusForError(err) != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestRideServiceOwnership(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}

	if _, err := f.svc.AddFix(ctx, "rider-2", snapshot.RideID, fixAt(0, 0, time.Second)); !errors.Is(err, models.ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
	if _, err := f.svc.StopRide(ctx, "rider-2", snapshot.RideID); !errors.Is(err, models.ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
	if _, err := f.svc.GetRide(ctx, "rider-2", snapshot.RideID); err == nil {
		t.Fatalf("expected error reading another rider's ride")
	}
}

func TestRideServiceGetRideFromCache(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	cached := models.RideSnapshot{RideID: "remote", RiderID: "rider-1", FixCount: 7}
	f.snapshots.Put(ctx, cached)

	got, err := f.svc.GetRide(ctx, "rider-1", "remote")
	if err != nil || got.FixCount != 7 {
		t.Fatalf("expected cached snapshot, got %+v %v", got, err)
	}
}

func TestRideServiceRefuel(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()
	f.fuel.Save(ctx, "rider-1", models.FuelSettings{TankCapacity: 15, CurrentFuel: 3, FuelEfficiency: 45, LowFuelThreshold: 2})

	snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	fuel, err := f.svc.Refuel(ctx, "rider-1", snapshot.RideID, 5)
	if err != nil {
		t.Fatalf("refuel error: %v", err)
	}
	if fuel.Remaining != 8 {
		t.Fatalf("expected 8 remaining, got %v", fuel.Remaining)
	}
	if _, err := f.svc.Refuel(ctx, "rider-1", snapshot.RideID, -1); !errors.Is(err, models.ErrInvalidRefuel) {
		t.Fatalf("expected ErrInvalidRefuel, got %v", err)
	}
}

func TestRideServiceStaleRides(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}

	if stale := f.svc.StaleRides(time.Hour, time.Now()); len(stale) != 0 {
		t.Fatalf("fresh ride reported stale: %v", stale)
	}

	stale := f.svc.StaleRides(time.Hour, time.Now().Add(2*time.Hour))
	if len(stale) != 1 || stale[0].RideID != snapshot.RideID || stale[0].RiderID != "rider-1" {
		t.Fatalf("unexpected stale rides: %v", stale)
	}
}

func TestRideServiceHistory(t *testing.T) {
	f := newRideFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		start := t0.Add(time.Duration(i) * time.Hour)
		snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{StartTime: &start})
		if err != nil {
			t.Fatalf("start error: %v", err)
		}
		if _, err := f.svc.StopRide(ctx, "rider-1", snapshot.RideID); err != nil {
			t.Fatalf("stop error: %v", err)
		}
	}

	history, err := f.svc.History(ctx, "rider-1", 2)
	if err != nil {
		t.Fatalf("history error: %v", err)
	}
	if len(history) != 2 || !history[0].Date.After(history[1].Date) {
		t.Fatalf("expected two rides newest first, got %v", history)
	}

	if err := f.svc.DeleteHistoryRide(ctx, "rider-1", history[0].ID); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if err := f.svc.DeleteHistoryRide(ctx, "rider-1", history[0].ID); !errors.Is(err, models.ErrRideNotFound) {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestRideServiceFuelSettingsWithoutStore(t *testing.T) {
	svc := NewRideService(repositories.NewMemoryRideStore(), nil, nil, nil, DefaultAlertPolicy())
	ctx := context.Background()

	settings, err := svc.GetFuelSettings(ctx, "rider-1")
	if err != nil || settings != models.DefaultFuelSettings() {
		t.Fatalf("expected defaults, got %+v %v", settings, err)
	}
	_, err = svc.UpdateFuelSettings(ctx, "rider-1", models.DefaultFuelSettings())
	if utils.StatusForError(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRideServiceRefuelPublishFailure(t *testing.T) {
	f := newRideFixture()
	f.publisher.alertErr = errors.New("broker down")
	ctx := context.Background()

	low := models.FuelSettings{TankCapacity: 15, CurrentFuel: 1, FuelEfficiency: 45, LowFuelThreshold: 2}
	snapshot, err := f.svc.StartRide(ctx, "rider-1", models.StartRideRequest{Fuel: &low})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}

	fuel, err := f.svc.Refuel(ctx, "rider-1", snapshot.RideID, 0.5)
	if err != nil {
		t.Fatalf("refuel should succeed when publishing fails: %v", err)
	}
	if fuel.Remaining != 1.5 {
		t.Fatalf("expected 1.5 remaining, got %v", fuel.Remaining)
	}
	if len(f.publisher.alerts) != 1 || f.publisher.alerts[0].Kind != models.AlertKindLowFuel {
		t.Fatalf("expected one low fuel alert attempt, got %v", f.publisher.alerts)
	}
}

type flakyRideStore struct {
	*repositories.MemoryRideStore
	mu        sync.Mutex
	failSaves int
}

func (s *flakyRideStore) Save(ctx context.Context, ride models.RideRecord) error {
	s.mu.Lock()
	if s.failSaves > 0 {
		s.failSaves--
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.MemoryRideStore.Save(ctx, ride)
}

func TestRideServiceStopRetriesFailedSave(t *testing.T) {
	store := &flakyRideStore{MemoryRideStore: repositories.NewMemoryRideStore(), failSaves: 1}
	svc := NewRideService(store, nil, nil, nil, DefaultAlertPolicy())
	ctx := context.Background()

	start := t0
	snapshot, err := svc.StartRide(ctx, "rider-1", models.StartRideRequest{StartTime: &start})
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	rideID := snapshot.RideID
	for i, fix := range []models.PositionFix{fixAt(0, 0, time.Second), fixAt(0, 0.01, time.Minute)} {
		if _, err := svc.AddFix(ctx, "rider-1", rideID, fix); err != nil {
			t.Fatalf("fix %d error: %v", i, err)
		}
	}

	if _, err := svc.StopRide(ctx, "rider-1", rideID); utils.StatusForError(err) != http.StatusInternalServerError {
		t.Fatalf("expected database error, got %v", err)
	}
	if _, _, ok := svc.ActiveRide("rider-1"); !ok {
		t.Fatalf("ride must stay registered after a failed save")
	}

	record, err := svc.StopRide(ctx, "rider-1", rideID)
	if err != nil {
		t.Fatalf("retry stop error: %v", err)
	}
	if record.Stats.DistanceKm < 1.1 || len(record.Route) != 2 {
		t.Fatalf("retried record lost data: %+v", record.Stats)
	}
	if _, err := svc.GetHistoryRide(ctx, "rider-1", rideID); err != nil {
		t.Fatalf("ride not in history: %v", err)
	}
	if _, _, ok := svc.ActiveRide("rider-1"); ok {
		t.Fatalf("ride should be released after a successful save")
	}
}

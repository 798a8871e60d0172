package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"riderx/models"
	"riderx/services"
)

type fakeNotifier struct {
	mu      sync.Mutex
	calls   []string
	started chan string
	release chan struct{}
	err     error
	pending []models.CrashReport
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{started: make(chan string, 16)}
}

func (f *fakeNotifier) NotifyContacts(ctx context.Context, riderID, reportID string) (services.NotifyResult, models.NotificationSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, reportID)
	f.mu.Unlock()

	f.started <- reportID
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return services.NotifyResult{}, models.NotificationSummary{}, f.err
	}
	result := services.NotifyResult{ReportID: reportID, NotifiedIDs: []string{"a", "b"}, Total: 2}
	return result, result.Summary(), nil
}

func (f *fakeNotifier) PendingReports(ctx context.Context, since time.Time) ([]models.CrashReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending, nil
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func waitStarted(t *testing.T, f *fakeNotifier, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != want {
			t.Fatalf("expected %s to start, got %s", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %s", want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func idle(nw *NotificationWorker) bool {
	nw.mutex.RLock()
	defer nw.mutex.RUnlock()
	return len(nw.pending) == 0
}

func testWorkerConfig() NotificationWorkerConfig {
	return NotificationWorkerConfig{
		WorkerCount:       1,
		QueueSize:         1,
		ProcessingTimeout: time.Second,
	}
}

func TestNotificationWorkerSubmitRequiresStart(t *testing.T) {
	nw := NewNotificationWorker(newFakeNotifier(), testWorkerConfig())
	if err := nw.Submit("rider-1", "r1"); !errors.Is(err, ErrWorkerNotRunning) {
		t.Fatalf("expected ErrWorkerNotRunning, got %v", err)
	}
}

func TestNotificationWorkerProcessesJob(t *testing.T) {
	notifier := newFakeNotifier()
	nw := NewNotificationWorker(notifier, testWorkerConfig())
	nw.Start()
	defer nw.Stop()

	if err := nw.Submit("rider-1", "r1"); err != nil {
		t.Fatalf("submit error: %v", err)
	}
	waitStarted(t, notifier, "r1")
	waitFor(t, func() bool { return nw.GetStats().JobsProcessed == 1 })

	if stats := nw.GetStats(); stats.ContactsReached != 2 || stats.JobsFailed != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestNotificationWorkerCountsFailures(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.err = models.ErrReportNotFound
	nw := NewNotificationWorker(notifier, testWorkerConfig())
	nw.Start()
	defer nw.Stop()

	nw.Submit("rider-1", "r1")
	waitFor(t, func() bool { return nw.GetStats().JobsFailed == 1 })
}

func TestNotificationWorkerDeduplicatesAndBoundsQueue(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.release = make(chan struct{})
	nw := NewNotificationWorker(notifier, testWorkerConfig())
	nw.Start()
	defer nw.Stop()

	nw.Submit("rider-1", "r1")
	waitStarted(t, notifier, "r1")

	if err := nw.Submit("rider-1", "r1"); err != nil {
		t.Fatalf("resubmitting a running report should be a no-op, got %v", err)
	}
	if err := nw.Submit("rider-1", "r2"); err != nil {
		t.Fatalf("submit error: %v", err)
	}
	if err := nw.Submit("rider-1", "r3"); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(notifier.release)
	waitFor(t, func() bool { return nw.GetStats().JobsProcessed == 2 })
	if notifier.callCount() != 2 {
		t.Fatalf("expected r1 and r2 once each, got %d calls", notifier.callCount())
	}
}

func TestNotificationWorkerSweepIsBounded(t *testing.T) {
	notifier := newFakeNotifier()
	notifier.pending = []models.CrashReport{{ID: "r1", RiderID: "rider-1"}}

	cfg := testWorkerConfig()
	cfg.RetryWindow = time.Hour
	cfg.MaxSweeps = 2
	nw := NewNotificationWorker(notifier, cfg)
	nw.Start()
	defer nw.Stop()

	for i := 0; i < 4; i++ {
		nw.sweepPendingReports()
		waitFor(t, func() bool { return nw.GetStats().JobsProcessed == int64(min(i+1, 2)) && idle(nw) })
	}

	if notifier.callCount() != 2 {
		t.Fatalf("expected 2 sweeps to run, got %d", notifier.callCount())
	}
	if nw.GetStats().JobsSwept != 2 {
		t.Fatalf("expected 2 swept jobs, got %d", nw.GetStats().JobsSwept)
	}
}

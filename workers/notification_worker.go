package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"riderx/models"
	"riderx/services"
	"riderx/utils"

	"github.com/sirupsen/logrus"
)

// ContactNotifier runs one notification pass for a crash report and lists
// the reports that still have contacts left to reach.
type ContactNotifier interface {
	NotifyContacts(ctx context.Context, riderID, reportID string) (services.NotifyResult, models.NotificationSummary, error)
	PendingReports(ctx context.Context, since time.Time) ([]models.CrashReport, error)
}

type NotificationWorker struct {
	notifier ContactNotifier
	config   NotificationWorkerConfig

	notificationQueue chan NotificationJob

	// pending holds report ids that are queued or being processed so the same
	// report is never notified by two workers at once.
	pending map[string]bool
	sweeps  map[string]int

	isRunning bool
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats      NotificationWorkerStats
	statsMutex sync.RWMutex
}

type NotificationWorkerConfig struct {
	WorkerCount       int           `json:"workerCount"`
	QueueSize         int           `json:"queueSize"`
	ProcessingTimeout time.Duration `json:"processingTimeout"`
	PollInterval      time.Duration `json:"pollInterval"`
	RetryWindow       time.Duration `json:"retryWindow"`
	MaxSweeps         int           `json:"maxSweeps"`
}

func DefaultNotificationWorkerConfig() NotificationWorkerConfig {
	return NotificationWorkerConfig{
		WorkerCount:       3,
		QueueSize:         100,
		ProcessingTimeout: 2 * time.Minute,
		PollInterval:      time.Minute,
		RetryWindow:       30 * time.Minute,
		MaxSweeps:         3,
	}
}

type NotificationJob struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	RiderID   string    `json:"riderId"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationWorkerStats struct {
	JobsProcessed   int64     `json:"jobsProcessed"`
	JobsFailed      int64     `json:"jobsFailed"`
	JobsSwept       int64     `json:"jobsSwept"`
	ContactsReached int64     `json:"contactsReached"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
	QueueLength     int       `json:"queueLength"`
	StartTime       time.Time `json:"startTime"`
}

var (
	ErrWorkerNotRunning = errors.New("notification worker is not running")
	ErrQueueFull        = errors.New("notification queue is full")
)

func NewNotificationWorker(notifier ContactNotifier, config NotificationWorkerConfig) *NotificationWorker {
	defaults := DefaultNotificationWorkerConfig()
	if config.WorkerCount < 1 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize < 1 {
		config.QueueSize = defaults.QueueSize
	}
	if config.ProcessingTimeout <= 0 {
		config.ProcessingTimeout = defaults.ProcessingTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &NotificationWorker{
		notifier:          notifier,
		config:            config,
		notificationQueue: make(chan NotificationJob, config.QueueSize),
		pending:           make(map[string]bool),
		sweeps:            make(map[string]int),
		ctx:               ctx,
		cancel:            cancel,
		stats: NotificationWorkerStats{
			StartTime: time.Now(),
		},
	}
}

func (nw *NotificationWorker) Start() error {
	nw.mutex.Lock()
	defer nw.mutex.Unlock()

	if nw.isRunning {
		return nil
	}
	nw.isRunning = true

	logrus.Infof("Starting Notification Worker with %d workers", nw.config.WorkerCount)

	for i := 0; i < nw.config.WorkerCount; i++ {
		nw.wg.Add(1)
		go nw.worker(i)
	}

	if nw.config.PollInterval > 0 && nw.config.RetryWindow > 0 {
		nw.wg.Add(1)
		go nw.pendingReportPoller()
	}

	logrus.Info("Notification Worker started successfully")
	return nil
}

// Stop cancels queued work and waits for running jobs. A job in the middle
// of a notify pass finishes its in-flight sends before returning.
func (nw *NotificationWorker) Stop() error {
	nw.mutex.Lock()
	if !nw.isRunning {
		nw.mutex.Unlock()
		return nil
	}
	nw.isRunning = false
	nw.mutex.Unlock()

	logrus.Info("Stopping Notification Worker...")
	nw.cancel()
	nw.wg.Wait()
	logrus.Info("Notification Worker stopped successfully")
	return nil
}

// Submit queues a notification pass for the report. Submitting a report that
// is already queued or running is a no-op.
func (nw *NotificationWorker) Submit(riderID, reportID string) error {
	nw.mutex.Lock()
	defer nw.mutex.Unlock()

	if !nw.isRunning {
		return ErrWorkerNotRunning
	}
	if nw.pending[reportID] {
		return nil
	}

	job := NotificationJob{
		ID:        utils.GenerateUUID(),
		ReportID:  reportID,
		RiderID:   riderID,
		CreatedAt: time.Now(),
	}

	select {
	case nw.notificationQueue <- job:
		nw.pending[reportID] = true
		return nil
	default:
		return ErrQueueFull
	}
}

func (nw *NotificationWorker) worker(workerID int) {
	defer nw.wg.Done()

	logrus.Debugf("Notification worker %d started", workerID)

	for {
		select {
		case job := <-nw.notificationQueue:
			nw.processJob(job, workerID)
		case <-nw.ctx.Done():
			logrus.Debugf("Notification worker %d stopping", workerID)
			return
		}
	}
}

func (nw *NotificationWorker) processJob(job NotificationJob, workerID int) {
	defer nw.release(job.ReportID)

	ctx, cancel := context.WithTimeout(nw.ctx, nw.config.ProcessingTimeout)
	defer cancel()

	log := logrus.WithFields(logrus.Fields{
		"worker":   workerID,
		"jobId":    job.ID,
		"reportId": job.ReportID,
	})
	log.Debug("Processing notification job")

	result, summary, err := nw.notifier.NotifyContacts(ctx, job.RiderID, job.ReportID)
	if err != nil {
		log.Errorf("Notification job failed: %v", err)
		nw.updateStats(0, false)
		return
	}

	log.Infof("Notification job complete: %s", summary.Message)
	nw.updateStats(len(result.NotifiedIDs), true)
}

func (nw *NotificationWorker) release(reportID string) {
	nw.mutex.Lock()
	defer nw.mutex.Unlock()
	delete(nw.pending, reportID)
}

// pendingReportPoller periodically re-queues recent reports that still have
// contacts nobody reached, a bounded number of times per report.
func (nw *NotificationWorker) pendingReportPoller() {
	defer nw.wg.Done()

	ticker := time.NewTicker(nw.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			nw.sweepPendingReports()
		case <-nw.ctx.Done():
			return
		}
	}
}

func (nw *NotificationWorker) sweepPendingReports() {
	ctx, cancel := context.WithTimeout(nw.ctx, 30*time.Second)
	defer cancel()

	reports, err := nw.notifier.PendingReports(ctx, time.Now().Add(-nw.config.RetryWindow))
	if err != nil {
		logrus.Errorf("Failed to load reports pending notification: %v", err)
		return
	}

	for _, report := range reports {
		nw.mutex.Lock()
		exhausted := nw.config.MaxSweeps > 0 && nw.sweeps[report.ID] >= nw.config.MaxSweeps
		if !exhausted {
			nw.sweeps[report.ID]++
		}
		nw.mutex.Unlock()

		if exhausted {
			continue
		}
		if err := nw.Submit(report.RiderID, report.ID); err != nil {
			logrus.Warnf("Failed to re-queue report %s: %v", report.ID, err)
			continue
		}
		nw.statsMutex.Lock()
		nw.stats.JobsSwept++
		nw.statsMutex.Unlock()
	}
}

func (nw *NotificationWorker) updateStats(reached int, success bool) {
	nw.statsMutex.Lock()
	defer nw.statsMutex.Unlock()

	if success {
		nw.stats.JobsProcessed++
		nw.stats.ContactsReached += int64(reached)
	} else {
		nw.stats.JobsFailed++
	}
	nw.stats.LastProcessedAt = time.Now()
}

func (nw *NotificationWorker) GetStats() NotificationWorkerStats {
	nw.statsMutex.RLock()
	stats := nw.stats
	nw.statsMutex.RUnlock()

	stats.QueueLength = len(nw.notificationQueue)
	return stats
}

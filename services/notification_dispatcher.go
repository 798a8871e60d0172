package services

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"riderx/models"
	"riderx/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// EmailSender delivers one email. It reports whether a failure is worth
// retrying (network trouble, 4xx SMTP replies) or terminal (bad address).
type EmailSender interface {
	Send(ctx context.Context, address, subject, body string) (retryable bool, err error)
}

// SMSSender delivers one text message to an E.164 number.
type SMSSender interface {
	Send(ctx context.Context, phoneE164, body string) (retryable bool, err error)
}

// NotificationRecorder persists that a contact was reached for a report.
type NotificationRecorder interface {
	MarkNotified(ctx context.Context, reportID, contactID string) error
}

var (
	errNoEmailAddress = errors.New("contact has no email address")
	errNoPhoneNumber  = errors.New("contact has no phone number")
	errNoSender       = errors.New("channel sender not configured")
)

// RetryPolicy bounds how often one channel is tried for one contact and how
// long to wait between tries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
	}
}

// Backoff is the wait after the given failed attempt (1-based):
// BaseDelay, BaseDelay*Multiplier, BaseDelay*Multiplier^2, ...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt-1)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

type DispatcherConfig struct {
	Retry          RetryPolicy
	MaxConcurrency int
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Retry:          DefaultRetryPolicy(),
		MaxConcurrency: 16,
	}
}

// NotifyResult is the outcome of one Notify call.
type NotifyResult struct {
	ReportID    string                       `json:"reportId"`
	NotifiedIDs []string                     `json:"notifiedIds"`
	Attempts    []models.NotificationAttempt `json:"attempts"`
	Total       int                          `json:"total"`
}

func (r NotifyResult) Summary() models.NotificationSummary {
	return models.NewNotificationSummary(r.ReportID, r.NotifiedIDs, r.Total)
}

// NotificationDispatcher fans a crash report out to emergency contacts over
// email and SMS.
//
// Every (contact, channel) pair is an independent job run on a bounded pool.
// A contact counts as notified on the first channel that succeeds and whose
// MarkNotified call persists; the other channel still runs to completion.
// Contacts already listed on the report are skipped, so calling Notify again
// after a partial failure only reaches the people who were missed.
type NotificationDispatcher struct {
	email    EmailSender
	sms      SMSSender
	recorder NotificationRecorder
	config   DispatcherConfig
	onNotify func(report models.CrashReport, contact models.EmergencyContact)
	now      func() time.Time
}

func NewNotificationDispatcher(email EmailSender, sms SMSSender, recorder NotificationRecorder, config DispatcherConfig) *NotificationDispatcher {
	if config.Retry.MaxAttempts < 1 {
		config.Retry.MaxAttempts = 1
	}
	if config.MaxConcurrency < 1 {
		config.MaxConcurrency = DefaultDispatcherConfig().MaxConcurrency
	}
	return &NotificationDispatcher{
		email:    email,
		sms:      sms,
		recorder: recorder,
		config:   config,
		now:      time.Now,
	}
}

// WithRecorder returns a copy of the dispatcher that records to r.
func (d *NotificationDispatcher) WithRecorder(r NotificationRecorder) *NotificationDispatcher {
	clone := *d
	clone.recorder = r
	return &clone
}

// OnContactNotified registers a hook called as soon as a contact is reached,
// before slower channels for the same contact finish.
func (d *NotificationDispatcher) OnContactNotified(fn func(report models.CrashReport, contact models.EmergencyContact)) {
	d.onNotify = fn
}

type notifyJob struct {
	contact models.EmergencyContact
	channel models.Channel
}

// Notify attempts every pending contact on every channel and returns the
// contacts reached plus the full attempt log. Cancelling ctx stops new
// attempts and backoff waits; sends already in flight finish and count.
func (d *NotificationDispatcher) Notify(ctx context.Context, report models.CrashReport, contacts []models.EmergencyContact) NotifyResult {
	jobs, pending := d.plan(report, contacts)

	result := NotifyResult{
		ReportID:    report.ID,
		NotifiedIDs: []string{},
		Attempts:    []models.NotificationAttempt{},
		Total:       len(pending),
	}
	if len(jobs) == 0 {
		return result
	}

	col := newAttemptCollector()

	var g errgroup.Group
	g.SetLimit(min(len(jobs), d.config.MaxConcurrency))

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			d.run(ctx, report, job, col)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		logrus.WithField("reportId", report.ID).Warnf("Notification run interrupted: %v", err)
	}

	order := make(map[string]int, len(pending))
	for i, c := range pending {
		order[c.ID] = i
	}

	result.Attempts = col.sortedAttempts(order)
	for _, c := range pending {
		if col.isNotified(c.ID) {
			result.NotifiedIDs = append(result.NotifiedIDs, c.ID)
		}
	}

	logrus.WithFields(logrus.Fields{
		"reportId": report.ID,
		"notified": len(result.NotifiedIDs),
		"total":    result.Total,
		"attempts": len(result.Attempts),
	}).Info("Emergency notification run complete")

	return result
}

// plan drops duplicate contacts and those already notified for the report,
// then builds one job per channel.
func (d *NotificationDispatcher) plan(report models.CrashReport, contacts []models.EmergencyContact) ([]notifyJob, []models.EmergencyContact) {
	seen := make(map[string]bool, len(contacts))
	pending := make([]models.EmergencyContact, 0, len(contacts))
	jobs := make([]notifyJob, 0, len(contacts)*2)

	for _, c := range contacts {
		if c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if report.HasNotified(c.ID) {
			continue
		}
		pending = append(pending, c)
		jobs = append(jobs,
			notifyJob{contact: c, channel: models.ChannelEmail},
			notifyJob{contact: c, channel: models.ChannelSMS},
		)
	}
	return jobs, pending
}

// run drives one (contact, channel) pair through
// Pending -> Attempting -> {Success | Failure}, retrying retryable failures
// while attempts remain.
func (d *NotificationDispatcher) run(ctx context.Context, report models.CrashReport, job notifyJob, col *attemptCollector) {
	log := logrus.WithFields(logrus.Fields{
		"reportId":  report.ID,
		"contactId": job.contact.ID,
		"channel":   job.channel,
	})

	// Sends run detached from ctx so a cancel never aborts one mid-flight.
	sendCtx := context.WithoutCancel(ctx)
	policy := d.config.Retry

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, policy.Backoff(attempt-1)); err != nil {
				log.Warnf("Retry %d cancelled: %v", attempt, err)
				return
			}
		} else if ctx.Err() != nil {
			return
		}

		retryable, err := d.send(sendCtx, report, job)
		record := models.NotificationAttempt{
			ReportID:      report.ID,
			ContactID:     job.contact.ID,
			Channel:       job.channel,
			AttemptNumber: attempt,
			Timestamp:     d.now(),
		}

		if err == nil {
			record.Outcome = models.OutcomeSuccess
			col.add(record)
			log.Infof("Delivered on attempt %d", attempt)
			d.markNotified(ctx, report, job.contact, col)
			return
		}

		record.Outcome = models.OutcomeFailure
		record.Reason = err.Error()
		record.Retryable = retryable
		col.add(record)

		if !retryable {
			log.Warnf("Terminal failure on attempt %d: %v", attempt, err)
			return
		}
		log.Warnf("Transient failure on attempt %d/%d: %v", attempt, policy.MaxAttempts, err)
	}
}

func (d *NotificationDispatcher) send(ctx context.Context, report models.CrashReport, job notifyJob) (bool, error) {
	switch job.channel {
	case models.ChannelEmail:
		if job.contact.Email == "" {
			return false, errNoEmailAddress
		}
		if d.email == nil {
			return false, errNoSender
		}
		subject, body := ComposeCrashEmail(job.contact, report)
		return d.email.Send(ctx, job.contact.Email, subject, body)
	case models.ChannelSMS:
		if job.contact.Phone == "" {
			return false, errNoPhoneNumber
		}
		if d.sms == nil {
			return false, errNoSender
		}
		return d.sms.Send(ctx, job.contact.Phone, ComposeCrashSMS(job.contact, report))
	}
	return false, errNoSender
}

// markNotified persists the first success for a contact. If persistence
// fails the contact is released again so a later success or a later Notify
// call can retry; a duplicate message beats a lost notification record.
func (d *NotificationDispatcher) markNotified(ctx context.Context, report models.CrashReport, contact models.EmergencyContact, col *attemptCollector) {
	if !col.claim(contact.ID) {
		return
	}

	if d.recorder != nil {
		if err := d.recorder.MarkNotified(context.WithoutCancel(ctx), report.ID, contact.ID); err != nil {
			col.release(contact.ID)
			logrus.WithFields(logrus.Fields{
				"reportId":  report.ID,
				"contactId": contact.ID,
			}).Errorf("Failed to record notification: %v", err)
			return
		}
	}

	col.confirm(contact.ID)
	logrus.WithFields(logrus.Fields{
		"reportId": report.ID,
		"contact":  contact.Name,
		"phone":    utils.MaskPhoneNumber(contact.Phone),
	}).Info("Emergency contact reached")

	if d.onNotify != nil {
		d.onNotify(report, contact)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type contactState int

const (
	contactPending contactState = iota
	contactMarking
	contactNotified
)

// attemptCollector is the shared result of one Notify run.
type attemptCollector struct {
	mu       sync.Mutex
	attempts []models.NotificationAttempt
	contacts map[string]contactState
}

func newAttemptCollector() *attemptCollector {
	return &attemptCollector{contacts: make(map[string]contactState)}
}

func (c *attemptCollector) add(a models.NotificationAttempt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts = append(c.attempts, a)
}

// claim reserves the right to mark a contact notified; only the first
// successful channel gets it.
func (c *attemptCollector) claim(contactID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contacts[contactID] != contactPending {
		return false
	}
	c.contacts[contactID] = contactMarking
	return true
}

func (c *attemptCollector) release(contactID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts[contactID] = contactPending
}

func (c *attemptCollector) confirm(contactID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts[contactID] = contactNotified
}

func (c *attemptCollector) isNotified(contactID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contacts[contactID] == contactNotified
}

// sortedAttempts orders attempts by contact input order, channel, then
// attempt number.
func (c *attemptCollector) sortedAttempts(order map[string]int) []models.NotificationAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := append([]models.NotificationAttempt{}, c.attempts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ContactID != out[j].ContactID {
			return order[out[i].ContactID] < order[out[j].ContactID]
		}
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
	return out
}

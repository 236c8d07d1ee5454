package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/scraper"
	"github.com/nexconsult/goc-sync/internal/store"
	"github.com/nexconsult/goc-sync/internal/utils"
	"github.com/sirupsen/logrus"
)

// Cache keys of the last extractions and the run lock
const (
	RunLockKey       = "gocsync:lock:run"
	CalendarStatsKey = "gocsync:calendar:stats"
	RecentUsersKey   = "gocsync:users:recent"
)

var (
	// ErrSyncInProgress is returned when another run holds the lock
	ErrSyncInProgress = errors.New("another synchronization is running")
	// ErrUnknownRunKind is returned for kinds outside the closed set
	ErrUnknownRunKind = errors.New("unknown synchronization kind")
)

// SyncService runs one synchronization at a time. Every run gets its own
// browser session, which is released whatever the outcome.
type SyncService struct {
	cfg      *config.Config
	store    store.Store
	cache    CacheServiceInterface
	locker   LockerInterface
	forms    FormSourceInterface
	launcher browser.Launcher
	clock    browser.Clock
	logger   *logrus.Logger
	now      func() time.Time
}

// NewSyncService wires a sync service. A nil clock uses real time.
func NewSyncService(cfg *config.Config, st store.Store, cache CacheServiceInterface, locker LockerInterface,
	forms FormSourceInterface, launcher browser.Launcher, clock browser.Clock, logger *logrus.Logger) *SyncService {
	if clock == nil {
		clock = browser.RealClock()
	}
	return &SyncService{
		cfg:      cfg,
		store:    st,
		cache:    cache,
		locker:   locker,
		forms:    forms,
		launcher: launcher,
		clock:    clock,
		logger:   logger,
		now:      clock.Now,
	}
}

// Run executes one synchronization of kind. The returned run is finalized
// and persisted; err carries the hard failure, if any.
func (s *SyncService) Run(ctx context.Context, kind models.RunKind) (*models.SyncRun, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRunKind, kind)
	}

	release, ok, err := s.locker.TryLock(ctx, RunLockKey, s.cfg.Sync.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to take run lock: %w", err)
	}
	if !ok {
		return nil, ErrSyncInProgress
	}
	defer release()

	run := models.NewSyncRun(kind, s.now())
	logger := s.logger.WithFields(logrus.Fields{"run_id": run.ID, "kind": kind})
	s.saveRun(ctx, run, logger)
	logger.Info("Synchronization started")

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Sync.RunTimeout)
	defer cancel()

	err = s.execute(runCtx, run, logger)
	if err != nil {
		_ = run.Fail(err, s.now())
		logger.WithError(err).Error("Synchronization failed")
	} else {
		_ = run.Complete(s.now())
		logger.WithFields(logrus.Fields{
			"outcome":    run.Outcome(),
			"total_new":  run.TotalNew,
			"registered": run.Registered,
			"duplicates": run.Duplicates,
			"errors":     run.Errors,
			"created":    run.Created,
			"updated":    run.Updated,
			"duration":   run.DurationSeconds,
		}).Info("Synchronization finished")
	}
	// the run context may be spent; persist the outcome regardless
	s.saveRun(context.WithoutCancel(ctx), run, logger)
	return run, err
}

func (s *SyncService) saveRun(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) {
	if err := s.store.SaveRun(ctx, run); err != nil {
		logger.WithError(err).Warn("Failed to persist sync run")
	}
}

func (s *SyncService) execute(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) error {
	if run.Kind == models.RunRegistrations {
		return s.runRegistrations(ctx, run, logger)
	}
	if err := s.cfg.RequirePortalCredentials(); err != nil {
		return err
	}
	return s.withPortal(ctx, func(ctx context.Context, portal *scraper.Portal, auth *scraper.Authenticator) error {
		switch run.Kind {
		case models.RunCalendar:
			return s.syncCalendar(ctx, portal, auth, run, logger)
		case models.RunStock:
			return s.syncStock(ctx, portal, auth, run, logger)
		default:
			return s.syncUsers(ctx, portal, auth, run, logger)
		}
	})
}

// withPortal runs fn on a fresh browser session that is always stopped
func (s *SyncService) withPortal(ctx context.Context, fn func(ctx context.Context, portal *scraper.Portal, auth *scraper.Authenticator) error) error {
	session := browser.NewSession(s.launcher, s.cfg.Browser.ProbeTimeout, s.logger)
	return browser.WithSession(ctx, session, func(ctx context.Context, page browser.Page) error {
		portal := scraper.NewPortal(page, s.cfg, s.clock, s.logger)
		auth := scraper.NewAuthenticator(portal, scraper.Credentials{
			Username: s.cfg.Portal.Username,
			Password: s.cfg.Portal.Password,
		})
		return fn(ctx, portal, auth)
	})
}

func (s *SyncService) runRegistrations(ctx context.Context, run *models.SyncRun, logger *logrus.Entry) error {
	responses, err := s.forms.Responses(ctx)
	if err != nil {
		return err
	}
	run.TotalNew = len(responses)
	if len(responses) == 0 {
		logger.Info("No form responses to register")
		return nil
	}
	if err := s.cfg.RequirePortalCredentials(); err != nil {
		return err
	}

	session := browser.NewSession(s.launcher, s.cfg.Browser.ProbeTimeout, s.logger)
	defer session.Stop()

	var b batch
	for i, resp := range responses {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.registerWithRecovery(ctx, session, &b, resp, run, logger); err != nil {
			return err
		}
		if i < len(responses)-1 {
			if err := s.clock.Sleep(ctx, s.cfg.Sync.RecordDelay); err != nil {
				return err
			}
		}
	}

	if err := s.forms.Cleanup(ctx); err != nil {
		logger.WithError(err).Warn("Failed to clean up form dumps")
	}
	return nil
}

// batch is the registration flow bound to the page currently served by the
// session; it is rebuilt whenever the session hands out a new page
type batch struct {
	page      browser.Page
	registrar *scraper.Registrar
}

// registrar validates the session and returns a registrar on its live page
func (s *SyncService) registrar(ctx context.Context, session *browser.Session, b *batch) (*scraper.Registrar, error) {
	page, err := session.Start(ctx)
	if err != nil {
		return nil, err
	}
	if b.registrar == nil || page != b.page {
		portal := scraper.NewPortal(page, s.cfg, s.clock, s.logger)
		auth := scraper.NewAuthenticator(portal, scraper.Credentials{
			Username: s.cfg.Portal.Username,
			Password: s.cfg.Portal.Password,
		})
		b.page = page
		b.registrar = scraper.NewRegistrar(portal, auth)
	}
	return b.registrar, nil
}

// registerWithRecovery registers resp on a validated session. A browser
// that dies mid-record is recreated and the record retried once; a second
// death aborts the batch.
func (s *SyncService) registerWithRecovery(ctx context.Context, session *browser.Session, b *batch, resp models.FormResponse, run *models.SyncRun, logger *logrus.Entry) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var registrar *scraper.Registrar
		if registrar, err = s.registrar(ctx, session, b); err != nil {
			if attempt > 1 {
				run.Errors++
			}
			return err
		}
		if err = s.registerOne(ctx, registrar, resp, run, logger); err == nil {
			return nil
		}
		if !errors.Is(err, browser.ErrSessionDead) {
			break
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("Browser session died during registration")
	}
	run.Errors++
	return err
}

// registerOne registers a single response. Only session-level failures are
// returned, without being counted; everything else is counted on run and
// persisted.
func (s *SyncService) registerOne(ctx context.Context, registrar *scraper.Registrar, resp models.FormResponse, run *models.SyncRun, logger *logrus.Entry) error {
	cpf := utils.CleanCPF(resp.Get(models.FieldCPF))
	if cpf == "" {
		return nil
	}
	entry := logger.WithField("cpf", utils.FormatCPF(cpf))

	sub, err := s.store.GetSubmission(ctx, cpf)
	switch {
	case errors.Is(err, store.ErrNotFound):
		sub = models.Submission{CPF: cpf, Status: models.SubmissionPending}
	case err != nil:
		entry.WithError(err).Error("Failed to load submission")
		run.Errors++
		return nil
	}
	if sub.Status.Terminal() {
		entry.WithField("status", sub.Status).Info("Submission already processed, skipping")
		run.Duplicates++
		return nil
	}

	now := s.now()
	sub.Email = resp.Get(models.FieldEmail)
	sub.FullName = resp.Get(models.FieldFullName)
	sub.RawFormData = resp
	sub.Status = models.SubmissionProcessing
	sub.Attempts++
	sub.LastAttemptAt = &now
	if err := s.store.SaveSubmission(ctx, &sub); err != nil {
		entry.WithError(err).Error("Failed to save submission")
		run.Errors++
		return nil
	}

	record := func(step models.Step, success bool, message, details string) {
		l := models.RegistrationLog{
			SubmissionID:  sub.ID,
			AttemptNumber: sub.Attempts,
			Step:          step,
			Success:       success,
			Message:       message,
			ErrorDetails:  details,
			Timestamp:     s.now(),
		}
		if err := s.store.AppendLog(ctx, l); err != nil {
			entry.WithError(err).Warn("Failed to append registration log")
		}
	}

	result := registrar.Register(ctx, resp, record)
	sessionLost := result.Err != nil && scraper.IsSessionLevel(result.Err)
	switch {
	case sessionLost:
		sub.Status = models.SubmissionError
		sub.ErrorMessage = result.Message
	case result.Status == models.SubmissionSuccess:
		sub.Status = models.SubmissionSuccess
		sub.PatientIDInPlatform = result.PatientID
		sub.ErrorMessage = ""
		run.Registered++
	case result.Status == models.SubmissionDuplicate:
		sub.Status = models.SubmissionDuplicate
		sub.ErrorMessage = ""
		run.Duplicates++
	default:
		sub.Status = models.SubmissionError
		sub.ErrorMessage = result.Message
		run.Errors++
	}
	if err := s.store.SaveSubmission(context.WithoutCancel(ctx), &sub); err != nil {
		entry.WithError(err).Error("Failed to save submission outcome")
	}

	if sessionLost {
		return result.Err
	}
	return nil
}

func (s *SyncService) syncCalendar(ctx context.Context, portal *scraper.Portal, auth *scraper.Authenticator, run *models.SyncRun, logger *logrus.Entry) error {
	appointments, err := scraper.NewCalendarExtractor(portal, auth).Extract(ctx)
	if err != nil {
		return err
	}
	run.TotalNew = len(appointments)

	for _, a := range appointments {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.saveAppointment(ctx, a)
		if err != nil {
			logger.WithError(err).WithField("patient", a.PatientName).Error("Failed to sync appointment")
			run.Errors++
			continue
		}
		count(run, res)
	}

	stats := models.NewCalendarStats(appointments)
	if err := s.cache.SetJSON(ctx, CalendarStatsKey, stats); err != nil {
		logger.WithError(err).Warn("Failed to cache calendar statistics")
	}
	return nil
}

func (s *SyncService) saveAppointment(ctx context.Context, a models.Appointment) (models.UpsertResult, error) {
	day, err := a.Day()
	if err != nil {
		return "", err
	}
	patient, _, err := s.store.UpsertPatient(ctx, a.PatientName, a.Phone)
	if err != nil {
		return "", err
	}
	var vaccineID *int64
	vaccine, _, err := s.store.ResolveVaccine(ctx, a.VaccineInfo)
	switch {
	case err == nil:
		vaccineID = &vaccine.ID
	case !errors.Is(err, store.ErrNotFound):
		return "", err
	}
	return s.store.UpsertAppointment(ctx, models.ScheduledAppointment{
		PatientID:    patient.ID,
		VaccineID:    vaccineID,
		Date:         day,
		Time:         a.Time,
		Status:       models.AppointmentScheduled,
		Observations: a.Observations,
	})
}

func (s *SyncService) syncStock(ctx context.Context, portal *scraper.Portal, auth *scraper.Authenticator, run *models.SyncRun, logger *logrus.Entry) error {
	items, err := scraper.NewStockExtractor(portal, auth).Extract(ctx)
	if err != nil {
		return err
	}
	run.TotalNew = len(items)

	for _, item := range items {
		res, err := s.store.UpsertStock(ctx, item)
		if err != nil {
			logger.WithError(err).WithField("vaccine", item.Name).Error("Failed to sync stock")
			run.Errors++
			continue
		}
		count(run, res)
	}
	return nil
}

func (s *SyncService) syncUsers(ctx context.Context, portal *scraper.Portal, auth *scraper.Authenticator, run *models.SyncRun, logger *logrus.Entry) error {
	users, err := scraper.NewUsersExtractor(portal, auth).Extract(ctx, s.cfg.Sync.UsersLimit)
	if err != nil {
		return err
	}
	run.TotalNew = len(users)

	for _, u := range users {
		res, err := s.store.UpsertListing(ctx, u)
		if err != nil {
			logger.WithError(err).WithField("patient", u.Name).Error("Failed to sync patient listing")
			run.Errors++
			continue
		}
		count(run, res)
	}

	if err := s.cache.SetJSON(ctx, RecentUsersKey, users); err != nil {
		logger.WithError(err).Warn("Failed to cache recent patients")
	}
	return nil
}

func count(run *models.SyncRun, res models.UpsertResult) {
	if res == models.Created {
		run.Created++
	} else {
		run.Updated++
	}
}

// RecentRuns lists the latest runs, newest first
func (s *SyncService) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return s.store.RecentRuns(ctx, limit)
}

// CalendarStats returns the statistics cached by the last calendar run
func (s *SyncService) CalendarStats(ctx context.Context) (*models.CalendarStats, error) {
	var stats models.CalendarStats
	if err := s.cache.GetJSON(ctx, CalendarStatsKey, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentUsers returns the patient list cached by the last users run
func (s *SyncService) RecentUsers(ctx context.Context) ([]models.UserRecord, error) {
	var users []models.UserRecord
	if err := s.cache.GetJSON(ctx, RecentUsersKey, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CleanupLogs removes registration logs past the retention window
func (s *SyncService) CleanupLogs(ctx context.Context) (int64, error) {
	removed, err := s.store.CleanupOldLogs(ctx, s.now().Add(-s.cfg.Sync.LogRetention))
	if err != nil {
		return 0, err
	}
	s.logger.WithField("removed", removed).Info("Old registration logs removed")
	return removed, nil
}

// Package scheduler triggers synchronization runs on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the part of the sync service the scheduler drives
type Runner interface {
	Run(ctx context.Context, kind models.RunKind) (*models.SyncRun, error)
	CleanupLogs(ctx context.Context) (int64, error)
}

// Scheduler runs each configured job on its spec. A job still running when
// its next tick fires is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *logrus.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New registers the jobs of cfg. Empty specs are left out.
func New(cfg config.SchedulerConfig, runner Runner, logger *logrus.Logger) (*Scheduler, error) {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}

	jobs := []struct {
		name string
		spec string
		fn   func()
	}{
		{string(models.RunRegistrations), cfg.RegistrationsSpec, s.runJob(models.RunRegistrations)},
		{string(models.RunCalendar), cfg.CalendarSpec, s.runJob(models.RunCalendar)},
		{string(models.RunStock), cfg.StockSpec, s.runJob(models.RunStock)},
		{"cleanup", cfg.CleanupSpec, s.cleanupJob},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		id, err := s.cron.AddFunc(j.spec, j.fn)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid schedule %q for %s: %w", j.spec, j.name, err)
		}
		s.entries[j.name] = id
		logger.WithFields(logrus.Fields{"job": j.name, "spec": j.spec}).Info("Job scheduled")
	}
	return s, nil
}

// Jobs lists the scheduled job names
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

func (s *Scheduler) runJob(kind models.RunKind) func() {
	return func() {
		run, err := s.runner.Run(s.ctx, kind)
		switch {
		case errors.Is(err, services.ErrSyncInProgress):
			s.logger.WithField("kind", kind).Info("Scheduled run skipped, another synchronization is running")
		case err != nil:
			s.logger.WithError(err).WithField("kind", kind).Error("Scheduled run failed")
		default:
			s.logger.WithFields(logrus.Fields{"kind": kind, "outcome": run.Outcome()}).Debug("Scheduled run finished")
		}
	}
}

func (s *Scheduler) cleanupJob() {
	if _, err := s.runner.CleanupLogs(s.ctx); err != nil {
		s.logger.WithError(err).Error("Scheduled log cleanup failed")
	}
}

// Start begins firing jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.WithField("jobs", len(s.entries)).Info("Scheduler started")
}

// Stop cancels running jobs and waits for them until ctx is done
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's own messages through logrus
type cronLogger struct {
	logger *logrus.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}

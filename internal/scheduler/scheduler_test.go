package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeRunner struct {
	mu       sync.Mutex
	kinds    []models.RunKind
	cleanups int
	err      error
}

func (f *fakeRunner) Run(_ context.Context, kind models.RunKind) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	if f.err != nil {
		return nil, f.err
	}
	run := models.NewSyncRun(kind, time.Now())
	_ = run.Complete(time.Now())
	return run, nil
}

func (f *fakeRunner) CleanupLogs(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups++
	return 0, nil
}

func TestNewSkipsEmptySpecs(t *testing.T) {
	s, err := New(config.SchedulerConfig{
		RegistrationsSpec: "@every 1m",
		CleanupSpec:       "@daily",
	}, &fakeRunner{}, logger.Discard())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"registrations", "cleanup"}, s.Jobs())
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New(config.SchedulerConfig{StockSpec: "every tuesday"}, &fakeRunner{}, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stock")
}

func TestJobsCallRunner(t *testing.T) {
	runner := &fakeRunner{}
	s, err := New(config.SchedulerConfig{}, runner, logger.Discard())
	require.NoError(t, err)

	s.runJob(models.RunCalendar)()
	s.cleanupJob()

	assert.Equal(t, []models.RunKind{models.RunCalendar}, runner.kinds)
	assert.Equal(t, 1, runner.cleanups)

	runner.err = services.ErrSyncInProgress
	assert.NotPanics(t, s.runJob(models.RunStock))
	runner.err = errors.New("boom")
	assert.NotPanics(t, s.runJob(models.RunStock))
}

func TestStartStopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	runner := &fakeRunner{}
	s, err := New(config.SchedulerConfig{RegistrationsSpec: "@every 1h"}, runner, logger.Discard())
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestCronLoggerFields(t *testing.T) {
	f := fields([]interface{}{"entry", 1, "now", "x", "dangling"})
	assert.Equal(t, 1, f["entry"])
	assert.Equal(t, "x", f["now"])
	assert.Len(t, f, 2)
}

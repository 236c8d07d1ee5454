package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotStarted is returned by Page before Start
var ErrNotStarted = errors.New("browser session not started")

// Session owns a single browser for the lifetime of one automation run.
// Start is idempotent and Stop is safe to call any number of times.
type Session struct {
	launcher     Launcher
	probeTimeout time.Duration
	logger       *logrus.Logger

	mu      sync.Mutex
	page    Page
	release func()
	starts  int
}

// NewSession creates a stopped session
func NewSession(launcher Launcher, probeTimeout time.Duration, logger *logrus.Logger) *Session {
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Session{launcher: launcher, probeTimeout: probeTimeout, logger: logger}
}

// Start returns the live page, launching a browser when none is running or
// when the current one no longer answers a probe.
func (s *Session) Start(ctx context.Context) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		err := s.probe(ctx)
		if err == nil {
			return s.page, nil
		}
		s.logger.WithError(err).Warn("Browser session is dead, recreating")
		s.teardown()
	}

	page, release, err := s.launcher.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	s.page = page
	s.release = release
	s.starts++
	return page, nil
}

func (s *Session) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	_, err := s.page.Location(probeCtx)
	return err
}

// Alive probes the current page without recreating it
func (s *Session) Alive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page != nil && s.probe(ctx) == nil
}

// Page returns the current page
func (s *Session) Page() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return nil, ErrNotStarted
	}
	return s.page, nil
}

// Starts counts browser launches, including recreations
func (s *Session) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// Stop tears the browser down; a stopped session is a no-op
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil {
		return
	}
	s.teardown()
	s.logger.Info("Browser session stopped")
}

func (s *Session) teardown() {
	if s.release != nil {
		s.release()
	}
	s.page = nil
	s.release = nil
}

// WithSession starts s, runs fn and always stops s, also when fn panics
func WithSession(ctx context.Context, s *Session, fn func(ctx context.Context, page Page) error) error {
	defer s.Stop()

	page, err := s.Start(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, page)
}

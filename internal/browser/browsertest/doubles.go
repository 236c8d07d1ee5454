package browsertest

import (
	"context"
	"sync"
	"time"

	"github.com/nexconsult/goc-sync/internal/browser"
)

// FakeClock advances instantly on Sleep
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

var _ browser.Clock = (*FakeClock)(nil)

// NewFakeClock starts at a fixed instant
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

// Slept returns the total simulated sleep
func (c *FakeClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

// Launcher hands out a FakePage and counts launches and releases
type Launcher struct {
	mu       sync.Mutex
	NewPage  func() *FakePage
	Err      error
	Pages    []*FakePage
	Released int
}

// Launch implements browser.Launcher
func (l *Launcher) Launch(ctx context.Context) (browser.Page, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, nil, l.Err
	}
	p := NewFakePage()
	if l.NewPage != nil {
		p = l.NewPage()
	}
	l.Pages = append(l.Pages, p)
	return p, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.Released++
	}, nil
}

// Launches returns how many pages were handed out
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Pages)
}

// Releases returns how many release funcs ran
func (l *Launcher) Releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.Released
}

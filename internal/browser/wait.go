package browser

import (
	"context"
	"time"
)

// Clock abstracts time so bounded waits run instantly in tests
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll evaluates cond until it reports true, returns an error, or timeout
// elapses. cond is always evaluated at least once. Exhausting the timeout
// returns ErrWaitTimeout.
func Poll(ctx context.Context, clock Clock, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := clock.Now().Add(timeout)

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return ErrWaitTimeout
		}
		if err := clock.Sleep(ctx, min(interval, remaining)); err != nil {
			return err
		}
	}
}

// WaitFor polls q until an interactable match appears
func WaitFor(ctx context.Context, page Page, clock Clock, q Query, timeout, interval time.Duration) (Element, error) {
	var found Element
	err := Poll(ctx, clock, timeout, interval, func(ctx context.Context) (bool, error) {
		els, err := page.FindAll(ctx, q)
		if err != nil {
			return false, nil
		}
		el, ok := FirstInteractable(els)
		if ok {
			found = el
		}
		return ok, nil
	})
	return found, err
}

// WaitPresent polls q until any match exists, visible or not
func WaitPresent(ctx context.Context, page Page, clock Clock, q Query, timeout, interval time.Duration) error {
	return Poll(ctx, clock, timeout, interval, func(ctx context.Context) (bool, error) {
		els, err := page.FindAll(ctx, q)
		return err == nil && len(els) > 0, nil
	})
}

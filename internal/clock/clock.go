package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancelable scheduled callback
type Timer interface {
	// Stop cancels the timer. It reports whether the callback was prevented
	// from running.
	Stop() bool
}

// Clock abstracts time so timing-dependent components can be driven by a fake
// in tests instead of waiting on the wall clock.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the wall-clock implementation
type Real struct{}

// NewReal returns a Clock backed by the system clock
func NewReal() *Real {
	return &Real{}
}

// Now returns the current wall-clock time
func (r *Real) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f after d on the system clock
func (r *Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Fake is a manually advanced clock for tests
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

type fakeTimer struct {
	clock    *Fake
	id       int
	deadline time.Time
	f        func()
	stopped  bool
}

// Stop cancels the pending callback
func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewFake returns a fake clock starting at the given time
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake clock's current time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules fn to fire once the fake clock is advanced past d
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	t := &fakeTimer{
		clock:    f,
		id:       f.nextID,
		deadline: f.now.Add(d),
		f:        fn,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the clock forward and fires due timers in deadline order.
// Callbacks run synchronously on the calling goroutine and may schedule
// further timers, which fire too if they fall inside the advanced span.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		next := f.nextDueLocked(target)
		if next == nil {
			break
		}
		if next.deadline.After(f.now) {
			f.now = next.deadline
		}
		next.stopped = true
		fn := next.f
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

// nextDueLocked returns the earliest unstopped timer due at or before target,
// breaking ties by scheduling order
func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	pending := make([]*fakeTimer, 0, len(f.timers))
	for _, t := range f.timers {
		if !t.stopped {
			pending = append(pending, t)
		}
	}
	f.timers = pending

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].deadline.Equal(pending[j].deadline) {
			return pending[i].id < pending[j].id
		}
		return pending[i].deadline.Before(pending[j].deadline)
	})

	for _, t := range pending {
		if !t.deadline.After(target) {
			return t
		}
	}
	return nil
}

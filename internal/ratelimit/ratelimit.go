package ratelimit

import (
	"time"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
)

// Decision is the admission outcome for a notification
type Decision int

const (
	// Admit fires the notification's channels immediately
	Admit Decision = iota
	// Batch stores the notification but defers channel dispatch into a group
	Batch
	// Drop stores the notification without any channel dispatch
	Drop
)

// String returns the metric label for the decision
func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case Batch:
		return "batch"
	default:
		return "drop"
	}
}

// Admission reasons
const (
	ReasonQuietHours = "quiet_hours"
	ReasonRateLimit  = "rate_limit"
)

// Result couples the decision with the reason for a non-admit outcome
type Result struct {
	Decision Decision
	Reason   string
}

// Limiter evaluates sliding-window admission ceilings per category. Windows
// are pruned lazily on each check; no background sweeping.
type Limiter struct {
	log     *logging.Logger
	clock   clock.Clock
	windows map[domain.Category][]time.Time
}

// New creates an empty limiter
func New(log *logging.Logger, clk clock.Clock) *Limiter {
	return &Limiter{
		log:     log.Named("ratelimit"),
		clock:   clk,
		windows: make(map[domain.Category][]time.Time),
	}
}

// Admit decides whether the notification's channels fire now, get batched, or
// are dropped. Urgent priority bypasses quiet hours and ceilings entirely.
// quiet is the preference engine's quiet-hours verdict for this priority.
func (l *Limiter) Admit(n *domain.Notification, limits domain.RateLimits, quiet bool) Result {
	if n.Priority == domain.PriorityUrgent {
		l.record(n.Category)
		return Result{Decision: Admit}
	}

	if quiet {
		return Result{Decision: Drop, Reason: ReasonQuietHours}
	}

	now := l.clock.Now()
	window := l.prune(n.Category, now)

	if exceeds(window, now, time.Minute, limits.MaxPerMinute) ||
		exceeds(window, now, time.Hour, limits.MaxPerHour) {
		if limits.BatchingEnabled {
			return Result{Decision: Batch, Reason: ReasonRateLimit}
		}
		return Result{Decision: Drop, Reason: ReasonRateLimit}
	}

	l.record(n.Category)
	return Result{Decision: Admit}
}

// record appends an admission timestamp to the category window
func (l *Limiter) record(cat domain.Category) {
	l.windows[cat] = append(l.windows[cat], l.clock.Now())
}

// prune discards window entries older than the hour horizon and returns the
// remaining slice
func (l *Limiter) prune(cat domain.Category, now time.Time) []time.Time {
	horizon := now.Add(-time.Hour)
	window := l.windows[cat]

	keep := 0
	for keep < len(window) && !window[keep].After(horizon) {
		keep++
	}
	if keep > 0 {
		window = window[keep:]
		l.windows[cat] = window
	}
	return window
}

// exceeds reports whether admitting one more would break the ceiling for the
// given span. A non-positive ceiling means unlimited.
func exceeds(window []time.Time, now time.Time, span time.Duration, ceiling int) bool {
	if ceiling <= 0 {
		return false
	}

	cutoff := now.Add(-span)
	count := 0
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].After(cutoff) {
			count++
		} else {
			break
		}
	}
	return count >= ceiling
}

package prefs

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
)

// Engine owns the process-wide preference set. Mutation goes through a single
// atomic replace: Update builds a complete new value and swaps one pointer, so
// an admission decision mid-flight never observes a half-applied change.
// All access is serialized by the delivery engine's loop.
type Engine struct {
	log      *logging.Logger
	clock    clock.Clock
	storage  domain.PreferenceStore
	provider domain.PushProvider

	current *domain.Preferences

	subscribers map[int]func(domain.Preferences)
	nextSub     int
}

// New loads preferences from storage, falling back to defaults when storage
// is empty or unreadable
func New(log *logging.Logger, clk clock.Clock, storage domain.PreferenceStore, provider domain.PushProvider) *Engine {
	e := &Engine{
		log:         log.Named("prefs"),
		clock:       clk,
		storage:     storage,
		provider:    provider,
		subscribers: make(map[int]func(domain.Preferences)),
	}

	loaded, err := storage.Load()
	if err != nil {
		e.log.Warnf("failed to load preferences, using defaults: %v", err)
		loaded = domain.DefaultPreferences()
	}
	// Categories added since the preferences were saved get default entries
	for _, cat := range domain.Categories() {
		if _, ok := loaded.PerCategory[cat]; !ok {
			if loaded.PerCategory == nil {
				loaded.PerCategory = make(map[domain.Category]domain.CategoryPrefs)
			}
			loaded.PerCategory[cat] = domain.DefaultPreferences().PerCategory[cat]
		}
	}
	e.current = &loaded

	return e
}

// Current returns a copy of the active preference set. The copy is deep so a
// caller mutating it to build an update cannot disturb concurrent readers of
// the active set.
func (e *Engine) Current() domain.Preferences {
	return e.current.Clone()
}

// Update atomically replaces the preference set and persists it. Subscribers
// are told after the swap.
func (e *Engine) Update(next domain.Preferences) error {
	replaced := next.Clone()
	e.current = &replaced

	if err := e.storage.Save(replaced); err != nil {
		// The in-memory set already changed; persistence failure is logged,
		// not rolled back, matching the local-and-non-fatal recovery policy
		e.log.Errorf("failed to persist preferences: %v", err)
	}

	for _, fn := range e.subscribers {
		fn(replaced)
	}
	return nil
}

// Patch carries a partial preference update; nil fields keep current values
type Patch struct {
	Enabled     *bool                                    `json:"enabled,omitempty"`
	PerCategory map[domain.Category]domain.CategoryPrefs `json:"per_category,omitempty"`
	QuietHours  *domain.QuietHours                       `json:"quiet_hours,omitempty"`
	RateLimits  *domain.RateLimits                       `json:"rate_limits,omitempty"`
	PushEnabled *bool                                    `json:"push_enabled,omitempty"`
}

// Apply merges the patch over the current set and performs the atomic replace
func (e *Engine) Apply(patch Patch) error {
	next := e.current.Clone()

	if patch.Enabled != nil {
		next.Enabled = *patch.Enabled
	}
	for cat, cp := range patch.PerCategory {
		if _, ok := next.PerCategory[cat]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrInvalidCategory, cat)
		}
		next.PerCategory[cat] = cp
	}
	if patch.QuietHours != nil {
		next.QuietHours = *patch.QuietHours
	}
	if patch.RateLimits != nil {
		next.RateLimits = *patch.RateLimits
	}
	if patch.PushEnabled != nil {
		next.Push.Enabled = *patch.PushEnabled
	}

	return e.Update(next)
}

// KnownCategory reports whether the category has a preference entry
func (e *Engine) KnownCategory(cat domain.Category) bool {
	_, ok := e.current.PerCategory[cat]
	return ok
}

// ShouldDeliver decides whether a channel is open for a category: the global
// switch, the category switch and the channel toggle must all be on, and push
// additionally requires granted permission.
func (e *Engine) ShouldDeliver(cat domain.Category, ch domain.Channel) bool {
	p := e.current

	if !p.Enabled {
		return false
	}

	cp, ok := p.PerCategory[cat]
	if !ok || !cp.Enabled || !cp.Channel(ch) {
		return false
	}

	if ch == domain.ChannelPush {
		if !p.Push.Enabled || p.Push.Permission != domain.PermissionGranted {
			return false
		}
	}

	return true
}

// QuietNow reports whether quiet hours currently suppress the given priority.
// Urgent notifications are never suppressed. A window with End before Start
// wraps past midnight.
func (e *Engine) QuietNow(priority domain.Priority) bool {
	if priority == domain.PriorityUrgent {
		return false
	}

	qh := e.current.QuietHours
	if !qh.Enabled {
		return false
	}

	now := e.clock.Now()
	if !slices.Contains(qh.Weekdays, now.Weekday()) {
		return false
	}

	start, err := parseClockTime(qh.Start)
	if err != nil {
		e.log.Warnf("invalid quiet hours start %q: %v", qh.Start, err)
		return false
	}
	end, err := parseClockTime(qh.End)
	if err != nil {
		e.log.Warnf("invalid quiet hours end %q: %v", qh.End, err)
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Window spans midnight
	return minute >= start || minute < end
}

// RequestPushPermission delegates to the platform provider and records the
// resulting state in the preference set
func (e *Engine) RequestPushPermission(ctx context.Context) (domain.PermissionState, error) {
	state, err := e.provider.RequestPermission(ctx)
	if err != nil {
		return e.current.Push.Permission, fmt.Errorf("push permission request failed: %w", err)
	}

	next := e.current.Clone()
	next.Push.Permission = state
	if err := e.Update(next); err != nil {
		return state, err
	}

	return state, nil
}

// Subscribe registers a callback invoked after every preference replace
func (e *Engine) Subscribe(fn func(domain.Preferences)) int {
	e.nextSub++
	e.subscribers[e.nextSub] = fn
	return e.nextSub
}

// Unsubscribe removes a previously registered callback
func (e *Engine) Unsubscribe(token int) {
	delete(e.subscribers, token)
}

// parseClockTime parses "15:04" into minutes since midnight
func parseClockTime(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

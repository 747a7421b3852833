package store

import (
	"iter"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
)

// ChangeKind classifies a store change event
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeCleared ChangeKind = "cleared"
)

// Change is delivered to subscribers after every store mutation. Notification
// is nil for ChangeCleared.
type Change struct {
	Kind         ChangeKind
	Notification *domain.Notification
}

// Subscriber receives store change events. Callbacks run inside the engine
// loop and must not block.
type Subscriber func(Change)

// Store holds all notification records in insertion order. It is not safe for
// concurrent use on its own; the engine serializes access through its loop.
type Store struct {
	log   *logging.Logger
	clock clock.Clock

	// knownCategory is supplied by the preference engine so creation rejects
	// categories with no preference entry
	knownCategory func(domain.Category) bool

	byID  map[string]*domain.Notification
	order []string

	// counters maintained on every transition so Unread/Stats never rescan
	unread     int64
	read       int64
	dismissed  int64
	byCategory map[domain.Category]int64
	byPriority map[domain.Priority]int64

	subscribers map[int]Subscriber
	nextSub     int
}

// New creates an empty store. knownCategory decides which categories are
// accepted at creation.
func New(log *logging.Logger, clk clock.Clock, knownCategory func(domain.Category) bool) *Store {
	return &Store{
		log:           log.Named("store"),
		clock:         clk,
		knownCategory: knownCategory,
		byID:          make(map[string]*domain.Notification),
		byCategory:    make(map[domain.Category]int64),
		byPriority:    make(map[domain.Priority]int64),
		subscribers:   make(map[int]Subscriber),
	}
}

// Create validates the spec, assigns identity and appends the record unread.
// Delivery decisions happen elsewhere; creation alone never dispatches.
func (s *Store) Create(spec domain.CreateSpec) (*domain.Notification, error) {
	if !s.knownCategory(spec.Category) {
		s.log.Warnf("rejected notification with unknown category %q", spec.Category)
		return nil, domain.ErrInvalidCategory
	}

	n := &domain.Notification{
		ID:              uuid.New().String(),
		Category:        spec.Category,
		Priority:        spec.Priority,
		Title:           spec.Title,
		Body:            spec.Body,
		Metadata:        spec.Metadata,
		Actions:         slices.Clone(spec.Actions),
		Persistent:      spec.Persistent,
		DisplayDuration: spec.DisplayDuration,
		CreatedAt:       s.clock.Now(),
		State:           domain.StateUnread,
	}

	s.byID[n.ID] = n
	s.order = append(s.order, n.ID)
	s.unread++
	s.byCategory[n.Category]++
	s.byPriority[n.Priority]++

	s.notify(Change{Kind: ChangeCreated, Notification: n})
	return n, nil
}

// Get returns the record for id, or ErrNotFound
func (s *Store) Get(id string) (*domain.Notification, error) {
	n, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return n, nil
}

// MarkRead transitions an unread record to read. Reading an already read or
// dismissed record is a no-op; an unknown id returns ErrNotFound.
func (s *Store) MarkRead(id string) error {
	n, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}

	if n.State != domain.StateUnread {
		return nil
	}

	now := s.clock.Now()
	n.State = domain.StateRead
	n.ReadAt = &now
	s.unread--
	s.read++

	s.notify(Change{Kind: ChangeUpdated, Notification: n})
	return nil
}

// Dismiss transitions a record to the terminal dismissed state. Dismissing an
// already dismissed record is a no-op.
func (s *Store) Dismiss(id string) error {
	n, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}

	if n.State == domain.StateDismissed {
		return nil
	}

	now := s.clock.Now()
	switch n.State {
	case domain.StateUnread:
		s.unread--
	case domain.StateRead:
		s.read--
	}
	n.State = domain.StateDismissed
	n.DismissedAt = &now
	s.dismissed++

	s.notify(Change{Kind: ChangeUpdated, Notification: n})
	return nil
}

// Delete removes a record entirely. Unlike Dismiss this is destructive; the
// record no longer appears in List.
func (s *Store) Delete(id string) error {
	n, ok := s.byID[id]
	if !ok {
		return domain.ErrNotFound
	}

	delete(s.byID, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}

	switch n.State {
	case domain.StateUnread:
		s.unread--
	case domain.StateRead:
		s.read--
	case domain.StateDismissed:
		s.dismissed--
	}
	s.byCategory[n.Category]--
	s.byPriority[n.Priority]--

	s.notify(Change{Kind: ChangeDeleted, Notification: n})
	return nil
}

// MarkAllRead transitions every unread record to read
func (s *Store) MarkAllRead() {
	now := s.clock.Now()
	for _, id := range s.order {
		n := s.byID[id]
		if n.State != domain.StateUnread {
			continue
		}
		at := now
		n.State = domain.StateRead
		n.ReadAt = &at
		s.unread--
		s.read++
		s.notify(Change{Kind: ChangeUpdated, Notification: n})
	}
}

// Clear removes every record
func (s *Store) Clear() {
	s.byID = make(map[string]*domain.Notification)
	s.order = nil
	s.unread = 0
	s.read = 0
	s.dismissed = 0
	s.byCategory = make(map[domain.Category]int64)
	s.byPriority = make(map[domain.Priority]int64)

	s.notify(Change{Kind: ChangeCleared})
}

// List returns a lazy, restartable sequence over a snapshot of the insertion
// order, filtered. Mutations after the call do not perturb an in-progress
// iteration.
func (s *Store) List(filter domain.Filter) iter.Seq[*domain.Notification] {
	snapshot := slices.Clone(s.order)
	byID := s.byID

	return func(yield func(*domain.Notification) bool) {
		skipped := 0
		yielded := 0
		for _, id := range snapshot {
			n, ok := byID[id]
			if !ok || !matches(n, filter) {
				continue
			}
			if skipped < filter.Offset {
				skipped++
				continue
			}
			if filter.Limit > 0 && yielded >= filter.Limit {
				return
			}
			if !yield(n) {
				return
			}
			yielded++
		}
	}
}

// Unread returns the maintained unread count
func (s *Store) Unread() int64 {
	return s.unread
}

// Stats assembles the maintained counters
func (s *Store) Stats() domain.Stats {
	stats := domain.Stats{
		Total:      int64(len(s.order)),
		Unread:     s.unread,
		Read:       s.read,
		Dismissed:  s.dismissed,
		ByCategory: make(map[string]int64),
		ByPriority: make(map[string]int64),
	}
	for cat, count := range s.byCategory {
		if count > 0 {
			stats.ByCategory[string(cat)] = count
		}
	}
	for prio, count := range s.byPriority {
		if count > 0 {
			stats.ByPriority[prio.String()] = count
		}
	}
	return stats
}

// Subscribe registers a change callback and returns a token for Unsubscribe
func (s *Store) Subscribe(fn Subscriber) int {
	s.nextSub++
	s.subscribers[s.nextSub] = fn
	return s.nextSub
}

// Unsubscribe removes a previously registered callback
func (s *Store) Unsubscribe(token int) {
	delete(s.subscribers, token)
}

func (s *Store) notify(change Change) {
	for _, fn := range s.subscribers {
		fn(change)
	}
}

func matches(n *domain.Notification, f domain.Filter) bool {
	if len(f.Categories) > 0 && !slices.Contains(f.Categories, n.Category) {
		return false
	}

	if len(f.Priorities) > 0 && !slices.Contains(f.Priorities, n.Priority) {
		return false
	}

	if len(f.States) > 0 && !slices.Contains(f.States, n.State) {
		return false
	}

	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(n.Title), needle) &&
			!strings.Contains(strings.ToLower(n.Body), needle) {
			return false
		}
	}

	if f.CreatedAfter != nil && n.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}

	if f.CreatedBefore != nil && n.CreatedAt.After(*f.CreatedBefore) {
		return false
	}

	return true
}

// Collect drains a sequence into a slice; a convenience for API layers that
// need the whole result at once.
func Collect(seq iter.Seq[*domain.Notification]) []*domain.Notification {
	var out []*domain.Notification
	for n := range seq {
		out = append(out, n)
	}
	return out
}

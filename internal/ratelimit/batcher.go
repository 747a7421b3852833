package ratelimit

import (
	"github.com/lessonpulse/notify/internal/domain"
)

// Group is a pending batch of same-category notifications awaiting a grouped
// flush. Head is the first notification batched; Count covers Head and
// everything merged after it. All retains every member for ungrouped flushes.
type Group struct {
	Head  *domain.Notification
	Count int
	All   []*domain.Notification
}

// Batcher accumulates Batch-resulted notifications per category. A group is
// flushed either when a later notification of the same category is admitted
// (merged into that dispatch) or when the grouping interval elapses; the
// engine owns the interval timer and calls Take.
type Batcher struct {
	groups map[domain.Category]*Group
}

// NewBatcher creates an empty batcher
func NewBatcher() *Batcher {
	return &Batcher{groups: make(map[domain.Category]*Group)}
}

// Add folds a batched notification into its category group. It reports
// whether this started a new group, which is the engine's cue to arm the
// flush timer.
func (b *Batcher) Add(n *domain.Notification) bool {
	g, ok := b.groups[n.Category]
	if !ok {
		b.groups[n.Category] = &Group{Head: n, Count: 1, All: []*domain.Notification{n}}
		return true
	}
	g.Count++
	g.All = append(g.All, n)
	return false
}

// Take removes and returns the pending group for a category
func (b *Batcher) Take(cat domain.Category) (*Group, bool) {
	g, ok := b.groups[cat]
	if ok {
		delete(b.groups, cat)
	}
	return g, ok
}

// Pending reports whether a category has an open group
func (b *Batcher) Pending(cat domain.Category) bool {
	_, ok := b.groups[cat]
	return ok
}

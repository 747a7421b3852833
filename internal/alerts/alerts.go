package alerts

import (
	"time"

	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
)

// VisualState is the display state of a transient alert
type VisualState string

const (
	// StateActive means the countdown is running and the alert is visible
	StateActive VisualState = "active"
	// StateClosing means the exit transition is playing
	StateClosing VisualState = "closing"
	// StateRemoved is terminal; the alert left the visible set
	StateRemoved VisualState = "removed"
)

// Alert is the ephemeral on-screen representation of a notification. It
// references the Store record by id; removing the alert never touches the
// record itself.
type Alert struct {
	NotificationID string
	Notification   *domain.Notification

	// Duration is the countdown length; zero means no auto-expiry
	Duration time.Duration

	// Deadline is when the countdown expires; zero for persistent alerts
	Deadline time.Time

	// Grouped carries the collapsed count for a batched dispatch
	Grouped int

	State VisualState
}

// View is a read-only snapshot entry for hosts rendering the alert stack
type View struct {
	NotificationID string          `json:"notification_id"`
	Title          string          `json:"title"`
	Body           string          `json:"body"`
	Category       domain.Category `json:"category"`
	Priority       domain.Priority `json:"priority"`
	Grouped        int             `json:"grouped,omitempty"`
	State          VisualState     `json:"state"`
	Remaining      time.Duration   `json:"remaining"`
	Actions        []domain.Action `json:"actions,omitempty"`
}

// Manager runs the per-alert state machines. Timer callbacks are handed to
// run, which the engine points at its loop, so all state mutation stays
// single-threaded.
type Manager struct {
	log   *logging.Logger
	clock clock.Clock
	run   func(func())

	maxVisible int
	exitDelay  time.Duration

	visible []*Alert
	queued  []*Alert

	// timers is the arena of pending countdown/exit timers keyed by alert id
	timers map[string]clock.Timer

	onChange func(visible int)
}

// New creates an alert manager. run must execute its argument on the engine
// loop; onChange (optional) observes the visible count after every change.
func New(log *logging.Logger, clk clock.Clock, maxVisible int, exitDelay time.Duration, run func(func()), onChange func(visible int)) *Manager {
	if maxVisible <= 0 {
		maxVisible = 3
	}

	return &Manager{
		log:        log.Named("alerts"),
		clock:      clk,
		run:        run,
		maxVisible: maxVisible,
		exitDelay:  exitDelay,
		timers:     make(map[string]clock.Timer),
		onChange:   onChange,
	}
}

// Show admits a notification to the in-app channel. If the visible set is
// full the alert queues and is promoted FIFO as older alerts are removed.
// A zero duration (or a persistent notification) disables auto-expiry.
func (m *Manager) Show(n *domain.Notification, duration time.Duration, grouped int) {
	if n.Persistent {
		duration = 0
	}

	alert := &Alert{
		NotificationID: n.ID,
		Notification:   n,
		Duration:       duration,
		Grouped:        grouped,
		State:          StateActive,
	}

	if len(m.visible) >= m.maxVisible {
		m.queued = append(m.queued, alert)
		m.log.Debugf("alert %s queued (%d visible, %d waiting)", n.ID, len(m.visible), len(m.queued))
		return
	}

	m.activate(alert)
}

// activate makes the alert visible and arms its countdown
func (m *Manager) activate(alert *Alert) {
	m.visible = append(m.visible, alert)

	if alert.Duration > 0 {
		alert.Deadline = m.clock.Now().Add(alert.Duration)
		id := alert.NotificationID
		m.timers[id] = m.clock.AfterFunc(alert.Duration, func() {
			m.run(func() { m.beginClose(id) })
		})
	}

	m.changed()
}

// Dismiss closes an alert immediately regardless of remaining time. Unknown
// ids are ignored; a queued alert is silently unqueued.
func (m *Manager) Dismiss(id string) {
	for i, alert := range m.queued {
		if alert.NotificationID == id {
			alert.State = StateRemoved
			m.queued = append(m.queued[:i], m.queued[i+1:]...)
			return
		}
	}

	m.beginClose(id)
}

// beginClose transitions active -> closing and arms the exit transition
func (m *Manager) beginClose(id string) {
	alert := m.find(id)
	if alert == nil || alert.State != StateActive {
		return
	}

	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}

	alert.State = StateClosing

	if m.exitDelay <= 0 {
		m.remove(id)
		return
	}

	m.timers[id] = m.clock.AfterFunc(m.exitDelay, func() {
		m.run(func() { m.remove(id) })
	})
}

// remove finishes the lifecycle and promotes the next queued alert
func (m *Manager) remove(id string) {
	alert := m.find(id)
	if alert == nil || alert.State == StateRemoved {
		return
	}

	if t, ok := m.timers[id]; ok {
		t.Stop()
		delete(m.timers, id)
	}

	alert.State = StateRemoved
	for i, a := range m.visible {
		if a.NotificationID == id {
			m.visible = append(m.visible[:i], m.visible[i+1:]...)
			break
		}
	}

	if len(m.queued) > 0 && len(m.visible) < m.maxVisible {
		next := m.queued[0]
		m.queued = m.queued[1:]
		m.activate(next)
		return
	}

	m.changed()
}

// Snapshot returns the visible alerts in display order with remaining time
func (m *Manager) Snapshot() []View {
	now := m.clock.Now()
	out := make([]View, 0, len(m.visible))
	for _, alert := range m.visible {
		view := View{
			NotificationID: alert.NotificationID,
			Title:          alert.Notification.Title,
			Body:           alert.Notification.Body,
			Category:       alert.Notification.Category,
			Priority:       alert.Notification.Priority,
			Grouped:        alert.Grouped,
			State:          alert.State,
			Actions:        alert.Notification.Actions,
		}
		if !alert.Deadline.IsZero() && alert.State == StateActive {
			if remaining := alert.Deadline.Sub(now); remaining > 0 {
				view.Remaining = remaining
			}
		}
		out = append(out, view)
	}
	return out
}

// VisibleCount returns how many alerts are currently on screen
func (m *Manager) VisibleCount() int {
	return len(m.visible)
}

// QueuedCount returns how many alerts await promotion
func (m *Manager) QueuedCount() int {
	return len(m.queued)
}

func (m *Manager) find(id string) *Alert {
	for _, alert := range m.visible {
		if alert.NotificationID == id {
			return alert
		}
	}
	return nil
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange(len(m.visible))
	}
}

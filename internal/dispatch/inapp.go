package dispatch

import (
	"context"
	"time"

	"github.com/lessonpulse/notify/internal/alerts"
	"github.com/lessonpulse/notify/internal/domain"
)

// InAppSink admits notifications to the transient alert stack. The display
// duration is the category default unless the creation spec overrode it;
// persistent notifications never auto-expire.
type InAppSink struct {
	manager  *alerts.Manager
	duration func(domain.Category) time.Duration
}

// NewInAppSink creates the in-app alert sink. duration maps a category to its
// default display duration.
func NewInAppSink(manager *alerts.Manager, duration func(domain.Category) time.Duration) *InAppSink {
	return &InAppSink{manager: manager, duration: duration}
}

// Channel returns the in-app alert channel
func (s *InAppSink) Channel() domain.Channel {
	return domain.ChannelInAppAlert
}

// Deliver creates the transient alert and starts its countdown
func (s *InAppSink) Deliver(ctx context.Context, n *domain.Notification, grouped int) error {
	d := s.duration(n.Category)
	if n.DisplayDuration > 0 {
		d = n.DisplayDuration
	}

	s.manager.Show(n, d, grouped)
	return nil
}

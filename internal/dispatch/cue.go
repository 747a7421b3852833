package dispatch

import (
	"context"

	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
)

// CueFunc fires a stateless sound or vibration cue on the host platform
type CueFunc func(n *domain.Notification) error

// CueSink fires fire-and-forget cues. There is no retry and no persisted
// state; an unsupported or failing cue is logged at debug and otherwise
// ignored, so Deliver never reports an error.
type CueSink struct {
	log     *logging.Logger
	channel domain.Channel
	fire    CueFunc
}

// NewSoundSink creates the sound cue sink
func NewSoundSink(log *logging.Logger, fire CueFunc) *CueSink {
	return &CueSink{log: log.Named("sound"), channel: domain.ChannelSound, fire: fire}
}

// NewVibrationSink creates the vibration cue sink
func NewVibrationSink(log *logging.Logger, fire CueFunc) *CueSink {
	return &CueSink{log: log.Named("vibration"), channel: domain.ChannelVibration, fire: fire}
}

// Channel returns the cue's channel
func (s *CueSink) Channel() domain.Channel {
	return s.channel
}

// Deliver fires the cue, swallowing failures by contract
func (s *CueSink) Deliver(ctx context.Context, n *domain.Notification, grouped int) error {
	if s.fire == nil {
		return nil
	}
	if err := s.fire(n); err != nil {
		s.log.Debugf("cue failed for notification %s: %v", n.ID, err)
	}
	return nil
}

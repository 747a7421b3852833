package dispatch

import (
	"context"
	"fmt"

	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/pkg/metrics"
)

// Dispatcher fans an admitted notification out to its requested channels.
// Channels are independent: a sink failure is logged and counted, never
// propagated, and never affects the Store record or the other channels.
type Dispatcher struct {
	log     *logging.Logger
	metrics *metrics.Metrics
	sinks   map[domain.Channel]domain.ChannelSink
}

// New creates a dispatcher with no sinks registered
func New(log *logging.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		log:     log.Named("dispatch"),
		metrics: m,
		sinks:   make(map[domain.Channel]domain.ChannelSink),
	}
}

// Register adds a sink for its channel. Registering a channel twice is an
// error; replacing a sink at runtime is not supported.
func (d *Dispatcher) Register(sink domain.ChannelSink) error {
	ch := sink.Channel()
	if _, exists := d.sinks[ch]; exists {
		return fmt.Errorf("sink already registered for channel: %s", ch)
	}
	d.sinks[ch] = sink
	return nil
}

// Channels returns the channels with a registered sink
func (d *Dispatcher) Channels() []domain.Channel {
	out := make([]domain.Channel, 0, len(d.sinks))
	for _, ch := range domain.Channels() {
		if _, ok := d.sinks[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Dispatch delivers the notification on every admitted channel. Grouped
// carries the collapsed batch count, zero for a single notification.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification, channels []domain.Channel, grouped int) {
	for _, ch := range channels {
		sink, ok := d.sinks[ch]
		if !ok {
			d.log.Debugf("no sink for channel %s, skipping", ch)
			continue
		}

		if err := sink.Deliver(ctx, n, grouped); err != nil {
			d.log.Errorf("channel %s failed for notification %s: %v", ch, n.ID, err)
			d.metrics.ChannelFailed(string(ch))
			continue
		}
		d.metrics.ChannelDispatched(string(ch))
	}
}

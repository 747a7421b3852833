package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/pkg/metrics"
)

// Frame is the wire shape of an event-stream message
type Frame struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Listener maintains the websocket connection to the backend event stream and
// forwards frames to the engine. It only ever hands work to the engine loop;
// it never mutates engine state directly.
//
// On disconnect it redials with capped exponential backoff. Missed events are
// not replayed; the protocol has no cursor to request them.
type Listener struct {
	log     *logging.Logger
	metrics *metrics.Metrics

	url        string
	backoffMin time.Duration
	backoffMax time.Duration

	dialer *websocket.Dialer

	// handle is called for every decoded frame; the engine points it at its
	// loop-enqueueing HandleEvent
	handle func(eventType string, data map[string]interface{})
}

// NewListener creates a listener for the given stream URL
func NewListener(log *logging.Logger, m *metrics.Metrics, url string, backoffMin, backoffMax time.Duration, handle func(string, map[string]interface{})) *Listener {
	if backoffMin <= 0 {
		backoffMin = time.Second
	}
	if backoffMax < backoffMin {
		backoffMax = 30 * time.Second
	}

	return &Listener{
		log:        log.Named("stream"),
		metrics:    m,
		url:        url,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
		dialer:     websocket.DefaultDialer,
		handle:     handle,
	}
}

// Run connects and consumes frames until the context is canceled. It returns
// only on cancellation; connection failures are retried with backoff.
//
// The reconnect counter covers re-dials after a connection existed; dial
// failures before the first connect are not reconnects.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.backoffMin
	connected := false

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.log.Warnf("event stream dial failed: %v (retrying in %s)", err, backoff)
			if connected {
				l.metrics.StreamReconnect()
			}
			if !sleep(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, l.backoffMax)
			continue
		}

		l.log.Infof("event stream connected to %s", l.url)
		connected = true
		backoff = l.backoffMin

		l.consume(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		l.log.Warn("event stream disconnected, reconnecting")
		l.metrics.StreamReconnect()
		if !sleep(ctx, backoff) {
			return
		}
	}
}

// consume reads frames until the connection drops or the context ends
func (l *Listener) consume(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context is canceled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			l.log.Warnf("dropping undecodable frame: %v", err)
			l.metrics.EventMalformed()
			continue
		}
		if frame.Type == "" {
			l.log.Warn("dropping frame with empty type")
			l.metrics.EventMalformed()
			continue
		}

		l.handle(frame.Type, frame.Data)
	}
}

// sleep waits for d or until the context ends; it reports whether the full
// wait elapsed
func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

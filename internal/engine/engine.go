package engine

import (
	"context"
	"errors"
	"time"

	"github.com/lessonpulse/notify/internal/alerts"
	"github.com/lessonpulse/notify/internal/clock"
	"github.com/lessonpulse/notify/internal/dispatch"
	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/ingest"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/internal/prefs"
	"github.com/lessonpulse/notify/internal/ratelimit"
	"github.com/lessonpulse/notify/internal/store"
	"github.com/lessonpulse/notify/pkg/metrics"
)

// ErrStopped is returned for API calls against a stopped engine
var ErrStopped = errors.New("engine is stopped")

// Options tunes the delivery engine
type Options struct {
	// MaxVisibleAlerts bounds simultaneous in-app alerts
	MaxVisibleAlerts int

	// ExitTransition is the closing-state linger before removal
	ExitTransition time.Duration

	// GroupingInterval is how long a batch group waits for a merge before it
	// flushes on its own
	GroupingInterval time.Duration

	// DisplayDuration maps a category to its default in-app alert duration
	DisplayDuration func(domain.Category) time.Duration
}

// Engine is the notification delivery engine: a single-threaded cooperative
// loop tying the store, preference engine, rate limiter, dispatcher and alert
// manager together. Every public method runs its work as one task on the
// loop; alert timers and the event-stream listener enqueue tasks rather than
// touching state, so no locking is needed anywhere in the pipeline.
type Engine struct {
	log     *logging.Logger
	metrics *metrics.Metrics
	clock   clock.Clock

	store      *store.Store
	prefs      *prefs.Engine
	limiter    *ratelimit.Limiter
	batcher    *ratelimit.Batcher
	dispatcher *dispatch.Dispatcher
	alerts     *alerts.Manager
	adapter    *ingest.Adapter

	groupingInterval time.Duration
	flushTimers      map[domain.Category]clock.Timer

	tasks   chan func()
	stop    chan struct{}
	stopped chan struct{}
}

// New wires up a complete engine. The in-app and push sinks are registered
// here; sound and vibration cues are added with RegisterSink before Start.
func New(log *logging.Logger, m *metrics.Metrics, clk clock.Clock, storage domain.PreferenceStore, provider domain.PushProvider, opts Options) (*Engine, error) {
	if opts.GroupingInterval <= 0 {
		opts.GroupingInterval = 5 * time.Second
	}
	if opts.DisplayDuration == nil {
		opts.DisplayDuration = func(domain.Category) time.Duration { return 5 * time.Second }
	}

	e := &Engine{
		log:              log.Named("engine"),
		metrics:          m,
		clock:            clk,
		groupingInterval: opts.GroupingInterval,
		flushTimers:      make(map[domain.Category]clock.Timer),
		tasks:            make(chan func(), 256),
		stop:             make(chan struct{}),
		stopped:          make(chan struct{}),
	}

	e.prefs = prefs.New(log, clk, storage, provider)
	e.store = store.New(log, clk, e.prefs.KnownCategory)
	e.limiter = ratelimit.New(log, clk)
	e.batcher = ratelimit.NewBatcher()
	e.dispatcher = dispatch.New(log, m)
	e.alerts = alerts.New(log, clk, opts.MaxVisibleAlerts, opts.ExitTransition, e.Async, m.SetActiveAlerts)
	e.adapter = ingest.NewAdapter(log, m)

	if err := e.dispatcher.Register(dispatch.NewInAppSink(e.alerts, opts.DisplayDuration)); err != nil {
		return nil, err
	}
	if err := e.dispatcher.Register(dispatch.NewPushSink(provider)); err != nil {
		return nil, err
	}

	return e, nil
}

// RegisterSink adds a channel sink; call before Start
func (e *Engine) RegisterSink(sink domain.ChannelSink) error {
	return e.dispatcher.Register(sink)
}

// Start launches the processing loop
func (e *Engine) Start(ctx context.Context) error {
	go e.loop(ctx)
	return nil
}

// Stop halts the loop. In-flight API calls fail with ErrStopped.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.stopped
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.stopped)
	for {
		select {
		case <-e.stop:
			return
		case <-ctx.Done():
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// Async enqueues work onto the loop without waiting. Work submitted after
// Stop is dropped; timer callbacks use this path.
func (e *Engine) Async(fn func()) {
	select {
	case e.tasks <- fn:
	case <-e.stop:
	case <-e.stopped:
	}
}

// do runs fn on the loop and waits for it to finish
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	select {
	case e.tasks <- func() {
		fn()
		close(done)
	}:
	case <-e.stop:
		return ErrStopped
	case <-e.stopped:
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

// CreateNotification stores a notification and runs the delivery pipeline:
// preference gating, admission, then channel dispatch. The record is stored
// even when every channel is suppressed.
//
// The returned notification is a clone; the loop keeps mutating the stored
// record, so live pointers never cross the loop boundary.
func (e *Engine) CreateNotification(ctx context.Context, spec domain.CreateSpec) (*domain.Notification, error) {
	var (
		n   *domain.Notification
		err error
	)
	if doErr := e.do(func() {
		created, createErr := e.create(ctx, spec)
		err = createErr
		if created != nil {
			n = created.Clone()
		}
	}); doErr != nil {
		return nil, doErr
	}
	return n, err
}

// create runs on the loop
func (e *Engine) create(ctx context.Context, spec domain.CreateSpec) (*domain.Notification, error) {
	n, err := e.store.Create(spec)
	if err != nil {
		return nil, err
	}
	e.metrics.NotificationCreated(string(n.Category))

	e.deliver(ctx, n)
	return n, nil
}

// deliver decides and fires channels for a freshly stored notification
func (e *Engine) deliver(ctx context.Context, n *domain.Notification) {
	requested := e.requestedChannels(n.Category)
	if len(requested) == 0 {
		e.log.Debugf("notification %s has no open channels", n.ID)
		return
	}

	limits := e.prefs.Current().RateLimits
	quiet := e.prefs.QuietNow(n.Priority)
	result := e.limiter.Admit(n, limits, quiet)
	e.metrics.AdmissionDecision(result.Decision.String(), result.Reason)

	switch result.Decision {
	case ratelimit.Admit:
		grouped := 0
		if limits.GroupSimilar {
			if group, ok := e.batcher.Take(n.Category); ok {
				// Merge the pending batch into this dispatch
				e.cancelFlush(n.Category)
				grouped = group.Count + 1
			}
		}
		e.dispatcher.Dispatch(ctx, n, requested, grouped)

	case ratelimit.Batch:
		if e.batcher.Add(n) {
			e.armFlush(n.Category)
		}
		e.log.Debugf("notification %s batched (%s)", n.ID, result.Reason)

	case ratelimit.Drop:
		e.log.Debugf("notification %s suppressed (%s), record kept", n.ID, result.Reason)
	}
}

// requestedChannels returns the channels the preference engine leaves open
// for a category
func (e *Engine) requestedChannels(cat domain.Category) []domain.Channel {
	var out []domain.Channel
	for _, ch := range domain.Channels() {
		if e.prefs.ShouldDeliver(cat, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// armFlush schedules the grouped flush for a category's pending batch
func (e *Engine) armFlush(cat domain.Category) {
	e.flushTimers[cat] = e.clock.AfterFunc(e.groupingInterval, func() {
		e.Async(func() { e.flush(cat) })
	})
}

func (e *Engine) cancelFlush(cat domain.Category) {
	if t, ok := e.flushTimers[cat]; ok {
		t.Stop()
		delete(e.flushTimers, cat)
	}
}

// flush dispatches a category's pending batch after the grouping interval
// elapsed without a merge
func (e *Engine) flush(cat domain.Category) {
	delete(e.flushTimers, cat)

	group, ok := e.batcher.Take(cat)
	if !ok {
		return
	}

	// Quiet hours may have opened since the group was armed. Batched
	// notifications are never urgent, so the window applies.
	if e.prefs.QuietNow(group.Head.Priority) {
		e.log.Debugf("batched %s flush suppressed by quiet hours, records kept", cat)
		return
	}

	requested := e.requestedChannels(cat)
	if len(requested) == 0 {
		return
	}

	ctx := context.Background()
	if e.prefs.Current().RateLimits.GroupSimilar {
		e.dispatcher.Dispatch(ctx, group.Head, requested, group.Count)
		return
	}
	for _, n := range group.All {
		e.dispatcher.Dispatch(ctx, n, requested, 0)
	}
}

// MarkAsRead transitions a notification to read
func (e *Engine) MarkAsRead(id string) error {
	var err error
	if doErr := e.do(func() {
		err = e.store.MarkRead(id)
		if errors.Is(err, domain.ErrNotFound) {
			e.log.Warnf("mark read: unknown notification %s", id)
		}
	}); doErr != nil {
		return doErr
	}
	return err
}

// Dismiss transitions a notification to dismissed and closes its alert if one
// is showing
func (e *Engine) Dismiss(id string) error {
	var err error
	if doErr := e.do(func() {
		err = e.store.Dismiss(id)
		if errors.Is(err, domain.ErrNotFound) {
			e.log.Warnf("dismiss: unknown notification %s", id)
			return
		}
		e.alerts.Dismiss(id)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Delete removes a notification record entirely
func (e *Engine) Delete(id string) error {
	var err error
	if doErr := e.do(func() {
		err = e.store.Delete(id)
		if errors.Is(err, domain.ErrNotFound) {
			e.log.Warnf("delete: unknown notification %s", id)
			return
		}
		e.alerts.Dismiss(id)
	}); doErr != nil {
		return doErr
	}
	return err
}

// MarkAllAsRead transitions every unread notification to read
func (e *Engine) MarkAllAsRead() error {
	return e.do(func() { e.store.MarkAllRead() })
}

// Clear removes every notification record
func (e *Engine) Clear() error {
	return e.do(func() { e.store.Clear() })
}

// List returns clones of the notifications matching the filter in insertion
// order
func (e *Engine) List(filter domain.Filter) ([]*domain.Notification, error) {
	var out []*domain.Notification
	if err := e.do(func() {
		for n := range e.store.List(filter) {
			out = append(out, n.Clone())
		}
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a clone of a single notification by id
func (e *Engine) Get(id string) (*domain.Notification, error) {
	var (
		n   *domain.Notification
		err error
	)
	if doErr := e.do(func() {
		stored, getErr := e.store.Get(id)
		err = getErr
		if stored != nil {
			n = stored.Clone()
		}
	}); doErr != nil {
		return nil, doErr
	}
	return n, err
}

// Unread returns the unread count
func (e *Engine) Unread() (int64, error) {
	var count int64
	if err := e.do(func() { count = e.store.Unread() }); err != nil {
		return 0, err
	}
	return count, nil
}

// Stats returns the store counters
func (e *Engine) Stats() (domain.Stats, error) {
	var stats domain.Stats
	if err := e.do(func() { stats = e.store.Stats() }); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

// Preferences returns the active preference set
func (e *Engine) Preferences() (domain.Preferences, error) {
	var p domain.Preferences
	if err := e.do(func() { p = e.prefs.Current() }); err != nil {
		return domain.Preferences{}, err
	}
	return p, nil
}

// UpdatePreferences merges a partial update and atomically replaces the
// preference set
func (e *Engine) UpdatePreferences(patch prefs.Patch) (domain.Preferences, error) {
	var (
		p   domain.Preferences
		err error
	)
	if doErr := e.do(func() {
		err = e.prefs.Apply(patch)
		p = e.prefs.Current()
	}); doErr != nil {
		return domain.Preferences{}, doErr
	}
	return p, err
}

// RequestPushPermission asks the platform provider for push permission. This
// is a suspension point: the loop waits on the provider response, matching
// the one-operation-at-a-time processing model.
func (e *Engine) RequestPushPermission(ctx context.Context) (domain.PermissionState, error) {
	var (
		state domain.PermissionState
		err   error
	)
	if doErr := e.do(func() {
		state, err = e.prefs.RequestPushPermission(ctx)
	}); doErr != nil {
		return domain.PermissionDefault, doErr
	}
	return state, err
}

// HandleEvent maps an inbound event-stream message into the creation
// pipeline. Unknown and malformed events are counted and skipped; this method
// never fails, so ingestion of subsequent events is never halted.
func (e *Engine) HandleEvent(eventType string, data map[string]interface{}) {
	e.Async(func() {
		presentation, ok := e.adapter.Handle(eventType, data)
		if !ok {
			return
		}

		spec := presentation.Spec
		if presentation.Kind == domain.PresentFullScreen {
			if spec.Metadata == nil {
				spec.Metadata = map[string]interface{}{}
			}
			spec.Metadata[domain.MetaPresentation] = string(presentation.Kind)
		}

		if _, err := e.create(context.Background(), spec); err != nil {
			e.log.Errorf("failed to store %s event: %v", eventType, err)
		}
	})
}

// DismissAlert closes a visible alert without touching the store record
func (e *Engine) DismissAlert(id string) error {
	return e.do(func() { e.alerts.Dismiss(id) })
}

// VisibleAlerts returns a snapshot of the alert stack
func (e *Engine) VisibleAlerts() ([]alerts.View, error) {
	var views []alerts.View
	if err := e.do(func() { views = e.alerts.Snapshot() }); err != nil {
		return nil, err
	}
	return views, nil
}

// Subscribe registers a store change callback. Callbacks run on the loop and
// must not block.
func (e *Engine) Subscribe(fn store.Subscriber) (int, error) {
	var token int
	if err := e.do(func() { token = e.store.Subscribe(fn) }); err != nil {
		return 0, err
	}
	return token, nil
}

// Unsubscribe removes a store change callback
func (e *Engine) Unsubscribe(token int) error {
	return e.do(func() { e.store.Unsubscribe(token) })
}

package domain

import (
	"context"
	"errors"
)

// Sentinel errors shared across the engine
var (
	// ErrInvalidCategory is returned when a creation spec names an unknown category
	ErrInvalidCategory = errors.New("invalid notification category")

	// ErrNotFound is returned for operations against an unknown notification id
	ErrNotFound = errors.New("notification not found")
)

// PushProvider is the platform push integration. Requesting permission and
// showing a push are the only engine operations that may block on an external
// response, so both take a context.
type PushProvider interface {
	// RequestPermission asks the platform for push permission and returns the
	// resulting state. A denied result is not retried automatically.
	RequestPermission(ctx context.Context) (PermissionState, error)

	// Show delivers a push message. Grouped carries the collapsed count when
	// the dispatch represents a batch; zero means a single notification.
	Show(ctx context.Context, notification *Notification, grouped int) error
}

// PreferenceStore persists the preference set. The engine loads it once at
// startup and saves after every update; the storage medium is opaque.
type PreferenceStore interface {
	Load() (Preferences, error)
	Save(prefs Preferences) error
}

// ChannelSink delivers admitted notifications on a single channel. Sinks on
// independent channels must not affect each other: an error from one is logged
// and the dispatch continues.
type ChannelSink interface {
	// Channel returns the delivery channel this sink serves
	Channel() Channel

	// Deliver emits the notification on this channel. Grouped carries the
	// collapsed count for a batched dispatch, zero otherwise.
	Deliver(ctx context.Context, notification *Notification, grouped int) error
}

package domain

import (
	"maps"
	"slices"
	"time"
)

// Priority defines the urgency level of a notification
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// String returns the wire name of the priority
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// ParsePriority converts a wire name back to a Priority, defaulting to normal
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "urgent":
		return PriorityUrgent
	default:
		return PriorityNormal
	}
}

// Category is the fixed semantic classification of a notification
type Category string

const (
	CategorySuccess       Category = "success"
	CategoryError         Category = "error"
	CategoryWarning       Category = "warning"
	CategoryInfo          Category = "info"
	CategoryAchievement   Category = "achievement"
	CategoryProgress      Category = "progress"
	CategoryStreak        Category = "streak"
	CategoryCollaboration Category = "collaboration"
	CategorySystem        Category = "system"
)

// Categories lists every known category in a stable order
func Categories() []Category {
	return []Category{
		CategorySuccess,
		CategoryError,
		CategoryWarning,
		CategoryInfo,
		CategoryAchievement,
		CategoryProgress,
		CategoryStreak,
		CategoryCollaboration,
		CategorySystem,
	}
}

// Channel is a delivery surface for an admitted notification
type Channel string

const (
	ChannelInAppAlert Channel = "in_app_alert"
	ChannelPush       Channel = "push"
	ChannelSound      Channel = "sound"
	ChannelVibration  Channel = "vibration"
)

// Channels lists every delivery channel in dispatch order
func Channels() []Channel {
	return []Channel{ChannelInAppAlert, ChannelPush, ChannelSound, ChannelVibration}
}

// State represents the lifecycle state of a stored notification.
// Transitions are monotonic: unread -> read -> dismissed, with dismissed terminal.
type State string

const (
	StateUnread    State = "unread"
	StateRead      State = "read"
	StateDismissed State = "dismissed"
)

// Action is a consumer-invokable action carried on a notification.
// The engine never executes actions, it only forwards them to channels.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// Notification is a stored notification record
type Notification struct {
	// ID is a unique identifier assigned at creation, immutable
	ID string `json:"id"`

	// Category classifies the notification and selects preference rules
	Category Category `json:"category"`

	// Priority drives rate-limit bypass and display emphasis
	Priority Priority `json:"priority"`

	// Title and Body are caller-supplied display text, opaque to the engine
	Title string `json:"title"`
	Body  string `json:"body"`

	// Metadata is an open key/value bag forwarded to channels uninterpreted
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Actions are carried to the dispatcher in order
	Actions []Action `json:"actions,omitempty"`

	// Persistent marks the in-app alert as never auto-expiring
	Persistent bool `json:"persistent"`

	// DisplayDuration is the per-call override for the in-app countdown;
	// zero means the category default applies
	DisplayDuration time.Duration `json:"display_duration,omitempty"`

	// CreatedAt is set once at creation
	CreatedAt time.Time `json:"created_at"`

	// State is the current lifecycle state
	State State `json:"state"`

	// ReadAt and DismissedAt record when the corresponding transition happened
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

// Clone returns a deep copy. The engine hands clones across its loop boundary
// so callers never share mutable state with the Store.
func (n *Notification) Clone() *Notification {
	out := *n
	out.Metadata = maps.Clone(n.Metadata)
	out.Actions = slices.Clone(n.Actions)
	if n.ReadAt != nil {
		at := *n.ReadAt
		out.ReadAt = &at
	}
	if n.DismissedAt != nil {
		at := *n.DismissedAt
		out.DismissedAt = &at
	}
	return &out
}

// CreateSpec is the caller-facing input to the Store's create operation
type CreateSpec struct {
	Category   Category               `json:"category"`
	Priority   Priority               `json:"priority"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Actions    []Action               `json:"actions,omitempty"`
	Persistent bool                   `json:"persistent"`

	// DisplayDuration overrides the category default for the in-app alert.
	// Zero means "use the category default"; Persistent wins over any value.
	DisplayDuration time.Duration `json:"display_duration,omitempty"`
}

// Filter selects notifications from the Store. Zero value matches everything.
type Filter struct {
	Categories    []Category `json:"categories,omitempty"`
	Priorities    []Priority `json:"priorities,omitempty"`
	States        []State    `json:"states,omitempty"`
	Search        string     `json:"search,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}

// Stats contains counts maintained by the Store
type Stats struct {
	Total      int64            `json:"total"`
	Unread     int64            `json:"unread"`
	Read       int64            `json:"read"`
	Dismissed  int64            `json:"dismissed"`
	ByCategory map[string]int64 `json:"by_category"`
	ByPriority map[string]int64 `json:"by_priority"`
}

// PresentationKind tags how an ingested event should be presented
type PresentationKind string

const (
	PresentToast      PresentationKind = "toast"
	PresentFullScreen PresentationKind = "full_screen"
)

// Presentation is the tagged result of mapping an inbound event: the spec to
// store plus a hint for the host's rendering layer
type Presentation struct {
	Kind PresentationKind `json:"kind"`
	Spec CreateSpec       `json:"spec"`
}

// MetaPresentation is the metadata key carrying the presentation hint for
// full-screen events, so subscribers and channels can pick a rendering
// strategy without the engine knowing about visuals
const MetaPresentation = "presentation"

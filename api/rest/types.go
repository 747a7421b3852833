package rest

import (
	"fmt"
	"time"

	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/prefs"
)

// CreateNotificationRequest is the REST body for creating a notification
type CreateNotificationRequest struct {
	Category   string                 `json:"category"`
	Priority   string                 `json:"priority,omitempty"`
	Title      string                 `json:"title"`
	Body       string                 `json:"body"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Actions    []Action               `json:"actions,omitempty"`
	Persistent bool                   `json:"persistent,omitempty"`

	// DisplayDurationMS overrides the category's in-app alert duration
	DisplayDurationMS int64 `json:"display_duration_ms,omitempty"`
}

// Action mirrors domain.Action on the wire
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// Validate checks the request
func (r *CreateNotificationRequest) Validate() error {
	if r.Category == "" {
		return fmt.Errorf("category is required")
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if r.DisplayDurationMS < 0 {
		return fmt.Errorf("display_duration_ms must not be negative")
	}
	return nil
}

// ToSpec converts the request to a domain creation spec
func (r *CreateNotificationRequest) ToSpec() domain.CreateSpec {
	actions := make([]domain.Action, 0, len(r.Actions))
	for _, a := range r.Actions {
		actions = append(actions, domain.Action{ID: a.ID, Label: a.Label, Kind: a.Kind})
	}

	return domain.CreateSpec{
		Category:        domain.Category(r.Category),
		Priority:        domain.ParsePriority(r.Priority),
		Title:           r.Title,
		Body:            r.Body,
		Metadata:        r.Metadata,
		Actions:         actions,
		Persistent:      r.Persistent,
		DisplayDuration: time.Duration(r.DisplayDurationMS) * time.Millisecond,
	}
}

// Notification is the REST shape of a stored notification
type Notification struct {
	ID          string                 `json:"id"`
	Category    string                 `json:"category"`
	Priority    string                 `json:"priority"`
	Title       string                 `json:"title"`
	Body        string                 `json:"body"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Actions     []Action               `json:"actions,omitempty"`
	Persistent  bool                   `json:"persistent"`
	State       string                 `json:"state"`
	CreatedAt   time.Time              `json:"created_at"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	DismissedAt *time.Time             `json:"dismissed_at,omitempty"`
}

// NotificationFromDomain converts a domain notification to API format
func NotificationFromDomain(n *domain.Notification) Notification {
	actions := make([]Action, 0, len(n.Actions))
	for _, a := range n.Actions {
		actions = append(actions, Action{ID: a.ID, Label: a.Label, Kind: a.Kind})
	}

	return Notification{
		ID:          n.ID,
		Category:    string(n.Category),
		Priority:    n.Priority.String(),
		Title:       n.Title,
		Body:        n.Body,
		Metadata:    n.Metadata,
		Actions:     actions,
		Persistent:  n.Persistent,
		State:       string(n.State),
		CreatedAt:   n.CreatedAt,
		ReadAt:      n.ReadAt,
		DismissedAt: n.DismissedAt,
	}
}

// ListNotificationsResponse is the REST response for listing notifications
type ListNotificationsResponse struct {
	Notifications []Notification `json:"notifications"`
	Total         int            `json:"total"`
}

// UnreadResponse carries the unread count
type UnreadResponse struct {
	Unread int64 `json:"unread"`
}

// UpdatePreferencesRequest is the REST body for a partial preference update.
// Absent fields keep their current values.
type UpdatePreferencesRequest struct {
	Enabled     *bool                                    `json:"enabled,omitempty"`
	PerCategory map[domain.Category]domain.CategoryPrefs `json:"per_category,omitempty"`
	QuietHours  *domain.QuietHours                       `json:"quiet_hours,omitempty"`
	RateLimits  *domain.RateLimits                       `json:"rate_limits,omitempty"`
	PushEnabled *bool                                    `json:"push_enabled,omitempty"`
}

// ToPatch converts the request to a preference patch
func (r *UpdatePreferencesRequest) ToPatch() prefs.Patch {
	return prefs.Patch{
		Enabled:     r.Enabled,
		PerCategory: r.PerCategory,
		QuietHours:  r.QuietHours,
		RateLimits:  r.RateLimits,
		PushEnabled: r.PushEnabled,
	}
}

// PushPermissionResponse carries the permission state after a request
type PushPermissionResponse struct {
	Permission string `json:"permission"`
}

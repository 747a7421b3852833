package domain

import (
	"time"
)

// PermissionState mirrors the platform push permission
type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionDefault PermissionState = "default"
)

// CategoryPrefs holds the per-category master switch and the four channel toggles
type CategoryPrefs struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	InAppAlert bool `json:"in_app_alert" mapstructure:"in_app_alert"`
	Push       bool `json:"push" mapstructure:"push"`
	Sound      bool `json:"sound" mapstructure:"sound"`
	Vibration  bool `json:"vibration" mapstructure:"vibration"`
}

// Channel reports the toggle for a single delivery channel
func (c CategoryPrefs) Channel(ch Channel) bool {
	switch ch {
	case ChannelInAppAlert:
		return c.InAppAlert
	case ChannelPush:
		return c.Push
	case ChannelSound:
		return c.Sound
	case ChannelVibration:
		return c.Vibration
	default:
		return false
	}
}

// QuietHours is a daily suppression window. Times are "15:04" local clock
// strings; a window with End before Start wraps past midnight.
type QuietHours struct {
	Enabled  bool           `json:"enabled" mapstructure:"enabled"`
	Start    string         `json:"start" mapstructure:"start"`
	End      string         `json:"end" mapstructure:"end"`
	Weekdays []time.Weekday `json:"weekdays" mapstructure:"weekdays"`
}

// RateLimits configures the sliding-window admission ceilings
type RateLimits struct {
	BatchingEnabled bool `json:"batching_enabled" mapstructure:"batching_enabled"`
	MaxPerMinute    int  `json:"max_per_minute" mapstructure:"max_per_minute"`
	MaxPerHour      int  `json:"max_per_hour" mapstructure:"max_per_hour"`
	GroupSimilar    bool `json:"group_similar" mapstructure:"group_similar"`
}

// PushChannel holds the push toggle and the last observed permission state
type PushChannel struct {
	Enabled    bool            `json:"enabled" mapstructure:"enabled"`
	Permission PermissionState `json:"permission" mapstructure:"permission"`
}

// Preferences is the process-wide preference set. It is replaced atomically as
// a whole on every update; readers never observe a partially applied change.
type Preferences struct {
	Enabled     bool                       `json:"enabled" mapstructure:"enabled"`
	PerCategory map[Category]CategoryPrefs `json:"per_category" mapstructure:"per_category"`
	QuietHours  QuietHours                 `json:"quiet_hours" mapstructure:"quiet_hours"`
	RateLimits  RateLimits                 `json:"rate_limits" mapstructure:"rate_limits"`
	Push        PushChannel                `json:"push_channel" mapstructure:"push_channel"`
}

// Clone returns a deep copy so an update can be built without mutating the
// version concurrent readers hold
func (p Preferences) Clone() Preferences {
	out := p
	out.PerCategory = make(map[Category]CategoryPrefs, len(p.PerCategory))
	for cat, cp := range p.PerCategory {
		out.PerCategory[cat] = cp
	}
	out.QuietHours.Weekdays = append([]time.Weekday(nil), p.QuietHours.Weekdays...)
	return out
}

// DefaultPreferences returns the out-of-the-box preference set: everything on,
// no quiet hours, batching enabled with moderate ceilings.
func DefaultPreferences() Preferences {
	perCategory := make(map[Category]CategoryPrefs, len(Categories()))
	for _, cat := range Categories() {
		perCategory[cat] = CategoryPrefs{
			Enabled:    true,
			InAppAlert: true,
			Push:       true,
			Sound:      true,
			Vibration:  true,
		}
	}

	return Preferences{
		Enabled:     true,
		PerCategory: perCategory,
		QuietHours: QuietHours{
			Enabled:  false,
			Start:    "22:00",
			End:      "07:00",
			Weekdays: []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		},
		RateLimits: RateLimits{
			BatchingEnabled: true,
			MaxPerMinute:    10,
			MaxPerHour:      60,
			GroupSimilar:    true,
		},
		Push: PushChannel{
			Enabled:    true,
			Permission: PermissionDefault,
		},
	}
}

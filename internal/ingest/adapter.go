package ingest

import (
	"fmt"

	"github.com/lessonpulse/notify/internal/domain"
	"github.com/lessonpulse/notify/internal/logging"
	"github.com/lessonpulse/notify/pkg/metrics"
)

// builder maps one event payload to a presentation. A nil error with ok=false
// never happens; malformed payloads return an error.
type builder func(data map[string]interface{}) (domain.Presentation, error)

// Adapter maps inbound event-stream messages to notification creation specs.
// Unknown event types are counted and skipped; malformed payloads are counted
// and skipped; ingestion never halts.
type Adapter struct {
	log      *logging.Logger
	metrics  *metrics.Metrics
	builders map[string]builder
}

// NewAdapter creates the adapter with the full event table registered
func NewAdapter(log *logging.Logger, m *metrics.Metrics) *Adapter {
	a := &Adapter{
		log:     log.Named("ingest"),
		metrics: m,
	}

	a.builders = map[string]builder{
		"achievement_unlocked": buildAchievementUnlocked,
		"progress_update":      buildProgressUpdate,
		"streak_milestone":     buildStreakMilestone,
		"collaboration_update": buildCollaborationUpdate,
		"system_notice":        buildSystemNotice,
		"xp_awarded":           buildXPAwarded,
		"level_up":             buildLevelUp,
		"challenge_received":   buildChallengeReceived,
	}

	return a
}

// Handle maps an event to a presentation. The second return is false when the
// event was skipped (unknown type or malformed payload).
func (a *Adapter) Handle(eventType string, data map[string]interface{}) (domain.Presentation, bool) {
	build, ok := a.builders[eventType]
	if !ok {
		a.log.Warnf("ignoring unknown event type %q", eventType)
		a.metrics.EventUnknown()
		return domain.Presentation{}, false
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	p, err := build(data)
	if err != nil {
		a.log.Warnf("dropping malformed %s event: %v", eventType, err)
		a.metrics.EventMalformed()
		return domain.Presentation{}, false
	}

	a.metrics.EventIngested(eventType)
	return p, true
}

func buildAchievementUnlocked(data map[string]interface{}) (domain.Presentation, error) {
	name, err := requireString(data, "name")
	if err != nil {
		return domain.Presentation{}, err
	}
	rarity, _ := optionalString(data, "rarity")

	kind := domain.PresentToast
	if rarity == "legendary" || rarity == "epic" {
		kind = domain.PresentFullScreen
	}

	return domain.Presentation{
		Kind: kind,
		Spec: domain.CreateSpec{
			Category: domain.CategoryAchievement,
			Priority: domain.PriorityHigh,
			Title:    "Achievement unlocked",
			Body:     name,
			Metadata: data,
		},
	}, nil
}

func buildProgressUpdate(data map[string]interface{}) (domain.Presentation, error) {
	label, _ := optionalString(data, "label")
	if label == "" {
		label = "Progress updated"
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategoryProgress,
			Priority: domain.PriorityLow,
			Title:    "Progress",
			Body:     label,
			Metadata: data,
		},
	}, nil
}

func buildStreakMilestone(data map[string]interface{}) (domain.Presentation, error) {
	days, err := requireNumber(data, "days")
	if err != nil {
		return domain.Presentation{}, err
	}

	priority := domain.PriorityNormal
	if int(days)%7 == 0 {
		priority = domain.PriorityHigh
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategoryStreak,
			Priority: priority,
			Title:    "Streak milestone",
			Body:     fmt.Sprintf("%d day streak", int(days)),
			Metadata: data,
		},
	}, nil
}

func buildCollaborationUpdate(data map[string]interface{}) (domain.Presentation, error) {
	message, err := requireString(data, "message")
	if err != nil {
		return domain.Presentation{}, err
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategoryCollaboration,
			Priority: domain.PriorityNormal,
			Title:    "Collaboration",
			Body:     message,
			Metadata: data,
		},
	}, nil
}

func buildSystemNotice(data map[string]interface{}) (domain.Presentation, error) {
	message, err := requireString(data, "message")
	if err != nil {
		return domain.Presentation{}, err
	}
	severity, _ := optionalString(data, "severity")

	priority := domain.PriorityNormal
	if severity == "critical" {
		priority = domain.PriorityUrgent
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategorySystem,
			Priority: priority,
			Title:    "System notice",
			Body:     message,
			Metadata: data,
		},
	}, nil
}

func buildXPAwarded(data map[string]interface{}) (domain.Presentation, error) {
	amount, err := requireNumber(data, "amount")
	if err != nil {
		return domain.Presentation{}, err
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategorySuccess,
			Priority: domain.PriorityLow,
			Title:    "XP awarded",
			Body:     fmt.Sprintf("+%d XP", int(amount)),
			Metadata: data,
		},
	}, nil
}

func buildLevelUp(data map[string]interface{}) (domain.Presentation, error) {
	level, err := requireNumber(data, "level")
	if err != nil {
		return domain.Presentation{}, err
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategoryAchievement,
			Priority: domain.PriorityHigh,
			Title:    "Level up",
			Body:     fmt.Sprintf("You reached level %d", int(level)),
			Metadata: data,
		},
	}, nil
}

func buildChallengeReceived(data map[string]interface{}) (domain.Presentation, error) {
	challenger, err := requireString(data, "challenger")
	if err != nil {
		return domain.Presentation{}, err
	}

	return domain.Presentation{
		Kind: domain.PresentToast,
		Spec: domain.CreateSpec{
			Category: domain.CategoryCollaboration,
			Priority: domain.PriorityHigh,
			Title:    "Challenge received",
			Body:     fmt.Sprintf("%s challenged you", challenger),
			Metadata: data,
			Actions: []domain.Action{
				{ID: "accept", Label: "Accept", Kind: "primary"},
				{ID: "decline", Label: "Decline", Kind: "secondary"},
			},
		},
	}, nil
}

func requireString(data map[string]interface{}, key string) (string, error) {
	v, ok := data[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q is not a non-empty string", key)
	}
	return s, nil
}

func optionalString(data map[string]interface{}, key string) (string, bool) {
	s, ok := data[key].(string)
	return s, ok
}

func requireNumber(data map[string]interface{}, key string) (float64, error) {
	v, ok := data[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field %q is not a number", key)
	}
}

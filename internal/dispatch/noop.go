package dispatch

import (
	"context"
	"errors"

	"github.com/lessonpulse/notify/internal/domain"
)

// NoopProvider stands in when the host configures no push integration.
// Permission stays in the default state, so the preference engine never opens
// the push channel.
type NoopProvider struct{}

// RequestPermission reports the default state; there is nothing to grant
func (NoopProvider) RequestPermission(ctx context.Context) (domain.PermissionState, error) {
	return domain.PermissionDefault, nil
}

// Show fails; it is unreachable while permission is not granted
func (NoopProvider) Show(ctx context.Context, n *domain.Notification, grouped int) error {
	return errors.New("no push provider configured")
}

// Package notifications serves the user's unread notification feed.
package notifications

import (
	"context"

	"github.com/bissquit/notify-agent/internal/domain"
)

// Repository defines the interface for notification feed access.
type Repository interface {
	ListNotifications(ctx context.Context) ([]domain.Notification, error)
	CountNotifications(ctx context.Context) (domain.NotificationCount, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/remote"
)

// Cache keys.
var (
	RootKey  = querycache.Key{"notifications"}
	ListKey  = querycache.Key{"notifications", "list"}
	CountKey = querycache.Key{"notifications", "count"}
)

const (
	opMarkRead    = "mark_read"
	opMarkAllRead = "mark_all_read"
	opClearAll    = "clear_all"
)

// Feed reads the notification feed through the query cache. Every
// mutation invalidates both the list and the unread count.
type Feed struct {
	repo  Repository
	cache *querycache.Cache
}

// NewFeed creates a new notification feed.
func NewFeed(repo Repository, cache *querycache.Cache) *Feed {
	return &Feed{
		repo:  repo,
		cache: cache,
	}
}

// List returns the notifications, newest first as the server orders them.
func (f *Feed) List(ctx context.Context) ([]domain.Notification, error) {
	return querycache.Fetch(ctx, f.cache, ListKey, func(ctx context.Context) ([]domain.Notification, error) {
		items, err := f.repo.ListNotifications(ctx)
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		if items == nil {
			items = []domain.Notification{}
		}
		return items, nil
	})
}

// Count returns the unread and total counters.
func (f *Feed) Count(ctx context.Context) (domain.NotificationCount, error) {
	return querycache.Fetch(ctx, f.cache, CountKey, func(ctx context.Context) (domain.NotificationCount, error) {
		count, err := f.repo.CountNotifications(ctx)
		if err != nil {
			return domain.NotificationCount{}, fmt.Errorf("count notifications: %w", err)
		}
		unreadNotifications.Set(float64(count.Count))
		return count, nil
	})
}

// MarkRead marks one notification as read.
func (f *Feed) MarkRead(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidNotificationID
	}

	err := f.repo.MarkRead(ctx, id)
	recordMutation(opMarkRead, err)
	if err != nil {
		if remote.IsNotFound(err) {
			return ErrNotificationNotFound
		}
		return fmt.Errorf("mark notification read: %w", err)
	}

	f.cache.Invalidate(RootKey)
	ctxlog.FromContext(ctx).Debug("notification marked read", "notification_id", id)
	return nil
}

// MarkAllRead marks every notification as read.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	err := f.repo.MarkAllRead(ctx)
	recordMutation(opMarkAllRead, err)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}

	f.cache.Invalidate(RootKey)
	return nil
}

// ClearAll removes every notification from the feed.
func (f *Feed) ClearAll(ctx context.Context) error {
	err := f.repo.ClearAll(ctx)
	recordMutation(opClearAll, err)
	if err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}

	f.cache.Invalidate(RootKey)
	ctxlog.FromContext(ctx).Info("notifications cleared")
	return nil
}

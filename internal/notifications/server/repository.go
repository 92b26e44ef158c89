// Package server implements notifications.Repository over the notifications server API.
package server

import (
	"context"
	"net/url"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/remote"
)

// Repository implements notifications.Repository.
type Repository struct {
	client *remote.Client
}

// NewRepository creates a new server-backed notification repository.
func NewRepository(client *remote.Client) *Repository {
	return &Repository{client: client}
}

type notificationDTO struct {
	ID       remote.ID `json:"id"`
	App      string    `json:"app"`
	Category string    `json:"category"`
	Object   string    `json:"object"`
	Content  string    `json:"content"`
	Link     string    `json:"link"`
	Count    int       `json:"count"`
	Created  int64     `json:"created"`
	Read     int64     `json:"read"`
}

// ListNotifications returns the feed.
func (r *Repository) ListNotifications(ctx context.Context) ([]domain.Notification, error) {
	var dtos []notificationDTO
	if err := r.client.Get(ctx, "list", nil, &dtos); err != nil {
		return nil, err
	}

	items := make([]domain.Notification, 0, len(dtos))
	for _, dto := range dtos {
		items = append(items, domain.Notification{
			ID:       dto.ID.String(),
			App:      dto.App,
			Category: dto.Category,
			Object:   dto.Object,
			Content:  dto.Content,
			Link:     dto.Link,
			Count:    dto.Count,
			Created:  dto.Created,
			Read:     dto.Read,
		})
	}
	return items, nil
}

// CountNotifications returns the unread and total counters.
func (r *Repository) CountNotifications(ctx context.Context) (domain.NotificationCount, error) {
	var count domain.NotificationCount
	if err := r.client.Get(ctx, "count", nil, &count); err != nil {
		return domain.NotificationCount{}, err
	}
	return count, nil
}

// MarkRead marks one notification as read.
func (r *Repository) MarkRead(ctx context.Context, id string) error {
	return r.client.Post(ctx, "read", url.Values{"id": {id}}, nil)
}

// MarkAllRead marks every notification as read.
func (r *Repository) MarkAllRead(ctx context.Context) error {
	return r.client.Post(ctx, "read/all", url.Values{}, nil)
}

// ClearAll removes every notification.
func (r *Repository) ClearAll(ctx context.Context) error {
	return r.client.Post(ctx, "clear/all", url.Values{}, nil)
}

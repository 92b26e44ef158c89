// Package server implements catalog.Repository over the notifications server API.
package server

import (
	"context"
	"net/url"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/remote"
)

// Repository implements catalog.Repository.
type Repository struct {
	client *remote.Client
}

// NewRepository creates a new server-backed catalog repository.
func NewRepository(client *remote.Client) *Repository {
	return &Repository{client: client}
}

type destinationDTO struct {
	ID          remote.ID `json:"id"`
	Type        string    `json:"type"`
	AccountType string    `json:"accountType"`
	Label       string    `json:"label"`
	Identifier  string    `json:"identifier"`
}

type feedDTO struct {
	ID      remote.ID `json:"id"`
	Name    string    `json:"name"`
	Token   string    `json:"token"`
	Created int64     `json:"created"`
	Enabled int       `json:"enabled"`
}

func (f feedDTO) toDomain() domain.Feed {
	return domain.Feed{
		ID:      f.ID.String(),
		Name:    f.Name,
		Token:   f.Token,
		Created: f.Created,
		Enabled: f.Enabled,
	}
}

// ListDestinations returns the destinations available to appScope.
func (r *Repository) ListDestinations(ctx context.Context, appScope string) ([]domain.Destination, error) {
	var dtos []destinationDTO
	if err := r.client.Get(ctx, "-/destinations/list", url.Values{"app": {appScope}}, &dtos); err != nil {
		return nil, err
	}

	dests := make([]domain.Destination, 0, len(dtos))
	for _, d := range dtos {
		dests = append(dests, domain.Destination{
			ID:          d.ID.String(),
			Type:        domain.DestinationType(d.Type),
			AccountType: domain.AccountType(d.AccountType),
			Label:       d.Label,
			Identifier:  d.Identifier,
		})
	}
	return dests, nil
}

// ListFeeds returns the user's RSS feeds.
func (r *Repository) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	var dtos []feedDTO
	if err := r.client.Get(ctx, "-/rss/list", nil, &dtos); err != nil {
		return nil, err
	}

	feeds := make([]domain.Feed, 0, len(dtos))
	for _, f := range dtos {
		feeds = append(feeds, f.toDomain())
	}
	return feeds, nil
}

// CreateFeed creates an RSS feed.
func (r *Repository) CreateFeed(ctx context.Context, name string, addToExisting bool) (*domain.Feed, error) {
	form := url.Values{
		"name":            {name},
		"add_to_existing": {remote.BoolForm(addToExisting)},
	}

	var dto feedDTO
	if err := r.client.Post(ctx, "-/rss/create", form, &dto); err != nil {
		return nil, err
	}
	feed := dto.toDomain()
	return &feed, nil
}

// RenameFeed renames an RSS feed.
func (r *Repository) RenameFeed(ctx context.Context, id, name string) error {
	return r.client.Post(ctx, "-/rss/rename", url.Values{"id": {id}, "name": {name}}, nil)
}

// SetFeedEnabled enables or disables an RSS feed.
func (r *Repository) SetFeedEnabled(ctx context.Context, id string, enabled bool) error {
	return r.client.Post(ctx, "-/rss/update", url.Values{"id": {id}, "enabled": {remote.BoolForm(enabled)}}, nil)
}

// DeleteFeed deletes an RSS feed.
func (r *Repository) DeleteFeed(ctx context.Context, id string) error {
	return r.client.Post(ctx, "-/rss/delete", url.Values{"id": {id}}, nil)
}

package catalog

import (
	"context"

	"github.com/bissquit/notify-agent/internal/domain"
)

// Repository defines the interface for destination catalog data operations.
type Repository interface {
	ListDestinations(ctx context.Context, appScope string) ([]domain.Destination, error)

	ListFeeds(ctx context.Context) ([]domain.Feed, error)
	CreateFeed(ctx context.Context, name string, addToExisting bool) (*domain.Feed, error)
	RenameFeed(ctx context.Context, id, name string) error
	SetFeedEnabled(ctx context.Context, id string, enabled bool) error
	DeleteFeed(ctx context.Context, id string) error
}

// Package catalog exposes the deliverable destinations of an app scope:
// linked accounts and RSS feeds.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/notice"
	"github.com/bissquit/notify-agent/internal/push"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/remote"
	"github.com/go-playground/validator/v10"
)

// Notice texts for feed mutations.
const (
	msgFeedCreated      = "Feed created"
	msgFeedCreateFailed = "Failed to create feed"
	msgFeedRenamed      = "Feed renamed"
	msgFeedRenameFailed = "Failed to rename feed"
	msgFeedDeleted      = "Feed deleted"
	msgFeedDeleteFailed = "Failed to delete feed"
	msgFeedUpdateFailed = "Failed to update feed"
)

// DestinationsKey returns the cache key of an app scope's destination list.
func DestinationsKey(appScope string) querycache.Key {
	return querycache.Key{"destinations", appScope}
}

// FeedsKey is the cache key of the RSS feed list.
var FeedsKey = querycache.Key{"feeds", "list"}

type feedName struct {
	Name string `validate:"required,max=100"`
}

// Catalog provides destination lookup and feed management.
type Catalog struct {
	repo      Repository
	cache     *querycache.Cache
	notices   notice.Sink
	validator *validator.Validate
	feedBase  *url.URL
}

// New creates a new Catalog. feedBase is the server base URL feed links
// are built from; it may be nil.
func New(repo Repository, cache *querycache.Cache, notices notice.Sink, feedBase *url.URL) *Catalog {
	if notices == nil {
		notices = notice.Discard
	}
	return &Catalog{
		repo:      repo,
		cache:     cache,
		notices:   notices,
		validator: validator.New(),
		feedBase:  feedBase,
	}
}

// List returns the destinations of appScope, served from cache when fresh.
func (c *Catalog) List(ctx context.Context, appScope string) ([]domain.Destination, error) {
	return querycache.Fetch(ctx, c.cache, DestinationsKey(appScope), func(ctx context.Context) ([]domain.Destination, error) {
		dests, err := c.repo.ListDestinations(ctx, appScope)
		if err != nil {
			return nil, fmt.Errorf("list destinations: %w", err)
		}
		return dests, nil
	})
}

// Peek returns the last known destinations of appScope without fetching.
func (c *Catalog) Peek(appScope string) ([]domain.Destination, bool) {
	return querycache.Peek[[]domain.Destination](c.cache, DestinationsKey(appScope))
}

// Invalidate marks the destination list of appScope stale.
func (c *Catalog) Invalidate(appScope string) {
	c.cache.Invalidate(DestinationsKey(appScope))
}

// FindBrowser reloads the catalog of appScope and returns the browser push
// destination registered for endpoint. A destination registered for another
// endpoint is never returned: it is stale or belongs to another device.
// With an empty endpoint the first browser destination is returned.
func (c *Catalog) FindBrowser(ctx context.Context, appScope, endpoint string) (*domain.Destination, error) {
	c.Invalidate(appScope)

	dests, err := c.List(ctx, appScope)
	if err != nil {
		return nil, err
	}

	for i := range dests {
		if !dests[i].IsBrowser() {
			continue
		}
		if endpoint == "" || push.Matches(dests[i].Identifier, endpoint) {
			d := dests[i]
			return &d, nil
		}
	}
	return nil, ErrBrowserDestinationNotFound
}

// ListFeeds returns the user's RSS feeds.
func (c *Catalog) ListFeeds(ctx context.Context) ([]domain.Feed, error) {
	return querycache.Fetch(ctx, c.cache, FeedsKey, func(ctx context.Context) ([]domain.Feed, error) {
		feeds, err := c.repo.ListFeeds(ctx)
		if err != nil {
			return nil, fmt.Errorf("list feeds: %w", err)
		}
		if feeds == nil {
			feeds = []domain.Feed{}
		}
		return feeds, nil
	})
}

// CreateFeed creates an RSS feed. With addToExisting the server adds the
// new feed to every existing subscription.
func (c *Catalog) CreateFeed(ctx context.Context, name string, addToExisting bool) (*domain.Feed, error) {
	name, err := c.validateName(name)
	if err != nil {
		return nil, err
	}

	feed, err := c.repo.CreateFeed(ctx, name, addToExisting)
	if err != nil {
		c.fail(err, msgFeedCreateFailed)
		return nil, fmt.Errorf("create feed: %w", err)
	}

	c.invalidateFeeds(addToExisting)
	c.notices.Success(msgFeedCreated)
	slog.Info("feed created", "feed_id", feed.ID, "add_to_existing", addToExisting)
	return feed, nil
}

// RenameFeed renames an RSS feed.
func (c *Catalog) RenameFeed(ctx context.Context, id, name string) error {
	name, err := c.validateName(name)
	if err != nil {
		return err
	}

	if err := c.repo.RenameFeed(ctx, id, name); err != nil {
		c.fail(err, msgFeedRenameFailed)
		return fmt.Errorf("rename feed: %w", mapNotFound(err))
	}

	c.invalidateFeeds(false)
	c.notices.Success(msgFeedRenamed)
	return nil
}

// SetFeedEnabled enables or disables an RSS feed.
func (c *Catalog) SetFeedEnabled(ctx context.Context, id string, enabled bool) error {
	if err := c.repo.SetFeedEnabled(ctx, id, enabled); err != nil {
		c.fail(err, msgFeedUpdateFailed)
		return fmt.Errorf("update feed: %w", mapNotFound(err))
	}

	c.invalidateFeeds(false)
	return nil
}

// DeleteFeed deletes an RSS feed.
func (c *Catalog) DeleteFeed(ctx context.Context, id string) error {
	if err := c.repo.DeleteFeed(ctx, id); err != nil {
		c.fail(err, msgFeedDeleteFailed)
		return fmt.Errorf("delete feed: %w", mapNotFound(err))
	}

	c.invalidateFeeds(true)
	c.notices.Success(msgFeedDeleted)
	return nil
}

// FeedURL returns the public RSS URL of a feed token.
func (c *Catalog) FeedURL(token string) string {
	if c.feedBase == nil || token == "" {
		return ""
	}
	u := c.feedBase.JoinPath("-", "rss")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func (c *Catalog) validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := c.validator.Struct(feedName{Name: name}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFeedName, err)
	}
	return name, nil
}

// invalidateFeeds marks the feed list stale. Feeds are destinations of every
// app scope, so subscriptions are refreshed too when the server may have
// changed their destination sets.
func (c *Catalog) invalidateFeeds(subscriptionsChanged bool) {
	c.cache.Invalidate(FeedsKey)
	c.cache.Invalidate(querycache.Key{"destinations"})
	if subscriptionsChanged {
		c.cache.Invalidate(querycache.Key{"subscriptions"})
	}
}

func (c *Catalog) fail(err error, fallback string) {
	if msg, ok := remote.ServerMessage(err); ok {
		c.notices.Error(msg)
		return
	}
	c.notices.Error(fallback)
}

func mapNotFound(err error) error {
	if remote.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrFeedNotFound, err)
	}
	return err
}

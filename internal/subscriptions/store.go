// Package subscriptions loads the user's subscriptions and issues
// destination updates and deletes against the server.
package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/remote"
)

// User-facing messages.
const (
	MsgUpdated           = "Subscription updated"
	MsgUpdateFailed      = "Failed to update subscription"
	MsgUnsubscribed      = "Unsubscribed"
	MsgUnsubscribeFailed = "Failed to unsubscribe"
)

// Cache keys.
var (
	RootKey = querycache.Key{"subscriptions"}
	ListKey = querycache.Key{"subscriptions", "list"}
)

// Store owns the canonical subscription list. Failed mutations return a
// MutationError whose Message callers show to the user.
type Store struct {
	repo  Repository
	cache *querycache.Cache
}

// NewStore creates a new subscription store.
func NewStore(repo Repository, cache *querycache.Cache) *Store {
	return &Store{
		repo:  repo,
		cache: cache,
	}
}

// List returns the canonical subscriptions. An empty result is returned
// both for a user with no subscriptions and before the first load; use
// Loading to tell them apart.
func (s *Store) List(ctx context.Context) ([]domain.Subscription, error) {
	return querycache.Fetch(ctx, s.cache, ListKey, func(ctx context.Context) ([]domain.Subscription, error) {
		subs, err := s.repo.ListSubscriptions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list subscriptions: %w", err)
		}
		for i := range subs {
			subs[i].Destinations = subs[i].Destinations.Normalize()
		}
		return subs, nil
	})
}

// Loading reports whether the list is being fetched.
func (s *Store) Loading() bool {
	return s.cache.Loading(ListKey)
}

// Peek returns the last fetched list without fetching.
func (s *Store) Peek() ([]domain.Subscription, bool) {
	return querycache.Peek[[]domain.Subscription](s.cache, ListKey)
}

// LoadedAt returns when the held list was fetched; zero before the first
// load.
func (s *Store) LoadedAt() time.Time {
	at, _ := s.cache.FetchedAt(ListKey)
	return at
}

// Refresh invalidates the list and fetches it again.
func (s *Store) Refresh(ctx context.Context) ([]domain.Subscription, error) {
	s.cache.Invalidate(RootKey)
	return s.List(ctx)
}

// OnChange calls fn after every invalidation of subscription queries. The
// returned func removes the registration.
func (s *Store) OnChange(fn func()) func() {
	return s.cache.Subscribe(RootKey, func(querycache.Key) { fn() })
}

// UpdateDestinations replaces the destination set of a subscription.
func (s *Store) UpdateDestinations(ctx context.Context, id int64, destinations domain.DestinationSet) error {
	destinations = destinations.Normalize()

	if err := s.repo.UpdateDestinations(ctx, id, destinations); err != nil {
		merr := newMutationError(OpUpdate, id, err, MsgUpdateFailed)
		ctxlog.FromContext(ctx).Warn("subscription update failed", "subscription_id", id, "error", err)
		return merr
	}

	s.cache.Invalidate(RootKey)
	ctxlog.FromContext(ctx).Info("subscription updated",
		"subscription_id", id,
		"destinations", len(destinations),
	)
	return nil
}

// Remove deletes a subscription. Removing an unknown id succeeds.
func (s *Store) Remove(ctx context.Context, id int64) error {
	err := s.repo.DeleteSubscription(ctx, id)
	if err != nil && !remote.IsNotFound(err) {
		merr := newMutationError(OpRemove, id, err, MsgUnsubscribeFailed)
		ctxlog.FromContext(ctx).Warn("subscription delete failed", "subscription_id", id, "error", err)
		return merr
	}

	s.cache.Invalidate(RootKey)
	ctxlog.FromContext(ctx).Info("subscription removed", "subscription_id", id)
	return nil
}

func newMutationError(op string, id int64, err error, fallback string) *MutationError {
	msg := fallback
	if serverMsg, ok := remote.ServerMessage(err); ok {
		msg = serverMsg
	}
	return &MutationError{Op: op, ID: id, Message: msg, Err: err}
}

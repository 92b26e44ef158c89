package subscriptions

import (
	"context"

	"github.com/bissquit/notify-agent/internal/domain"
)

// Repository defines the interface for subscription data operations.
type Repository interface {
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	UpdateDestinations(ctx context.Context, id int64, destinations domain.DestinationSet) error
	DeleteSubscription(ctx context.Context, id int64) error
}

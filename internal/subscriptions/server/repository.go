// Package server implements subscriptions.Repository over the notifications server API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/remote"
)

// Repository implements subscriptions.Repository.
type Repository struct {
	client *remote.Client
}

// NewRepository creates a new server-backed subscription repository.
func NewRepository(client *remote.Client) *Repository {
	return &Repository{client: client}
}

type destinationDTO struct {
	Type   string    `json:"type"`
	Target remote.ID `json:"target"`
}

type subscriptionDTO struct {
	ID           int64            `json:"id"`
	App          string           `json:"app"`
	AppName      string           `json:"app_name"`
	Type         string           `json:"type"`
	Object       string           `json:"object"`
	Label        string           `json:"label"`
	Created      int64            `json:"created"`
	Destinations []destinationDTO `json:"destinations"`
}

// ListSubscriptions returns the user's subscriptions.
func (r *Repository) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var dtos []subscriptionDTO
	if err := r.client.Get(ctx, "subscriptions/list", nil, &dtos); err != nil {
		return nil, err
	}

	subs := make([]domain.Subscription, 0, len(dtos))
	for _, dto := range dtos {
		dests := make(domain.DestinationSet, 0, len(dto.Destinations))
		for _, d := range dto.Destinations {
			dests = append(dests, domain.SubscriptionDestination{
				Type:   domain.DestinationType(d.Type),
				Target: d.Target.String(),
			})
		}
		subs = append(subs, domain.Subscription{
			ID:           dto.ID,
			App:          dto.App,
			AppName:      dto.AppName,
			Type:         dto.Type,
			Object:       dto.Object,
			Label:        dto.Label,
			Created:      dto.Created,
			Destinations: dests,
		})
	}
	return subs, nil
}

// UpdateDestinations replaces the destination set of a subscription.
func (r *Repository) UpdateDestinations(ctx context.Context, id int64, destinations domain.DestinationSet) error {
	if destinations == nil {
		destinations = domain.DestinationSet{}
	}
	payload, err := json.Marshal(destinations)
	if err != nil {
		return fmt.Errorf("marshal destinations: %w", err)
	}

	form := url.Values{
		"id":           {strconv.FormatInt(id, 10)},
		"destinations": {string(payload)},
	}
	return r.client.Post(ctx, "subscriptions/update", form, nil)
}

// DeleteSubscription deletes a subscription.
func (r *Repository) DeleteSubscription(ctx context.Context, id int64) error {
	return r.client.Post(ctx, "subscriptions/delete", url.Values{"id": {strconv.FormatInt(id, 10)}}, nil)
}

package push

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/remote"
)

// Registrar tells the server about a new push subscription. The server
// materializes a browser account destination for it.
type Registrar interface {
	Register(ctx context.Context, sub Subscription) error
}

// Client is a Platform whose Subscribe also registers the subscription with
// the server.
type Client struct {
	platform  Platform
	registrar Registrar
}

// NewClient creates a new push client.
func NewClient(platform Platform, registrar Registrar) *Client {
	return &Client{platform: platform, registrar: registrar}
}

// Supported reports whether the platform supports push.
func (c *Client) Supported() bool {
	return c.platform.Supported()
}

// Permission returns the platform permission state.
func (c *Client) Permission() Permission {
	return c.platform.Permission()
}

// RequestPermission asks the platform for notification permission.
func (c *Client) RequestPermission(ctx context.Context) (Permission, error) {
	perm, err := c.platform.RequestPermission(ctx)
	recordPermission(perm)
	return perm, err
}

// Subscribe creates or reuses the platform subscription and registers it.
func (c *Client) Subscribe(ctx context.Context) (Subscription, error) {
	start := time.Now()

	sub, err := c.platform.Subscribe(ctx)
	if err != nil {
		recordOperation("subscribe", err, start)
		return Subscription{}, fmt.Errorf("platform subscribe: %w", err)
	}

	if err := c.registrar.Register(ctx, sub); err != nil {
		recordOperation("subscribe", err, start)
		return Subscription{}, fmt.Errorf("register push subscription: %w", err)
	}

	recordOperation("subscribe", nil, start)
	ctxlog.FromContext(ctx).Info("push subscription registered", "fingerprint", Fingerprint(sub.Endpoint))
	return sub, nil
}

// Unsubscribe drops the platform subscription. Removing the server account
// is left to the server, which prunes endpoints that stop accepting pushes.
func (c *Client) Unsubscribe(ctx context.Context) error {
	start := time.Now()
	err := c.platform.Unsubscribe(ctx)
	recordOperation("unsubscribe", err, start)
	if err != nil {
		return fmt.Errorf("platform unsubscribe: %w", err)
	}
	return nil
}

// CurrentEndpoint returns the live platform endpoint or "".
func (c *Client) CurrentEndpoint(ctx context.Context) (string, error) {
	return c.platform.CurrentEndpoint(ctx)
}

// ServerRegistrar registers subscriptions through -/accounts/add.
type ServerRegistrar struct {
	client *remote.Client
	label  string
}

// NewServerRegistrar creates a registrar. label names the account on the server.
func NewServerRegistrar(client *remote.Client, label string) *ServerRegistrar {
	if label == "" {
		label = "Browser"
	}
	return &ServerRegistrar{client: client, label: label}
}

// Register posts the subscription as a browser account.
func (r *ServerRegistrar) Register(ctx context.Context, sub Subscription) error {
	form := url.Values{
		"type":     {"browser"},
		"label":    {r.label},
		"endpoint": {sub.Endpoint},
		"p256dh":   {sub.P256DH},
		"auth":     {sub.Auth},
	}
	return r.client.Post(ctx, "-/accounts/add", form, nil)
}

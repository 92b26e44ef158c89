// Package push wraps the browser push subscription lifecycle: permission,
// subscribe, unsubscribe and the identity of the live endpoint.
package push

import (
	"context"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// Permission is the platform notification permission state.
type Permission string

// Permission states.
const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// Push errors.
var (
	ErrUnsupported          = errors.New("push notifications are not supported")
	ErrPermissionNotGranted = errors.New("notification permission not granted")
)

// Subscription is a live push subscription.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Platform is the push capability of a user agent. It holds at most one
// subscription at a time.
type Platform interface {
	Supported() bool
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Subscribe(ctx context.Context) (Subscription, error)
	Unsubscribe(ctx context.Context) error
	// CurrentEndpoint returns "" when no subscription is live.
	CurrentEndpoint(ctx context.Context) (string, error)
}

// Fingerprint returns the hex BLAKE2b-256 digest of an endpoint.
func Fingerprint(endpoint string) string {
	sum := blake2b.Sum256([]byte(endpoint))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether a stored destination identifier refers to the
// live endpoint. Identifiers are either the endpoint or its fingerprint.
func Matches(identifier, endpoint string) bool {
	if identifier == "" || endpoint == "" {
		return false
	}
	return identifier == endpoint || identifier == Fingerprint(endpoint)
}

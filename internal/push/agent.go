package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Policy decides how the agent answers permission prompts.
type Policy string

// Permission policies.
const (
	PolicyGranted Policy = "granted"
	PolicyDenied  Policy = "denied"
	PolicyPrompt  Policy = "prompt"
)

// AgentConfig holds in-process push platform configuration.
type AgentConfig struct {
	Enabled    bool
	Policy     Policy
	ServiceURL string
}

// Agent is an in-process Platform. It keeps one subscription whose endpoint
// is the push service URL plus a random token. With PolicyPrompt the
// permission starts as default and is granted on request.
type Agent struct {
	config AgentConfig

	mu         sync.Mutex
	permission Permission
	current    *Subscription
	key        *ecdh.PrivateKey
}

// NewAgent creates a new in-process push platform.
func NewAgent(config AgentConfig) *Agent {
	a := &Agent{config: config}
	switch config.Policy {
	case PolicyGranted:
		a.permission = PermissionGranted
	case PolicyDenied:
		a.permission = PermissionDenied
	default:
		a.permission = PermissionDefault
	}
	return a
}

// Supported reports whether push is enabled.
func (a *Agent) Supported() bool {
	return a.config.Enabled && a.config.ServiceURL != ""
}

// Permission returns the current permission state.
func (a *Agent) Permission() Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission
}

// RequestPermission resolves a default permission according to the policy.
func (a *Agent) RequestPermission(_ context.Context) (Permission, error) {
	if !a.Supported() {
		return PermissionDenied, ErrUnsupported
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.permission == PermissionDefault {
		if a.config.Policy == PolicyDenied {
			a.permission = PermissionDenied
		} else {
			a.permission = PermissionGranted
		}
	}
	return a.permission, nil
}

// Subscribe returns the live subscription, creating one if none exists.
func (a *Agent) Subscribe(_ context.Context) (Subscription, error) {
	if !a.Supported() {
		return Subscription{}, ErrUnsupported
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.permission != PermissionGranted {
		return Subscription{}, ErrPermissionNotGranted
	}
	if a.current != nil {
		return *a.current, nil
	}

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return Subscription{}, fmt.Errorf("generate key: %w", err)
	}
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return Subscription{}, fmt.Errorf("generate auth secret: %w", err)
	}

	sub := Subscription{
		Endpoint: strings.TrimRight(a.config.ServiceURL, "/") + "/" + uuid.New().String(),
		P256DH:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(secret),
	}
	a.key = key
	a.current = &sub

	slog.Debug("push subscription created", "fingerprint", Fingerprint(sub.Endpoint))
	return sub, nil
}

// Unsubscribe drops the live subscription. It is a no-op when none exists.
func (a *Agent) Unsubscribe(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
	a.key = nil
	return nil
}

// CurrentEndpoint returns the live endpoint or "".
func (a *Agent) CurrentEndpoint(_ context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return "", nil
	}
	return a.current.Endpoint, nil
}

// Revoke simulates the user revoking permission in the user agent: the live
// subscription is dropped and the permission returns to the policy default.
func (a *Agent) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
	a.key = nil
	if a.config.Policy == PolicyGranted {
		a.permission = PermissionGranted
	} else {
		a.permission = PermissionDefault
	}
}

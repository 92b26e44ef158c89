// Package reconcile merges canonical subscription state with optimistic
// edits and drives destination toggles, including the browser push
// enable and endpoint refresh flows.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
	"github.com/bissquit/notify-agent/internal/pkg/notice"
	"github.com/bissquit/notify-agent/internal/push"
	"github.com/bissquit/notify-agent/internal/subscriptions"
)

// Notice texts not owned by the subscription store.
const (
	msgBrowserPushEnabled = "Browser notifications enabled"
	msgBrowserPushFailed  = "Failed to enable browser notifications"
	msgPushUnsupported    = "Browser notifications are not supported"
	msgPermissionDenied   = "Notification permission denied"
	msgInvalidToggle      = "Invalid destination"
)

var targetPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

const prefetchTimeout = 15 * time.Second

// SubscriptionStore is the canonical subscription state.
type SubscriptionStore interface {
	List(ctx context.Context) ([]domain.Subscription, error)
	Peek() ([]domain.Subscription, bool)
	Loading() bool
	LoadedAt() time.Time
	OnChange(fn func()) func()
	Refresh(ctx context.Context) ([]domain.Subscription, error)
	UpdateDestinations(ctx context.Context, id int64, destinations domain.DestinationSet) error
	Remove(ctx context.Context, id int64) error
}

// DestinationCatalog lists the destinations of an app scope.
type DestinationCatalog interface {
	List(ctx context.Context, appScope string) ([]domain.Destination, error)
	FindBrowser(ctx context.Context, appScope, endpoint string) (*domain.Destination, error)
	Invalidate(appScope string)
}

// Engine reconciles one app scope. Each subscription row has at most one
// mutation in flight; toggles on a busy row are rejected with ErrRowLocked.
type Engine struct {
	appScope string
	store    SubscriptionStore
	catalog  DestinationCatalog
	push     push.Platform
	notices  notice.Sink

	locks   *rowLocks
	overlay *overlay
	// pushMu serializes subscribe/unsubscribe sequences against the single
	// platform subscription.
	pushMu sync.Mutex
	closed atomic.Bool

	stopPrefetch func()
}

// New creates a new Engine for appScope.
func New(appScope string, store SubscriptionStore, catalog DestinationCatalog, platform push.Platform, notices notice.Sink) *Engine {
	if notices == nil {
		notices = notice.Discard
	}
	e := &Engine{
		appScope: appScope,
		store:    store,
		catalog:  catalog,
		push:     platform,
		notices:  notices,
		locks:    newRowLocks(),
		overlay:  newOverlay(),
	}
	e.stopPrefetch = store.OnChange(e.prefetch)
	return e
}

// AppScope returns the app scope the engine serves.
func (e *Engine) AppScope() string {
	return e.appScope
}

// Close marks the engine inert. Operations still in flight finish their
// network calls but leave overlay state and notices alone.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.stopPrefetch()
	e.overlay.reset()
}

// prefetch reloads the canonical list after it was invalidated, so Effective
// and the matrix follow server changes without waiting for a request.
func (e *Engine) prefetch() {
	if !e.alive() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), prefetchTimeout)
		defer cancel()
		if _, err := e.store.List(ctx); err != nil {
			slog.Debug("subscription prefetch failed", "app_scope", e.appScope, "error", err)
		}
	}()
}

func (e *Engine) alive() bool {
	return !e.closed.Load()
}

// Effective returns the destination set of a subscription: the optimistic
// overlay while a save is in flight, then the set the server last accepted
// until a newer canonical list is loaded, the canonical set otherwise. ok is
// false for an unknown subscription.
func (e *Engine) Effective(id int64) (domain.DestinationSet, bool) {
	if dests, ok := e.overlay.get(id); ok {
		return dests, true
	}
	if dests, ok := e.overlay.confirmedSince(id, e.store.LoadedAt()); ok {
		return dests, true
	}
	subs, _ := e.store.Peek()
	for _, s := range subs {
		if s.ID == id {
			return s.Destinations.Clone(), true
		}
	}
	return nil, false
}

// Locked reports whether a save is in flight for the subscription.
func (e *Engine) Locked(id int64) bool {
	return e.locks.locked(id)
}

// Toggle flips membership of (destType, target) in the effective set of a
// subscription and persists it. Enabling a browser push account first
// passes the destination through RefreshIfStale.
func (e *Engine) Toggle(ctx context.Context, id int64, destType domain.DestinationType, target string) (err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { e.report(ctx, opToggle, err) }()

	if !e.alive() {
		return ErrEngineClosed
	}
	if err := validateTarget(destType, target); err != nil {
		return err
	}

	release, ok := e.acquire(id)
	if !ok {
		return ErrRowLocked
	}
	defer release()

	start := time.Now()
	defer recordDuration(opToggle, start)

	current, err := e.effectiveLoaded(ctx, id)
	if err != nil {
		return err
	}

	next := current.Toggle(destType, target)
	e.setOverlay(id, next)
	defer e.clearOverlay(id)

	if destType == domain.DestinationTypeAccount && next.Contains(destType, target) {
		fresh, err := e.refreshIfBrowser(ctx, target)
		if err != nil {
			return err
		}
		if fresh != target {
			next = current.With(destType, fresh)
			e.setOverlay(id, next)
		}
	}

	return e.persist(ctx, id, next, subscriptions.MsgUpdated)
}

// ToggleBrowserPush enables browser push for a subscription when no browser
// account exists yet: it obtains permission, subscribes, finds the browser
// destination the server created and adds it to the subscription.
//
// If the catalog lookup fails after a successful subscribe, the platform
// subscription is kept; the next attempt reuses it.
func (e *Engine) ToggleBrowserPush(ctx context.Context, id int64) (err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { e.report(ctx, opBrowserPush, err) }()

	if !e.alive() {
		return ErrEngineClosed
	}
	release, ok := e.acquire(id)
	if !ok {
		return ErrRowLocked
	}
	defer release()

	start := time.Now()
	defer recordDuration(opBrowserPush, start)

	current, err := e.effectiveLoaded(ctx, id)
	if err != nil {
		return err
	}

	e.pushMu.Lock()
	dest, err := e.enableBrowserPush(ctx)
	e.pushMu.Unlock()
	if err != nil {
		return err
	}

	if current.Contains(domain.DestinationTypeAccount, dest.ID) {
		e.catalog.Invalidate(e.appScope)
		return nil
	}

	next := current.With(domain.DestinationTypeAccount, dest.ID)
	e.setOverlay(id, next)
	defer e.clearOverlay(id)

	if err := e.persist(ctx, id, next, msgBrowserPushEnabled); err != nil {
		return err
	}
	e.catalog.Invalidate(e.appScope)
	return nil
}

// enableBrowserPush runs with pushMu held.
func (e *Engine) enableBrowserPush(ctx context.Context) (*domain.Destination, error) {
	if err := e.ensurePermission(ctx); err != nil {
		return nil, err
	}

	sub, err := e.push.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to push: %w", err)
	}

	dest, err := e.catalog.FindBrowser(ctx, e.appScope, sub.Endpoint)
	if err != nil {
		ctxlog.FromContext(ctx).Warn("browser destination lookup failed, push subscription kept",
			"fingerprint", push.Fingerprint(sub.Endpoint),
			"error", err,
		)
		return nil, fmt.Errorf("find browser destination: %w", err)
	}
	return dest, nil
}

// RefreshIfStale checks a browser destination against the live platform
// endpoint. A matching destination is returned unchanged; otherwise the
// platform subscription is recreated and the id of the resulting browser
// destination is returned.
func (e *Engine) RefreshIfStale(ctx context.Context, dest domain.Destination) (id string, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { e.report(ctx, opRefresh, err) }()

	if !e.alive() {
		return "", ErrEngineClosed
	}
	if !dest.IsBrowser() {
		return "", &ValidationError{Field: "destination", Reason: ErrNotBrowserAccount.Error()}
	}

	e.pushMu.Lock()
	defer e.pushMu.Unlock()
	return e.refreshLocked(ctx, dest)
}

// RefreshDestination runs RefreshIfStale on the catalog destination destID.
func (e *Engine) RefreshDestination(ctx context.Context, destID string) (string, error) {
	dests, err := e.catalog.List(ctx, e.appScope)
	if err != nil {
		return "", fmt.Errorf("list destinations: %w", err)
	}
	for _, d := range dests {
		if d.ID == destID {
			return e.RefreshIfStale(ctx, d)
		}
	}
	return "", &ValidationError{Field: "destination", Reason: fmt.Sprintf("unknown id %q", destID)}
}

// refreshLocked runs with pushMu held.
func (e *Engine) refreshLocked(ctx context.Context, dest domain.Destination) (string, error) {
	if !e.push.Supported() {
		staleRefreshTotal.WithLabelValues("unsupported").Inc()
		return "", ErrPushUnsupported
	}

	endpoint, err := e.push.CurrentEndpoint(ctx)
	if err != nil {
		staleRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("read push endpoint: %w", err)
	}
	if push.Matches(dest.Identifier, endpoint) {
		staleRefreshTotal.WithLabelValues("fresh").Inc()
		return dest.ID, nil
	}

	logger := ctxlog.FromContext(ctx).With("destination_id", dest.ID)
	logger.Info("browser push endpoint is stale, resubscribing", "live", endpoint != "")

	// The live subscription is only torn down once a replacement is allowed.
	if err := e.ensurePermission(ctx); err != nil {
		staleRefreshTotal.WithLabelValues("error").Inc()
		return "", err
	}
	if err := e.push.Unsubscribe(ctx); err != nil {
		staleRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("unsubscribe from push: %w", err)
	}
	sub, err := e.push.Subscribe(ctx)
	if err != nil {
		staleRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("subscribe to push: %w", err)
	}

	fresh, err := e.catalog.FindBrowser(ctx, e.appScope, sub.Endpoint)
	if err != nil {
		staleRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("find browser destination: %w", err)
	}
	e.catalog.Invalidate(e.appScope)

	staleRefreshTotal.WithLabelValues("rotated").Inc()
	logger.Info("browser push endpoint refreshed", "new_destination_id", fresh.ID)
	return fresh.ID, nil
}

// refreshIfBrowser returns target unchanged unless it names a browser push
// account, in which case the account is refreshed first.
func (e *Engine) refreshIfBrowser(ctx context.Context, target string) (string, error) {
	dests, err := e.catalog.List(ctx, e.appScope)
	if err != nil {
		return "", fmt.Errorf("list destinations: %w", err)
	}
	for _, d := range dests {
		if d.ID != target || !d.IsBrowser() {
			continue
		}
		e.pushMu.Lock()
		defer e.pushMu.Unlock()
		return e.refreshLocked(ctx, d)
	}
	return target, nil
}

func (e *Engine) ensurePermission(ctx context.Context) error {
	if !e.push.Supported() {
		return ErrPushUnsupported
	}
	perm := e.push.Permission()
	if perm == push.PermissionGranted {
		return nil
	}
	perm, err := e.push.RequestPermission(ctx)
	if err != nil && !errors.Is(err, push.ErrPermissionNotGranted) {
		return fmt.Errorf("request permission: %w", err)
	}
	if perm != push.PermissionGranted {
		return &PermissionError{Permission: perm}
	}
	return nil
}

// Remove deletes a subscription. A row with a save in flight is rejected.
func (e *Engine) Remove(ctx context.Context, id int64) (err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { e.report(ctx, opRemove, err) }()

	if !e.alive() {
		return ErrEngineClosed
	}
	release, ok := e.acquire(id)
	if !ok {
		return ErrRowLocked
	}
	defer release()

	if err := e.store.Remove(ctx, id); err != nil {
		return err
	}
	e.overlay.forget(id)
	e.awaitRefresh(ctx)
	e.notify(true, subscriptions.MsgUnsubscribed)
	return nil
}

// persist issues the update and, on success, waits for the canonical list
// to catch up so the overlay can be dropped without flicker. The accepted
// set is kept as confirmed so a failed or discarded refetch never shows the
// row in its pre-toggle state.
func (e *Engine) persist(ctx context.Context, id int64, next domain.DestinationSet, successMsg string) error {
	if err := e.store.UpdateDestinations(ctx, id, next); err != nil {
		return err
	}
	if e.alive() {
		e.overlay.confirm(id, next, time.Now())
	}
	e.awaitRefresh(ctx)
	e.notify(true, successMsg)
	return nil
}

func (e *Engine) awaitRefresh(ctx context.Context) {
	if !e.alive() {
		return
	}
	if _, err := e.store.Refresh(ctx); err != nil {
		ctxlog.FromContext(ctx).Warn("refresh after mutation failed", "error", err)
	}
}

// effectiveLoaded is Effective backed by a load of the canonical list.
func (e *Engine) effectiveLoaded(ctx context.Context, id int64) (domain.DestinationSet, error) {
	if dests, ok := e.Effective(id); ok {
		return dests, nil
	}
	subs, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	for _, s := range subs {
		if s.ID == id {
			return s.Destinations.Clone(), nil
		}
	}
	return nil, &ValidationError{Field: "subscription", Reason: fmt.Sprintf("unknown id %d", id)}
}

func (e *Engine) acquire(id int64) (func(), bool) {
	release, ok := e.locks.acquire(id)
	if !ok {
		return nil, false
	}
	lockedRows.Inc()
	return func() {
		release()
		lockedRows.Dec()
	}, true
}

func (e *Engine) setOverlay(id int64, dests domain.DestinationSet) {
	if e.alive() {
		e.overlay.set(id, dests)
	}
}

func (e *Engine) clearOverlay(id int64) {
	if e.alive() {
		e.overlay.clear(id)
	}
}

func (e *Engine) notify(success bool, msg string) {
	if !e.alive() {
		return
	}
	if success {
		e.notices.Success(msg)
		return
	}
	e.notices.Error(msg)
}

// report records the outcome of an operation and surfaces a failure to the
// user exactly once. Rejected toggles on a busy row are not failures.
func (e *Engine) report(ctx context.Context, op string, err error) {
	recordOutcome(op, err)
	if err == nil || errors.Is(err, ErrRowLocked) {
		return
	}

	ctxlog.FromContext(ctx).Warn("reconcile operation failed", "operation", op, "error", err)
	e.notify(false, userMessage(op, err))
}

func userMessage(op string, err error) string {
	var merr *subscriptions.MutationError
	switch {
	case errors.As(err, &merr):
		return merr.Message
	case errors.Is(err, ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, ErrPushUnsupported):
		return msgPushUnsupported
	case errors.Is(err, ErrValidation):
		return msgInvalidToggle
	case op == opBrowserPush || op == opRefresh:
		return msgBrowserPushFailed
	case op == opRemove:
		return subscriptions.MsgUnsubscribeFailed
	default:
		return subscriptions.MsgUpdateFailed
	}
}

func outcomeLabel(err error) string {
	var merr *subscriptions.MutationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrRowLocked):
		return "locked"
	case errors.Is(err, ErrEngineClosed):
		return "closed"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrPushUnsupported):
		return "unsupported"
	case errors.As(err, &merr):
		return "mutation_error"
	default:
		return "error"
	}
}

func validateTarget(destType domain.DestinationType, target string) error {
	if !destType.IsValid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown destination type %q", destType)}
	}
	if target == "" {
		return &ValidationError{Field: "target", Reason: "must not be empty"}
	}
	if destType == domain.DestinationTypeWeb && target != domain.WebTarget {
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("web target must be %q", domain.WebTarget)}
	}
	if !targetPattern.MatchString(target) {
		return &ValidationError{Field: "target", Reason: "must be a destination id"}
	}
	return nil
}

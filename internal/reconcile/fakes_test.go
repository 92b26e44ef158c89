package reconcile

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bissquit/notify-agent/internal/catalog"
	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/push"
	"github.com/bissquit/notify-agent/internal/subscriptions"
)

const testScope = "/notifications"

type updateCall struct {
	ID           int64
	Destinations domain.DestinationSet
}

// fakeStore implements SubscriptionStore. When gate is set, updates block
// until it is closed.
type fakeStore struct {
	mu        sync.Mutex
	subs      []domain.Subscription
	updates   []updateCall
	removes   []int64
	updateErr error
	removeErr error
	gate      chan struct{}
	entered   chan struct{}
	refreshes int
}

func newFakeStore(subs ...domain.Subscription) *fakeStore {
	return &fakeStore{subs: subs, entered: make(chan struct{}, 16)}
}

func (s *fakeStore) snapshot() []domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Subscription, len(s.subs))
	for i, sub := range s.subs {
		sub.Destinations = sub.Destinations.Clone()
		out[i] = sub
	}
	return out
}

func (s *fakeStore) List(_ context.Context) ([]domain.Subscription, error) {
	return s.snapshot(), nil
}

func (s *fakeStore) Peek() ([]domain.Subscription, bool) {
	return s.snapshot(), true
}

func (s *fakeStore) Loading() bool { return false }

// LoadedAt is always now: List and Peek read live state.
func (s *fakeStore) LoadedAt() time.Time { return time.Now() }

func (s *fakeStore) OnChange(func()) func() { return func() {} }

func (s *fakeStore) Refresh(ctx context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()
	return s.List(ctx)
}

func (s *fakeStore) UpdateDestinations(_ context.Context, id int64, dests domain.DestinationSet) error {
	s.mu.Lock()
	s.updates = append(s.updates, updateCall{ID: id, Destinations: dests.Clone()})
	gate := s.gate
	s.mu.Unlock()

	s.entered <- struct{}{}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	for i := range s.subs {
		if s.subs[i].ID == id {
			s.subs[i].Destinations = dests.Clone()
		}
	}
	return nil
}

func (s *fakeStore) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, id)
	return s.removeErr
}

// setCanonical replaces a subscription's server state, as a realtime
// refetch would.
func (s *fakeStore) setCanonical(id int64, dests domain.DestinationSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == id {
			s.subs[i].Destinations = dests.Clone()
		}
	}
}

func (s *fakeStore) updateCalls() []updateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]updateCall(nil), s.updates...)
}

// fakeCatalog implements DestinationCatalog.
type fakeCatalog struct {
	mu            sync.Mutex
	dests         []domain.Destination
	findErr       error
	invalidations int
}

func (c *fakeCatalog) List(_ context.Context, _ string) ([]domain.Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Destination(nil), c.dests...), nil
}

func (c *fakeCatalog) FindBrowser(_ context.Context, _ string, endpoint string) (*domain.Destination, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.findErr != nil {
		return nil, c.findErr
	}
	for i := range c.dests {
		d := c.dests[i]
		if d.IsBrowser() && (endpoint == "" || push.Matches(d.Identifier, endpoint)) {
			return &d, nil
		}
	}
	return nil, catalog.ErrBrowserDestinationNotFound
}

func (c *fakeCatalog) Invalidate(_ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
}

func (c *fakeCatalog) add(d domain.Destination) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dests = append(c.dests, d)
}

func (c *fakeCatalog) invalidationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

// fakePlatform implements push.Platform. onSubscribe plays the server
// materializing a browser destination for a new endpoint.
type fakePlatform struct {
	mu             sync.Mutex
	supported      bool
	permission     push.Permission
	grantOnRequest bool
	endpoint       string
	seq            int
	subscribeErr   error
	onSubscribe    func(endpoint string)
	delay          time.Duration

	subscribes   int
	unsubscribes int
	requests     int

	active    int32
	maxActive int32
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{supported: true, permission: push.PermissionGranted}
}

func (p *fakePlatform) enter() func() {
	n := atomic.AddInt32(&p.active, 1)
	for {
		maxSeen := atomic.LoadInt32(&p.maxActive)
		if n <= maxSeen || atomic.CompareAndSwapInt32(&p.maxActive, maxSeen, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&p.active, -1) }
}

func (p *fakePlatform) Supported() bool { return p.supported }

func (p *fakePlatform) Permission() push.Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

func (p *fakePlatform) RequestPermission(_ context.Context) (push.Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	if p.permission == push.PermissionDefault && p.grantOnRequest {
		p.permission = push.PermissionGranted
	}
	return p.permission, nil
}

func (p *fakePlatform) Subscribe(_ context.Context) (push.Subscription, error) {
	defer p.enter()()
	time.Sleep(p.delay)

	p.mu.Lock()
	p.subscribes++
	if p.subscribeErr != nil {
		p.mu.Unlock()
		return push.Subscription{}, p.subscribeErr
	}
	created := false
	if p.endpoint == "" {
		p.seq++
		p.endpoint = fmt.Sprintf("https://push.example.com/endpoint-%d", p.seq)
		created = true
	}
	endpoint := p.endpoint
	hook := p.onSubscribe
	p.mu.Unlock()

	if created && hook != nil {
		hook(endpoint)
	}
	return push.Subscription{Endpoint: endpoint, P256DH: "key", Auth: "auth"}, nil
}

func (p *fakePlatform) Unsubscribe(_ context.Context) error {
	defer p.enter()()
	time.Sleep(p.delay)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.unsubscribes++
	p.endpoint = ""
	return nil
}

func (p *fakePlatform) CurrentEndpoint(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoint, nil
}

func (p *fakePlatform) counts() (subscribes, unsubscribes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribes, p.unsubscribes
}

// recordingSink records notices.
type recordingSink struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (s *recordingSink) Success(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.successes = append(s.successes, msg)
}

func (s *recordingSink) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

func (s *recordingSink) snapshot() (successes, errors []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.successes...), append([]string(nil), s.errors...)
}

type fixture struct {
	store    *fakeStore
	catalog  *fakeCatalog
	platform *fakePlatform
	sink     *recordingSink
	engine   *Engine
}

func newFixture(subs ...domain.Subscription) *fixture {
	f := &fixture{
		store:    newFakeStore(subs...),
		catalog:  &fakeCatalog{},
		platform: newFakePlatform(),
		sink:     &recordingSink{},
	}
	f.engine = New(testScope, f.store, f.catalog, f.platform, f.sink)
	return f
}

// materializeBrowser makes every new platform endpoint appear in the
// catalog as browser destination id.
func (f *fixture) materializeBrowser(ids ...string) {
	next := 0
	f.platform.onSubscribe = func(endpoint string) {
		id := ids[next%len(ids)]
		next++
		f.catalog.add(domain.Destination{
			ID:          id,
			Type:        domain.DestinationTypeAccount,
			AccountType: domain.AccountTypeBrowser,
			Label:       "Browser",
			Identifier:  push.Fingerprint(endpoint),
		})
	}
}

func webOnly() domain.DestinationSet {
	return domain.DestinationSet{{Type: domain.DestinationTypeWeb, Target: domain.WebTarget}}
}

func sub(id int64, dests domain.DestinationSet) domain.Subscription {
	return domain.Subscription{ID: id, App: "chat", AppName: "Chat", Label: fmt.Sprintf("Category %d", id), Destinations: dests}
}

var _ SubscriptionStore = (*subscriptions.Store)(nil)
var _ DestinationCatalog = (*catalog.Catalog)(nil)
var _ push.Platform = (*push.Client)(nil)

// serverRepository implements subscriptions.Repository for tests that run
// the engine against a real subscriptions.Store.
type serverRepository struct {
	mu      sync.Mutex
	subs    []domain.Subscription
	listErr error
}

func (r *serverRepository) ListSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.Subscription, len(r.subs))
	for i, s := range r.subs {
		s.Destinations = s.Destinations.Clone()
		out[i] = s
	}
	return out, nil
}

func (r *serverRepository) UpdateDestinations(_ context.Context, id int64, dests domain.DestinationSet) error {
	r.setDestinations(id, dests)
	return nil
}

func (r *serverRepository) DeleteSubscription(_ context.Context, _ int64) error {
	return nil
}

func (r *serverRepository) setDestinations(id int64, dests domain.DestinationSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.subs {
		if r.subs[i].ID == id {
			r.subs[i].Destinations = dests.Clone()
		}
	}
}

func (r *serverRepository) failLists(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listErr = err
}

func (r *serverRepository) destinations(id int64) domain.DestinationSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ID == id {
			return s.Destinations.Clone()
		}
	}
	return nil
}

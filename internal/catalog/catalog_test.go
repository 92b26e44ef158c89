package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/push"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	destinations map[string][]domain.Destination
	feeds        []domain.Feed
	listCalls    int
	createErr    error
	deleteErr    error
	renamed      map[string]string
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		destinations: make(map[string][]domain.Destination),
		renamed:      make(map[string]string),
	}
}

func (m *mockRepository) ListDestinations(_ context.Context, appScope string) ([]domain.Destination, error) {
	m.listCalls++
	return m.destinations[appScope], nil
}

func (m *mockRepository) ListFeeds(_ context.Context) ([]domain.Feed, error) {
	return m.feeds, nil
}

func (m *mockRepository) CreateFeed(_ context.Context, name string, _ bool) (*domain.Feed, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	f := domain.Feed{ID: "f1", Name: name, Token: "tok", Enabled: 1}
	m.feeds = append(m.feeds, f)
	return &f, nil
}

func (m *mockRepository) RenameFeed(_ context.Context, id, name string) error {
	m.renamed[id] = name
	return nil
}

func (m *mockRepository) SetFeedEnabled(_ context.Context, _ string, _ bool) error {
	return nil
}

func (m *mockRepository) DeleteFeed(_ context.Context, _ string) error {
	return m.deleteErr
}

// recordingSink records notices for assertions.
type recordingSink struct {
	successes []string
	errors    []string
}

func (s *recordingSink) Success(msg string) { s.successes = append(s.successes, msg) }
func (s *recordingSink) Error(msg string)   { s.errors = append(s.errors, msg) }

const scope = "/notifications"

func newTestCatalog(repo *mockRepository, sink *recordingSink) *Catalog {
	base, _ := url.Parse("https://example.com/notifications")
	return New(repo, querycache.New(querycache.Config{StaleTime: time.Hour}), sink, base)
}

func TestCatalog_ListIsCached(t *testing.T) {
	repo := newMockRepository()
	repo.destinations[scope] = []domain.Destination{
		{ID: "3", Type: domain.DestinationTypeAccount, AccountType: domain.AccountTypeEmail, Label: "me@example.com"},
	}
	c := newTestCatalog(repo, &recordingSink{})

	for range 2 {
		dests, err := c.List(context.Background(), scope)
		require.NoError(t, err)
		require.Len(t, dests, 1)
	}
	assert.Equal(t, 1, repo.listCalls)

	c.Invalidate(scope)
	_, err := c.List(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
}

func TestCatalog_FindBrowser(t *testing.T) {
	repo := newMockRepository()
	c := newTestCatalog(repo, &recordingSink{})

	_, err := c.FindBrowser(context.Background(), scope, "")
	assert.ErrorIs(t, err, ErrBrowserDestinationNotFound)

	// Server materialized the destination after subscribe; FindBrowser must not
	// be served from the stale cached list.
	repo.destinations[scope] = []domain.Destination{
		{ID: "3", Type: domain.DestinationTypeAccount, AccountType: domain.AccountTypeEmail},
		{ID: "12", Type: domain.DestinationTypeAccount, AccountType: domain.AccountTypeBrowser, Identifier: "endpoint-A"},
		{ID: "13", Type: domain.DestinationTypeAccount, AccountType: domain.AccountTypeBrowser, Identifier: push.Fingerprint("endpoint-B")},
	}

	dest, err := c.FindBrowser(context.Background(), scope, "endpoint-B")
	require.NoError(t, err)
	assert.Equal(t, "13", dest.ID)

	dest, err = c.FindBrowser(context.Background(), scope, "")
	require.NoError(t, err)
	assert.Equal(t, "12", dest.ID)
	assert.Equal(t, 3, repo.listCalls)
}

func TestCatalog_FindBrowserIgnoresOtherEndpoints(t *testing.T) {
	repo := newMockRepository()
	c := newTestCatalog(repo, &recordingSink{})

	// Only the destination of a previous endpoint exists; the server has
	// not materialized one for the new endpoint yet.
	repo.destinations[scope] = []domain.Destination{
		{ID: "5", Type: domain.DestinationTypeAccount, AccountType: domain.AccountTypeBrowser, Identifier: push.Fingerprint("endpoint-A")},
	}

	_, err := c.FindBrowser(context.Background(), scope, "endpoint-B")
	assert.ErrorIs(t, err, ErrBrowserDestinationNotFound)
}

func TestCatalog_CreateFeed(t *testing.T) {
	t.Run("invalid names", func(t *testing.T) {
		repo := newMockRepository()
		c := newTestCatalog(repo, &recordingSink{})

		for _, name := range []string{"", "   ", strings.Repeat("x", 101)} {
			_, err := c.CreateFeed(context.Background(), name, false)
			assert.ErrorIs(t, err, ErrInvalidFeedName)
		}
		assert.Empty(t, repo.feeds)
	})

	t.Run("success invalidates destinations", func(t *testing.T) {
		repo := newMockRepository()
		sink := &recordingSink{}
		c := newTestCatalog(repo, sink)

		_, err := c.List(context.Background(), scope)
		require.NoError(t, err)

		feed, err := c.CreateFeed(context.Background(), "  Work  ", true)
		require.NoError(t, err)
		assert.Equal(t, "Work", feed.Name)
		assert.Equal(t, []string{msgFeedCreated}, sink.successes)

		_, err = c.List(context.Background(), scope)
		require.NoError(t, err)
		assert.Equal(t, 2, repo.listCalls)
	})

	t.Run("server error surfaces message", func(t *testing.T) {
		repo := newMockRepository()
		repo.createErr = &remote.StatusError{Code: http.StatusBadRequest, Message: "Too many feeds"}
		sink := &recordingSink{}
		c := newTestCatalog(repo, sink)

		_, err := c.CreateFeed(context.Background(), "Work", false)
		require.Error(t, err)
		assert.Equal(t, []string{"Too many feeds"}, sink.errors)
	})
}

func TestCatalog_DeleteFeed(t *testing.T) {
	repo := newMockRepository()
	repo.deleteErr = &remote.StatusError{Code: http.StatusNotFound}
	sink := &recordingSink{}
	c := newTestCatalog(repo, sink)

	err := c.DeleteFeed(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrFeedNotFound)
	assert.Equal(t, []string{msgFeedDeleteFailed}, sink.errors)

	repo.deleteErr = errors.New("connection refused")
	err = c.DeleteFeed(context.Background(), "f1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFeedNotFound)
}

func TestCatalog_RenameFeed(t *testing.T) {
	repo := newMockRepository()
	sink := &recordingSink{}
	c := newTestCatalog(repo, sink)

	require.NoError(t, c.RenameFeed(context.Background(), "f1", "Personal"))
	assert.Equal(t, "Personal", repo.renamed["f1"])
	assert.Equal(t, []string{msgFeedRenamed}, sink.successes)
}

func TestCatalog_FeedURL(t *testing.T) {
	c := newTestCatalog(newMockRepository(), &recordingSink{})

	assert.Equal(t, "https://example.com/notifications/-/rss?token=abc", c.FeedURL("abc"))
	assert.Empty(t, c.FeedURL(""))
}

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/notify-agent/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, h http.HandlerFunc) *Repository {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := remote.New(remote.Config{BaseURL: srv.URL + "/notifications"})
	require.NoError(t, err)
	return NewRepository(client)
}

func TestRepository_ListNotifications(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/list", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":42,"app":"chat","content":"hi","count":2,"created":100,"read":0},{"id":"x7","app":"mail","read":5}]}`))
	})

	items, err := repo.ListNotifications(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "42", items[0].ID)
	assert.Equal(t, 2, items[0].Count)
	assert.True(t, items[0].IsUnread())
	assert.Equal(t, "x7", items[1].ID)
	assert.False(t, items[1].IsUnread())
}

func TestRepository_CountNotifications(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications/count", r.URL.Path)
		_, _ = w.Write([]byte(`{"count":3,"total":10}`))
	})

	count, err := repo.CountNotifications(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count.Count)
	assert.Equal(t, 10, count.Total)
}

func TestRepository_Mutations(t *testing.T) {
	var paths []string
	var ids []string
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		paths = append(paths, r.URL.Path)
		ids = append(ids, r.PostForm.Get("id"))
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	require.NoError(t, repo.MarkRead(context.Background(), "42"))
	require.NoError(t, repo.MarkAllRead(context.Background()))
	require.NoError(t, repo.ClearAll(context.Background()))

	assert.Equal(t, []string{"/notifications/read", "/notifications/read/all", "/notifications/clear/all"}, paths)
	assert.Equal(t, []string{"42", "", ""}, ids)
}

func TestRepository_ServerError(t *testing.T) {
	repo := newTestRepository(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Notification not found"}`))
	})

	err := repo.MarkRead(context.Background(), "1")
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))
}

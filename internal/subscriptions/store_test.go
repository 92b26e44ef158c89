package subscriptions

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/querycache"
	"github.com/bissquit/notify-agent/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements Repository for testing.
type mockRepository struct {
	mu        sync.Mutex
	subs      []domain.Subscription
	listCalls int
	updateErr error
	deleteErr error
	updates   []domain.DestinationSet
}

func (m *mockRepository) ListSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	out := make([]domain.Subscription, len(m.subs))
	for i, s := range m.subs {
		s.Destinations = s.Destinations.Clone()
		out[i] = s
	}
	return out, nil
}

func (m *mockRepository) UpdateDestinations(_ context.Context, id int64, dests domain.DestinationSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, dests)
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.subs {
		if m.subs[i].ID == id {
			m.subs[i].Destinations = dests.Clone()
		}
	}
	return nil
}

func (m *mockRepository) DeleteSubscription(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	kept := m.subs[:0]
	for _, s := range m.subs {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	m.subs = kept
	return nil
}

func newTestStore(repo *mockRepository) *Store {
	return NewStore(repo, querycache.New(querycache.Config{StaleTime: time.Hour}))
}

func webOnly() domain.DestinationSet {
	return domain.DestinationSet{{Type: domain.DestinationTypeWeb, Target: domain.WebTarget}}
}

func TestStore_ListEmptyVersusLoading(t *testing.T) {
	repo := &mockRepository{}
	s := newTestStore(repo)

	assert.False(t, s.Loading())
	_, ok := s.Peek()
	assert.False(t, ok)

	subs, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)

	_, ok = s.Peek()
	assert.True(t, ok)
}

func TestStore_UpdateDestinations(t *testing.T) {
	repo := &mockRepository{subs: []domain.Subscription{{ID: 7, App: "chat", Label: "Mentions", Destinations: webOnly()}}}
	s := newTestStore(repo)

	_, err := s.List(context.Background())
	require.NoError(t, err)

	next := webOnly().Toggle(domain.DestinationTypeAccount, "3")
	require.NoError(t, s.UpdateDestinations(context.Background(), 7, next))

	subs, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Destinations.Equal(next))
	assert.Equal(t, 2, repo.listCalls)
}

func TestStore_UpdateDestinationsFailure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "server message",
			err:     &remote.StatusError{Code: http.StatusBadRequest, Message: "Invalid destination"},
			wantMsg: "Invalid destination",
		},
		{
			name:    "network failure",
			err:     errors.New("connection refused"),
			wantMsg: MsgUpdateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository{updateErr: tt.err}
			s := newTestStore(repo)

			err := s.UpdateDestinations(context.Background(), 7, webOnly())

			var merr *MutationError
			require.ErrorAs(t, err, &merr)
			assert.Equal(t, OpUpdate, merr.Op)
			assert.Equal(t, int64(7), merr.ID)
			assert.Equal(t, tt.wantMsg, merr.Message)
			assert.ErrorIs(t, err, ErrMutationFailed)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestStore_RemoveIsIdempotent(t *testing.T) {
	repo := &mockRepository{deleteErr: &remote.StatusError{Code: http.StatusNotFound, Message: "Subscription not found"}}
	s := newTestStore(repo)

	require.NoError(t, s.Remove(context.Background(), 99))
}

func TestStore_RemoveFailure(t *testing.T) {
	repo := &mockRepository{deleteErr: errors.New("timeout")}
	s := newTestStore(repo)

	err := s.Remove(context.Background(), 7)

	var merr *MutationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, OpRemove, merr.Op)
	assert.Equal(t, MsgUnsubscribeFailed, merr.Message)
}

func TestStore_OnChange(t *testing.T) {
	repo := &mockRepository{subs: []domain.Subscription{{ID: 1, Destinations: webOnly()}}}
	s := newTestStore(repo)

	calls := 0
	stop := s.OnChange(func() { calls++ })
	defer stop()

	require.NoError(t, s.UpdateDestinations(context.Background(), 1, webOnly()))
	assert.Equal(t, 1, calls)
}


func TestStore_LoadedAt(t *testing.T) {
	repo := &mockRepository{subs: []domain.Subscription{{ID: 1, Destinations: webOnly()}}}
	s := newTestStore(repo)
	assert.True(t, s.LoadedAt().IsZero())

	_, err := s.List(context.Background())
	require.NoError(t, err)
	first := s.LoadedAt()
	assert.False(t, first.IsZero())

	time.Sleep(time.Millisecond)
	_, err = s.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, s.LoadedAt().After(first))
}

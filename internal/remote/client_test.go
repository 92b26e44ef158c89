package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{BaseURL: server.URL + "/notifications", Token: token})
	require.NoError(t, err)
	return c
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)
}

func TestClient_GetDecodesEnvelope(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("app")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"3","label":"me@example.com"}]}`))
	}, "opaque-token")

	var out []struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	err := c.Get(context.Background(), "-/destinations/list", url.Values{"app": {"chat"}}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/notifications/-/destinations/list", gotPath)
	assert.Equal(t, "chat", gotQuery)
	assert.Equal(t, "Bearer opaque-token", gotAuth)
	require.Len(t, out, 1)
	assert.Equal(t, "3", out[0].ID)
}

func TestClient_GetDecodesBareBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"count":2,"total":5}`))
	}, "")

	var out struct {
		Count int `json:"count"`
		Total int `json:"total"`
	}
	require.NoError(t, c.Get(context.Background(), "count", nil, &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 5, out.Total)
}

func TestClient_PostSendsForm(t *testing.T) {
	var gotContentType, gotID, gotDestinations string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotID = r.PostForm.Get("id")
		gotDestinations = r.PostForm.Get("destinations")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}, "")

	form := url.Values{"id": {"7"}, "destinations": {`[{"type":"web","target":"default"}]`}}
	require.NoError(t, c.Post(context.Background(), "subscriptions/update", form, nil))

	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "7", gotID)
	assert.Equal(t, `[{"type":"web","target":"default"}]`, gotDestinations)
}

func TestClient_ErrorBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{"string error", http.StatusBadRequest, `{"error":"Invalid destination"}`, 400, "Invalid destination"},
		{"object error", http.StatusForbidden, `{"error":{"message":"Access denied"}}`, 403, "Access denied"},
		{"plain text", http.StatusInternalServerError, "oops", 500, "oops"},
		{"error in 200", http.StatusOK, `{"error":"Subscription not found"}`, 400, "Subscription not found"},
		{"not found", http.StatusNotFound, `{"error":"not found"}`, 404, "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, "")

			err := c.Post(context.Background(), "subscriptions/update", url.Values{}, nil)

			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantCode, se.Code)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, tt.wantCode, se.UpstreamStatus())

			msg, ok := ServerMessage(err)
			assert.True(t, ok)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&StatusError{Code: http.StatusNotFound}))
	assert.False(t, IsNotFound(&StatusError{Code: http.StatusBadRequest}))
	assert.False(t, IsNotFound(errors.New("boom")))
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestClient_ExpiredTokenFailsFast(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}, signedToken(t, time.Now().Add(-time.Minute)))

	err := c.Get(context.Background(), "list", nil, nil)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.False(t, called)
}

func TestClient_ValidTokenPasses(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}, signedToken(t, time.Now().Add(time.Hour)))

	var out []any
	require.NoError(t, c.Get(context.Background(), "list", nil, &out))
	assert.Empty(t, out)
}

//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/notice"
	"github.com/bissquit/notify-agent/internal/reconcile"
	"github.com/bissquit/notify-agent/internal/testutil"
	"github.com/stretchr/testify/require"
)

func subscription(id int64, app, label string, dests ...domain.SubscriptionDestination) domain.Subscription {
	if dests == nil {
		dests = []domain.SubscriptionDestination{web()}
	}
	return domain.Subscription{ID: id, App: app, Label: label, Destinations: dests}
}

func web() domain.SubscriptionDestination {
	return domain.SubscriptionDestination{Type: domain.DestinationTypeWeb, Target: domain.WebTarget}
}

func account(target string) domain.SubscriptionDestination {
	return domain.SubscriptionDestination{Type: domain.DestinationTypeAccount, Target: target}
}

func emailAccount(id, label string) domain.Destination {
	return domain.Destination{
		ID:          id,
		Type:        domain.DestinationTypeAccount,
		AccountType: domain.AccountTypeEmail,
		Label:       label,
	}
}

func getMatrix(t *testing.T, client *testutil.Client) reconcile.Matrix {
	t.Helper()

	resp, err := client.GET("/api/v1/matrix")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data reconcile.Matrix `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

func toggle(t *testing.T, client *testutil.Client, id, destType, target string) *http.Response {
	t.Helper()

	resp, err := client.POST("/api/v1/subscriptions/"+id+"/toggle", map[string]string{
		"type":   destType,
		"target": target,
	})
	require.NoError(t, err)
	return resp
}

func getNotices(t *testing.T, client *testutil.Client) []notice.Notice {
	t.Helper()

	resp, err := client.GET("/api/v1/notices")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data []notice.Notice `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

func cellEnabled(m reconcile.Matrix, row int64, column string) bool {
	for _, r := range m.Rows {
		if r.ID != row {
			continue
		}
		for _, c := range r.Cells {
			if c.Column == column {
				return c.Enabled
			}
		}
	}
	return false
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 20*time.Millisecond, msg)
}

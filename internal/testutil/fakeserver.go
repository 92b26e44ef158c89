package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// FakeServer is an in-memory notifications server speaking the form-encoded
// API and the notifications websocket.
type FakeServer struct {
	*httptest.Server

	mu            sync.Mutex
	subscriptions []domain.Subscription
	destinations  []domain.Destination
	feeds         []domain.Feed
	notifications []domain.Notification
	nextID        int
	updateError   string
	calls         map[string]int
	sockets       map[*websocket.Conn]struct{}
	upgrader      websocket.Upgrader
}

// NewFakeServer starts a fake server; it is closed when the test ends.
func NewFakeServer(t *testing.T) *FakeServer {
	t.Helper()

	s := &FakeServer{
		nextID:  100,
		calls:   make(map[string]int),
		sockets: make(map[*websocket.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Get("/_/websocket", s.serveWebsocket)
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/subscriptions/list", s.listSubscriptions)
		r.Post("/subscriptions/update", s.updateSubscription)
		r.Post("/subscriptions/delete", s.deleteSubscription)
		r.Get("/-/destinations/list", s.listDestinations)
		r.Get("/-/rss/list", s.listFeeds)
		r.Post("/-/rss/create", s.createFeed)
		r.Post("/-/rss/rename", s.renameFeed)
		r.Post("/-/rss/update", s.ok("rss/update"))
		r.Post("/-/rss/delete", s.deleteFeed)
		r.Post("/-/accounts/add", s.addAccount)
		r.Get("/list", s.listNotifications)
		r.Get("/count", s.countNotifications)
		r.Post("/read", s.markRead)
		r.Post("/read/all", s.markAllRead)
		r.Post("/clear/all", s.clearAll)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// BaseURL returns the API base URL of the fake server.
func (s *FakeServer) BaseURL() string {
	return s.URL + "/notifications"
}

// Close disconnects websocket clients and stops the server.
func (s *FakeServer) Close() {
	s.mu.Lock()
	for ws := range s.sockets {
		_ = ws.Close()
	}
	s.sockets = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()
	s.Server.Close()
}

// SetSubscriptions replaces the server's subscriptions.
func (s *FakeServer) SetSubscriptions(subs ...domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions = subs
}

// SetDestinations replaces the server's destinations.
func (s *FakeServer) SetDestinations(dests ...domain.Destination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations = dests
}

// SetNotifications replaces the server's notification feed.
func (s *FakeServer) SetNotifications(items ...domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = items
}

// FailUpdates makes subscriptions/update fail with message. Empty clears it.
func (s *FakeServer) FailUpdates(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateError = message
}

// Subscription returns the server's copy of subscription id.
func (s *FakeServer) Subscription(id int64) (domain.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscriptions {
		if sub.ID == id {
			return sub, true
		}
	}
	return domain.Subscription{}, false
}

// Calls returns how often an endpoint was hit.
func (s *FakeServer) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// Connected returns the number of open websocket clients.
func (s *FakeServer) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets)
}

// Broadcast sends event to every websocket client.
func (s *FakeServer) Broadcast(event domain.Event) {
	payload, _ := json.Marshal(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.sockets {
		_ = ws.WriteMessage(websocket.TextMessage, payload)
	}
}

// DropConnections closes every websocket from the server side.
func (s *FakeServer) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ws := range s.sockets {
		_ = ws.Close()
		delete(s.sockets, ws)
	}
}

func (s *FakeServer) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("key") != "notifications" {
		http.Error(w, "unknown key", http.StatusBadRequest)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.sockets[ws] = struct{}{}
	s.mu.Unlock()

	// Drain until the client goes away.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.sockets, ws)
	s.mu.Unlock()
	_ = ws.Close()
}

func (s *FakeServer) hit(endpoint string) {
	s.mu.Lock()
	s.calls[endpoint]++
	s.mu.Unlock()
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func writeServerError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}

func (s *FakeServer) ok(endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.hit(endpoint)
		writeData(w, map[string]any{})
	}
}

func (s *FakeServer) listSubscriptions(w http.ResponseWriter, _ *http.Request) {
	s.hit("subscriptions/list")
	s.mu.Lock()
	defer s.mu.Unlock()
	subs := s.subscriptions
	if subs == nil {
		subs = []domain.Subscription{}
	}
	writeData(w, subs)
}

func (s *FakeServer) updateSubscription(w http.ResponseWriter, r *http.Request) {
	s.hit("subscriptions/update")
	id, _ := strconv.ParseInt(r.FormValue("id"), 10, 64)

	var dests domain.DestinationSet
	if err := json.Unmarshal([]byte(r.FormValue("destinations")), &dests); err != nil {
		writeServerError(w, http.StatusBadRequest, "Invalid destinations")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateError != "" {
		writeServerError(w, http.StatusBadRequest, s.updateError)
		return
	}
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == id {
			s.subscriptions[i].Destinations = dests
			writeData(w, map[string]any{})
			return
		}
	}
	writeServerError(w, http.StatusNotFound, "Subscription not found")
}

func (s *FakeServer) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	s.hit("subscriptions/delete")
	id, _ := strconv.ParseInt(r.FormValue("id"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subscriptions {
		if s.subscriptions[i].ID == id {
			s.subscriptions = append(s.subscriptions[:i], s.subscriptions[i+1:]...)
			writeData(w, map[string]any{})
			return
		}
	}
	writeServerError(w, http.StatusNotFound, "Subscription not found")
}

func (s *FakeServer) listDestinations(w http.ResponseWriter, _ *http.Request) {
	s.hit("destinations/list")
	s.mu.Lock()
	defer s.mu.Unlock()
	dests := append([]domain.Destination{}, s.destinations...)
	for _, f := range s.feeds {
		dests = append(dests, domain.Destination{ID: f.ID, Type: domain.DestinationTypeRSS, Label: f.Name})
	}
	writeData(w, dests)
}

func (s *FakeServer) listFeeds(w http.ResponseWriter, _ *http.Request) {
	s.hit("rss/list")
	s.mu.Lock()
	defer s.mu.Unlock()
	feeds := s.feeds
	if feeds == nil {
		feeds = []domain.Feed{}
	}
	writeData(w, feeds)
}

func (s *FakeServer) createFeed(w http.ResponseWriter, r *http.Request) {
	s.hit("rss/create")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	feed := domain.Feed{
		ID:      strconv.Itoa(s.nextID),
		Name:    r.FormValue("name"),
		Token:   "token-" + strconv.Itoa(s.nextID),
		Created: 1700000000,
		Enabled: 1,
	}
	s.feeds = append(s.feeds, feed)
	writeData(w, feed)
}

func (s *FakeServer) renameFeed(w http.ResponseWriter, r *http.Request) {
	s.hit("rss/rename")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feeds {
		if s.feeds[i].ID == r.FormValue("id") {
			s.feeds[i].Name = r.FormValue("name")
			writeData(w, map[string]any{})
			return
		}
	}
	writeServerError(w, http.StatusNotFound, "Feed not found")
}

func (s *FakeServer) deleteFeed(w http.ResponseWriter, r *http.Request) {
	s.hit("rss/delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.feeds {
		if s.feeds[i].ID == r.FormValue("id") {
			s.feeds = append(s.feeds[:i], s.feeds[i+1:]...)
			writeData(w, map[string]any{})
			return
		}
	}
	writeServerError(w, http.StatusNotFound, "Feed not found")
}

func (s *FakeServer) addAccount(w http.ResponseWriter, r *http.Request) {
	s.hit("accounts/add")
	if r.FormValue("type") != string(domain.AccountTypeBrowser) || r.FormValue("endpoint") == "" {
		writeServerError(w, http.StatusBadRequest, "Invalid account")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.destinations = append(s.destinations, domain.Destination{
		ID:          strconv.Itoa(s.nextID),
		Type:        domain.DestinationTypeAccount,
		AccountType: domain.AccountTypeBrowser,
		Label:       r.FormValue("label"),
		Identifier:  r.FormValue("endpoint"),
	})
	writeData(w, map[string]any{"id": s.nextID})
}

func (s *FakeServer) listNotifications(w http.ResponseWriter, _ *http.Request) {
	s.hit("list")
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.notifications
	if items == nil {
		items = []domain.Notification{}
	}
	writeData(w, items)
}

func (s *FakeServer) countNotifications(w http.ResponseWriter, _ *http.Request) {
	s.hit("count")
	s.mu.Lock()
	defer s.mu.Unlock()
	count := domain.NotificationCount{Total: len(s.notifications)}
	for _, n := range s.notifications {
		if n.IsUnread() {
			count.Count++
		}
	}
	writeData(w, count)
}

func (s *FakeServer) markRead(w http.ResponseWriter, r *http.Request) {
	s.hit("read")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == r.FormValue("id") {
			s.notifications[i].Read = 1700000000
			writeData(w, map[string]any{})
			return
		}
	}
	writeServerError(w, http.StatusNotFound, "Notification not found")
}

func (s *FakeServer) markAllRead(w http.ResponseWriter, _ *http.Request) {
	s.hit("read/all")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].Read == 0 {
			s.notifications[i].Read = 1700000000
		}
	}
	writeData(w, map[string]any{})
}

func (s *FakeServer) clearAll(w http.ResponseWriter, _ *http.Request) {
	s.hit("clear/all")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = nil
	writeData(w, map[string]any{})
}

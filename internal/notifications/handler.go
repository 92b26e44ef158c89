package notifications

import (
	"net/http"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrInvalidNotificationID, Status: http.StatusBadRequest, Message: "invalid notification id"},
	{Error: ErrNotificationNotFound, Status: http.StatusNotFound, Message: "notification not found"},
}

// Handler handles HTTP requests for the notification feed.
type Handler struct {
	feed *Feed
}

// NewHandler creates a new notifications handler.
func NewHandler(feed *Feed) *Handler {
	return &Handler{feed: feed}
}

// RegisterRoutes registers notification routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/count", h.Count)
		r.Post("/read-all", h.MarkAllRead)
		r.Post("/clear-all", h.ClearAll)
		r.Post("/{id}/read", h.MarkRead)
	})
}

// ListResponse is the feed with the number of unread entries in it.
type ListResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// List handles GET /notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.feed.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	unread := 0
	for _, n := range items {
		if n.IsUnread() {
			unread++
		}
	}

	httputil.Success(w, http.StatusOK, ListResponse{Notifications: items, Unread: unread})
}

// Count handles GET /notifications/count.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.feed.Count(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, count)
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.MarkAllRead(r.Context()); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

// ClearAll handles POST /notifications/clear-all.
func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.feed.ClearAll(r.Context()); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

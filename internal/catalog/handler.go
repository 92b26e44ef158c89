package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrFeedNotFound, Status: http.StatusNotFound, Message: "feed not found"},
	{Error: ErrInvalidFeedName, Status: http.StatusBadRequest, Message: "feed name must be 1 to 100 characters"},
	{Error: ErrBrowserDestinationNotFound, Status: http.StatusNotFound, Message: "browser push destination not found"},
}

// Handler handles HTTP requests for destinations and feeds.
type Handler struct {
	catalog   *Catalog
	appScope  string
	validator *validator.Validate
}

// NewHandler creates a new catalog handler for one app scope.
func NewHandler(catalog *Catalog, appScope string) *Handler {
	return &Handler{
		catalog:   catalog,
		appScope:  appScope,
		validator: validator.New(),
	}
}

// RegisterRoutes registers destination and feed routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/destinations", h.ListDestinations)

	r.Route("/feeds", func(r chi.Router) {
		r.Get("/", h.ListFeeds)
		r.Post("/", h.CreateFeed)
		r.Patch("/{id}", h.UpdateFeed)
		r.Delete("/{id}", h.DeleteFeed)
	})
}

// CreateFeedRequest represents request body for creating a feed.
type CreateFeedRequest struct {
	Name          string `json:"name" validate:"required"`
	AddToExisting bool   `json:"add_to_existing"`
}

// UpdateFeedRequest represents request body for updating a feed.
type UpdateFeedRequest struct {
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
}

// FeedResponse is a feed with its public URL.
type FeedResponse struct {
	domain.Feed
	URL string `json:"url,omitempty"`
}

// ListDestinations handles GET /destinations.
func (h *Handler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	dests, err := h.catalog.List(r.Context(), h.appScope)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, dests)
}

// ListFeeds handles GET /feeds.
func (h *Handler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.catalog.ListFeeds(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	resp := make([]FeedResponse, 0, len(feeds))
	for _, f := range feeds {
		resp = append(resp, h.toResponse(f))
	}
	httputil.Success(w, http.StatusOK, resp)
}

// CreateFeed handles POST /feeds.
func (h *Handler) CreateFeed(w http.ResponseWriter, r *http.Request) {
	var req CreateFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	feed, err := h.catalog.CreateFeed(r.Context(), req.Name, req.AddToExisting)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, h.toResponse(*feed))
}

// UpdateFeed handles PATCH /feeds/{id}.
func (h *Handler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	var req UpdateFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == nil && req.Enabled == nil {
		httputil.Error(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if req.Name != nil {
		if err := h.catalog.RenameFeed(r.Context(), feedID, *req.Name); err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
	}
	if req.Enabled != nil {
		if err := h.catalog.SetFeedEnabled(r.Context(), feedID, *req.Enabled); err != nil {
			httputil.HandleError(r.Context(), w, err, errorMappings)
			return
		}
	}

	httputil.NoContent(w)
}

// DeleteFeed handles DELETE /feeds/{id}.
func (h *Handler) DeleteFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	if err := h.catalog.DeleteFeed(r.Context(), feedID); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.NoContent(w)
}

func (h *Handler) toResponse(f domain.Feed) FeedResponse {
	return FeedResponse{Feed: f, URL: h.catalog.FeedURL(f.Token)}
}

package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/bissquit/notify-agent/internal/catalog"
	"github.com/bissquit/notify-agent/internal/domain"
	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/bissquit/notify-agent/internal/subscriptions"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrRowLocked, Status: http.StatusConflict, Message: "subscription has a save in progress"},
	{Error: ErrPermissionDenied, Status: http.StatusForbidden, Message: "notification permission denied"},
	{Error: ErrPushUnsupported, Status: http.StatusNotImplemented, Message: "browser push is not supported"},
	{Error: ErrEngineClosed, Status: http.StatusServiceUnavailable, Message: "shutting down"},
	{Error: subscriptions.ErrSubscriptionNotFound, Status: http.StatusNotFound, Message: "subscription not found"},
	{Error: catalog.ErrBrowserDestinationNotFound, Status: http.StatusBadGateway, Message: "server did not create a browser destination"},
}

// Handler handles HTTP requests for the subscription matrix.
type Handler struct {
	engine    *Engine
	validator *validator.Validate
}

// NewHandler creates a new matrix handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{
		engine:    engine,
		validator: validator.New(),
	}
}

// RegisterRoutes registers matrix routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/matrix", h.GetMatrix)

	r.Route("/subscriptions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSubscription)
		r.Delete("/", h.DeleteSubscription)
		r.Post("/toggle", h.Toggle)
		r.Post("/browser-push", h.ToggleBrowserPush)
	})

	r.Post("/destinations/{id}/refresh", h.RefreshDestination)
}

// ToggleRequest represents request body for toggling a destination.
type ToggleRequest struct {
	Type   string `json:"type" validate:"required,oneof=web account rss"`
	Target string `json:"target" validate:"required,max=128"`
}

// SubscriptionState is the effective state of one subscription.
type SubscriptionState struct {
	ID           int64                 `json:"id"`
	Destinations domain.DestinationSet `json:"destinations"`
	Locked       bool                  `json:"locked"`
}

// RefreshResponse carries the destination id to use after a refresh.
type RefreshResponse struct {
	ID      string `json:"id"`
	Changed bool   `json:"changed"`
}

// GetMatrix handles GET /matrix.
func (h *Handler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	matrix, err := h.engine.Matrix(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, matrix)
}

// GetSubscription handles GET /subscriptions/{id}.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	dests, err := h.engine.effectiveLoaded(r.Context(), id)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) && verr.Field == "subscription" {
			err = subscriptions.ErrSubscriptionNotFound
		}
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, SubscriptionState{
		ID:           id,
		Destinations: dests.Normalize(),
		Locked:       h.engine.Locked(id),
	})
}

// Toggle handles POST /subscriptions/{id}/toggle.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	if err := h.engine.Toggle(r.Context(), id, domain.DestinationType(req.Type), req.Target); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeState(w, id)
}

// ToggleBrowserPush handles POST /subscriptions/{id}/browser-push.
func (h *Handler) ToggleBrowserPush(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	if err := h.engine.ToggleBrowserPush(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeState(w, id)
}

// DeleteSubscription handles DELETE /subscriptions/{id}.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := subscriptionID(w, r)
	if !ok {
		return
	}

	if err := h.engine.Remove(r.Context(), id); err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.NoContent(w)
}

// RefreshDestination handles POST /destinations/{id}/refresh.
func (h *Handler) RefreshDestination(w http.ResponseWriter, r *http.Request) {
	destID := chi.URLParam(r, "id")

	fresh, err := h.engine.RefreshDestination(r.Context(), destID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, RefreshResponse{ID: fresh, Changed: fresh != destID})
}

func (h *Handler) writeState(w http.ResponseWriter, id int64) {
	dests, _ := h.engine.Effective(id)
	if dests == nil {
		dests = domain.DestinationSet{}
	}
	httputil.Success(w, http.StatusOK, SubscriptionState{
		ID:           id,
		Destinations: dests.Normalize(),
		Locked:       h.engine.Locked(id),
	})
}

// handleError reports store mutation failures with their user-facing
// message and everything else through the error mappings.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var merr *subscriptions.MutationError
	if errors.As(err, &merr) {
		httputil.Error(w, http.StatusBadGateway, merr.Message)
		return
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func subscriptionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid subscription id")
		return 0, false
	}
	return id, true
}

package realtime

import (
	"net/http"

	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the channel status.
type Handler struct {
	channel *Channel
}

// NewHandler creates a new realtime handler.
func NewHandler(channel *Channel) *Handler {
	return &Handler{channel: channel}
}

// RegisterRoutes registers realtime routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/realtime", h.GetStatus)
}

// GetStatus handles GET /realtime.
func (h *Handler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	httputil.Success(w, http.StatusOK, h.channel.Status())
}

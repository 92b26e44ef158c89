package notice

import (
	"net/http"
	"strconv"

	"github.com/bissquit/notify-agent/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
)

// Handler serves recent notices.
type Handler struct {
	log *Log
}

// NewHandler creates a new notices handler.
func NewHandler(log *Log) *Handler {
	return &Handler{log: log}
}

// RegisterRoutes registers notice routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notices", h.List)
}

// List handles GET /notices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	httputil.Success(w, http.StatusOK, h.log.Recent(limit))
}

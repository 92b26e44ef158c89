package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/notify-agent/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to a status and message.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // err.Error() when empty
}

// upstreamError is implemented by failures reported by the notifications
// server, such as *remote.StatusError.
type upstreamError interface {
	UpstreamStatus() int
}

// HandleError writes the response for err. Mappings are tried in order;
// unmapped server failures become 502, deadlines 504, anything else 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	logger := ctxlog.FromContext(ctx)

	var up upstreamError
	switch {
	case errors.As(err, &up):
		logger.Warn("notifications server error", "upstream_status", up.UpstreamStatus(), "error", err)
		Error(w, http.StatusBadGateway, "notifications server error")
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("notifications server timeout", "error", err)
		Error(w, http.StatusGatewayTimeout, "notifications server timed out")
	default:
		logger.Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
